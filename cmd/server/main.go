package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/payhero/internal/app"
	"github.com/example/payhero/internal/config"
	"github.com/example/payhero/internal/handlers"
	"github.com/example/payhero/internal/metrics"
	"github.com/example/payhero/internal/routes"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			fiberlog.Errorw("close failed", "error", err)
		}
	}()

	server := fiber.New(fiber.Config{
		AppName:      "PayHero Deposits",
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    1 << 20,
	})

	server.Use(recover.New())
	server.Use(logger.New())
	server.Use(metrics.Middleware())

	routes.Register(server, cfg, a.Store, a.Checkout, a.Callbacks)

	if cfg.ReconcileEnabled {
		go a.Reconciler.Run(ctx)
	}

	go func() {
		<-ctx.Done()
		fiberlog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.ShutdownWithContext(shutdownCtx); err != nil {
			fiberlog.Errorw("shutdown failed", "error", err)
		}
	}()

	fiberlog.Infow("starting server", "port", cfg.AppPort, "callback_path", cfg.PayHeroCallbackPath, "store", cfg.StoreDriver)
	if err := server.Listen(":" + cfg.AppPort); err != nil {
		return fmt.Errorf("fiber.Listen: %w", err)
	}
	return nil
}
