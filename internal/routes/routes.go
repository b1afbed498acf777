package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/payhero/internal/config"
	"github.com/example/payhero/internal/handlers"
	"github.com/example/payhero/internal/metrics"
	"github.com/example/payhero/internal/middleware"
	"github.com/example/payhero/internal/services"
	"github.com/example/payhero/internal/store"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, cfg *config.Config, st store.Store, checkout *services.CheckoutService, callbacks *services.CallbackService) {
	payheroHandler := handlers.NewPayHeroHandler(checkout, callbacks)
	paymentHandler := handlers.NewPaymentHandler(st)

	app.Get("/health", handlers.Health)
	app.Get("/metrics", metrics.Handler())

	// PayHero posts payment results here
	app.Post(cfg.PayHeroCallbackPath, payheroHandler.Callback)

	api := app.Group("/api/payhero")
	api.Post("/checkout", payheroHandler.Checkout)

	// Read side is only exposed when tokens can be verified
	if cfg.JWTSecret == "" {
		return
	}
	auth := middleware.AuthMiddleware(cfg.JWTSecret)
	api.Get("/balance", auth, paymentHandler.GetBalance)
	api.Get("/payments", auth, paymentHandler.ListPayments)
	api.Get("/payments/:reference", auth, paymentHandler.GetPayment)
}
