package app

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/example/payhero/internal/config"
	"github.com/example/payhero/internal/database"
	"github.com/example/payhero/internal/services"
	"github.com/example/payhero/internal/store"
	"github.com/example/payhero/internal/worker"
)

// App holds the components shared by the server and the CLI.
type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Store      store.Store
	Gateway    *services.PayHeroClient
	Verifier   *services.SignatureVerifier
	Checkout   *services.CheckoutService
	Callbacks  *services.CallbackService
	Reconciler *worker.ReconciliationWorker
}

// New connects the configured store and builds every service on top of it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("[App] using in-memory store; data is lost on restart")
		a.Store = store.NewMemoryStore(cfg.AppID)
	default:
		db, err := database.Connect(ctx, cfg.DatabaseURL, database.Options{
			Namespace:      cfg.StoreNamespace,
			CreateDatabase: true,
		})
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if err := database.Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.DB = db
		a.Store = store.NewGormStore(db, cfg.AppID)
	}

	if cfg.CallbackURL() == "" {
		log.Warn("[App] neither APP_BASE nor PUBLIC_CALLBACK_URL is set; PayHero will not know where to send results")
	}
	a.Gateway = services.NewPayHeroClient(services.PayHeroConfig{
		BaseURL:     cfg.PayHeroAPIBase,
		Username:    cfg.PayHeroUsername,
		Password:    cfg.PayHeroPassword,
		ChannelID:   cfg.PayHeroChannelID,
		CallbackURL: cfg.CallbackURL(),
		Timeout:     cfg.PayHeroTimeout,
	})

	a.Verifier = services.NewSignatureVerifier(cfg.PayHeroWebhookSecret)
	if !a.Verifier.Configured() {
		log.Warn("[App] PAYHERO_WEBHOOK_SECRET is not set; every callback will be rejected")
	}

	var notifier services.DepositNotifier
	if cfg.TelegramBotToken != "" && cfg.TelegramAdminChat != "" {
		notifier = services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	}

	a.Checkout = services.NewCheckoutService(a.Store, a.Gateway)
	a.Callbacks = services.NewCallbackService(a.Store, a.Verifier, notifier)
	a.Reconciler = worker.NewReconciliationWorker(a.Store, a.Gateway, a.Callbacks, worker.Options{
		Interval:    cfg.ReconcileInterval,
		OlderThan:   cfg.ReconcileAfter,
		ExpireAfter: cfg.ReconcileExpireAfter,
	})
	return a, nil
}

// Close releases the database pool, if any.
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
