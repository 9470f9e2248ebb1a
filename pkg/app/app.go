package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/promokit/billing-engine/internal/config"
	"github.com/promokit/billing-engine/internal/services/billing"
	"github.com/promokit/billing-engine/internal/services/credits"
	"github.com/promokit/billing-engine/internal/services/database"
	"github.com/promokit/billing-engine/internal/services/ledger"
	"github.com/promokit/billing-engine/internal/services/notifications"
	"github.com/promokit/billing-engine/internal/services/payments"
	"github.com/promokit/billing-engine/internal/services/publisher"
	"github.com/promokit/billing-engine/internal/services/scheduler"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

// App is the billing engine server instance: the HTTP surface, the sweep
// schedulers and the services they share.
type App struct {
	config    *config.Config
	app       *fiber.App
	db        *database.DB
	redis     *redis.Client
	notifier  notifications.Notifier
	publisher publisher.Publisher
}

// New creates an App with the given configuration. The cfg parameter is
// required and must not be nil.
func New(cfg *config.Config) *App {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() to create config")
	}
	return &App{config: cfg}
}

// WithNotifier overrides the notification channel (default: log only).
func (a *App) WithNotifier(n notifications.Notifier) *App {
	a.notifier = n
	return a
}

// WithPublisher overrides the deploy backend (default: no-op).
func (a *App) WithPublisher(p publisher.Publisher) *App {
	a.publisher = p
	return a
}

// Run starts the server and the sweep schedulers and blocks until shutdown.
func (a *App) Run() error {
	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(a.config)

	port := a.config.Server.Port
	if port == "" {
		port = "8080"
	}
	listenAddr := ":" + port

	a.app = createFiberApp(a.config)

	// === Infrastructure Setup ===
	db, err := database.New(a.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	a.db = db
	defer func() {
		if err := a.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
	}()

	a.redis, err = createRedisClient(a.config)
	if err != nil {
		return err
	}
	if a.redis != nil {
		defer func() {
			if err := a.redis.Close(); err != nil {
				fiberlog.Errorf("Failed to close Redis client: %v", err)
			}
		}()
	}

	// === Services Initialization ===
	store := ledger.NewStore(db.DB)
	if err := store.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate ledger tables: %w", err)
	}

	dedupe := notifications.NewDedupe(db.DB, a.redis)
	if err := dedupe.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate notification tables: %w", err)
	}

	notifier := a.notifier
	if notifier == nil {
		notifier = notifications.LogNotifier{}
	}
	dispatcher := notifications.NewDispatcher(notifier, dedupe, 2, 256)
	defer dispatcher.Stop()

	creditsService := credits.NewService(store, &a.config.Billing, dispatcher)
	billingService := billing.NewService(db.DB, store, creditsService, a.publisher, dispatcher, &a.config.Billing)
	if err := billingService.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate billing tables: %w", err)
	}

	var stripeService *payments.StripeService
	if a.config.Stripe.SecretKey != "" {
		stripeService = payments.NewStripeService(a.config.Stripe, creditsService)
	}

	// === Middleware Setup ===
	setupMiddleware(a.app, a.config)

	// === Routes Setup ===
	setupRoutes(a.app, a.config, routesDeps{
		db:             db,
		redis:          a.redis,
		store:          store,
		creditsService: creditsService,
		billingService: billingService,
		stripeService:  stripeService,
	})

	// === Schedulers ===
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schedulers := []*scheduler.SweepScheduler{
		scheduler.NewRenewalScheduler(billingService, &a.config.Billing),
		scheduler.NewExpiryScheduler(billingService, &a.config.Billing),
		scheduler.NewWarningScheduler(billingService, &a.config.Billing),
	}
	for _, s := range schedulers {
		go s.Start(ctx)
	}
	defer func() {
		for _, s := range schedulers {
			s.Stop()
		}
	}()

	fmt.Printf("Billing engine starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", a.config.Server.Environment)
	fmt.Printf("   Go version: %s\n", runtime.Version())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := a.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		fiberlog.Info("Context cancelled, starting shutdown...")
	}

	fiberlog.Info("Server shutting down gracefully...")
	if err := a.app.ShutdownWithTimeout(30 * time.Second); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	fiberlog.Info("Server shutdown completed successfully")

	return nil
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:           "PromoKit Billing Engine v1.0",
		EnablePrintRoutes: !isProd,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		CaseSensitive:     true,
		ServerHeader:      "BillingEngine",
	})
}

func setupMiddleware(app *fiber.App, cfg *config.Config) {
	isProd := cfg.IsProduction()

	// Recover middleware (must be first)
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	app.Use(requestid.New())

	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	allowedOrigins := cfg.Server.AllowedOrigins
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Stripe-Signature",
		AllowMethods:  "GET, POST, PUT, DELETE, OPTIONS",
		MaxAge:        86400,
		ExposeHeaders: "Content-Length, Content-Type, X-Request-ID",
	}))
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()

	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info", "":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", logLevel)
	}
}

func createRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.URL == "" {
		fiberlog.Info("Redis not configured - notification dedupe uses the database")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		fiberlog.Warnf("Redis unreachable, falling back to database dedupe: %v", err)
		_ = client.Close()
		return nil, nil
	}

	return client, nil
}
