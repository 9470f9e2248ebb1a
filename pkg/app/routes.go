package app

import (
	"github.com/promokit/billing-engine/internal/api"
	"github.com/promokit/billing-engine/internal/config"
	"github.com/promokit/billing-engine/internal/services/billing"
	"github.com/promokit/billing-engine/internal/services/credits"
	"github.com/promokit/billing-engine/internal/services/database"
	"github.com/promokit/billing-engine/internal/services/ledger"
	"github.com/promokit/billing-engine/internal/services/payments"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

type routesDeps struct {
	db             *database.DB
	redis          *redis.Client
	store          *ledger.Store
	creditsService *credits.Service
	billingService *billing.Service
	stripeService  *payments.StripeService
}

func setupRoutes(app *fiber.App, cfg *config.Config, deps routesDeps) {
	healthHandler := api.NewHealthHandler(deps.db, deps.redis)
	app.Get("/health", healthHandler.HealthCheck)

	v1 := app.Group("/v1")

	creditsHandler := api.NewCreditsHandler(deps.creditsService, deps.store, &cfg.Billing)
	accounts := v1.Group("/accounts/:account_id")
	accounts.Get("/balance", creditsHandler.GetBalance)
	accounts.Post("/check", creditsHandler.CheckCredits)
	accounts.Post("/charge", creditsHandler.Charge)
	accounts.Post("/credit", creditsHandler.Credit)
	accounts.Post("/credit-free", creditsHandler.CreditFree)
	accounts.Post("/charge-dual", creditsHandler.ChargeDualPool)
	accounts.Get("/transactions", creditsHandler.GetTransactionHistory)

	resourcesHandler := api.NewResourcesHandler(deps.billingService)
	resources := v1.Group("/resources")
	resources.Post("/", resourcesHandler.Register)
	resources.Get("/:id", resourcesHandler.Get)
	resources.Post("/:id/publish", resourcesHandler.Publish)
	resources.Post("/:id/pause", resourcesHandler.Pause)
	resources.Post("/:id/renew", resourcesHandler.Renew)
	resources.Delete("/:id", resourcesHandler.Delete)

	billingHandler := api.NewBillingHandler(deps.billingService)
	accounts.Get("/billing-log", billingHandler.ListLog)

	admin := v1.Group("/admin")
	admin.Post("/billing-log/:id/retry", billingHandler.RetryRenewal)
	admin.Post("/sweeps/renewal", billingHandler.RunRenewalSweep)
	admin.Post("/sweeps/expiry", billingHandler.RunExpirySweep)
	admin.Post("/sweeps/warning", billingHandler.RunWarningSweep)

	if deps.stripeService != nil {
		stripeHandler := api.NewStripeHandler(deps.stripeService)
		payments := v1.Group("/payments")
		payments.Post("/checkout", stripeHandler.CreateCheckoutSession)
		payments.Post("/webhook", stripeHandler.HandleWebhook)
	} else {
		fiberlog.Info("Stripe not configured - payment endpoints disabled")
	}
}
