package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/promokit/billing-engine/internal/models"
	"github.com/promokit/billing-engine/internal/services/credits"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"
)

// StripeService sells credit top-ups. It is a thin wrapper: checkout
// sessions carry the account and credit amount as metadata, and the webhook
// credits the paid pool once per payment intent.
type StripeService struct {
	secretKey      string
	webhookSecret  string
	creditsService *credits.Service
}

func NewStripeService(cfg models.StripeConfig, creditsService *credits.Service) *StripeService {
	stripe.Key = cfg.SecretKey

	return &StripeService{
		secretKey:      cfg.SecretKey,
		webhookSecret:  cfg.WebhookSecret,
		creditsService: creditsService,
	}
}

type CreateCheckoutParams struct {
	AccountID     string
	StripePriceID string
	CreditAmount  int64
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
}

// CreateCheckoutSession creates a Stripe checkout session for a credit top-up
func (s *StripeService) CreateCheckoutSession(ctx context.Context, params CreateCheckoutParams) (*stripe.CheckoutSession, error) {
	sessionParams := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.StripePriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		Metadata: map[string]string{
			"account_id":    params.AccountID,
			"credit_amount": strconv.FormatInt(params.CreditAmount, 10),
		},
	}

	if params.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripe.String(params.CustomerEmail)
	}

	sess, err := session.New(sessionParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return sess, nil
}

// HandleWebhook processes Stripe webhook events
func (s *StripeService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return fmt.Errorf("failed to verify webhook signature: %w", err)
	}

	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutSessionCompleted(ctx, event)
	default:
		// Ignore other event types
		return nil
	}
}

func (s *StripeService) handleCheckoutSessionCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}

	accountID := sess.Metadata["account_id"]
	creditAmount, err := strconv.ParseInt(sess.Metadata["credit_amount"], 10, 64)
	if err != nil {
		return fmt.Errorf("failed to parse credit amount: %w", err)
	}
	if accountID == "" || creditAmount <= 0 {
		return fmt.Errorf("invalid checkout session metadata")
	}

	paymentIntentID := ""
	if sess.PaymentIntent != nil {
		paymentIntentID = sess.PaymentIntent.ID
	}

	// Stripe retries webhooks; a payment intent already on the ledger means
	// this event was applied before.
	applied, err := s.creditsService.Store().HasPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return err
	}
	if applied {
		fiberlog.Infof("skipping already-applied payment intent %s", paymentIntentID)
		return nil
	}

	description := fmt.Sprintf("credit top-up via Stripe (%d credits)", creditAmount)
	if _, err := s.creditsService.AddPurchased(ctx, accountID, creditAmount, description, paymentIntentID); err != nil {
		return fmt.Errorf("failed to credit top-up: %w", err)
	}

	fiberlog.Infof("credited %d credits to account %s from checkout session %s", creditAmount, accountID, sess.ID)
	return nil
}
