package api

import (
	"github.com/promokit/billing-engine/internal/services/payments"
	"github.com/gofiber/fiber/v2"
)

type StripeHandler struct {
	stripeService *payments.StripeService
}

func NewStripeHandler(stripeService *payments.StripeService) *StripeHandler {
	return &StripeHandler{
		stripeService: stripeService,
	}
}

// CreateCheckoutSessionRequest represents the request body for creating a checkout session
type CreateCheckoutSessionRequest struct {
	AccountID     string `json:"account_id"`
	StripePriceID string `json:"stripe_price_id"`
	CreditAmount  int64  `json:"credit_amount"`
	SuccessURL    string `json:"success_url"`
	CancelURL     string `json:"cancel_url"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

// CreateCheckoutSessionResponse represents the response for checkout session creation
type CreateCheckoutSessionResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
	Amount      int64  `json:"amount"`
}

// CreateCheckoutSession creates a Stripe checkout session for a credit top-up
func (h *StripeHandler) CreateCheckoutSession(c *fiber.Ctx) error {
	var req CreateCheckoutSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.AccountID == "" || req.StripePriceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "account_id and stripe_price_id are required",
		})
	}
	if req.CreditAmount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "credit_amount must be greater than 0",
		})
	}
	if req.SuccessURL == "" || req.CancelURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "success_url and cancel_url are required",
		})
	}

	session, err := h.stripeService.CreateCheckoutSession(c.Context(), payments.CreateCheckoutParams{
		AccountID:     req.AccountID,
		StripePriceID: req.StripePriceID,
		CreditAmount:  req.CreditAmount,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create checkout session",
		})
	}

	return c.JSON(CreateCheckoutSessionResponse{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
		Amount:      req.CreditAmount,
	})
}

// HandleWebhook processes Stripe webhook events
func (h *StripeHandler) HandleWebhook(c *fiber.Ctx) error {
	payload := c.Body()

	signature := c.Get("Stripe-Signature")
	if signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing Stripe-Signature header",
		})
	}

	if err := h.stripeService.HandleWebhook(c.Context(), payload, signature); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to process webhook",
		})
	}

	// Return 200 OK to acknowledge receipt
	return c.JSON(fiber.Map{
		"received": true,
	})
}
