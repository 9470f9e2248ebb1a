package api

import (
	"strconv"

	"github.com/promokit/billing-engine/internal/models"
	"github.com/promokit/billing-engine/internal/services/billing"
	"github.com/gofiber/fiber/v2"
)

type BillingHandler struct {
	billingService *billing.Service
}

func NewBillingHandler(billingService *billing.Service) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
	}
}

// ListLog returns the billing audit trail for an account, optionally
// filtered by outcome (success, failed).
func (h *BillingHandler) ListLog(c *fiber.Ctx) error {
	accountID := c.Params("account_id")
	if accountID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "account_id is required",
		})
	}

	outcome := models.BillingOutcome(c.Query("outcome"))
	if outcome != "" && outcome != models.BillingOutcomeSuccess && outcome != models.BillingOutcomeFailed {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "outcome must be success or failed",
		})
	}

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	entries, err := h.billingService.ListBillingLog(c.Context(), accountID, outcome, limit, offset)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(fiber.Map{
		"entries": entries,
		"total":   len(entries),
		"limit":   limit,
		"offset":  offset,
	})
}

// RetryRenewal re-attempts a failed auto-renewal from the admin screen
func (h *BillingHandler) RetryRenewal(c *fiber.Ctx) error {
	resource, err := h.billingService.RetryRenewal(c.Context(), c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(resource)
}

// RunRenewalSweep triggers the renewal sweep outside its schedule
func (h *BillingHandler) RunRenewalSweep(c *fiber.Ctx) error {
	summary, err := h.billingService.RunRenewalSweep(c.Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(summary)
}

// RunExpirySweep triggers the expiry sweep outside its schedule
func (h *BillingHandler) RunExpirySweep(c *fiber.Ctx) error {
	summary, err := h.billingService.RunExpirySweep(c.Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(summary)
}

// RunWarningSweep triggers the pre-expiry warning sweep outside its schedule
func (h *BillingHandler) RunWarningSweep(c *fiber.Ctx) error {
	summary, err := h.billingService.RunWarningSweep(c.Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(summary)
}
