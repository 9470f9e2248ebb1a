package api

import (
	"github.com/promokit/billing-engine/internal/models"
	"github.com/promokit/billing-engine/internal/services/billing"
	"github.com/gofiber/fiber/v2"
)

type ResourcesHandler struct {
	billingService *billing.Service
}

func NewResourcesHandler(billingService *billing.Service) *ResourcesHandler {
	return &ResourcesHandler{
		billingService: billingService,
	}
}

// RegisterResourceRequest represents the request body for registering a landing page
type RegisterResourceRequest struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Category  string `json:"category,omitempty"`
}

// Register creates a landing page in pending state
func (h *ResourcesHandler) Register(c *fiber.Ctx) error {
	var req RegisterResourceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if req.AccountID == "" || req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "account_id and name are required",
		})
	}

	resource, err := h.billingService.Register(c.Context(), models.RegisterResourceParams{
		AccountID: req.AccountID,
		Name:      req.Name,
		Category:  req.Category,
	})
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(resource)
}

// Get returns one landing page
func (h *ResourcesHandler) Get(c *fiber.Ctx) error {
	resource, err := h.billingService.GetResource(c.Context(), c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(resource)
}

// PublishResourceRequest represents the request body for publishing
type PublishResourceRequest struct {
	WithAddon bool `json:"with_addon,omitempty"`
}

// Publish charges the setup cost and activates the page
func (h *ResourcesHandler) Publish(c *fiber.Ctx) error {
	var req PublishResourceRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	resource, err := h.billingService.Publish(c.Context(), c.Params("id"), req.WithAddon)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(resource)
}

// Pause unpublishes an active page
func (h *ResourcesHandler) Pause(c *fiber.Ctx) error {
	resource, err := h.billingService.Pause(c.Context(), c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(resource)
}

// Renew performs an owner-initiated renewal ahead of schedule
func (h *ResourcesHandler) Renew(c *fiber.Ctx) error {
	resource, err := h.billingService.RenewNow(c.Context(), c.Params("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(resource)
}

// Delete removes a landing page
func (h *ResourcesHandler) Delete(c *fiber.Ctx) error {
	if err := h.billingService.Delete(c.Context(), c.Params("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(fiber.Map{"deleted": true})
}
