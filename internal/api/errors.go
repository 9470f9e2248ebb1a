package api

import (
	"errors"

	"github.com/promokit/billing-engine/internal/models"
	"github.com/gofiber/fiber/v2"
)

// statusForError maps the core error taxonomy to HTTP statuses. Anything
// outside the taxonomy is an infrastructure failure and reports as 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrAccountNotFound),
		errors.Is(err, models.ErrResourceNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrStillInsufficientFunds):
		return fiber.StatusPaymentRequired
	case errors.Is(err, models.ErrInvalidResourceState),
		errors.Is(err, models.ErrAlreadyRenewed):
		return fiber.StatusConflict
	case errors.Is(err, models.ErrFreeCreditsRestricted):
		return fiber.StatusForbidden
	case errors.Is(err, models.ErrInvalidRetryEntry):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func errorJSON(c *fiber.Ctx, err error) error {
	status := statusForError(err)
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		message = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
