package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/promokit/billing-engine/internal/models"
	"gorm.io/gorm"
)

// RetryRenewal re-attempts a failed auto-renewal from the admin review
// screen. The referenced billing log entry must be a failed auto_renew; it
// is left untouched and a new success entry linking back to it is appended.
// If the owner still cannot fund the renewal nothing changes and
// models.ErrStillInsufficientFunds is returned. A retry that finds the page
// already paid for the current cycle returns models.ErrAlreadyRenewed
// without charging again.
func (s *Service) RetryRenewal(ctx context.Context, logPublicID string) (*models.LandingPage, error) {
	var entry models.BillingLogEntry
	err := s.db.WithContext(ctx).
		Where("public_id = ?", logPublicID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load billing log entry: %w", err)
	}

	if entry.Kind != models.BillingLogAutoRenew || entry.Outcome != models.BillingOutcomeFailed || entry.ResourceID == nil {
		return nil, models.ErrInvalidRetryEntry
	}

	result, err := s.renewResource(ctx, *entry.ResourceID, renewRetry, &entry.ID)
	if errors.Is(err, models.ErrInsufficientFunds) {
		return nil, models.ErrStillInsufficientFunds
	}
	if err != nil {
		return nil, err
	}

	return result.resource, nil
}
