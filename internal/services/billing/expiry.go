package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/promokit/billing-engine/internal/models"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// ExpirySummary reports one expiry sweep run.
type ExpirySummary struct {
	Expired []uint   `json:"expired"`
	Errors  []string `json:"errors"`
}

// RunExpirySweep transitions every active resource whose expiry has passed
// to expired, regardless of auto-renew, and undeploys it. No funds move.
func (s *Service) RunExpirySweep(ctx context.Context) (*ExpirySummary, error) {
	now := time.Now()

	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.LandingPage{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.ResourceActive, now).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find expired resources: %w", err)
	}

	summary := &ExpirySummary{}
	for _, id := range ids {
		resource, err := s.expireResource(ctx, id)
		if errors.Is(err, models.ErrAlreadyRenewed) {
			continue
		}
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("resource %d: %v", id, err))
			continue
		}
		summary.Expired = append(summary.Expired, id)

		s.undeploy(ctx, id)
		if s.notifier != nil {
			s.notifier.Notify(resource.AccountID, models.NotifyResourceExpired, models.NotificationPayload{
				ResourceID:   &resource.ID,
				ResourceName: resource.Name,
				Message:      fmt.Sprintf("landing page %q has expired", resource.Name),
			})
		}
	}

	fiberlog.Infof("expiry sweep: %d expired, %d errors", len(summary.Expired), len(summary.Errors))

	return summary, nil
}

func (s *Service) expireResource(ctx context.Context, id uint) (*models.LandingPage, error) {
	var resource *models.LandingPage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		resource, err = s.lockResource(tx, id)
		if err != nil {
			return err
		}
		// Re-check under the lock: a renewal racing this sweep may have
		// extended the expiry already.
		if resource.Status != models.ResourceActive ||
			resource.ExpiresAt == nil || resource.ExpiresAt.After(time.Now()) {
			return models.ErrAlreadyRenewed
		}

		resource.Status = models.ResourceExpired
		resource.AutoRenew = false
		if err := tx.Save(resource).Error; err != nil {
			return fmt.Errorf("failed to expire resource: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resource, nil
}

// WarningSummary reports one pre-expiry warning sweep run.
type WarningSummary struct {
	Notified []uint   `json:"notified"`
	Errors   []string `json:"errors"`
}

// RunWarningSweep notifies owners of resources expiring or due for
// auto-renewal within the configured window. The dispatcher dedupes to at
// most one notification per resource per kind per day, so the sweep itself
// mutates nothing and can run as often as needed.
func (s *Service) RunWarningSweep(ctx context.Context) (*WarningSummary, error) {
	now := time.Now()
	horizon := now.Add(s.cfg.WarningWindow())

	var resources []models.LandingPage
	err := s.db.WithContext(ctx).
		Where("status = ?", models.ResourceActive).
		Where(
			s.db.Where("auto_renew = ? AND next_renewal_at IS NOT NULL AND next_renewal_at <= ?", true, horizon).
				Or("expires_at IS NOT NULL AND expires_at <= ?", horizon),
		).
		Order("id").
		Find(&resources).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find expiring resources: %w", err)
	}

	summary := &WarningSummary{}
	for i := range resources {
		resource := &resources[i]

		kind := models.NotifyResourceExpiring
		when := resource.ExpiresAt
		if resource.AutoRenew && resource.NextRenewalAt != nil && !resource.NextRenewalAt.After(horizon) {
			kind = models.NotifyRenewalUpcoming
			when = resource.NextRenewalAt
		}

		if s.notifier != nil {
			payload := models.NotificationPayload{
				ResourceID:   &resource.ID,
				ResourceName: resource.Name,
				Amount:       resource.CostPerCycle,
			}
			if when != nil {
				payload.ExpiresAt = when.Format(time.RFC3339)
			}
			s.notifier.Notify(resource.AccountID, kind, payload)
		}
		summary.Notified = append(summary.Notified, resource.ID)
	}

	return summary, nil
}
