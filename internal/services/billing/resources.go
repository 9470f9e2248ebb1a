package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/promokit/billing-engine/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Register creates a billable resource in pending state with no expiry.
// The owning account is provisioned (with signup bonus) if it is new.
func (s *Service) Register(ctx context.Context, params models.RegisterResourceParams) (*models.LandingPage, error) {
	if _, err := s.store.EnsureAccount(ctx, params.AccountID, s.cfg.Bonus()); err != nil {
		return nil, err
	}

	resource := models.LandingPage{
		PublicID:  uuid.New().String(),
		AccountID: params.AccountID,
		Name:      params.Name,
		Category:  params.Category,
		Status:    models.ResourcePending,
	}
	if err := s.db.WithContext(ctx).Create(&resource).Error; err != nil {
		return nil, fmt.Errorf("failed to register resource: %w", err)
	}

	return &resource, nil
}

// Publish charges the setup cost and activates the resource: status becomes
// active, auto-renew is switched on and the first cycle starts now. Valid
// from pending and paused. A failed funding check appends a failed publish
// log entry and changes nothing else.
func (s *Service) Publish(ctx context.Context, publicID string, withAddon bool) (*models.LandingPage, error) {
	existing, err := s.GetResource(ctx, publicID)
	if err != nil {
		return nil, err
	}

	setupCost := s.credits.CalculateSetupCost(existing.Category, withAddon)
	renewalCost := s.credits.CalculateRenewalCost(existing.Category)

	var resource *models.LandingPage
	var chargeEntry *models.LedgerEntry
	funded := true

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resource, err = s.lockResource(tx, existing.ID)
		if err != nil {
			return err
		}
		if resource.Status != models.ResourcePending && resource.Status != models.ResourcePaused {
			return models.ErrInvalidResourceState
		}

		chargeEntry, err = s.credits.ChargeInTx(tx, resource.AccountID, setupCost, models.LedgerKindDebit,
			fmt.Sprintf("publish landing page %q", resource.Name))
		if errors.Is(err, models.ErrInsufficientFunds) {
			// Commit only the failed audit entry; returning the error here
			// would roll it back with the rest of the transaction.
			funded = false
			available, balErr := s.balanceInTx(tx, resource.AccountID)
			if balErr != nil {
				return balErr
			}
			return s.appendLog(tx, &models.BillingLogEntry{
				AccountID:  resource.AccountID,
				ResourceID: &resource.ID,
				Kind:       models.BillingLogPublish,
				Outcome:    models.BillingOutcomeFailed,
				Message:    fmt.Sprintf("publish failed: required %d credits, available %d", setupCost, available),
			})
		}
		if err != nil {
			return err
		}

		now := time.Now()
		cycleEnd := now.Add(s.cfg.Cycle())
		resource.Status = models.ResourceActive
		resource.AutoRenew = true
		resource.CostPerCycle = renewalCost
		resource.ExpiresAt = &cycleEnd
		resource.NextRenewalAt = &cycleEnd
		if err := tx.Save(resource).Error; err != nil {
			return fmt.Errorf("failed to activate resource: %w", err)
		}

		return s.appendLog(tx, &models.BillingLogEntry{
			AccountID:      resource.AccountID,
			ResourceID:     &resource.ID,
			Kind:           models.BillingLogPublish,
			AmountDeducted: setupCost,
			Outcome:        models.BillingOutcomeSuccess,
			Message:        fmt.Sprintf("published for %d credits", setupCost),
		})
	})
	if err != nil {
		return nil, err
	}
	if !funded {
		return nil, models.ErrInsufficientFunds
	}

	s.deploy(ctx, resource.ID)
	if chargeEntry != nil {
		s.credits.NotifyIfLowBalance(resource.AccountID, chargeEntry.BalanceAfter)
	}

	return resource, nil
}

// Pause unpublishes an active resource: expiry is cleared, auto-renew is
// switched off and the page is undeployed.
func (s *Service) Pause(ctx context.Context, publicID string) (*models.LandingPage, error) {
	existing, err := s.GetResource(ctx, publicID)
	if err != nil {
		return nil, err
	}

	var resource *models.LandingPage
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resource, err = s.lockResource(tx, existing.ID)
		if err != nil {
			return err
		}
		if resource.Status != models.ResourceActive {
			return models.ErrInvalidResourceState
		}

		resource.Status = models.ResourcePaused
		resource.AutoRenew = false
		resource.ExpiresAt = nil
		resource.NextRenewalAt = nil
		if err := tx.Save(resource).Error; err != nil {
			return fmt.Errorf("failed to pause resource: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.undeploy(ctx, resource.ID)

	return resource, nil
}

// Delete removes the resource. An active page is undeployed first.
func (s *Service) Delete(ctx context.Context, publicID string) error {
	resource, err := s.GetResource(ctx, publicID)
	if err != nil {
		return err
	}

	wasActive := resource.Status == models.ResourceActive
	if err := s.db.WithContext(ctx).Delete(&models.LandingPage{}, resource.ID).Error; err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}

	if wasActive {
		s.undeploy(ctx, resource.ID)
	}
	return nil
}

func (s *Service) balanceInTx(tx *gorm.DB, accountID string) (int64, error) {
	account, err := s.store.LockAccount(tx, accountID)
	if err != nil {
		return 0, err
	}
	return account.PaidBalance, nil
}
