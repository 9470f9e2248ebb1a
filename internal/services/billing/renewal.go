package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/promokit/billing-engine/internal/models"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// sweepConcurrency bounds how many renewal transactions run at once. Each
// renewal locks only its own resource and account rows, so parallel runs
// are independent.
const sweepConcurrency = 4

type renewMode int

const (
	renewAuto renewMode = iota
	renewManual
	renewRetry
)

func (m renewMode) logKind() models.BillingLogKind {
	if m == renewManual {
		return models.BillingLogManualRenew
	}
	return models.BillingLogAutoRenew
}

type renewResult struct {
	resource *models.LandingPage
	logEntry *models.BillingLogEntry
	ledger   *models.LedgerEntry
	funded   bool
}

// SweepSummary reports one renewal sweep run for observability.
type SweepSummary struct {
	Renewed []uint   `json:"renewed"`
	Expired []uint   `json:"expired"`
	Errors  []string `json:"errors"`
}

// RunRenewalSweep finds every due resource (active, auto-renew on, renewal
// date reached) and attempts its renewal. Each resource is processed in its
// own transaction, so one failure never aborts the rest; a resource renewed
// by a concurrent run is skipped silently. Safe to invoke at any cadence or
// concurrently.
func (s *Service) RunRenewalSweep(ctx context.Context) (*SweepSummary, error) {
	now := time.Now()

	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.LandingPage{}).
		Where("status = ? AND auto_renew = ? AND next_renewal_at IS NOT NULL AND next_renewal_at <= ?",
			models.ResourceActive, true, now).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find due resources: %w", err)
	}

	summary := &SweepSummary{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			result, err := s.renewResource(gctx, id, renewAuto, nil)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, models.ErrAlreadyRenewed):
				// Another run got there first for this cycle.
			case err != nil:
				summary.Errors = append(summary.Errors, fmt.Sprintf("resource %d: %v", id, err))
			case result.funded:
				summary.Renewed = append(summary.Renewed, id)
			default:
				summary.Expired = append(summary.Expired, id)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	fiberlog.Infof("renewal sweep: %d due, %d renewed, %d expired, %d errors",
		len(ids), len(summary.Renewed), len(summary.Expired), len(summary.Errors))

	return summary, nil
}

// RenewNow performs an owner-initiated renewal ahead of schedule. The
// resource must be active; insufficient funds leave it untouched apart from
// the failed audit entry.
func (s *Service) RenewNow(ctx context.Context, publicID string) (*models.LandingPage, error) {
	resource, err := s.GetResource(ctx, publicID)
	if err != nil {
		return nil, err
	}

	result, err := s.renewResource(ctx, resource.ID, renewManual, nil)
	if err != nil {
		return nil, err
	}
	if !result.funded {
		return nil, models.ErrInsufficientFunds
	}
	return result.resource, nil
}

// renewResource is the single renewal transition shared by the sweep, the
// manual path and the admin retry. It locks the resource row, re-validates
// the transition after acquiring the lock, locks the account and either
// deducts-and-extends or records the failure, all in one transaction.
// Post-commit side effects (notifications, deploy) fire here, after the
// transaction has returned.
func (s *Service) renewResource(ctx context.Context, resourceID uint, mode renewMode, retriesEntryID *uint) (*renewResult, error) {
	result := &renewResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resource, err := s.lockResource(tx, resourceID)
		if err != nil {
			return err
		}
		result.resource = resource
		now := time.Now()

		switch mode {
		case renewAuto:
			// Re-check under the lock: a concurrent sweep or manual renewal
			// may have moved next_renewal_at forward already.
			if resource.Status != models.ResourceActive || !resource.AutoRenew ||
				resource.NextRenewalAt == nil || resource.NextRenewalAt.After(now) {
				return models.ErrAlreadyRenewed
			}
		case renewManual:
			if resource.Status != models.ResourceActive {
				return models.ErrInvalidResourceState
			}
		case renewRetry:
			if resource.Status != models.ResourceActive && resource.Status != models.ResourceExpired {
				return models.ErrInvalidResourceState
			}
			// Re-check under the lock: a previous retry (or a manual renewal)
			// may already have paid for this cycle.
			if resource.Status == models.ResourceActive &&
				resource.NextRenewalAt != nil && resource.NextRenewalAt.After(now) {
				return models.ErrAlreadyRenewed
			}
		}

		cost := resource.CostPerCycle
		if cost <= 0 {
			cost = s.credits.CalculateRenewalCost(resource.Category)
		}

		account, err := s.store.LockAccount(tx, resource.AccountID)
		if err != nil {
			return err
		}

		if account.PaidBalance < cost {
			switch mode {
			case renewRetry:
				// No state change on a still-unfunded retry.
				return models.ErrStillInsufficientFunds
			case renewAuto:
				resource.Status = models.ResourceExpired
				resource.AutoRenew = false
				if err := tx.Save(resource).Error; err != nil {
					return fmt.Errorf("failed to deactivate resource: %w", err)
				}
			}
			entry := &models.BillingLogEntry{
				AccountID:      resource.AccountID,
				ResourceID:     &resource.ID,
				Kind:           mode.logKind(),
				Outcome:        models.BillingOutcomeFailed,
				Message:        fmt.Sprintf("renewal failed: required %d credits, available %d", cost, account.PaidBalance),
				RetriesEntryID: retriesEntryID,
			}
			if err := s.appendLog(tx, entry); err != nil {
				return err
			}
			result.logEntry = entry
			return nil
		}

		result.ledger, err = s.store.AdjustInTx(tx, models.AdjustParams{
			AccountID:   resource.AccountID,
			Pool:        models.PoolPaid,
			Delta:       -cost,
			Kind:        models.LedgerKindDebit,
			Description: fmt.Sprintf("renewal of landing page %q", resource.Name),
		})
		if err != nil {
			return err
		}

		cycleEnd := now.Add(s.cfg.Cycle())
		resource.Status = models.ResourceActive
		resource.AutoRenew = true
		resource.ExpiresAt = &cycleEnd
		resource.NextRenewalAt = &cycleEnd
		resource.LastRenewalAt = &now
		if err := tx.Save(resource).Error; err != nil {
			return fmt.Errorf("failed to extend resource: %w", err)
		}

		entry := &models.BillingLogEntry{
			AccountID:      resource.AccountID,
			ResourceID:     &resource.ID,
			Kind:           mode.logKind(),
			AmountDeducted: cost,
			Outcome:        models.BillingOutcomeSuccess,
			Message:        fmt.Sprintf("renewed for %d credits", cost),
			RetriesEntryID: retriesEntryID,
		}
		if err := s.appendLog(tx, entry); err != nil {
			return err
		}
		result.logEntry = entry
		result.funded = true
		return nil
	})
	if err != nil {
		return result, err
	}

	resource := result.resource
	if result.funded {
		if mode == renewRetry {
			s.deploy(ctx, resource.ID)
		}
		if s.notifier != nil {
			s.notifier.Notify(resource.AccountID, models.NotifyRenewalSuccess, models.NotificationPayload{
				ResourceID:   &resource.ID,
				ResourceName: resource.Name,
				Amount:       result.logEntry.AmountDeducted,
				ExpiresAt:    resource.ExpiresAt.Format(time.RFC3339),
			})
		}
		s.credits.NotifyIfLowBalance(resource.AccountID, result.ledger.BalanceAfter)
	} else if mode == renewAuto {
		s.undeploy(ctx, resource.ID)
		if s.notifier != nil {
			s.notifier.Notify(resource.AccountID, models.NotifyRenewalFailed, models.NotificationPayload{
				ResourceID:   &resource.ID,
				ResourceName: resource.Name,
				Message:      result.logEntry.Message,
			})
		}
	}

	return result, nil
}
