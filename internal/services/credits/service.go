package credits

import (
	"context"
	"fmt"

	"github.com/promokit/billing-engine/internal/models"
	"github.com/promokit/billing-engine/internal/services/ledger"
	"github.com/promokit/billing-engine/internal/services/notifications"
	"gorm.io/gorm"
)

// Service implements the balance-check and mutate operations on top of the
// ledger store. Every deduction pre-checks affordability under the account
// row lock, so the store's underflow clamp is never reached from here.
type Service struct {
	store    *ledger.Store
	cfg      *models.BillingConfig
	notifier *notifications.Dispatcher
}

func NewService(store *ledger.Store, cfg *models.BillingConfig, notifier *notifications.Dispatcher) *Service {
	return &Service{store: store, cfg: cfg, notifier: notifier}
}

func (s *Service) Store() *ledger.Store {
	return s.store
}

// HasEnough reports whether the pool balance covers amount.
func (s *Service) HasEnough(ctx context.Context, accountID string, pool models.CreditPool, amount int64) (bool, error) {
	balance, err := s.store.GetBalance(ctx, accountID, pool)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// Charge deducts amount from the paid pool. It is a no-op for amount <= 0
// and returns models.ErrInsufficientFunds (no ledger entry, no balance
// change) when the pre-check under the row lock fails.
func (s *Service) Charge(ctx context.Context, accountID string, amount int64, description string) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, nil
	}

	var entry *models.LedgerEntry
	err := s.store.WithTransaction(ctx, func(tx *gorm.DB) error {
		account, err := s.store.LockAccount(tx, accountID)
		if err != nil {
			return err
		}
		if account.PaidBalance < amount {
			return models.ErrInsufficientFunds
		}

		entry, err = s.store.AdjustInTx(tx, models.AdjustParams{
			AccountID:   accountID,
			Pool:        models.PoolPaid,
			Delta:       -amount,
			Kind:        models.LedgerKindDebit,
			Description: description,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyLowBalance(accountID, entry.BalanceAfter)

	return entry, nil
}

// ChargeInTx is Charge inside a caller-owned transaction, for operations
// that must commit the deduction together with other writes (publish,
// renewal). The caller is responsible for post-commit notifications.
func (s *Service) ChargeInTx(tx *gorm.DB, accountID string, amount int64, kind models.LedgerEntryKind, description string) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, nil
	}

	account, err := s.store.LockAccount(tx, accountID)
	if err != nil {
		return nil, err
	}
	if account.PaidBalance < amount {
		return nil, models.ErrInsufficientFunds
	}

	return s.store.AdjustInTx(tx, models.AdjustParams{
		AccountID:   accountID,
		Pool:        models.PoolPaid,
		Delta:       -amount,
		Kind:        kind,
		Description: description,
	})
}

// DeductDualPool consumes free credits first and the paid pool for the
// remainder, writing one ledger entry per pool touched and never a
// zero-amount entry. The purpose must be one the free pool may fund.
func (s *Service) DeductDualPool(ctx context.Context, accountID string, amount int64, purpose, description string) ([]models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, nil
	}
	if !s.cfg.FreePurposeAllowed(purpose) {
		return nil, models.ErrFreeCreditsRestricted
	}

	var entries []models.LedgerEntry
	err := s.store.WithTransaction(ctx, func(tx *gorm.DB) error {
		account, err := s.store.LockAccount(tx, accountID)
		if err != nil {
			return err
		}
		if account.FreeBalance+account.PaidBalance < amount {
			return models.ErrInsufficientFunds
		}

		useFree := min(account.FreeBalance, amount)
		remaining := amount - useFree

		if useFree > 0 {
			entry, err := s.store.AdjustInTx(tx, models.AdjustParams{
				AccountID:   accountID,
				Pool:        models.PoolFree,
				Delta:       -useFree,
				Kind:        models.LedgerKindDeduction,
				LockedFor:   purpose,
				Description: description,
			})
			if err != nil {
				return err
			}
			entries = append(entries, *entry)
		}
		if remaining > 0 {
			entry, err := s.store.AdjustInTx(tx, models.AdjustParams{
				AccountID:   accountID,
				Pool:        models.PoolPaid,
				Delta:       -remaining,
				Kind:        models.LedgerKindDeduction,
				Description: description,
			})
			if err != nil {
				return err
			}
			entries = append(entries, *entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Add credits the paid pool. No-op for amount <= 0.
func (s *Service) Add(ctx context.Context, accountID string, amount int64, description string) (*models.LedgerEntry, error) {
	return s.addWithIntent(ctx, accountID, amount, description, "")
}

// AddPurchased credits the paid pool for a completed payment, recording the
// payment intent so webhook replays are detected.
func (s *Service) AddPurchased(ctx context.Context, accountID string, amount int64, description, paymentIntentID string) (*models.LedgerEntry, error) {
	return s.addWithIntent(ctx, accountID, amount, description, paymentIntentID)
}

func (s *Service) addWithIntent(ctx context.Context, accountID string, amount int64, description, paymentIntentID string) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, nil
	}

	entry, err := s.store.AtomicAdjust(ctx, models.AdjustParams{
		AccountID:             accountID,
		Pool:                  models.PoolPaid,
		Delta:                 amount,
		Kind:                  models.LedgerKindCredit,
		Description:           description,
		StripePaymentIntentID: paymentIntentID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add credits: %w", err)
	}
	return entry, nil
}

// AddFree credits the free pool, locked to the given purpose.
func (s *Service) AddFree(ctx context.Context, accountID string, amount int64, purpose, description string) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, nil
	}

	entry, err := s.store.AtomicAdjust(ctx, models.AdjustParams{
		AccountID:   accountID,
		Pool:        models.PoolFree,
		Delta:       amount,
		Kind:        models.LedgerKindAddition,
		LockedFor:   purpose,
		Description: description,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add free credits: %w", err)
	}
	return entry, nil
}

// NotifyIfLowBalance emits a low_balance event when balanceAfter is below
// the configured threshold. Fired post-commit only.
func (s *Service) NotifyIfLowBalance(accountID string, balanceAfter int64) {
	s.notifyLowBalance(accountID, balanceAfter)
}

func (s *Service) notifyLowBalance(accountID string, balanceAfter int64) {
	if s.notifier == nil || s.cfg.LowBalanceThreshold <= 0 {
		return
	}
	if balanceAfter >= s.cfg.LowBalanceThreshold {
		return
	}
	s.notifier.Notify(accountID, models.NotifyLowBalance, models.NotificationPayload{
		Available: balanceAfter,
		Message:   fmt.Sprintf("paid credit balance is down to %d", balanceAfter),
	})
}
