package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/promokit/billing-engine/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the durable account-balance store. Every mutation locks the
// account row, updates the balance and appends exactly one ledger entry in
// a single transaction, so the ledger always reconciles to the balance.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate runs database migrations for the ledger tables
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&models.Account{},
		&models.LedgerEntry{},
	)
}

// WithTransaction runs fn inside a transaction that commits on nil and rolls
// back on error or panic. Nested calls join the surrounding transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// EnsureAccount returns the account record for accountID, creating it with
// the signup bonus (and its ledger entry) on first sight.
func (s *Store) EnsureAccount(ctx context.Context, accountID string, bonus int64) (*models.Account, error) {
	var account models.Account

	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&account).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			account = models.Account{AccountID: accountID}
			if err := tx.Create(&account).Error; err != nil {
				return fmt.Errorf("failed to create account: %w", err)
			}
			if bonus > 0 {
				entry, err := s.adjustTx(tx, models.AdjustParams{
					AccountID:   accountID,
					Pool:        models.PoolPaid,
					Delta:       bonus,
					Kind:        models.LedgerKindAddition,
					Description: "signup bonus",
				})
				if err != nil {
					return err
				}
				account.PaidBalance = entry.BalanceAfter
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &account, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// GetAccount returns the account or models.ErrAccountNotFound.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetBalance returns the current balance of one pool.
func (s *Store) GetBalance(ctx context.Context, accountID string, pool models.CreditPool) (int64, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance(pool), nil
}

// AtomicAdjust applies a signed delta to one pool and appends the ledger
// entry in one all-or-nothing transaction. A deduction that would take the
// balance below zero is clamped to zero and the entry records the clamped
// amount actually moved; correct callers pre-check affordability under the
// same row lock (see credits.Service) and never reach the clamp.
func (s *Store) AtomicAdjust(ctx context.Context, params models.AdjustParams) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.adjustTx(tx, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// AdjustInTx is AtomicAdjust running inside a caller-owned transaction, for
// multi-step operations (dual-pool deduction, renewal) that must commit as
// one unit.
func (s *Store) AdjustInTx(tx *gorm.DB, params models.AdjustParams) (*models.LedgerEntry, error) {
	return s.adjustTx(tx, params)
}

func (s *Store) adjustTx(tx *gorm.DB, params models.AdjustParams) (*models.LedgerEntry, error) {
	// Lock the account row so concurrent adjustments serialize and a stale
	// balance can never be committed.
	var account models.Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", params.AccountID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	balance := account.Balance(params.Pool)
	moved := params.Delta
	if balance+moved < 0 {
		moved = -balance
	}
	newBalance := balance + moved

	updates := map[string]any{}
	switch params.Pool {
	case models.PoolFree:
		updates["free_balance"] = newBalance
	default:
		updates["paid_balance"] = newBalance
	}
	if moved < 0 {
		updates["total_spent"] = account.TotalSpent - moved
	}
	if moved > 0 && params.Kind == models.LedgerKindCredit {
		updates["total_purchased"] = account.TotalPurchased + moved
	}

	if err := tx.Model(&account).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	entry := models.LedgerEntry{
		PublicID:              uuid.New().String(),
		AccountID:             params.AccountID,
		Kind:                  params.Kind,
		Amount:                moved,
		Pool:                  params.Pool,
		BalanceAfter:          newBalance,
		LockedFor:             params.LockedFor,
		Description:           params.Description,
		StripePaymentIntentID: params.StripePaymentIntentID,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create ledger entry: %w", err)
	}

	return &entry, nil
}

// LockAccount loads the account row FOR UPDATE inside tx. Used by callers
// that need to check-then-act on the balance without racing other writers.
func (s *Store) LockAccount(tx *gorm.DB, accountID string) (*models.Account, error) {
	var account models.Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return &account, nil
}

// GetTransactionHistory retrieves ledger entries for an account, newest first.
func (s *Store) GetTransactionHistory(ctx context.Context, accountID string, limit, offset int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry

	query := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}

	return entries, nil
}

// HasPaymentIntent reports whether a ledger entry already recorded the given
// Stripe payment intent, for webhook replay idempotency.
func (s *Store) HasPaymentIntent(ctx context.Context, paymentIntentID string) (bool, error) {
	if paymentIntentID == "" {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("stripe_payment_intent_id = ?", paymentIntentID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check payment intent: %w", err)
	}
	return count > 0, nil
}
