package credits

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/promokit/billing-engine/internal/models"
	"github.com/promokit/billing-engine/internal/services/ledger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "credits.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	store := ledger.NewStore(db)
	if err := store.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &models.BillingConfig{
		SignupBonus:  -1,
		FreePurposes: []string{"training"},
	}
	return NewService(store, cfg, nil)
}

func mustAccount(t *testing.T, s *Service, accountID string, paid, free int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.store.EnsureAccount(ctx, accountID, 0); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if paid > 0 {
		if _, err := s.Add(ctx, accountID, paid, "test funding"); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if free > 0 {
		if _, err := s.AddFree(ctx, accountID, free, "training", "test funding"); err != nil {
			t.Fatalf("AddFree: %v", err)
		}
	}
}

func paidBalance(t *testing.T, s *Service, accountID string) int64 {
	t.Helper()
	balance, err := s.store.GetBalance(context.Background(), accountID, models.PoolPaid)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	return balance
}

// ---------------------------------------------------------------------------
// Charge
// ---------------------------------------------------------------------------

func TestCharge_DeductsAndRecords(t *testing.T) {
	s := newTestService(t)
	mustAccount(t, s, "acct-1", 100, 0)

	entry, err := s.Charge(context.Background(), "acct-1", 30, "publish fee")
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if entry.Amount != -30 || entry.BalanceAfter != 70 {
		t.Fatalf("unexpected entry: amount=%d balance_after=%d", entry.Amount, entry.BalanceAfter)
	}
	if got := paidBalance(t, s, "acct-1"); got != 70 {
		t.Fatalf("expected balance 70, got %d", got)
	}
}

func TestCharge_InsufficientFundsLeavesNoTrace(t *testing.T) {
	s := newTestService(t)
	mustAccount(t, s, "acct-1", 10, 0)

	_, err := s.Charge(context.Background(), "acct-1", 25, "too expensive")
	if !errors.Is(err, models.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := paidBalance(t, s, "acct-1"); got != 10 {
		t.Fatalf("balance changed on failed charge: %d", got)
	}

	entries, err := s.store.GetTransactionHistory(context.Background(), "acct-1", 0, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory: %v", err)
	}
	// Only the funding credit exists; the failed charge wrote nothing.
	if len(entries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(entries))
	}
}

func TestCharge_ExactBalanceSucceeds(t *testing.T) {
	s := newTestService(t)
	mustAccount(t, s, "acct-1", 25, 0)

	entry, err := s.Charge(context.Background(), "acct-1", 25, "exact")
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if entry.BalanceAfter != 0 {
		t.Fatalf("expected balance_after 0, got %d", entry.BalanceAfter)
	}
}

func TestCharge_ZeroAndNegativeAreNoOps(t *testing.T) {
	s := newTestService(t)
	mustAccount(t, s, "acct-1", 10, 0)

	for _, amount := range []int64{0, -5} {
		entry, err := s.Charge(context.Background(), "acct-1", amount, "noop")
		if err != nil {
			t.Fatalf("Charge(%d): %v", amount, err)
		}
		if entry != nil {
			t.Fatalf("Charge(%d) produced an entry", amount)
		}
	}
	if got := paidBalance(t, s, "acct-1"); got != 10 {
		t.Fatalf("no-op charge moved the balance: %d", got)
	}
}

func TestCharge_UnknownAccount(t *testing.T) {
	s := newTestService(t)

	_, err := s.Charge(context.Background(), "missing", 10, "x")
	if !errors.Is(err, models.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

// Two concurrent charges that together exceed the balance: exactly one may
// win. The pre-check runs under the account row lock, so the loser sees the
// committed deduction.
func TestCharge_ConcurrentDoubleSpend(t *testing.T) {
	s := newTestService(t)
	mustAccount(t, s, "acct-1", 10, 0)

	const workers = 2
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Charge(context.Background(), "acct-1", 7, "concurrent")
		}()
	}
	wg.Wait()

	var succeeded, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, models.ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || insufficient != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d rejections", succeeded, insufficient)
	}
	if got := paidBalance(t, s, "acct-1"); got != 3 {
		t.Fatalf("expected balance 3 after one charge of 7, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Dual-pool deduction
// ---------------------------------------------------------------------------

func TestDeductDualPool_FreeFirstThenPaid(t *testing.T) {
	s := newTestService(t)
	mustAccount(t, s, "acct-1", 10, 3)

	entries, err := s.DeductDualPool(context.Background(), "acct-1", 5, "training", "session")
	if err != nil {
		t.Fatalf("DeductDualPool: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries (one per pool), got %d", len(entries))
	}
	if entries[0].Pool != models.PoolFree || entries[0].Amount != -3 {
		t.Fatalf("free leg wrong: pool=%s amount=%d", entries[0].Pool, entries[0].Amount)
	}
	if entries[1].Pool != models.PoolPaid || entries[1].Amount != -2 {
		t.Fatalf("paid leg wrong: pool=%s amount=%d", entries[1].Pool, entries[1].Amount)
	}

	account, err := s.store.GetAccount(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if account.FreeBalance != 0 || account.PaidBalance != 8 {
		t.Fatalf("expected free=0 paid=8, got free=%d paid=%d", account.FreeBalance, account.PaidBalance)
	}
}

func TestDeductDualPool_FreeCoversAll(t *testing.T) {
	s := newTestService(t)
	mustAccount(t, s, "acct-1", 10, 8)

	entries, err := s.DeductDualPool(context.Background(), "acct-1", 5, "training", "session")
	if err != nil {
		t.Fatalf("DeductDualPool: %v", err)
	}
	// Free pool covered everything; no zero-amount paid entry is written.
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Pool != models.PoolFree || entries[0].Amount != -5 {
		t.Fatalf("unexpected entry: pool=%s amount=%d", entries[0].Pool, entries[0].Amount)
	}
	if got := paidBalance(t, s, "acct-1"); got != 10 {
		t.Fatalf("paid pool touched: %d", got)
	}
}

func TestDeductDualPool_CombinedInsufficient(t *testing.T) {
	s := newTestService(t)
	mustAccount(t, s, "acct-1", 2, 2)

	_, err := s.DeductDualPool(context.Background(), "acct-1", 5, "training", "session")
	if !errors.Is(err, models.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	account, err := s.store.GetAccount(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	// All or nothing: neither pool moved.
	if account.FreeBalance != 2 || account.PaidBalance != 2 {
		t.Fatalf("partial deduction: free=%d paid=%d", account.FreeBalance, account.PaidBalance)
	}
}

func TestDeductDualPool_RestrictedPurpose(t *testing.T) {
	s := newTestService(t)
	mustAccount(t, s, "acct-1", 10, 10)

	_, err := s.DeductDualPool(context.Background(), "acct-1", 5, "advertising", "session")
	if !errors.Is(err, models.ErrFreeCreditsRestricted) {
		t.Fatalf("expected ErrFreeCreditsRestricted, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Credits
// ---------------------------------------------------------------------------

func TestAdd_ZeroIsNoOp(t *testing.T) {
	s := newTestService(t)
	mustAccount(t, s, "acct-1", 0, 0)

	entry, err := s.Add(context.Background(), "acct-1", 0, "nothing")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if entry != nil {
		t.Fatal("zero credit produced an entry")
	}
}

func TestAddFree_TagsPurpose(t *testing.T) {
	s := newTestService(t)
	mustAccount(t, s, "acct-1", 0, 0)

	entry, err := s.AddFree(context.Background(), "acct-1", 5, "training", "promo")
	if err != nil {
		t.Fatalf("AddFree: %v", err)
	}
	if entry.Pool != models.PoolFree || entry.LockedFor != "training" {
		t.Fatalf("unexpected entry: pool=%s locked_for=%s", entry.Pool, entry.LockedFor)
	}
}

func TestHasEnough(t *testing.T) {
	s := newTestService(t)
	mustAccount(t, s, "acct-1", 10, 0)

	ok, err := s.HasEnough(context.Background(), "acct-1", models.PoolPaid, 10)
	if err != nil || !ok {
		t.Fatalf("expected enough for 10: ok=%v err=%v", ok, err)
	}
	ok, err = s.HasEnough(context.Background(), "acct-1", models.PoolPaid, 11)
	if err != nil || ok {
		t.Fatalf("expected not enough for 11: ok=%v err=%v", ok, err)
	}
}
