package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/promokit/billing-engine/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	// Serialize connections so concurrent transactions queue instead of
	// hitting SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	store := NewStore(db)
	if err := store.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

// ---------------------------------------------------------------------------
// Account provisioning
// ---------------------------------------------------------------------------

func TestEnsureAccount_SignupBonus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	account, err := store.EnsureAccount(ctx, "acct-1", 20)
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if account.PaidBalance != 20 {
		t.Fatalf("expected signup bonus of 20, got %d", account.PaidBalance)
	}

	entries, err := store.GetTransactionHistory(ctx, "acct-1", 0, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 ledger entry for the bonus, got %d", len(entries))
	}
	if entries[0].Kind != models.LedgerKindAddition || entries[0].Amount != 20 {
		t.Fatalf("unexpected bonus entry: kind=%s amount=%d", entries[0].Kind, entries[0].Amount)
	}
	if entries[0].BalanceAfter != 20 {
		t.Fatalf("expected balance_after 20, got %d", entries[0].BalanceAfter)
	}
}

func TestEnsureAccount_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.EnsureAccount(ctx, "acct-1", 20); err != nil {
		t.Fatalf("first EnsureAccount: %v", err)
	}
	account, err := store.EnsureAccount(ctx, "acct-1", 20)
	if err != nil {
		t.Fatalf("second EnsureAccount: %v", err)
	}
	if account.PaidBalance != 20 {
		t.Fatalf("bonus granted twice: balance %d", account.PaidBalance)
	}
}

func TestEnsureAccount_NoBonus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	account, err := store.EnsureAccount(ctx, "acct-1", 0)
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if account.PaidBalance != 0 {
		t.Fatalf("expected zero balance, got %d", account.PaidBalance)
	}

	entries, err := store.GetTransactionHistory(ctx, "acct-1", 0, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no ledger entries, got %d", len(entries))
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetAccount(context.Background(), "missing"); err != models.ErrAccountNotFound {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := store.GetBalance(context.Background(), "missing", models.PoolPaid); err != models.ErrAccountNotFound {
		t.Fatalf("expected ErrAccountNotFound from GetBalance, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Atomic adjustments
// ---------------------------------------------------------------------------

func TestAtomicAdjust_CreditAndDebit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.EnsureAccount(ctx, "acct-1", 0); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}

	entry, err := store.AtomicAdjust(ctx, models.AdjustParams{
		AccountID: "acct-1", Pool: models.PoolPaid, Delta: 50,
		Kind: models.LedgerKindCredit, Description: "top-up",
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if entry.BalanceAfter != 50 {
		t.Fatalf("expected balance_after 50, got %d", entry.BalanceAfter)
	}

	entry, err = store.AtomicAdjust(ctx, models.AdjustParams{
		AccountID: "acct-1", Pool: models.PoolPaid, Delta: -30,
		Kind: models.LedgerKindDebit, Description: "charge",
	})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if entry.BalanceAfter != 20 {
		t.Fatalf("expected balance_after 20, got %d", entry.BalanceAfter)
	}

	account, err := store.GetAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if account.PaidBalance != 20 {
		t.Fatalf("expected paid balance 20, got %d", account.PaidBalance)
	}
	if account.TotalPurchased != 50 {
		t.Fatalf("expected total_purchased 50, got %d", account.TotalPurchased)
	}
	if account.TotalSpent != 30 {
		t.Fatalf("expected total_spent 30, got %d", account.TotalSpent)
	}
}

func TestAtomicAdjust_PoolsAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.EnsureAccount(ctx, "acct-1", 0); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}

	if _, err := store.AtomicAdjust(ctx, models.AdjustParams{
		AccountID: "acct-1", Pool: models.PoolFree, Delta: 5,
		Kind: models.LedgerKindAddition, LockedFor: "training",
	}); err != nil {
		t.Fatalf("free credit: %v", err)
	}

	account, err := store.GetAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if account.FreeBalance != 5 || account.PaidBalance != 0 {
		t.Fatalf("expected free=5 paid=0, got free=%d paid=%d", account.FreeBalance, account.PaidBalance)
	}
}

func TestAtomicAdjust_ClampsUnderflowToZero(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.EnsureAccount(ctx, "acct-1", 0); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if _, err := store.AtomicAdjust(ctx, models.AdjustParams{
		AccountID: "acct-1", Pool: models.PoolPaid, Delta: 10,
		Kind: models.LedgerKindCredit,
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	entry, err := store.AtomicAdjust(ctx, models.AdjustParams{
		AccountID: "acct-1", Pool: models.PoolPaid, Delta: -25,
		Kind: models.LedgerKindDebit,
	})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if entry.Amount != -10 {
		t.Fatalf("expected clamped amount -10, got %d", entry.Amount)
	}
	if entry.BalanceAfter != 0 {
		t.Fatalf("expected balance_after 0, got %d", entry.BalanceAfter)
	}

	balance, err := store.GetBalance(ctx, "acct-1", models.PoolPaid)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("balance went negative: %d", balance)
	}
}

func TestAtomicAdjust_UnknownAccount(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AtomicAdjust(context.Background(), models.AdjustParams{
		AccountID: "missing", Pool: models.PoolPaid, Delta: 10,
		Kind: models.LedgerKindCredit,
	})
	if err != models.ErrAccountNotFound {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Reconciliation: ledger entries always sum to the current balances
// ---------------------------------------------------------------------------

func TestLedgerReconcilesToBalances(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.EnsureAccount(ctx, "acct-1", 20); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}

	adjustments := []models.AdjustParams{
		{AccountID: "acct-1", Pool: models.PoolPaid, Delta: 100, Kind: models.LedgerKindCredit},
		{AccountID: "acct-1", Pool: models.PoolPaid, Delta: -35, Kind: models.LedgerKindDebit},
		{AccountID: "acct-1", Pool: models.PoolFree, Delta: 8, Kind: models.LedgerKindAddition, LockedFor: "training"},
		{AccountID: "acct-1", Pool: models.PoolFree, Delta: -3, Kind: models.LedgerKindDeduction, LockedFor: "training"},
		{AccountID: "acct-1", Pool: models.PoolPaid, Delta: -40, Kind: models.LedgerKindDebit},
	}
	for i, params := range adjustments {
		if _, err := store.AtomicAdjust(ctx, params); err != nil {
			t.Fatalf("adjustment %d: %v", i, err)
		}
	}

	entries, err := store.GetTransactionHistory(ctx, "acct-1", 0, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory: %v", err)
	}

	var paidSum, freeSum int64
	for _, e := range entries {
		if e.Pool == models.PoolFree {
			freeSum += e.Amount
		} else {
			paidSum += e.Amount
		}
	}

	account, err := store.GetAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if paidSum != account.PaidBalance {
		t.Fatalf("paid ledger sum %d != balance %d", paidSum, account.PaidBalance)
	}
	if freeSum != account.FreeBalance {
		t.Fatalf("free ledger sum %d != balance %d", freeSum, account.FreeBalance)
	}
}

// ---------------------------------------------------------------------------
// History and webhook idempotency
// ---------------------------------------------------------------------------

func TestGetTransactionHistory_NewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.EnsureAccount(ctx, "acct-1", 0); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := store.AtomicAdjust(ctx, models.AdjustParams{
			AccountID: "acct-1", Pool: models.PoolPaid, Delta: int64(i + 1),
			Kind: models.LedgerKindCredit,
		}); err != nil {
			t.Fatalf("adjust %d: %v", i, err)
		}
	}

	entries, err := store.GetTransactionHistory(ctx, "acct-1", 3, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	// Newest first: the last credit (amount 5) leads.
	if entries[0].Amount != 5 {
		t.Fatalf("expected newest entry first (amount 5), got %d", entries[0].Amount)
	}
}

func TestHasPaymentIntent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.EnsureAccount(ctx, "acct-1", 0); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}

	seen, err := store.HasPaymentIntent(ctx, "pi_123")
	if err != nil {
		t.Fatalf("HasPaymentIntent: %v", err)
	}
	if seen {
		t.Fatal("payment intent reported before any entry recorded it")
	}

	if _, err := store.AtomicAdjust(ctx, models.AdjustParams{
		AccountID: "acct-1", Pool: models.PoolPaid, Delta: 100,
		Kind: models.LedgerKindCredit, StripePaymentIntentID: "pi_123",
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	seen, err = store.HasPaymentIntent(ctx, "pi_123")
	if err != nil {
		t.Fatalf("HasPaymentIntent: %v", err)
	}
	if !seen {
		t.Fatal("recorded payment intent not found")
	}

	// Empty intent ids never match anything.
	seen, err = store.HasPaymentIntent(ctx, "")
	if err != nil || seen {
		t.Fatalf("empty intent id: seen=%v err=%v", seen, err)
	}
}
