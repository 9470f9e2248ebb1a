package models

import "time"

type LedgerEntryKind string

const (
	// LedgerKindDebit is a paid-pool deduction (publish, renewal, charge).
	LedgerKindDebit LedgerEntryKind = "debit"
	// LedgerKindDeduction is a dual-pool deduction leg, tagged with Origin.
	LedgerKindDeduction LedgerEntryKind = "deduction"
	// LedgerKindCredit is a paid-pool credit (top-up, refund).
	LedgerKindCredit LedgerEntryKind = "credit"
	// LedgerKindAddition is a free-pool or promotional credit (signup bonus).
	LedgerKindAddition LedgerEntryKind = "addition"
)

// LedgerEntry is one immutable balance mutation. Entries are append-only:
// the sum of Amount over an account's entries reconciles to its balances.
type LedgerEntry struct {
	ID        uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	PublicID  string          `gorm:"uniqueIndex;not null" json:"public_id"`
	AccountID string          `gorm:"index;not null" json:"account_id"`
	Kind      LedgerEntryKind `gorm:"index;not null" json:"kind"`
	// Amount is signed: positive for credits, negative for debits.
	Amount       int64      `gorm:"not null" json:"amount"`
	Pool         CreditPool `gorm:"not null" json:"pool"`
	BalanceAfter int64      `gorm:"not null" json:"balance_after"`
	// LockedFor tags free-pool credits with the purpose they may be spent on.
	LockedFor             string    `json:"locked_for,omitempty"`
	Description           string    `json:"description"`
	StripePaymentIntentID string    `gorm:"index" json:"-"`
	CreatedAt             time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// AdjustParams describes one atomic balance adjustment.
type AdjustParams struct {
	AccountID   string
	Pool        CreditPool
	Delta       int64
	Kind        LedgerEntryKind
	LockedFor   string
	Description string
	// StripePaymentIntentID is set on top-up credits for webhook idempotency.
	StripePaymentIntentID string
}
