package models

import "time"

type BillingLogKind string

const (
	BillingLogPublish     BillingLogKind = "publish"
	BillingLogAutoRenew   BillingLogKind = "auto_renew"
	BillingLogManualRenew BillingLogKind = "manual_renew"
)

type BillingOutcome string

const (
	BillingOutcomeSuccess BillingOutcome = "success"
	BillingOutcomeFailed  BillingOutcome = "failed"
)

// BillingLogEntry is the append-only audit trail of renewal and publish
// attempts. Failed entries are never mutated; an admin retry appends a new
// success entry pointing back at the failure via RetriesEntryID.
type BillingLogEntry struct {
	ID             uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	PublicID       string         `gorm:"uniqueIndex;not null" json:"public_id"`
	AccountID      string         `gorm:"index;not null" json:"account_id"`
	ResourceID     *uint          `gorm:"index" json:"resource_id,omitempty"`
	Kind           BillingLogKind `gorm:"index;not null" json:"kind"`
	AmountDeducted int64          `gorm:"not null;default:0" json:"amount_deducted"`
	Outcome        BillingOutcome `gorm:"index;not null" json:"outcome"`
	Message        string         `json:"message"`
	RetriesEntryID *uint          `gorm:"index" json:"retries_entry_id,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}
