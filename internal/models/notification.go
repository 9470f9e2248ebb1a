package models

import "time"

// NotificationKind enumerates the events the core fires at owners.
type NotificationKind string

const (
	NotifyRenewalSuccess   NotificationKind = "renewal_success"
	NotifyRenewalFailed    NotificationKind = "renewal_failed"
	NotifyRenewalUpcoming  NotificationKind = "renewal_upcoming"
	NotifyResourceExpiring NotificationKind = "resource_expiring"
	NotifyResourceExpired  NotificationKind = "resource_expired"
	NotifyLowBalance       NotificationKind = "low_balance"
)

// NotificationRecord tracks sent notifications so the warning sweeps can
// dedupe to at most one notification per resource per kind per day.
type NotificationRecord struct {
	ID         uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID  string           `gorm:"index;not null" json:"account_id"`
	ResourceID *uint            `gorm:"index" json:"resource_id,omitempty"`
	Kind       NotificationKind `gorm:"index;not null" json:"kind"`
	CreatedAt  time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
}

// NotificationPayload carries event details to the notifier.
type NotificationPayload struct {
	ResourceID   *uint  `json:"resource_id,omitempty"`
	ResourceName string `json:"resource_name,omitempty"`
	Amount       int64  `json:"amount,omitempty"`
	Required     int64  `json:"required,omitempty"`
	Available    int64  `json:"available,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
	Message      string `json:"message,omitempty"`
}
