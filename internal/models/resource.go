package models

import "time"

type ResourceStatus string

const (
	ResourcePending ResourceStatus = "pending"
	ResourceActive  ResourceStatus = "active"
	ResourcePaused  ResourceStatus = "paused"
	ResourceExpired ResourceStatus = "expired"
)

// LandingPage is the billable resource: an owned entity with a recurring
// cost, an expiry and an auto-renew flag. AutoRenew is only meaningful while
// Status is active; NextRenewalAt and ExpiresAt move together on renewal.
type LandingPage struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	PublicID  string         `gorm:"uniqueIndex;not null" json:"public_id"`
	AccountID string         `gorm:"index;not null" json:"account_id"`
	Name      string         `gorm:"not null" json:"name"`
	Category  string         `gorm:"index" json:"category"`
	Status    ResourceStatus `gorm:"index;not null;default:pending" json:"status"`
	// CostPerCycle is the renewal cost captured at publish time so later
	// pricing changes do not affect already-published pages.
	CostPerCycle  int64      `gorm:"not null;default:0" json:"cost_per_cycle"`
	AutoRenew     bool       `gorm:"not null;default:false" json:"auto_renew"`
	ExpiresAt     *time.Time `gorm:"index" json:"expires_at,omitempty"`
	NextRenewalAt *time.Time `gorm:"index" json:"next_renewal_at,omitempty"`
	LastRenewalAt *time.Time `json:"last_renewal_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// RegisterResourceParams describes a new resource in pending state.
type RegisterResourceParams struct {
	AccountID string
	Name      string
	Category  string
}
