package models

import "time"

// CreditPool identifies one of the two independent balances an account holds.
type CreditPool string

const (
	PoolPaid CreditPool = "paid"
	PoolFree CreditPool = "free"
)

// Account holds the credit balances for one tenant. Balances are whole
// credits and never go negative; every mutation goes through the ledger
// store inside a row-locked transaction.
type Account struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID      string    `gorm:"uniqueIndex;not null" json:"account_id"`
	PaidBalance    int64     `gorm:"not null;default:0" json:"paid_balance"`
	FreeBalance    int64     `gorm:"not null;default:0" json:"free_balance"`
	TotalPurchased int64     `gorm:"not null;default:0" json:"total_purchased"`
	TotalSpent     int64     `gorm:"not null;default:0" json:"total_spent"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// Balance returns the balance of the named pool.
func (a *Account) Balance(pool CreditPool) int64 {
	if pool == PoolFree {
		return a.FreeBalance
	}
	return a.PaidBalance
}
