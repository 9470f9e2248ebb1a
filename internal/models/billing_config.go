package models

import "time"

type StripeConfig struct {
	SecretKey     string `json:"secret_key" yaml:"secret_key"`
	WebhookSecret string `json:"webhook_secret" yaml:"webhook_secret"`
}

// RedisConfig holds the optional Redis connection used for notification
// dedupe. The engine falls back to database dedupe when URL is empty.
type RedisConfig struct {
	URL string `json:"url,omitzero" yaml:"url"`
}

// CategoryCost is the pricing row for one resource category.
type CategoryCost struct {
	SetupCost   int64 `json:"setup_cost" yaml:"setup_cost"`
	RenewalCost int64 `json:"renewal_cost" yaml:"renewal_cost"`
}

// BillingConfig is the typed pricing and scheduling configuration, loaded
// once at startup and treated as immutable afterwards.
type BillingConfig struct {
	// Categories maps a resource category to its costs. Unknown categories
	// fall back to DefaultCost.
	Categories  map[string]CategoryCost `json:"categories" yaml:"categories"`
	DefaultCost CategoryCost            `json:"default_cost" yaml:"default_cost"`

	// AddonMultiplier scales the setup cost (rounded up) when the add-on is
	// requested at publish time. Zero means 1.2.
	AddonMultiplier float64 `json:"addon_multiplier,omitzero" yaml:"addon_multiplier"`

	// RenewalCycleDays is the length of one renewal cycle. Zero means 30.
	RenewalCycleDays int `json:"renewal_cycle_days,omitzero" yaml:"renewal_cycle_days"`

	// SignupBonus is credited to the paid pool when an account is first seen.
	// Zero means the default bonus of 20; use a negative value to disable.
	SignupBonus int64 `json:"signup_bonus,omitzero" yaml:"signup_bonus"`

	// WarningDays is how far ahead the pre-expiry warning sweep looks.
	WarningDays int `json:"warning_days,omitzero" yaml:"warning_days"`

	// LowBalanceThreshold triggers a low_balance notification when a charge
	// leaves the paid pool below it. Zero disables the notification.
	LowBalanceThreshold int64 `json:"low_balance_threshold,omitzero" yaml:"low_balance_threshold"`

	// FreePurposes lists the purposes the free pool may fund.
	FreePurposes []string `json:"free_purposes,omitempty" yaml:"free_purposes"`

	// Sweep cadences. Zero means hourly renewal, daily expiry and warning.
	RenewalSweepInterval time.Duration `json:"renewal_sweep_interval,omitzero" yaml:"renewal_sweep_interval"`
	ExpirySweepInterval  time.Duration `json:"expiry_sweep_interval,omitzero" yaml:"expiry_sweep_interval"`
	WarningSweepInterval time.Duration `json:"warning_sweep_interval,omitzero" yaml:"warning_sweep_interval"`
}

const (
	defaultAddonMultiplier  = 1.2
	defaultRenewalCycleDays = 30
	defaultSignupBonus      = 20
	defaultWarningDays      = 3
)

// CostFor returns the cost row for a category, falling back to DefaultCost.
func (c *BillingConfig) CostFor(category string) CategoryCost {
	if c.Categories != nil {
		if cost, ok := c.Categories[category]; ok {
			return cost
		}
	}
	return c.DefaultCost
}

func (c *BillingConfig) Multiplier() float64 {
	if c.AddonMultiplier <= 0 {
		return defaultAddonMultiplier
	}
	return c.AddonMultiplier
}

func (c *BillingConfig) CycleDays() int {
	if c.RenewalCycleDays <= 0 {
		return defaultRenewalCycleDays
	}
	return c.RenewalCycleDays
}

func (c *BillingConfig) Cycle() time.Duration {
	return time.Duration(c.CycleDays()) * 24 * time.Hour
}

func (c *BillingConfig) Bonus() int64 {
	if c.SignupBonus < 0 {
		return 0
	}
	if c.SignupBonus == 0 {
		return defaultSignupBonus
	}
	return c.SignupBonus
}

func (c *BillingConfig) WarningWindow() time.Duration {
	days := c.WarningDays
	if days <= 0 {
		days = defaultWarningDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// FreePurposeAllowed reports whether the free pool may fund the purpose.
func (c *BillingConfig) FreePurposeAllowed(purpose string) bool {
	for _, p := range c.FreePurposes {
		if p == purpose {
			return true
		}
	}
	return false
}
