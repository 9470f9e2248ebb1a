package credits

import (
	"testing"

	"github.com/promokit/billing-engine/internal/models"
)

func pricingService(cfg *models.BillingConfig) *Service {
	return NewService(nil, cfg, nil)
}

func TestCalculateRenewalCost_CategoryAndFallback(t *testing.T) {
	s := pricingService(&models.BillingConfig{
		Categories: map[string]models.CategoryCost{
			"premium": {SetupCost: 25, RenewalCost: 20},
		},
		DefaultCost: models.CategoryCost{SetupCost: 10, RenewalCost: 10},
	})

	if got := s.CalculateRenewalCost("premium"); got != 20 {
		t.Fatalf("premium renewal: expected 20, got %d", got)
	}
	if got := s.CalculateRenewalCost("unknown"); got != 10 {
		t.Fatalf("fallback renewal: expected 10, got %d", got)
	}
}

func TestCalculateSetupCost_AddonRoundsUp(t *testing.T) {
	s := pricingService(&models.BillingConfig{
		Categories: map[string]models.CategoryCost{
			"standard": {SetupCost: 10, RenewalCost: 10},
			"odd":      {SetupCost: 11, RenewalCost: 10},
		},
		DefaultCost: models.CategoryCost{SetupCost: 10, RenewalCost: 10},
	})

	if got := s.CalculateSetupCost("standard", false); got != 10 {
		t.Fatalf("base setup: expected 10, got %d", got)
	}
	// Default multiplier is 1.2; 10 * 1.2 = 12 exactly.
	if got := s.CalculateSetupCost("standard", true); got != 12 {
		t.Fatalf("addon setup: expected 12, got %d", got)
	}
	// 11 * 1.2 = 13.2, rounded up to 14.
	if got := s.CalculateSetupCost("odd", true); got != 14 {
		t.Fatalf("addon setup with rounding: expected 14, got %d", got)
	}
}

func TestCalculateSetupCost_CustomMultiplier(t *testing.T) {
	s := pricingService(&models.BillingConfig{
		DefaultCost:     models.CategoryCost{SetupCost: 10, RenewalCost: 10},
		AddonMultiplier: 1.5,
	})

	if got := s.CalculateSetupCost("any", true); got != 15 {
		t.Fatalf("expected 15, got %d", got)
	}
}
