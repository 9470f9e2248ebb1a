package credits

import "math"

// CalculateRenewalCost returns the per-cycle renewal cost for a resource
// category, falling back to the global default for unknown categories.
func (s *Service) CalculateRenewalCost(category string) int64 {
	return s.cfg.CostFor(category).RenewalCost
}

// CalculateSetupCost returns the one-time publish cost for a category.
// When withAddon is set the base cost is scaled by the configured
// multiplier and rounded up.
func (s *Service) CalculateSetupCost(category string, withAddon bool) int64 {
	base := s.cfg.CostFor(category).SetupCost
	if !withAddon {
		return base
	}
	return int64(math.Ceil(float64(base) * s.cfg.Multiplier()))
}
