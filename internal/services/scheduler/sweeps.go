package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/promokit/billing-engine/internal/models"
	"github.com/promokit/billing-engine/internal/services/billing"
)

// SweepScheduler runs one billing sweep on a fixed cadence. Overlapping
// runs are safe (each resource transition is its own locked transaction),
// so no overlap guard is needed beyond the per-resource locking.
type SweepScheduler struct {
	name     string
	interval time.Duration
	sweep    func(ctx context.Context) error
	stopChan chan struct{}
}

func newSweepScheduler(name string, interval time.Duration, sweep func(ctx context.Context) error) *SweepScheduler {
	return &SweepScheduler{
		name:     name,
		interval: interval,
		sweep:    sweep,
		stopChan: make(chan struct{}),
	}
}

// NewRenewalScheduler sweeps due auto-renewals. Hourly by default.
func NewRenewalScheduler(billingService *billing.Service, cfg *models.BillingConfig) *SweepScheduler {
	interval := cfg.RenewalSweepInterval
	if interval == 0 {
		interval = 1 * time.Hour
	}
	return newSweepScheduler("renewal", interval, func(ctx context.Context) error {
		_, err := billingService.RunRenewalSweep(ctx)
		return err
	})
}

// NewExpiryScheduler sweeps lapsed resources. Daily by default.
func NewExpiryScheduler(billingService *billing.Service, cfg *models.BillingConfig) *SweepScheduler {
	interval := cfg.ExpirySweepInterval
	if interval == 0 {
		interval = 24 * time.Hour
	}
	return newSweepScheduler("expiry", interval, func(ctx context.Context) error {
		_, err := billingService.RunExpirySweep(ctx)
		return err
	})
}

// NewWarningScheduler sends pre-expiry warnings. Daily by default.
func NewWarningScheduler(billingService *billing.Service, cfg *models.BillingConfig) *SweepScheduler {
	interval := cfg.WarningSweepInterval
	if interval == 0 {
		interval = 24 * time.Hour
	}
	return newSweepScheduler("warning", interval, func(ctx context.Context) error {
		_, err := billingService.RunWarningSweep(ctx)
		return err
	})
}

func (s *SweepScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("%s sweep scheduler started, running every %s", s.name, s.interval)

	for {
		select {
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				log.Printf("Error running %s sweep: %v", s.name, err)
			}
		case <-s.stopChan:
			log.Printf("%s sweep scheduler stopped", s.name)
			return
		case <-ctx.Done():
			log.Printf("%s sweep scheduler stopped due to context cancellation", s.name)
			return
		}
	}
}

func (s *SweepScheduler) Stop() {
	close(s.stopChan)
}
