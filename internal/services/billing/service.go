package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/promokit/billing-engine/internal/models"
	"github.com/promokit/billing-engine/internal/services/credits"
	"github.com/promokit/billing-engine/internal/services/ledger"
	"github.com/promokit/billing-engine/internal/services/notifications"
	"github.com/promokit/billing-engine/internal/services/publisher"
	"github.com/google/uuid"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service owns the billable-resource lifecycle and the renewal state
// machine. All state transitions run inside a transaction that locks the
// resource row (and the account row when funds move); notifications and
// publisher calls fire only after commit.
type Service struct {
	db        *gorm.DB
	store     *ledger.Store
	credits   *credits.Service
	publisher publisher.Publisher
	notifier  *notifications.Dispatcher
	cfg       *models.BillingConfig
}

func NewService(db *gorm.DB, store *ledger.Store, creditsService *credits.Service, pub publisher.Publisher, notifier *notifications.Dispatcher, cfg *models.BillingConfig) *Service {
	if pub == nil {
		pub = publisher.NoopPublisher{}
	}
	return &Service{
		db:        db,
		store:     store,
		credits:   creditsService,
		publisher: pub,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// AutoMigrate runs database migrations for the billing tables
func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(
		&models.LandingPage{},
		&models.BillingLogEntry{},
	)
}

// GetResource returns the resource by public id or models.ErrResourceNotFound.
func (s *Service) GetResource(ctx context.Context, publicID string) (*models.LandingPage, error) {
	var resource models.LandingPage
	err := s.db.WithContext(ctx).
		Where("public_id = ?", publicID).
		First(&resource).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return &resource, nil
}

// lockResource loads the resource row FOR UPDATE inside tx.
func (s *Service) lockResource(tx *gorm.DB, id uint) (*models.LandingPage, error) {
	var resource models.LandingPage
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&resource, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock resource: %w", err)
	}
	return &resource, nil
}

func (s *Service) appendLog(tx *gorm.DB, entry *models.BillingLogEntry) error {
	entry.PublicID = uuid.New().String()
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append billing log: %w", err)
	}
	return nil
}

// ListBillingLog returns billing log entries for an account, newest first,
// optionally filtered by outcome.
func (s *Service) ListBillingLog(ctx context.Context, accountID string, outcome models.BillingOutcome, limit, offset int) ([]models.BillingLogEntry, error) {
	query := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC")

	if outcome != "" {
		query = query.Where("outcome = ?", outcome)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var entries []models.BillingLogEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list billing log: %w", err)
	}
	return entries, nil
}

func (s *Service) deploy(ctx context.Context, resourceID uint) {
	if err := s.publisher.Deploy(ctx, resourceID); err != nil {
		fiberlog.Errorf("deploy of resource %d failed: %v", resourceID, err)
	}
}

func (s *Service) undeploy(ctx context.Context, resourceID uint) {
	if err := s.publisher.Undeploy(ctx, resourceID); err != nil {
		fiberlog.Errorf("undeploy of resource %d failed: %v", resourceID, err)
	}
}
