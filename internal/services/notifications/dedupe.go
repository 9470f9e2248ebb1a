package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/promokit/billing-engine/internal/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Dedupe limits warning-class notifications to at most one per account,
// resource and kind per calendar day. With Redis configured the check is a
// SET NX with a 24h TTL; otherwise it queries today's notification records.
type Dedupe struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewDedupe(db *gorm.DB, rdb *redis.Client) *Dedupe {
	return &Dedupe{db: db, redis: rdb}
}

func (d *Dedupe) AutoMigrate() error {
	return d.db.AutoMigrate(&models.NotificationRecord{})
}

// CheckAndMark reports whether a notification of this kind was already sent
// today, marking it sent when it was not.
func (d *Dedupe) CheckAndMark(ctx context.Context, accountID string, resourceID *uint, kind models.NotificationKind) (bool, error) {
	if d.redis != nil {
		key := dedupeKey(accountID, resourceID, kind)
		set, err := d.redis.SetNX(ctx, key, 1, 24*time.Hour).Result()
		if err == nil {
			if set {
				return false, d.record(ctx, accountID, resourceID, kind)
			}
			return true, nil
		}
		// Redis unavailable, fall through to the database check.
	}

	startOfDay := dayStart(time.Now())
	query := d.db.WithContext(ctx).
		Model(&models.NotificationRecord{}).
		Where("account_id = ? AND kind = ? AND created_at >= ?", accountID, kind, startOfDay)
	if resourceID != nil {
		query = query.Where("resource_id = ?", *resourceID)
	} else {
		query = query.Where("resource_id IS NULL")
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check notification records: %w", err)
	}
	if count > 0 {
		return true, nil
	}

	return false, d.record(ctx, accountID, resourceID, kind)
}

func (d *Dedupe) record(ctx context.Context, accountID string, resourceID *uint, kind models.NotificationKind) error {
	rec := models.NotificationRecord{
		AccountID:  accountID,
		ResourceID: resourceID,
		Kind:       kind,
	}
	if err := d.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

// dayStart returns local midnight for t. Both dedupe paths use the same
// local calendar-day boundary: the Redis key embeds the local date and the
// database fallback counts records since local midnight.
func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dedupeKey(accountID string, resourceID *uint, kind models.NotificationKind) string {
	day := time.Now().Format("2006-01-02")
	if resourceID != nil {
		return fmt.Sprintf("notify:%s:%s:%d:%s", kind, accountID, *resourceID, day)
	}
	return fmt.Sprintf("notify:%s:%s:-:%s", kind, accountID, day)
}
