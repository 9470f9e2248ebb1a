package notifications

import (
	"context"

	"github.com/promokit/billing-engine/internal/models"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Notifier delivers one event to an external channel (e-mail, in-app).
// Implementations are called post-commit and must never affect the ledger
// transaction that produced the event; failures are logged, not propagated.
type Notifier interface {
	Notify(ctx context.Context, accountID string, kind models.NotificationKind, payload models.NotificationPayload) error
}

// LogNotifier writes events to the application log. It stands in for the
// real e-mail/in-app channels in development and tests.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, accountID string, kind models.NotificationKind, payload models.NotificationPayload) error {
	fiberlog.Infof("notify account=%s kind=%s resource=%v message=%q", accountID, kind, payload.ResourceID, payload.Message)
	return nil
}
