package publisher

import (
	"context"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Publisher is the external deploy boundary for landing pages. Deploy runs
// after a page is published or reactivated, Undeploy after it expires or is
// paused. Both are post-commit side effects: a publisher failure is logged
// and never rolls back the billing transition that triggered it.
type Publisher interface {
	Deploy(ctx context.Context, resourceID uint) error
	Undeploy(ctx context.Context, resourceID uint) error
}

// NoopPublisher logs the deploy calls. Used in development and tests, and
// as the default when no publishing backend is configured.
type NoopPublisher struct{}

func (NoopPublisher) Deploy(_ context.Context, resourceID uint) error {
	fiberlog.Debugf("deploy resource %d", resourceID)
	return nil
}

func (NoopPublisher) Undeploy(_ context.Context, resourceID uint) error {
	fiberlog.Debugf("undeploy resource %d", resourceID)
	return nil
}
