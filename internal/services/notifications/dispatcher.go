package notifications

import (
	"context"
	"sync"

	"github.com/promokit/billing-engine/internal/models"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// dedupedKinds are the warning-class events limited to one per account,
// resource and kind per day.
var dedupedKinds = map[models.NotificationKind]bool{
	models.NotifyRenewalUpcoming:  true,
	models.NotifyResourceExpiring: true,
	models.NotifyLowBalance:       true,
}

type task struct {
	accountID string
	kind      models.NotificationKind
	payload   models.NotificationPayload
}

// Dispatcher delivers notifications asynchronously so ledger transactions
// never wait on (or roll back because of) an external channel. Events are
// submitted post-commit; a full buffer drops the event with a warning.
type Dispatcher struct {
	notifier Notifier
	dedupe   *Dedupe
	tasks    chan task
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

func NewDispatcher(notifier Notifier, dedupe *Dedupe, poolSize, bufferSize int) *Dispatcher {
	if poolSize <= 0 {
		poolSize = 2
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}

	d := &Dispatcher{
		notifier: notifier,
		dedupe:   dedupe,
		tasks:    make(chan task, bufferSize),
		stopped:  make(chan struct{}),
	}

	for i := 0; i < poolSize; i++ {
		d.wg.Add(1)
		go d.run()
	}

	return d
}

// Notify queues one event for delivery. Fire-and-forget: errors during
// delivery are logged, never returned.
func (d *Dispatcher) Notify(accountID string, kind models.NotificationKind, payload models.NotificationPayload) {
	select {
	case <-d.stopped:
		fiberlog.Warnf("notification dispatcher stopped, dropping %s for account %s", kind, accountID)
	case d.tasks <- task{accountID: accountID, kind: kind, payload: payload}:
	default:
		fiberlog.Warnf("notification buffer full, dropping %s for account %s", kind, accountID)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopped:
			return
		case t := <-d.tasks:
			d.deliver(t)
		}
	}
}

func (d *Dispatcher) deliver(t task) {
	ctx := context.Background()

	if dedupedKinds[t.kind] && d.dedupe != nil {
		already, err := d.dedupe.CheckAndMark(ctx, t.accountID, t.payload.ResourceID, t.kind)
		if err != nil {
			fiberlog.Errorf("notification dedupe check failed for %s/%s: %v", t.accountID, t.kind, err)
			return
		}
		if already {
			return
		}
	}

	if err := d.notifier.Notify(ctx, t.accountID, t.kind, t.payload); err != nil {
		fiberlog.Errorf("failed to deliver %s notification to account %s: %v", t.kind, t.accountID, err)
	}
}

// Stop drains nothing and stops the workers. Pending buffered events are
// discarded, which is acceptable for advisory notifications.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopped)
		d.wg.Wait()
	})
}
