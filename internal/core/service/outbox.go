package service

import (
	"context"
	"sync"

	"github.com/99minutos/custody-tracker/internal/core/domain"
	"github.com/99minutos/custody-tracker/internal/core/ports"
)

// outbox carries committed notifications from the locked section to the
// notifier. Notes are pushed while the product lock is held, so their order
// matches commit order; flush runs after the lock is released and only one
// caller forwards at a time. A caller that finds a flush in progress leaves
// its notes to that flusher and returns immediately.
type outbox struct {
	mu       sync.Mutex
	pending  []domain.Notification
	flushing bool
}

func (o *outbox) push(notes ...domain.Notification) {
	o.mu.Lock()
	o.pending = append(o.pending, notes...)
	o.mu.Unlock()
}

func (o *outbox) flush(ctx context.Context, n ports.Notifier) {
	o.mu.Lock()
	if o.flushing {
		o.mu.Unlock()
		return
	}
	o.flushing = true
	for len(o.pending) > 0 {
		batch := o.pending
		o.pending = nil
		o.mu.Unlock()
		n.Notify(ctx, batch...)
		o.mu.Lock()
	}
	o.flushing = false
	o.mu.Unlock()
}
