package ports

import (
	"context"

	"github.com/99minutos/custody-tracker/internal/core/domain"
)

// Notifier accepts notifications for committed operations. Notify must not
// block on delivery; ordering per product is preserved.
type Notifier interface {
	Notify(ctx context.Context, notes ...domain.Notification)
}

// NotificationSink delivers one notification to an external consumer.
type NotificationSink interface {
	Deliver(ctx context.Context, n domain.Notification) error
}
