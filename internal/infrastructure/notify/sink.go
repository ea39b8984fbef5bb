// Package notify holds notification sinks that need no external service.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/99minutos/custody-tracker/internal/core/domain"
	"github.com/99minutos/custody-tracker/internal/core/ports"
)

// LogSink writes every notification as a structured log line.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Deliver(_ context.Context, n domain.Notification) error {
	ev := s.log.Info().
		Str("notification_id", n.ID.String()).
		Str("kind", string(n.Kind)).
		Uint64("product_id", n.ProductID).
		Uint64("history_index", n.HistoryIndex)

	switch n.Kind {
	case domain.KindProductCreated:
		ev = ev.Str("sku", n.SKU).Str("manufacturer", n.Manufacturer)
	case domain.KindOwnershipTransferred:
		ev = ev.Str("from", n.From).Str("to", n.To).Str("status", string(n.Status))
	case domain.KindHistoryAdded:
		ev = ev.Str("actor", n.Actor).Str("role", n.RoleLabel).Str("location", n.Location).
			Str("note", n.Note).Str("status", string(n.Status))
	case domain.KindProductRecalled:
		ev = ev.Str("by", n.By).Str("reason", n.Reason)
	}
	ev.Msg("notification")
	return nil
}

// Fanout delivers each notification to every sink in order. All sinks are
// attempted; their errors are joined.
type Fanout []ports.NotificationSink

func (f Fanout) Deliver(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, s := range f {
		if err := s.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
