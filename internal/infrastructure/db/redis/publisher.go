package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/99minutos/custody-tracker/internal/core/domain"
	"github.com/99minutos/custody-tracker/internal/pkg/metrics"
)

const (
	defaultStream = "custody:notifications"
	dedupTTL      = 24 * time.Hour
	streamMaxLen  = 100_000
)

// Publisher appends notifications to a Redis stream. Each notification is
// published at most once per dedupTTL, keyed by (product id, history index, kind).
// Key format: notify:dedup:<product_id>:<history_index>:<kind>
type Publisher struct {
	client *redis.Client
	stream string
}

// NewPublisher creates a Publisher writing to stream, or to the default
// stream when empty.
func NewPublisher(client *redis.Client, stream string) *Publisher {
	if stream == "" {
		stream = defaultStream
	}
	return &Publisher{client: client, stream: stream}
}

// Deliver implements ports.NotificationSink.
func (p *Publisher) Deliver(ctx context.Context, n domain.Notification) error {
	key := p.dedupKey(n)
	fresh, err := p.client.SetNX(ctx, key, n.ID.String(), dedupTTL).Result()
	if err != nil {
		return fmt.Errorf("notify dedup: %w", err)
	}
	if !fresh {
		metrics.NotificationsDedupTotal.WithLabelValues("hit").Inc()
		return nil
	}
	metrics.NotificationsDedupTotal.WithLabelValues("miss").Inc()

	payload, err := json.Marshal(n)
	if err != nil {
		_ = p.client.Del(ctx, key).Err()
		return fmt.Errorf("notify encode: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"id":            n.ID.String(),
			"kind":          string(n.Kind),
			"product_id":    strconv.FormatUint(n.ProductID, 10),
			"history_index": strconv.FormatUint(n.HistoryIndex, 10),
			"payload":       string(payload),
		},
	}).Err()
	if err != nil {
		// Release the key so a redelivery can publish.
		_ = p.client.Del(ctx, key).Err()
		return fmt.Errorf("notify publish: %w", err)
	}
	return nil
}

func (p *Publisher) dedupKey(n domain.Notification) string {
	return "notify:dedup:" + n.DedupeKey()
}
