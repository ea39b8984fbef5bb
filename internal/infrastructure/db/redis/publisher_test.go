package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/99minutos/custody-tracker/internal/core/domain"
	"github.com/99minutos/custody-tracker/internal/core/ports"
)

var _ ports.NotificationSink = (*Publisher)(nil)

func TestNewPublisher_DefaultStream(t *testing.T) {
	if p := NewPublisher(nil, ""); p.stream != defaultStream {
		t.Errorf("stream = %q", p.stream)
	}
}

func TestPublisher_DedupKey(t *testing.T) {
	n := domain.HistoryAdded(12, domain.HistoryItem{Index: 4})
	if got := NewPublisher(nil, "s").dedupKey(n); got != "notify:dedup:12:4:history_added" {
		t.Errorf("dedupKey = %q", got)
	}
}

// Runs only when REDIS_TEST_ADDR points at a reachable server.
func TestPublisher_DeliverOnce(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, Config{Addr: addr})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	productID := uint64(time.Now().UnixNano())
	stream := fmt.Sprintf("custody:test:%d", productID)
	t.Cleanup(func() {
		_ = client.Del(context.Background(), stream).Err()
	})

	p := NewPublisher(client, stream)
	item := domain.HistoryItem{Index: 0, Actor: "maker", Status: domain.StatusManufactured}
	first := domain.HistoryAdded(productID, item)
	redelivery := domain.HistoryAdded(productID, item)

	for _, n := range []domain.Notification{first, redelivery} {
		if err := p.Deliver(ctx, n); err != nil {
			t.Fatalf("deliver: %v", err)
		}
	}
	t.Cleanup(func() {
		_ = client.Del(context.Background(), p.dedupKey(first)).Err()
	})

	entries, err := client.XRange(ctx, stream, "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one stream entry, got %d", len(entries))
	}

	var got domain.Notification
	if err := json.Unmarshal([]byte(entries[0].Values["payload"].(string)), &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.ID != first.ID || got.Kind != domain.KindHistoryAdded || got.Actor != "maker" {
		t.Errorf("unexpected payload: %+v", got)
	}
}
