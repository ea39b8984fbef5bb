package queue

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/99minutos/custody-tracker/internal/core/domain"
	"github.com/99minutos/custody-tracker/internal/core/ports"
	"github.com/99minutos/custody-tracker/internal/pkg/metrics"
)

const (
	defaultWorkers      = 8
	defaultRetryInitial = 100 * time.Millisecond
	defaultRetryMax     = 10 * time.Second
)

// Dispatcher routes notifications to a fixed set of workers using consistent
// hashing on the product id, guaranteeing per-product delivery order.
// Each worker owns an unbounded queue, so Notify never waits on the sink.
// A failed delivery is retried with exponential backoff before the worker
// moves on to the next notification of its shard.
type Dispatcher struct {
	shards       []*shard
	sink         ports.NotificationSink
	log          zerolog.Logger
	retryInitial time.Duration
	retryMax     time.Duration
	done         chan struct{}
	wg           sync.WaitGroup
	once         sync.Once
}

type shard struct {
	mu      sync.Mutex
	pending []domain.Notification
	closed  bool
	wake    chan struct{}
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithRetryBackoff bounds the delay between delivery attempts.
func WithRetryBackoff(initial, maxDelay time.Duration) Option {
	return func(d *Dispatcher) {
		if initial > 0 {
			d.retryInitial = initial
		}
		if maxDelay >= d.retryInitial {
			d.retryMax = maxDelay
		}
	}
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, sink ports.NotificationSink, log zerolog.Logger, opts ...Option) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		shards:       make([]*shard, numWorkers),
		sink:         sink,
		log:          log,
		retryInitial: defaultRetryInitial,
		retryMax:     defaultRetryMax,
		done:         make(chan struct{}),
	}
	for i := range d.shards {
		d.shards[i] = &shard{wake: make(chan struct{}, 1)}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled or
// after Close has drained their queues.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, sh := range d.shards {
		d.wg.Add(1)
		go d.runWorker(ctx, i, sh)
	}
}

// Notify implements ports.Notifier. Notifications of one call keep their order.
// It only appends to the owning worker's queue and never blocks on delivery.
func (d *Dispatcher) Notify(_ context.Context, notes ...domain.Notification) {
	for _, n := range notes {
		idx := d.shardIndex(n.ProductID)
		sh := d.shards[idx]

		sh.mu.Lock()
		if sh.closed {
			sh.mu.Unlock()
			d.log.Warn().
				Uint64("product_id", n.ProductID).
				Uint64("history_index", n.HistoryIndex).
				Str("kind", string(n.Kind)).
				Msg("notification dropped after close")
			continue
		}
		sh.pending = append(sh.pending, n)
		depth := len(sh.pending)
		sh.mu.Unlock()

		sh.signal()
		metrics.NotificationQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(depth))
	}
}

// Close stops accepting notifications and waits for pending ones to be
// handed to the sink. Retries in progress end at Close; what is still queued
// gets a single attempt.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.done)
		for _, sh := range d.shards {
			sh.mu.Lock()
			sh.closed = true
			sh.mu.Unlock()
			sh.signal()
		}
	})
	d.wg.Wait()
}

// shardIndex maps a product id deterministically to a worker index.
func (d *Dispatcher) shardIndex(productID uint64) int {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], productID)
	h := fnv.New32a()
	_, _ = h.Write(b[:])
	return int(h.Sum32() % uint32(len(d.shards)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, sh *shard) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for {
		n, depth, ok := sh.next(ctx)
		if !ok {
			return
		}
		metrics.NotificationQueueDepth.WithLabelValues(label).Set(float64(depth))
		d.deliver(ctx, id, n)
	}
}

// deliver hands n to the sink, retrying until it succeeds, ctx ends or the
// dispatcher is closed.
func (d *Dispatcher) deliver(ctx context.Context, worker int, n domain.Notification) {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     d.retryInitial,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         d.retryMax,
	}
	b.Reset()

	for attempt := 1; ; attempt++ {
		err := d.sink.Deliver(ctx, n)
		if err == nil {
			metrics.NotificationsDeliveredTotal.WithLabelValues(string(n.Kind)).Inc()
			return
		}
		metrics.NotificationsErrorsTotal.WithLabelValues(string(n.Kind)).Inc()

		wait := b.NextBackOff()
		ev := d.log.Warn().Err(err).
			Uint64("product_id", n.ProductID).
			Uint64("history_index", n.HistoryIndex).
			Str("kind", string(n.Kind)).
			Int("worker_id", worker).
			Int("attempt", attempt)

		if d.stopped(ctx) {
			ev.Msg("notification delivery failed, giving up")
			return
		}
		ev.Dur("retry_in", wait).Msg("notification delivery failed, retrying")

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-d.done:
			t.Stop()
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}

func (d *Dispatcher) stopped(ctx context.Context) bool {
	select {
	case <-d.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// next pops the head of the queue, waiting for work. It reports false once the
// shard is closed and empty, or when ctx ends.
func (sh *shard) next(ctx context.Context) (domain.Notification, int, bool) {
	for {
		sh.mu.Lock()
		if len(sh.pending) > 0 {
			n := sh.pending[0]
			sh.pending[0] = domain.Notification{}
			sh.pending = sh.pending[1:]
			depth := len(sh.pending)
			sh.mu.Unlock()
			return n, depth, true
		}
		closed := sh.closed
		sh.mu.Unlock()
		if closed {
			return domain.Notification{}, 0, false
		}

		select {
		case <-ctx.Done():
			return domain.Notification{}, 0, false
		case <-sh.wake:
		}
	}
}

func (sh *shard) signal() {
	select {
	case sh.wake <- struct{}{}:
	default:
	}
}
