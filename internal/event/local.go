package event

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/glowskin/pkg/kafka"
)

const (
	localMaxAttempts = 3
	localRetryDelay  = 200 * time.Millisecond
)

// LocalBus dispatches events to in-process handlers when no brokers are
// configured. Handlers run asynchronously with the same retry budget as the
// Kafka consumer; exhausted events are logged and dropped.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[string][]kafka.Handler
	logger   *slog.Logger
	wg       sync.WaitGroup
	closed   bool
	delay    time.Duration
}

// NewLocalBus creates an empty bus.
func NewLocalBus(logger *slog.Logger) *LocalBus {
	return &LocalBus{handlers: make(map[string][]kafka.Handler), logger: logger, delay: localRetryDelay}
}

// Subscribe registers h for topic.
func (b *LocalBus) Subscribe(topic string, h kafka.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish implements kafka.Publisher.
func (b *LocalBus) Publish(ctx context.Context, topic string, evt *kafka.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	// Handlers outlive the request that published the event.
	hctx := context.WithoutCancel(ctx)
	for _, h := range b.handlers[topic] {
		b.wg.Add(1)
		go b.dispatch(hctx, topic, h, evt)
	}
	return nil
}

func (b *LocalBus) dispatch(ctx context.Context, topic string, h kafka.Handler, evt *kafka.Event) {
	defer b.wg.Done()
	var err error
	for attempt := 1; attempt <= localMaxAttempts; attempt++ {
		if err = h(ctx, evt); err == nil {
			return
		}
		b.logger.WarnContext(ctx, "local event handler failed",
			slog.String("topic", topic),
			slog.String("event_id", evt.EventID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt < localMaxAttempts {
			time.Sleep(b.delay * time.Duration(attempt))
		}
	}
	b.logger.ErrorContext(ctx, "local event dropped after retries",
		slog.String("topic", topic),
		slog.String("event_id", evt.EventID),
		slog.String("error", err.Error()),
	)
}

// Close stops accepting events and waits for running handlers.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}
