package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"foodmarket/internal/infrastructure/metrics"
)

type Handler func(ctx context.Context, e Event) error

type subscription struct {
	name    string
	handler Handler
}

// Bus is an in-process publish/subscribe dispatcher. Emit returns as soon as
// deliveries are scheduled; each subscriber runs on its own goroutine and its
// failures never reach the publisher or the other subscribers.
type Bus struct {
	mu       sync.RWMutex
	byName   map[Name][]subscription
	wildcard []subscription
	closed   bool

	inflight sync.WaitGroup
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewBus(logger *zap.Logger, m *metrics.Metrics, handlerTimeout time.Duration) *Bus {
	if handlerTimeout <= 0 {
		handlerTimeout = 30 * time.Second
	}
	return &Bus{
		byName:  make(map[Name][]subscription),
		timeout: handlerTimeout,
		logger:  logger,
		metrics: m,
	}
}

func (b *Bus) Subscribe(name Name, subscriber string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byName[name] = append(b.byName[name], subscription{name: subscriber, handler: h})
}

// SubscribeAll registers h for every event name.
func (b *Bus) SubscribeAll(subscriber string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, subscription{name: subscriber, handler: h})
}

func (b *Bus) Emit(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("event dropped, bus closed", zap.String("event", string(e.Name())))
		return
	}

	b.metrics.RecordEvent(string(e.Name()))

	// deliveries outlive the request that produced the event
	detached := context.WithoutCancel(ctx)

	targets := make([]subscription, 0, len(b.byName[e.Name()])+len(b.wildcard))
	targets = append(targets, b.byName[e.Name()]...)
	targets = append(targets, b.wildcard...)

	for _, sub := range targets {
		b.inflight.Add(1)
		go b.deliver(detached, sub, e)
	}
}

func (b *Bus) deliver(ctx context.Context, sub subscription, e Event) {
	defer b.inflight.Done()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	logger := b.logger.With(
		zap.String("event", string(e.Name())),
		zap.String("subscriber", sub.name),
		zap.String("orderId", e.Target().OrderID),
	)

	defer func() {
		if r := recover(); r != nil {
			b.metrics.RecordSubscriberFailure(string(e.Name()), sub.name)
			logger.Error("event subscriber panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()

	if err := sub.handler(ctx, e); err != nil {
		b.metrics.RecordSubscriberFailure(string(e.Name()), sub.name)
		logger.Error("event subscriber failed", zap.Error(err))
	}
}

// Close stops accepting events and waits for in-flight deliveries until ctx
// expires.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every delivery scheduled so far has finished.
func (b *Bus) Wait() {
	b.inflight.Wait()
}
