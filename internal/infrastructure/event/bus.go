package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"go.uber.org/zap"
)

// DefaultQueueSize bounds the number of events waiting for async dispatch
const DefaultQueueSize = 256

type envelope struct {
	ctx   context.Context
	event shared.DomainEvent
}

// InMemoryEventBus delivers domain events to in-process handlers. Before
// Start, and after Stop, Publish dispatches synchronously. While running,
// events are queued and delivered by a single worker in publish order.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	queue    chan envelope
	running  atomic.Bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// BusOption configures an InMemoryEventBus
type BusOption func(*InMemoryEventBus)

// WithQueueSize sets the async queue capacity
func WithQueueSize(n int) BusOption {
	return func(b *InMemoryEventBus) {
		if n > 0 {
			b.queue = make(chan envelope, n)
		}
	}
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger, opts ...BusOption) *InMemoryEventBus {
	b := &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger,
		queue:    make(chan envelope, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish hands events to their handlers. Handler failures are logged and
// never returned, so a failing audit cannot fail the publishing operation.
// A full queue falls back to synchronous delivery.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, event := range events {
		if b.running.Load() {
			select {
			case b.queue <- envelope{ctx: context.WithoutCancel(ctx), event: event}:
				continue
			default:
				b.logger.Warn("event queue full, dispatching inline",
					zap.String("event_type", event.EventType()),
				)
			}
		}
		b.deliver(ctx, event)
	}
	return nil
}

// Subscribe registers a handler for specific event types
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed",
		zap.Strings("event_types", eventTypes),
	)
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
	b.logger.Debug("handler unsubscribed")
}

// Start launches the dispatch worker
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running.Load() {
		return nil
	}
	b.running.Store(true)
	b.wg.Add(1)
	go b.run(b.queue)
	b.logger.Info("event bus started")
	return nil
}

// Stop drains queued events and stops the worker. It returns ctx.Err() if
// the drain outlives ctx.
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running.Load() {
		b.mu.Unlock()
		return nil
	}
	b.running.Store(false)
	close(b.queue)
	b.queue = make(chan envelope, cap(b.queue))
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus stopped")
		return nil
	case <-ctx.Done():
		b.logger.Warn("event bus stop timed out with events pending")
		return ctx.Err()
	}
}

func (b *InMemoryEventBus) run(queue <-chan envelope) {
	defer b.wg.Done()
	for env := range queue {
		b.deliver(env.ctx, env.event)
	}
}

func (b *InMemoryEventBus) deliver(ctx context.Context, event shared.DomainEvent) {
	for _, handler := range b.registry.GetHandlers(event.EventType()) {
		if err := b.dispatchToHandler(ctx, handler, event); err != nil {
			b.logger.Error("handler failed to process event",
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID().String()),
				zap.String("tenant_id", event.TenantID().String()),
				zap.Error(err),
			)
		}
	}
}

// dispatchToHandler runs one handler, converting a panic into a logged failure
func (b *InMemoryEventBus) dispatchToHandler(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("event_type", event.EventType()),
				zap.Any("panic", r),
			)
		}
	}()

	return handler.Handle(ctx, event)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
