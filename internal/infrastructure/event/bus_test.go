package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type testEvent struct {
	shared.BaseDomainEvent
}

func newTestEvent(eventType string, tenantID uuid.UUID) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New(), tenantID, time.Now().UTC()),
	}
}

type testHandler struct {
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panicWith  any
	mu         sync.Mutex
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	return h.err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("TestEvent")
	bus.Subscribe(handler)

	event := newTestEvent("TestEvent", uuid.New())
	err := bus.Publish(context.Background(), event)

	require.NoError(t, err)
	require.Len(t, handler.getHandled(), 1)
	assert.Equal(t, event, handler.getHandled()[0])
}

func TestInMemoryEventBus_Publish_MultipleHandlersAndWildcard(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	typed := newTestHandler("TestEvent")
	wildcard := newTestHandler()
	other := newTestHandler("OtherEvent")
	bus.Subscribe(typed)
	bus.Subscribe(wildcard)
	bus.Subscribe(other)

	err := bus.Publish(context.Background(),
		newTestEvent("TestEvent", uuid.New()),
		newTestEvent("Unrelated", uuid.New()),
	)

	require.NoError(t, err)
	assert.Len(t, typed.getHandled(), 1)
	assert.Len(t, wildcard.getHandled(), 2)
	assert.Empty(t, other.getHandled())
}

func TestInMemoryEventBus_Publish_HandlerFailuresAreIsolated(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	bus := NewInMemoryEventBus(zap.New(core))

	failing := newTestHandler("TestEvent")
	failing.err = errors.New("history store down")
	panicking := newTestHandler("TestEvent")
	panicking.panicWith = "boom"
	healthy := newTestHandler("TestEvent")
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newTestEvent("TestEvent", uuid.New()))

	require.NoError(t, err)
	assert.Len(t, healthy.getHandled(), 1)
	assert.Equal(t, 1, logs.FilterMessage("handler failed to process event").Len())
	assert.Equal(t, 1, logs.FilterMessage("handler panicked").Len())
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("TestEvent")
	bus.Subscribe(handler)

	_ = bus.Publish(context.Background(), newTestEvent("TestEvent", uuid.New()))
	bus.Unsubscribe(handler)
	_ = bus.Publish(context.Background(), newTestEvent("TestEvent", uuid.New()))

	assert.Len(t, handler.getHandled(), 1)
}

func TestInMemoryEventBus_AsyncDeliveryDrainsOnStop(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), WithQueueSize(16))
	handler := newTestHandler("TestEvent")
	bus.Subscribe(handler)
	require.NoError(t, bus.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(ctx, newTestEvent("TestEvent", uuid.New())))
	}
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, bus.Stop(stopCtx))

	assert.Len(t, handler.getHandled(), 10)
}

func TestInMemoryEventBus_StopIsIdempotentAndRestartable(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, bus.Stop(ctx))
	require.NoError(t, bus.Start(ctx))
	require.NoError(t, bus.Start(ctx))
	require.NoError(t, bus.Stop(ctx))

	handler := newTestHandler("TestEvent")
	bus.Subscribe(handler)
	require.NoError(t, bus.Publish(ctx, newTestEvent("TestEvent", uuid.New())))
	assert.Len(t, handler.getHandled(), 1, "stopped bus dispatches inline")

	require.NoError(t, bus.Start(ctx))
	require.NoError(t, bus.Publish(ctx, newTestEvent("TestEvent", uuid.New())))
	require.NoError(t, bus.Stop(ctx))
	assert.Len(t, handler.getHandled(), 2)
}
