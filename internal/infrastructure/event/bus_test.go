package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, time.Now()),
		Data:            "test data",
	}
}

type testHandler struct {
	eventTypes []string
	err        error
	panicWith  any
	block      chan struct{}

	mu      sync.Mutex
	handled []shared.DomainEvent
	ctxErrs []error
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	h.handled = append(h.handled, event)
	h.ctxErrs = append(h.ctxErrs, ctx.Err())
	h.mu.Unlock()
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

func TestInMemoryEventBus_SynchronousDelivery(t *testing.T) {
	tests := []struct {
		name      string
		subscribe func(bus *InMemoryEventBus) []*testHandler
		publish   []shared.DomainEvent
		want      []int
	}{
		{
			name: "single handler",
			subscribe: func(bus *InMemoryEventBus) []*testHandler {
				h := newTestHandler("erporder.synced")
				bus.Subscribe(h)
				return []*testHandler{h}
			},
			publish: []shared.DomainEvent{newTestEvent("erporder.synced"), newTestEvent("erporder.synced")},
			want:    []int{2},
		},
		{
			name: "every handler sees the event",
			subscribe: func(bus *InMemoryEventBus) []*testHandler {
				a, b := newTestHandler("erporder.synced"), newTestHandler("erporder.synced")
				bus.Subscribe(a)
				bus.Subscribe(b)
				return []*testHandler{a, b}
			},
			publish: []shared.DomainEvent{newTestEvent("erporder.synced")},
			want:    []int{1, 1},
		},
		{
			name: "wildcard handler",
			subscribe: func(bus *InMemoryEventBus) []*testHandler {
				h := newTestHandler()
				bus.Subscribe(h)
				return []*testHandler{h}
			},
			publish: []shared.DomainEvent{newTestEvent("anything")},
			want:    []int{1},
		},
		{
			name: "explicit types override the handler's own",
			subscribe: func(bus *InMemoryEventBus) []*testHandler {
				h := newTestHandler("erporder.synced")
				bus.Subscribe(h, "payment.ingested")
				return []*testHandler{h}
			},
			publish: []shared.DomainEvent{newTestEvent("erporder.synced")},
			want:    []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewInMemoryEventBus(zap.NewNop())
			handlers := tt.subscribe(bus)

			require.NoError(t, bus.Publish(context.Background(), tt.publish...))
			for i, h := range handlers {
				assert.Len(t, h.getHandled(), tt.want[i])
			}
		})
	}
}

func TestInMemoryEventBus_HandlerFailuresAreIsolated(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	failing := newTestHandler("erporder.synced")
	failing.err = errors.New("lookup failed")
	panicking := newTestHandler("erporder.synced")
	panicking.panicWith = "boom"
	healthy := newTestHandler("erporder.synced")
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newTestEvent("erporder.synced"))

	require.NoError(t, err)
	assert.Len(t, failing.getHandled(), 1)
	assert.Len(t, panicking.getHandled(), 1)
	assert.Len(t, healthy.getHandled(), 1)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler("erporder.synced")
	bus.Subscribe(h)

	_ = bus.Publish(context.Background(), newTestEvent("erporder.synced"))
	bus.Unsubscribe(h)
	_ = bus.Publish(context.Background(), newTestEvent("erporder.synced"))

	assert.Len(t, h.getHandled(), 1)
}

func TestInMemoryEventBus_AsyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), WithWorkers(2), WithQueueSize(10))
	h := newTestHandler("erporder.synced")
	bus.Subscribe(h)
	require.NoError(t, bus.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Publish(ctx, newTestEvent("erporder.synced"), newTestEvent("erporder.synced")))
	// handlers must not see the publisher's cancellation
	cancel()

	stopCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	require.NoError(t, bus.Stop(stopCtx))

	assert.Len(t, h.getHandled(), 2)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, err := range h.ctxErrs {
		assert.NoError(t, err)
	}
}

func TestInMemoryEventBus_QueueFull(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), WithWorkers(1), WithQueueSize(1))
	h := newTestHandler("erporder.synced")
	h.block = make(chan struct{})
	bus.Subscribe(h)
	require.NoError(t, bus.Start(context.Background()))

	// the worker takes the first event and blocks; the second fills the queue
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("erporder.synced")))
	require.Eventually(t, func() bool { return len(bus.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("erporder.synced")))

	err := bus.Publish(context.Background(), newTestEvent("erporder.synced"))
	require.ErrorIs(t, err, ErrQueueFull)

	close(h.block)
	stopCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	require.NoError(t, bus.Stop(stopCtx))
	assert.Len(t, h.getHandled(), 2)
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), WithWorkers(1))
	h := newTestHandler("erporder.synced")
	bus.Subscribe(h)

	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Stop(context.Background()))
	require.NoError(t, bus.Stop(context.Background()))

	// a stopped bus falls back to synchronous delivery
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("erporder.synced")))
	assert.Len(t, h.getHandled(), 1)
}

func TestInMemoryEventBus_StopHonoursDeadline(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), WithWorkers(1))
	h := newTestHandler("erporder.synced")
	h.block = make(chan struct{})
	defer close(h.block)
	bus.Subscribe(h)
	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("erporder.synced")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bus.Stop(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
}
