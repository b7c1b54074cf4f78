package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/erp/reconciler/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrQueueFull is returned by Publish when an asynchronous bus cannot accept
// more events. Dropped events are not retried; the periodic jobs catch up.
var ErrQueueFull = errors.New("event: queue is full")

const defaultQueueSize = 1000

// Option configures an InMemoryEventBus
type Option func(*InMemoryEventBus)

// WithWorkers makes delivery asynchronous once the bus is started: Publish
// enqueues and n workers run the handlers. Zero keeps delivery synchronous.
func WithWorkers(n int) Option {
	return func(b *InMemoryEventBus) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithQueueSize bounds the number of events waiting for a worker
func WithQueueSize(n int) Option {
	return func(b *InMemoryEventBus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

type envelope struct {
	ctx   context.Context
	event shared.DomainEvent
}

// InMemoryEventBus implements EventBus with in-process pub/sub
type InMemoryEventBus struct {
	registry  *HandlerRegistry
	logger    *zap.Logger
	workers   int
	queueSize int

	mu      sync.RWMutex
	running bool
	queue   chan envelope
	wg      sync.WaitGroup
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger, opts ...Option) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &InMemoryEventBus{
		registry:  NewHandlerRegistry(),
		logger:    logger,
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers events to every registered handler. Handler failures are
// logged and never returned. A started asynchronous bus only enqueues; the
// handlers then run detached from the publisher's cancellation.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.RLock()
	async := b.running && b.queue != nil
	if !async {
		b.mu.RUnlock()
		for _, event := range events {
			b.deliver(ctx, event)
		}
		return nil
	}
	defer b.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	dropped := 0
	for _, event := range events {
		select {
		case b.queue <- envelope{ctx: detached, event: event}:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.logger.Warn("Event queue full, dropping events",
			zap.Int("dropped", dropped),
			zap.Int("queue_size", b.queueSize))
		return fmt.Errorf("%w: dropped %d of %d events", ErrQueueFull, dropped, len(events))
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

// Start starts the workers of an asynchronous bus
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}
	b.running = true
	if b.workers > 0 {
		b.queue = make(chan envelope, b.queueSize)
		for i := 0; i < b.workers; i++ {
			b.wg.Add(1)
			go b.work(b.queue)
		}
	}
	b.logger.Info("event bus started",
		zap.Int("workers", b.workers),
		zap.Int("handlers", b.registry.Count()))
	return nil
}

// Stop stops accepting events and waits until the queued ones are handled
// or ctx expires
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	if b.queue != nil {
		close(b.queue)
		b.queue = nil
	}
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
		return fmt.Errorf("event: stop: %w", ctx.Err())
	}
}

func (b *InMemoryEventBus) work(queue <-chan envelope) {
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
				zap.Error(err),
			)
		}
	}
}

// dispatchToHandler isolates the bus from handler panics
func (b *InMemoryEventBus) dispatchToHandler(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event: handler panicked: %v", r)
		}
	}()

	return handler.Handle(ctx, event)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
