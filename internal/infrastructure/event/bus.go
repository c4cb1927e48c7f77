package event

import (
	"context"
	"sync"

	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"go.uber.org/zap"
)

// Handler processes a tenant event
type Handler func(ctx context.Context, event *tenancy.Event) error

type subscription struct {
	id      int
	handler Handler
}

// InMemoryEventBus delivers tenant events to in-process subscribers
type InMemoryEventBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[tenancy.EventType][]subscription
	all      []subscription
	logger   *zap.Logger
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		handlers: make(map[tenancy.EventType][]subscription),
		logger:   logger,
	}
}

// Publish dispatches the event synchronously to every matching handler.
// Handler failures are logged and do not stop delivery to the others.
func (b *InMemoryEventBus) Publish(ctx context.Context, event *tenancy.Event) error {
	b.mu.RLock()
	targets := make([]subscription, 0, len(b.all)+len(b.handlers[event.Type]))
	targets = append(targets, b.all...)
	targets = append(targets, b.handlers[event.Type]...)
	b.mu.RUnlock()

	for _, sub := range targets {
		if err := b.dispatch(ctx, sub.handler, event); err != nil {
			b.logger.Error("handler failed to process event",
				zap.String("event_type", string(event.Type)),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Subscribe registers handler for the given event types, or for every
// event when none are given. The returned func removes the subscription.
func (b *InMemoryEventBus) Subscribe(handler Handler, eventTypes ...tenancy.EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscription{id: b.nextID, handler: handler}
	if len(eventTypes) == 0 {
		b.all = append(b.all, sub)
	}
	for _, typ := range eventTypes {
		b.handlers[typ] = append(b.handlers[typ], sub)
	}
	b.logger.Debug("handler subscribed", zap.Int("subscription", sub.id))

	return func() { b.unsubscribe(sub.id) }
}

func (b *InMemoryEventBus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.all = without(b.all, id)
	for typ, subs := range b.handlers {
		b.handlers[typ] = without(subs, id)
	}
}

func without(subs []subscription, id int) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// dispatch calls handler, turning a panic into a logged failure
func (b *InMemoryEventBus) dispatch(ctx context.Context, handler Handler, event *tenancy.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("event_type", string(event.Type)),
				zap.Any("panic", r),
			)
		}
	}()
	return handler(ctx, event)
}

// LogHandler writes every event to the logger
func LogHandler(logger *zap.Logger) Handler {
	return func(_ context.Context, event *tenancy.Event) error {
		logger.Info("Tenant event",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID),
			zap.String("tenant_id", event.TenantID),
			zap.Any("payload", event.Payload))
		return nil
	}
}

// Ensure InMemoryEventBus implements tenancy.EventPublisher
var _ tenancy.EventPublisher = (*InMemoryEventBus)(nil)
