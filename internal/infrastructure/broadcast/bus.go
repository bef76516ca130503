// Package broadcast fans events out to in-process listeners and, through an
// optional transport, to other sessions.
package broadcast

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/iho/ledgersync/internal/domain"
	"github.com/iho/ledgersync/internal/infrastructure/metrics"
)

// Transport carries events to other sessions.
type Transport interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Handler receives events.
type Handler func(domain.Event)

// Bus delivers every published event to its local subscribers and forwards
// it to the transport. Events arriving from other sessions are fed in with
// Deliver and reach local subscribers only.
type Bus struct {
	transport Transport
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	mu   sync.RWMutex
	subs map[int]Handler
	next int
}

// NewBus creates a Bus. transport and m may be nil.
func NewBus(transport Transport, logger zerolog.Logger, m *metrics.Metrics) *Bus {
	return &Bus{
		transport: transport,
		logger:    logger,
		metrics:   m,
		subs:      make(map[int]Handler),
	}
}

// Subscribe registers h and returns the function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev locally and forwards it to other sessions. A transport
// failure is returned after local delivery.
func (b *Bus) Publish(ctx context.Context, ev domain.Event) error {
	b.deliver(ev)
	b.count(ev, "out")
	if b.transport == nil {
		return nil
	}
	return b.transport.Publish(ctx, ev)
}

// Deliver hands an event received from another session to local subscribers.
func (b *Bus) Deliver(ev domain.Event) {
	b.count(ev, "in")
	b.deliver(ev)
}

func (b *Bus) deliver(ev domain.Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeCall(h, ev)
	}
}

func (b *Bus) safeCall(h Handler, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Str("event", ev.Name()).Msg("event handler panicked")
		}
	}()
	h(ev)
}

func (b *Bus) count(ev domain.Event, direction string) {
	if b.metrics != nil {
		b.metrics.Broadcasts.WithLabelValues(ev.Name(), direction).Inc()
	}
}
