// Package memory provides an in-memory implementation of the event publisher.
// It offers a lightweight, non-persistent broker suitable for tests and
// single-process deployments where no Kafka cluster is configured.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/events"
)

// HandlerFunc receives every published event.
type HandlerFunc func(ctx context.Context, evt events.DomainEvent) error

var _ events.DomainEventPublisher = (*Broker)(nil)

// Broker fans published events out to subscribed handlers and keeps a bounded
// history of what was published.
type Broker struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]HandlerFunc
	history  []events.DomainEvent
	limit    int
}

// DefaultHistoryLimit bounds the number of retained events.
const DefaultHistoryLimit = 1000

// NewBroker creates an empty broker retaining up to limit events. A
// non-positive limit selects DefaultHistoryLimit.
func NewBroker(limit int) *Broker {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Broker{handlers: make(map[int]HandlerFunc), limit: limit}
}

// Subscribe registers handler until ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, handler HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}()
	return nil
}

// PublishDomainEvent records evt and delivers it to every handler, stopping at
// the first handler error.
func (b *Broker) PublishDomainEvent(ctx context.Context, evt events.DomainEvent, opts ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := events.ApplyOptions(evt, opts...)
	evt.Key = params.Key
	evt.Headers = params.Headers

	b.mu.Lock()
	b.history = append(b.history, evt)
	if over := len(b.history) - b.limit; over > 0 {
		b.history = append([]events.DomainEvent(nil), b.history[over:]...)
	}
	// Copy handlers so none run under the lock.
	handlers := make([]HandlerFunc, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Events returns a copy of the retained history, oldest first.
func (b *Broker) Events() []events.DomainEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]events.DomainEvent(nil), b.history...)
}
