package events

import (
	"context" // Cancellation and deadlines
	"errors"  // Error wrapping
	"sync"    // Locks and wait groups
	"time"    // Time durations

	"github.com/sirupsen/logrus" // Structured logging
)

var _ Publisher = (*MemoryBus)(nil)
var _ Subscriber = (*MemoryBus)(nil)

// MemoryBus dispatches events in-process on the publishing goroutine.
// A failing handler is redelivered up to maxDeliveries times.
type MemoryBus struct {
	mu            sync.RWMutex
	handlers      map[string][]HandlerFunc
	maxDeliveries int
	log           *logrus.Entry
}

func NewMemoryBus(log *logrus.Entry, maxDeliveries int) *MemoryBus {
	if maxDeliveries < 1 {
		maxDeliveries = 1
	}
	return &MemoryBus{
		handlers:      make(map[string][]HandlerFunc),
		maxDeliveries: maxDeliveries,
		log:           log.WithField("component", "events.memory"),
	}
}

func (b *MemoryBus) Subscribe(topic string, h HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload any) error {
	env, err := NewEnvelope(topic, payload, time.Now())
	if err != nil {
		return err
	}

	b.mu.RLock()
	hs := append([]HandlerFunc(nil), b.handlers[topic]...)
	b.mu.RUnlock()

	for _, h := range hs {
		b.deliver(ctx, env, h)
	}
	return nil
}

func (b *MemoryBus) deliver(ctx context.Context, env Envelope, h HandlerFunc) {
	l := b.log.WithFields(logrus.Fields{"topic": env.Topic, "event_id": env.ID})
	for attempt := 1; attempt <= b.maxDeliveries; attempt++ {
		env.Delivery = attempt
		err := h(ctx, env)
		if err == nil {
			return
		}
		if errors.Is(err, ErrPoison) {
			l.WithError(err).Error("Dropping undeliverable event")
			return
		}
		l.WithError(err).WithField("delivery", attempt).Warn("Handler failed")
	}
	l.Error("Giving up on event after max deliveries")
}
