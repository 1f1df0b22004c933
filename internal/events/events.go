// Package events carries domain events between the wallet and ledger roles.
// Delivery is at-least-once: handlers must tolerate redelivery.
package events

import (
	"context"       // Cancellation and deadlines
	"encoding/json" // JSON encoding/decoding
	"errors"        // Error wrapping
	"fmt"           // String formatting
	"time"          // Time durations

	"github.com/go-playground/validator/v10" // Struct validation
	"github.com/rs/xid"                      // Consumer ids
)

const (
	TopicTransactionCreated   = "transaction.created"
	TopicOtpVerified          = "otp.verified"
	TopicTransactionCompleted = "transaction.completed"
)

// ErrPoison marks an event that can never be handled. Buses drop it instead of redelivering.
var ErrPoison = errors.New("undeliverable event")

// Envelope wraps an event payload on the wire
type Envelope struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"published_at"`
	Delivery    int             `json:"-"` // 1 on first delivery
}

// HandlerFunc handles one delivery of an envelope
type HandlerFunc func(ctx context.Context, env Envelope) error

// Publisher emits events
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Subscriber registers handlers. Subscribe must be called before the bus starts.
type Subscriber interface {
	Subscribe(topic string, h HandlerFunc)
}

// NewEnvelope marshals payload into an envelope with a fresh id
func NewEnvelope(topic string, payload any, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", topic, err)
	}
	return Envelope{
		ID:          xid.New().String(),
		Topic:       topic,
		Payload:     raw,
		PublishedAt: now.UTC(),
	}, nil
}

var validate = validator.New()

// Handle adapts a typed handler. Payloads that do not decode or validate are poison.
func Handle[T any](fn func(ctx context.Context, ev T) error) HandlerFunc {
	return func(ctx context.Context, env Envelope) error {
		var ev T
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrPoison, env.Topic, err)
		}
		if err := validate.Struct(ev); err != nil {
			return fmt.Errorf("%w: validate %s: %v", ErrPoison, env.Topic, err)
		}
		return fn(ctx, ev)
	}
}
