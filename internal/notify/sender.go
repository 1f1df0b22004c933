// Package notify delivers out-of-band messages such as OTP codes.
package notify

import (
	"context" // Cancellation and deadlines
	"errors"  // Error wrapping
	"fmt"     // String formatting
	"time"    // Time durations

	"github.com/sirupsen/logrus" // Structured logging
	"github.com/sony/gobreaker"  // Circuit breaker
)

// Sender delivers one message to an email address
type Sender interface {
	Send(ctx context.Context, email, subject, body string) error
}

var _ Sender = (*LogSender)(nil)
var _ Sender = (*BreakerSender)(nil)

// LogSender writes notifications to the log. The body is only logged at debug level.
type LogSender struct {
	log *logrus.Entry
}

func NewLogSender(log *logrus.Entry) *LogSender {
	return &LogSender{log: log.WithField("component", "notify.log")}
}

func (s *LogSender) Send(_ context.Context, email, subject, body string) error {
	l := s.log.WithFields(logrus.Fields{"to": email, "subject": subject})
	l.Info("Notification sent")
	l.WithField("body", body).Debug("Notification body")
	return nil
}

// ErrUnavailable is returned while the breaker is open
var ErrUnavailable = errors.New("notification channel unavailable")

// BreakerSender stops calling a failing sender until it had time to recover
type BreakerSender struct {
	next Sender
	cb   *gobreaker.CircuitBreaker
}

// BreakerSettings tunes when the breaker opens and how long it stays open
type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func NewBreakerSender(next Sender, s BreakerSettings, log *logrus.Entry) *BreakerSender {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	l := log.WithField("component", "notify.breaker")
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("Breaker state changed")
		},
	})
	return &BreakerSender{next: next, cb: cb}
}

func (s *BreakerSender) Send(ctx context.Context, email, subject, body string) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.Send(ctx, email, subject, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
