package events

import (
	"context"       // Cancellation and deadlines
	"encoding/json" // JSON encoding/decoding
	"errors"        // Error wrapping
	"fmt"           // String formatting
	"strings"       // String manipulation
	"sync"          // Locks and wait groups
	"sync/atomic"   // Atomic counters
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Structured logging
)

var _ Publisher = (*RedisBus)(nil)
var _ Subscriber = (*RedisBus)(nil)

const envelopeField = "envelope"

// RedisOptions configures a RedisBus
type RedisOptions struct {
	Prefix        string        // Stream key prefix
	Group         string        // Consumer group, one per service role
	Consumer      string        // Consumer name inside the group
	Workers       int           // Concurrent handler invocations per batch
	Batch         int64         // Messages read per XREADGROUP
	Block         time.Duration // Negative disables blocking reads
	MaxDeliveries int           // Deliveries before a message is dropped
	RetryDelay    time.Duration // Pause after a failed batch or read error
	MaxLen        int64         // Approximate stream cap, 0 keeps everything
}

func (o *RedisOptions) defaults() {
	if o.Prefix == "" {
		o.Prefix = "events:"
	}
	if o.Workers < 1 {
		o.Workers = 4
	}
	if o.Batch < 1 {
		o.Batch = 16
	}
	if o.Block == 0 {
		o.Block = 2 * time.Second
	}
	if o.MaxDeliveries < 1 {
		o.MaxDeliveries = 5
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
}

// RedisBus is an at-least-once bus over Redis Streams consumer groups.
// A message is acknowledged only after every handler for its topic succeeded.
type RedisBus struct {
	rdb  redis.Cmdable
	opts RedisOptions
	log  *logrus.Entry

	mu       sync.RWMutex
	handlers map[string][]HandlerFunc

	dmu        sync.Mutex
	deliveries map[string]int

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewRedisBus(rdb redis.Cmdable, opts RedisOptions, log *logrus.Entry) *RedisBus {
	opts.defaults()
	return &RedisBus{
		rdb:        rdb,
		opts:       opts,
		log:        log.WithFields(logrus.Fields{"component": "events.redis", "group": opts.Group}),
		handlers:   make(map[string][]HandlerFunc),
		deliveries: make(map[string]int),
		stopCh:     make(chan struct{}),
	}
}

func (b *RedisBus) stream(topic string) string {
	return b.opts.Prefix + topic
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload any) error {
	env, err := NewEnvelope(topic, payload, time.Now())
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: b.stream(topic),
		Values: map[string]any{envelopeField: string(raw)},
	}
	if b.opts.MaxLen > 0 {
		args.MaxLen = b.opts.MaxLen
		args.Approx = true
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(topic string, h HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

func (b *RedisBus) topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.handlers))
	for t := range b.handlers {
		out = append(out, t)
	}
	return out
}

func (b *RedisBus) ensureGroup(ctx context.Context, topic string) error {
	err := b.rdb.XGroupCreateMkStream(ctx, b.stream(topic), b.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", b.opts.Group, topic, err)
	}
	return nil
}

// Start creates the consumer groups and runs one read loop per subscribed topic
func (b *RedisBus) Start(ctx context.Context) error {
	for _, topic := range b.topics() {
		if err := b.ensureGroup(ctx, topic); err != nil {
			return err
		}
		b.wg.Add(1)
		go func(topic string) {
			defer b.wg.Done()
			b.consume(ctx, topic)
		}(topic)
	}
	return nil
}

// Stop ends the read loops and waits for in-flight batches
func (b *RedisBus) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}

func (b *RedisBus) consume(ctx context.Context, topic string) {
	l := b.log.WithField("topic", topic)
	l.Info("Consumer started")
	pending := true // drain our own unacknowledged entries first
	for {
		select {
		case <-b.stopCh:
			l.Info("Consumer stopped")
			return
		case <-ctx.Done():
			return
		default:
		}

		id := ">"
		if pending {
			id = "0"
		}
		n, failed, err := b.poll(ctx, topic, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.WithError(err).Error("Read failed")
			b.sleep(ctx)
			continue
		}
		if pending && n == 0 {
			pending = false
		}
		if n == 0 && b.opts.Block < 0 {
			b.sleep(ctx) // non-blocking reads would spin
		}
		if failed > 0 {
			pending = true
			b.sleep(ctx)
		}
	}
}

func (b *RedisBus) sleep(ctx context.Context) {
	t := time.NewTimer(b.opts.RetryDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-b.stopCh:
	case <-ctx.Done():
	}
}

// poll reads one batch starting at id and runs it through the worker pool.
// It returns how many messages were read and how many are left unacknowledged.
func (b *RedisBus) poll(ctx context.Context, topic, id string) (int, int, error) {
	streams, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.opts.Group,
		Consumer: b.opts.Consumer,
		Streams:  []string{b.stream(topic), id},
		Count:    b.opts.Batch,
		Block:    b.opts.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}

	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	if len(msgs) == 0 {
		return 0, 0, nil
	}

	jobs := make(chan redis.XMessage)
	var failed atomic.Int32
	var wg sync.WaitGroup
	workers := min(b.opts.Workers, len(msgs))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				if !b.process(ctx, topic, m) {
					failed.Add(1)
				}
			}
		}()
	}
	for _, m := range msgs {
		jobs <- m
	}
	close(jobs)
	wg.Wait()

	return len(msgs), int(failed.Load()), nil
}

// process handles one message and reports whether it was acknowledged
func (b *RedisBus) process(ctx context.Context, topic string, m redis.XMessage) bool {
	l := b.log.WithFields(logrus.Fields{"topic": topic, "message_id": m.ID})

	var env Envelope
	raw, _ := m.Values[envelopeField].(string)
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		l.WithError(err).Error("Dropping malformed message")
		b.ack(ctx, topic, m.ID)
		return true
	}
	env.Delivery = b.countDelivery(m.ID)

	err := b.dispatch(ctx, topic, env)
	switch {
	case err == nil:
	case errors.Is(err, ErrPoison):
		l.WithError(err).Error("Dropping undeliverable event")
	case env.Delivery >= b.opts.MaxDeliveries:
		l.WithError(err).WithField("delivery", env.Delivery).Error("Giving up on event after max deliveries")
	default:
		l.WithError(err).WithField("delivery", env.Delivery).Warn("Handler failed, will redeliver")
		return false
	}
	b.ack(ctx, topic, m.ID)
	return true
}

func (b *RedisBus) dispatch(ctx context.Context, topic string, env Envelope) error {
	b.mu.RLock()
	hs := append([]HandlerFunc(nil), b.handlers[topic]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range hs {
		if err := h(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *RedisBus) ack(ctx context.Context, topic, id string) {
	if err := b.rdb.XAck(ctx, b.stream(topic), b.opts.Group, id).Err(); err != nil {
		b.log.WithError(err).WithField("message_id", id).Error("Ack failed")
		return
	}
	b.dmu.Lock()
	delete(b.deliveries, id)
	b.dmu.Unlock()
}

func (b *RedisBus) countDelivery(id string) int {
	b.dmu.Lock()
	defer b.dmu.Unlock()
	b.deliveries[id]++
	return b.deliveries[id]
}
