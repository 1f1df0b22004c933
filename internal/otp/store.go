package otp

import (
	"context" // Cancellation and deadlines
	"errors"  // Error wrapping
	"fmt"     // String formatting
	"sync"    // Locks and wait groups
	"time"    // Time durations

	"github.com/google/uuid"       // UUID identifiers
	"github.com/redis/go-redis/v9" // Redis client

	"wallet_saga/internal/domain" // Domain models
	"wallet_saga/internal/utils"  // Utility functions
)

// Store keeps challenges until they expire. Entries are keyed by transaction id.
type Store interface {
	Create(ctx context.Context, c domain.OtpChallenge, ttl time.Duration) error
	Get(ctx context.Context, txID uuid.UUID) (*domain.OtpChallenge, error)
	// Update replaces a live entry and keeps its expiry
	Update(ctx context.Context, c domain.OtpChallenge) error
	Delete(ctx context.Context, txID uuid.UUID) error
}

func notFound(txID uuid.UUID) error {
	return domain.NotFoundf("OTP not found or expired for transaction %s", txID)
}

var _ Store = (*RedisStore)(nil)

// RedisStore keeps challenges as JSON values with a Redis TTL
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "otp:"}
}

func (s *RedisStore) key(txID uuid.UUID) string {
	return s.prefix + txID.String()
}

func (s *RedisStore) Create(ctx context.Context, c domain.OtpChallenge, ttl time.Duration) error {
	if err := utils.SetCache(ctx, s.rdb, s.key(c.TransactionID), c, ttl); err != nil {
		return fmt.Errorf("set otp: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, txID uuid.UUID) (*domain.OtpChallenge, error) {
	var c domain.OtpChallenge
	found, err := utils.GetCache(ctx, s.rdb, s.key(txID), &c)
	if err != nil {
		return nil, fmt.Errorf("get otp: %w", err)
	}
	if !found {
		return nil, notFound(txID)
	}
	return &c, nil
}

func (s *RedisStore) Update(ctx context.Context, c domain.OtpChallenge) error {
	err := utils.UpdateCache(ctx, s.rdb, s.key(c.TransactionID), c)
	if errors.Is(err, utils.ErrCacheMiss) {
		return notFound(c.TransactionID)
	}
	if err != nil {
		return fmt.Errorf("update otp: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, txID uuid.UUID) error {
	if err := utils.DeleteCache(ctx, s.rdb, s.key(txID)); err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)

type memEntry struct {
	c       domain.OtpChallenge
	expires time.Time
}

// MemoryStore is a process-local Store for single-process deployments and tests
type MemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]memEntry
	now     func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: make(map[uuid.UUID]memEntry), now: now}
}

func (s *MemoryStore) Create(_ context.Context, c domain.OtpChallenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.purge(now)
	s.entries[c.TransactionID] = memEntry{c: c, expires: now.Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, txID uuid.UUID) (*domain.OtpChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(txID)
	if !ok {
		return nil, notFound(txID)
	}
	c := e.c
	return &c, nil
}

func (s *MemoryStore) Update(_ context.Context, c domain.OtpChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(c.TransactionID)
	if !ok {
		return notFound(c.TransactionID)
	}
	e.c = c
	s.entries[c.TransactionID] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, txID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, txID)
	return nil
}

// Len returns the number of live entries
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(s.now())
	return len(s.entries)
}

// live returns the entry for txID, evicting it if expired. Caller holds mu.
func (s *MemoryStore) live(txID uuid.UUID) (memEntry, bool) {
	e, ok := s.entries[txID]
	if !ok {
		return memEntry{}, false
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, txID)
		return memEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) purge(now time.Time) {
	for id, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, id)
		}
	}
}
