package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"talentgate/pkg/platform/sentinel"
)

const attemptKeyPrefix = "login:state:"

// Attempt is one in-flight login awaiting its callback. The state parameter
// is the lookup key; the PKCE verifier never leaves the gateway.
type Attempt struct {
	State     string    `json:"state"`
	Verifier  string    `json:"verifier"`
	ReturnURL string    `json:"return_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AttemptStore holds in-flight login attempts. Consume is one-shot: a state
// value resolves at most once, which is what defeats replayed callbacks.
type AttemptStore interface {
	Save(ctx context.Context, attempt Attempt, ttl time.Duration) error
	Consume(ctx context.Context, state string) (*Attempt, error)
}

// RedisAttemptStore keeps attempts in redis so callbacks can land on any
// gateway instance.
type RedisAttemptStore struct {
	cache redis.Cmdable
}

func NewRedisAttemptStore(cache redis.Cmdable) *RedisAttemptStore {
	return &RedisAttemptStore{cache: cache}
}

func (s *RedisAttemptStore) Save(ctx context.Context, attempt Attempt, ttl time.Duration) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshalling login attempt: %w", err)
	}
	ok, err := s.cache.SetNX(ctx, attemptKeyPrefix+attempt.State, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("storing login attempt: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisAttemptStore) Consume(ctx context.Context, state string) (*Attempt, error) {
	data, err := s.cache.GetDel(ctx, attemptKeyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consuming login attempt: %w", err)
	}
	var attempt Attempt
	if err := json.Unmarshal(data, &attempt); err != nil {
		return nil, fmt.Errorf("unmarshalling login attempt: %w", err)
	}
	return &attempt, nil
}

// MemoryAttemptStore is a map-backed AttemptStore for tests and single-node
// runs without redis.
type MemoryAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]memoryAttempt
	clock    func() time.Time
}

type memoryAttempt struct {
	attempt   Attempt
	expiresAt time.Time
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		attempts: make(map[string]memoryAttempt),
		clock:    time.Now,
	}
}

func (s *MemoryAttemptStore) Save(_ context.Context, attempt Attempt, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.attempts[attempt.State]; ok && s.clock().Before(existing.expiresAt) {
		return sentinel.ErrConflict
	}
	s.attempts[attempt.State] = memoryAttempt{
		attempt:   attempt,
		expiresAt: s.clock().Add(ttl),
	}
	return nil
}

func (s *MemoryAttemptStore) Consume(_ context.Context, state string) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.attempts[state]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	delete(s.attempts, state)
	if !s.clock().Before(entry.expiresAt) {
		return nil, sentinel.ErrNotFound
	}
	cp := entry.attempt
	return &cp, nil
}
