package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"talentgate/pkg/platform/sentinel"
)

// Rotation describes a single-use refresh exchange. The store applies it
// atomically: the update matches on the old refresh token, so a token that
// has already been consumed rotates nothing and surfaces sentinel.ErrNotFound.
type Rotation struct {
	SessionID       uuid.UUID
	OldSessionToken string
	OldRefreshToken string
	NewSessionToken string
	NewRefreshToken string
	Now             time.Time
	NewExpiresAt    time.Time
}

// Repository is the durable session store. Implementations return rows as
// stored; expiry enforcement lives in the Service.
type Repository interface {
	Create(ctx context.Context, sess *Session) error
	FindByToken(ctx context.Context, token string) (*Session, error)
	FindByRefreshToken(ctx context.Context, refreshToken string) (*Session, error)
	Rotate(ctx context.Context, rot Rotation) (*Session, error)
	Touch(ctx context.Context, token string, at time.Time) error
	Delete(ctx context.Context, token string) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Session, error)
	// DeleteExpired removes every session past expiry and returns the
	// tokens of the removed rows so cache entries can be cleared.
	DeleteExpired(ctx context.Context, now time.Time) ([]string, error)
}

// MemoryStore is an in-memory Repository for tests and single-node runs.
type MemoryStore struct {
	mu       sync.RWMutex
	byToken  map[string]*Session
	byRecall map[string]string // refresh token -> session token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byToken:  make(map[string]*Session),
		byRecall: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byToken[sess.SessionToken]; exists {
		return sentinel.ErrConflict
	}
	cp := *sess
	s.byToken[sess.SessionToken] = &cp
	s.byRecall[sess.RefreshToken] = sess.SessionToken
	return nil
}

func (s *MemoryStore) FindByToken(_ context.Context, token string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byToken[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) FindByRefreshToken(_ context.Context, refreshToken string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.byRecall[refreshToken]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	sess, ok := s.byToken[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) Rotate(_ context.Context, rot Rotation) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.byRecall[rot.OldRefreshToken]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	sess, ok := s.byToken[token]
	if !ok || sess.ID != rot.SessionID {
		return nil, sentinel.ErrNotFound
	}

	delete(s.byToken, token)
	delete(s.byRecall, rot.OldRefreshToken)

	cp := *sess
	cp.SessionToken = rot.NewSessionToken
	cp.RefreshToken = rot.NewRefreshToken
	cp.LastActivityAt = rot.Now
	cp.ExpiresAt = rot.NewExpiresAt
	s.byToken[cp.SessionToken] = &cp
	s.byRecall[cp.RefreshToken] = cp.SessionToken

	out := cp
	return &out, nil
}

func (s *MemoryStore) Touch(_ context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byToken[token]
	if !ok {
		return sentinel.ErrNotFound
	}
	sess.LastActivityAt = at
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byToken[token]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byToken, token)
	delete(s.byRecall, sess.RefreshToken)
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Session
	for _, sess := range s.byToken {
		if sess.UserID == userID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for token, sess := range s.byToken {
		if sess.Expired(now) {
			delete(s.byToken, token)
			delete(s.byRecall, sess.RefreshToken)
			removed = append(removed, token)
		}
	}
	return removed, nil
}
