package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "session:token:"

// CachedStore is a redis look-aside cache in front of a durable Repository.
// Cache entries carry a TTL equal to the session's remaining life, so redis
// forgets sessions on its own schedule; a defensive expiry check on every hit
// covers clock skew between the gateway and redis. Cache failures degrade to
// the durable store and are logged, never surfaced.
type CachedStore struct {
	durable Repository
	cache   redis.Cmdable
	logger  *slog.Logger
	clock   func() time.Time
}

func NewCachedStore(durable Repository, cache redis.Cmdable, logger *slog.Logger) *CachedStore {
	return &CachedStore{
		durable: durable,
		cache:   cache,
		logger:  logger,
		clock:   time.Now,
	}
}

func cacheKey(token string) string {
	return cacheKeyPrefix + token
}

func (s *CachedStore) Create(ctx context.Context, sess *Session) error {
	if err := s.durable.Create(ctx, sess); err != nil {
		return err
	}
	s.put(ctx, sess)
	return nil
}

func (s *CachedStore) FindByToken(ctx context.Context, token string) (*Session, error) {
	now := s.clock()

	data, err := s.cache.Get(ctx, cacheKey(token)).Bytes()
	if err == nil {
		var sess Session
		if jerr := json.Unmarshal(data, &sess); jerr == nil {
			if sess.Expired(now) {
				// Stale entry that outlived the session, drop it and
				// fall through to the durable store.
				s.evict(ctx, token)
			} else {
				return &sess, nil
			}
		}
	} else if !errors.Is(err, redis.Nil) {
		s.logger.WarnContext(ctx, "session cache read failed", "error", err)
	}

	sess, err := s.durable.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !sess.Expired(now) {
		s.put(ctx, sess)
	}
	return sess, nil
}

// FindByRefreshToken always goes to the durable store; refresh exchanges are
// rare and must see the authoritative row.
func (s *CachedStore) FindByRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	return s.durable.FindByRefreshToken(ctx, refreshToken)
}

// Rotate evicts the old token's cache entry before the durable swap so a
// racing read cannot resurrect the retired credential, then caches the
// rotated session.
func (s *CachedStore) Rotate(ctx context.Context, rot Rotation) (*Session, error) {
	s.evict(ctx, rot.OldSessionToken)
	sess, err := s.durable.Rotate(ctx, rot)
	if err != nil {
		return nil, err
	}
	s.put(ctx, sess)
	return sess, nil
}

func (s *CachedStore) Touch(ctx context.Context, token string, at time.Time) error {
	if err := s.durable.Touch(ctx, token, at); err != nil {
		return err
	}
	// Refresh the cached copy in place without extending its TTL.
	data, err := s.cache.Get(ctx, cacheKey(token)).Bytes()
	if err != nil {
		return nil
	}
	var sess Session
	if json.Unmarshal(data, &sess) != nil {
		return nil
	}
	sess.LastActivityAt = at
	if payload, err := json.Marshal(&sess); err == nil {
		if err := s.cache.Set(ctx, cacheKey(token), payload, redis.KeepTTL).Err(); err != nil {
			s.logger.WarnContext(ctx, "session cache touch failed", "error", err)
		}
	}
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, token string) error {
	s.evict(ctx, token)
	return s.durable.Delete(ctx, token)
}

func (s *CachedStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Session, error) {
	return s.durable.ListByUser(ctx, userID)
}

func (s *CachedStore) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	tokens, err := s.durable.DeleteExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, token := range tokens {
		s.evict(ctx, token)
	}
	return tokens, nil
}

func (s *CachedStore) put(ctx context.Context, sess *Session) {
	ttl := sess.TTLRemaining(s.clock())
	if ttl <= 0 {
		return
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		s.logger.WarnContext(ctx, "session cache marshal failed", "error", err)
		return
	}
	if err := s.cache.Set(ctx, cacheKey(sess.SessionToken), payload, ttl).Err(); err != nil {
		s.logger.WarnContext(ctx, "session cache write failed", "error", err)
	}
}

func (s *CachedStore) evict(ctx context.Context, token string) {
	if err := s.cache.Del(ctx, cacheKey(token)).Err(); err != nil {
		s.logger.WarnContext(ctx, "session cache evict failed", "error", err)
	}
}

var _ Repository = (*CachedStore)(nil)
