package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCachedFixture(t *testing.T) (*CachedStore, *MemoryStore, *miniredis.Miniredis, time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	durable := NewMemoryStore()
	cached := NewCachedStore(durable, client, slog.New(slog.DiscardHandler))
	cached.clock = func() time.Time { return now }
	return cached, durable, mr, now
}

func testSession(now time.Time) *Session {
	return &Session{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		SessionToken:   "token-" + uuid.NewString(),
		RefreshToken:   "refresh-" + uuid.NewString(),
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(24 * time.Hour),
		IPAddress:      "10.0.0.1",
		UserAgent:      "test-agent",
	}
}

func TestCachedStoreServesHitsWithoutDurableStore(t *testing.T) {
	cached, durable, _, now := newCachedFixture(t)
	sess := testSession(now)
	require.NoError(t, cached.Create(context.Background(), sess))

	// Remove the durable row; a cache hit must still resolve.
	require.NoError(t, durable.Delete(context.Background(), sess.SessionToken))

	got, err := cached.FindByToken(context.Background(), sess.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestCachedStoreEntryTTLMatchesSessionLife(t *testing.T) {
	cached, _, mr, now := newCachedFixture(t)
	sess := testSession(now)
	require.NoError(t, cached.Create(context.Background(), sess))

	ttl := mr.TTL(cacheKey(sess.SessionToken))
	assert.Equal(t, 24*time.Hour, ttl)
}

func TestCachedStoreNeverServesExpiredEntries(t *testing.T) {
	cached, _, mr, now := newCachedFixture(t)
	sess := testSession(now)
	require.NoError(t, cached.Create(context.Background(), sess))

	// Simulate clock skew: the entry is still in redis but the session is
	// past expiry by the gateway's clock.
	cached.clock = func() time.Time { return now.Add(25 * time.Hour) }

	_, err := cached.FindByToken(context.Background(), sess.SessionToken)
	require.Error(t, err)
	assert.False(t, mr.Exists(cacheKey(sess.SessionToken)))
}

func TestCachedStoreRepopulatesOnMiss(t *testing.T) {
	cached, durable, mr, now := newCachedFixture(t)
	sess := testSession(now)
	require.NoError(t, durable.Create(context.Background(), sess))
	require.False(t, mr.Exists(cacheKey(sess.SessionToken)))

	got, err := cached.FindByToken(context.Background(), sess.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.True(t, mr.Exists(cacheKey(sess.SessionToken)))
}

func TestCachedStoreRotateRetiresOldToken(t *testing.T) {
	cached, _, mr, now := newCachedFixture(t)
	sess := testSession(now)
	require.NoError(t, cached.Create(context.Background(), sess))

	rotated, err := cached.Rotate(context.Background(), Rotation{
		SessionID:       sess.ID,
		OldSessionToken: sess.SessionToken,
		OldRefreshToken: sess.RefreshToken,
		NewSessionToken: "token-rotated",
		NewRefreshToken: "refresh-rotated",
		Now:             now.Add(time.Hour),
		NewExpiresAt:    now.Add(25 * time.Hour),
	})
	require.NoError(t, err)

	assert.False(t, mr.Exists(cacheKey(sess.SessionToken)))
	assert.True(t, mr.Exists(cacheKey(rotated.SessionToken)))
}

func TestCachedStoreDeleteEvictsCacheEntry(t *testing.T) {
	cached, _, mr, now := newCachedFixture(t)
	sess := testSession(now)
	require.NoError(t, cached.Create(context.Background(), sess))

	require.NoError(t, cached.Delete(context.Background(), sess.SessionToken))
	assert.False(t, mr.Exists(cacheKey(sess.SessionToken)))

	_, err := cached.FindByToken(context.Background(), sess.SessionToken)
	assert.Error(t, err)
}

func TestCachedStoreSweepClearsCacheEntries(t *testing.T) {
	cached, _, mr, now := newCachedFixture(t)
	sess := testSession(now)
	require.NoError(t, cached.Create(context.Background(), sess))

	tokens, err := cached.DeleteExpired(context.Background(), now.Add(25*time.Hour))
	require.NoError(t, err)
	require.Equal(t, []string{sess.SessionToken}, tokens)
	assert.False(t, mr.Exists(cacheKey(sess.SessionToken)))
}

func TestCachedStoreDegradesWhenRedisIsDown(t *testing.T) {
	cached, durable, mr, now := newCachedFixture(t)
	sess := testSession(now)
	require.NoError(t, durable.Create(context.Background(), sess))

	mr.Close()

	got, err := cached.FindByToken(context.Background(), sess.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}
