package oidc

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentgate/pkg/platform/sentinel"
)

func TestRedisAttemptStoreConsumeIsOneShot(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisAttemptStore(client)
	attempt := Attempt{
		State:     "state-abc",
		Verifier:  "verifier-xyz",
		ReturnURL: "/dashboard",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Save(context.Background(), attempt, 10*time.Minute))

	got, err := store.Consume(context.Background(), "state-abc")
	require.NoError(t, err)
	assert.Equal(t, attempt.Verifier, got.Verifier)
	assert.Equal(t, attempt.ReturnURL, got.ReturnURL)

	_, err = store.Consume(context.Background(), "state-abc")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestRedisAttemptStoreExpiresWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisAttemptStore(client)
	require.NoError(t, store.Save(context.Background(), Attempt{State: "s", Verifier: "v"}, 10*time.Minute))

	mr.FastForward(11 * time.Minute)

	_, err := store.Consume(context.Background(), "s")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestRedisAttemptStoreRejectsDuplicateState(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisAttemptStore(client)
	require.NoError(t, store.Save(context.Background(), Attempt{State: "dup", Verifier: "v1"}, time.Minute))
	assert.ErrorIs(t, store.Save(context.Background(), Attempt{State: "dup", Verifier: "v2"}, time.Minute), sentinel.ErrConflict)
}

func TestMemoryAttemptStoreConsumeIsOneShot(t *testing.T) {
	store := NewMemoryAttemptStore()
	require.NoError(t, store.Save(context.Background(), Attempt{State: "s", Verifier: "v"}, time.Minute))

	got, err := store.Consume(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Verifier)

	_, err = store.Consume(context.Background(), "s")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryAttemptStoreHonorsTTL(t *testing.T) {
	now := time.Now()
	store := NewMemoryAttemptStore()
	store.clock = func() time.Time { return now }

	require.NoError(t, store.Save(context.Background(), Attempt{State: "s", Verifier: "v"}, time.Minute))
	now = now.Add(2 * time.Minute)

	_, err := store.Consume(context.Background(), "s")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestAuthorizationRequestsAreUnique(t *testing.T) {
	// No network access needed: URL construction is pure once the endpoint
	// is known.
	p := &Provider{}
	p.oauth.ClientID = "talentgate"
	p.oauth.Endpoint.AuthURL = "https://idp.example.com/authorize"
	p.oauth.RedirectURL = "https://gateway.example.com/auth/callback"

	first, err := p.BuildAuthorizationRequest()
	require.NoError(t, err)
	second, err := p.BuildAuthorizationRequest()
	require.NoError(t, err)

	assert.NotEqual(t, first.State, second.State)
	assert.NotEqual(t, first.Verifier, second.Verifier)
	assert.Contains(t, first.URL, "code_challenge_method=S256")
	assert.Contains(t, first.URL, "state="+first.State)
}
