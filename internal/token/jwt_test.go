package token

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "talentgate/pkg/domain-errors"
)

func newTestCodec(ttl time.Duration) *Codec {
	return NewCodec("test-signing-key", "talentgate", "talentgate-api", ttl)
}

func TestCodec_IssueAndVerify(t *testing.T) {
	codec := newTestCodec(time.Hour)
	userID := uuid.New()
	sessionID := uuid.New()

	signed, err := codec.Issue(userID, "jo@example.com", "employee", sessionID, time.Now())
	require.NoError(t, err)

	claims, err := codec.Verify(signed)
	require.NoError(t, err)

	gotUser, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, gotUser)

	gotSession, err := claims.Session()
	require.NoError(t, err)
	assert.Equal(t, sessionID, gotSession)

	assert.Equal(t, "jo@example.com", claims.Email)
	assert.Equal(t, "employee", claims.Role)
	assert.Equal(t, "talentgate", claims.Issuer)
}

func TestCodec_RejectsExpiredToken(t *testing.T) {
	codec := newTestCodec(time.Minute)

	signed, err := codec.Issue(uuid.New(), "jo@example.com", "employee", uuid.New(),
		time.Now().Add(-2*time.Minute))
	require.NoError(t, err)

	_, err = codec.Verify(signed)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Equal(t, dErrors.ReasonInvalidToken, dErrors.ReasonOf(err))
}

func TestCodec_RejectsForeignSignature(t *testing.T) {
	codec := newTestCodec(time.Hour)
	other := NewCodec("different-key", "talentgate", "talentgate-api", time.Hour)

	signed, err := other.Issue(uuid.New(), "jo@example.com", "employee", uuid.New(), time.Now())
	require.NoError(t, err)

	_, err = codec.Verify(signed)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestCodec_RejectsWrongIssuerAndAudience(t *testing.T) {
	now := time.Now()

	wrongIssuer := NewCodec("test-signing-key", "someone-else", "talentgate-api", time.Hour)
	signed, err := wrongIssuer.Issue(uuid.New(), "jo@example.com", "employee", uuid.New(), now)
	require.NoError(t, err)
	_, err = newTestCodec(time.Hour).Verify(signed)
	assert.Error(t, err)

	wrongAudience := NewCodec("test-signing-key", "talentgate", "other-api", time.Hour)
	signed, err = wrongAudience.Issue(uuid.New(), "jo@example.com", "employee", uuid.New(), now)
	require.NoError(t, err)
	_, err = newTestCodec(time.Hour).Verify(signed)
	assert.Error(t, err)
}

func TestCodec_RejectsGarbage(t *testing.T) {
	_, err := newTestCodec(time.Hour).Verify("not-a-token")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
