// Package token issues and verifies the signed session tokens that act as
// the gateway's bearer credential. Verification is a pure function of the
// signing key and the token; session liveness is checked separately because
// a valid signature alone is never sufficient.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "talentgate/pkg/domain-errors"
)

// Claims carried by every session token.
type Claims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Session parses the session_id claim.
func (c *Claims) Session() (uuid.UUID, error) {
	return uuid.Parse(c.SessionID)
}

// Codec signs and verifies session tokens.
type Codec struct {
	signingKey []byte
	issuer     string
	audience   string
	ttl        time.Duration
}

func NewCodec(signingKey, issuer, audience string, ttl time.Duration) *Codec {
	return &Codec{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
	}
}

// TTL returns the configured token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue produces a signed token binding the identity to a session.
func (c *Codec) Issue(userID uuid.UUID, email, role string, sessionID uuid.UUID, now time.Time) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:     email,
		Role:      role,
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    c.issuer,
			Audience:  []string{c.audience},
			ID:        uuid.NewString(),
		},
	})

	signed, err := newToken.SignedString(c.signingKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify checks signature, issuer, audience, and expiry, returning the
// decoded claims. All failures map to AuthenticationError.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return c.signingKey, nil
	},
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidToken, "token has expired")
		}
		return nil, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidToken, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidToken, "invalid token claims")
	}
	return claims, nil
}
