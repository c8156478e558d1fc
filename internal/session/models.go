// Package session tracks login sessions: one row per login, a redis
// look-aside cache in front of the durable store, and a lifecycle service
// enforcing concurrent-session limits, single-use refresh rotation, and
// expiry sweeps.
package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
)

// Session is the durable record of one login. The session token is the only
// credential the verifier accepts; a session past ExpiresAt is treated as
// nonexistent regardless of cache state.
type Session struct {
	ID                     uuid.UUID  `json:"id"`
	UserID                 uuid.UUID  `json:"user_id"`
	SessionToken           string     `json:"session_token"`
	RefreshToken           string     `json:"refresh_token"`
	CreatedAt              time.Time  `json:"created_at"`
	LastActivityAt         time.Time  `json:"last_activity_at"`
	ExpiresAt              time.Time  `json:"expires_at"`
	IPAddress              string     `json:"ip_address"`
	UserAgent              string     `json:"user_agent"`
	ProviderIDToken        string     `json:"provider_id_token,omitempty"`
	ProviderAccessToken    string     `json:"provider_access_token,omitempty"`
	ProviderTokenExpiresAt *time.Time `json:"provider_token_expires_at,omitempty"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// TTLRemaining returns how long the session may still be cached.
func (s *Session) TTLRemaining(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

// ProviderTokens carries the identity provider's tokens captured at login.
type ProviderTokens struct {
	IDToken     string
	AccessToken string
	ExpiresAt   *time.Time
}

// Summary is the user-facing view of a session for device management.
type Summary struct {
	SessionID    uuid.UUID `json:"session_id"`
	Device       string    `json:"device"`
	IPAddress    string    `json:"ip_address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	IsCurrent    bool      `json:"is_current"`
}

// deviceLabel renders a human-readable device name from the session's
// user agent.
func deviceLabel(ua string) string {
	if ua == "" {
		return "Unknown device"
	}
	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	os := parsed.OS()
	switch {
	case browser != "" && os != "":
		return browser + " on " + os
	case browser != "":
		return browser
	case os != "":
		return os
	default:
		return "Unknown device"
	}
}
