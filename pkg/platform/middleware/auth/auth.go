// Package auth is the authentication middleware: it turns a bearer token or
// session cookie into a verified identity in the request context. A valid
// signature alone never admits a request; the session behind the token must
// still be alive and the account still active.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"talentgate/internal/audit"
	"talentgate/internal/authz"
	"talentgate/internal/identity"
	"talentgate/internal/platform/metrics"
	"talentgate/internal/session"
	"talentgate/internal/token"
	dErrors "talentgate/pkg/domain-errors"
	"talentgate/pkg/platform/httperr"
	"talentgate/pkg/requestcontext"
)

// SessionCookie is the cookie carrying the signed session token.
const SessionCookie = "accessToken"

// SecurityAuditor records authentication failures as security events.
type SecurityAuditor interface {
	Security(ctx context.Context, operation, reason string, severity audit.Severity)
}

// Middleware authenticates requests against the token codec and the session
// store.
type Middleware struct {
	codec      *token.Codec
	sessions   *session.Service
	identities identity.Store
	security   SecurityAuditor
	errors     *httperr.Writer
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures optional middleware collaborators.
type Option func(*Middleware)

// WithMetrics attaches gateway metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mw *Middleware) { mw.metrics = m }
}

func NewMiddleware(
	codec *token.Codec,
	sessions *session.Service,
	identities identity.Store,
	security SecurityAuditor,
	errWriter *httperr.Writer,
	logger *slog.Logger,
	opts ...Option,
) *Middleware {
	mw := &Middleware{
		codec:      codec,
		sessions:   sessions,
		identities: identities,
		security:   security,
		errors:     errWriter,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(mw)
	}
	return mw
}

// Authenticate rejects requests without a live, matching session. On success
// the caller's identity snapshot is attached to the context and the session's
// activity timestamp is touched best-effort.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rawToken := extractToken(r)
		if rawToken == "" {
			m.reject(w, r, "missing_token",
				dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidToken, "authentication required"))
			return
		}

		claims, err := m.codec.Verify(rawToken)
		if err != nil {
			m.reject(w, r, "invalid_token", err)
			return
		}

		// The token may verify while the session behind it is revoked or
		// expired; the store is authoritative.
		sess, err := m.sessions.Fetch(ctx, rawToken)
		if err != nil {
			m.reject(w, r, "dead_session", err)
			return
		}

		// A forged or mixed-up token bound to a different session never
		// passes, even if both verify individually.
		claimedSession, err := claims.Session()
		if err != nil || claimedSession != sess.ID {
			m.reject(w, r, "session_mismatch",
				dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidSession, "session mismatch"))
			return
		}

		userID, err := claims.UserID()
		if err != nil || userID != sess.UserID {
			m.reject(w, r, "subject_mismatch",
				dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidSession, "session mismatch"))
			return
		}

		ident, err := m.identities.FindByID(ctx, userID)
		if err != nil {
			m.reject(w, r, "unknown_identity",
				dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidSession, "invalid session"))
			return
		}
		if !ident.CanAuthenticate() {
			m.reject(w, r, "account_disabled",
				dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonAccountDisabled, "account is not active"))
			return
		}

		ctx = requestcontext.WithAuth(ctx, requestcontext.Auth{
			UserID:       ident.ID,
			Email:        ident.Email,
			Role:         ident.Role,
			Permissions:  authz.PermissionStrings(authz.Role(ident.Role)),
			SessionID:    sess.ID,
			SessionToken: rawToken,
		})

		m.sessions.Touch(ctx, rawToken)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, cause string, err error) {
	ctx := r.Context()
	m.logger.WarnContext(ctx, "authentication rejected",
		"path", r.URL.Path,
		"cause", cause,
	)
	m.security.Security(ctx, "authenticate", cause, audit.SeverityWarning)
	if m.metrics != nil {
		m.metrics.AuthFailuresTotal.WithLabelValues(cause).Inc()
	}
	m.errors.Write(w, r, err)
}

// extractToken prefers the session cookie and falls back to a bearer header
// for non-browser clients.
func extractToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
