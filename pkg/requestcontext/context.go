// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets values; services and handlers read them. The authenticated
// identity travels as an explicit Auth value rather than a mutable field on
// the request, so every consumer sees the same immutable snapshot and tests
// can inject one with WithAuth.
package requestcontext

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Auth is the authenticated caller's identity snapshot, built once by the
// authentication middleware after token verification and session lookup.
type Auth struct {
	UserID       uuid.UUID
	Email        string
	Role         string
	Permissions  []string
	SessionID    uuid.UUID
	SessionToken string
}

// HasPermission reports membership in the caller's resolved permission set.
func (a Auth) HasPermission(permission string) bool {
	for _, p := range a.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Context key types (unexported for encapsulation).
type (
	authKey          struct{}
	correlationIDKey struct{}
	clientIPKey      struct{}
	userAgentKey     struct{}
	requestTimeKey   struct{}
)

// -----------------------------------------------------------------------------
// Auth context
// -----------------------------------------------------------------------------

// AuthFrom retrieves the authenticated caller, if any.
func AuthFrom(ctx context.Context) (Auth, bool) {
	a, ok := ctx.Value(authKey{}).(Auth)
	return a, ok
}

// WithAuth injects an authenticated caller into the context.
func WithAuth(ctx context.Context, a Auth) context.Context {
	return context.WithValue(ctx, authKey{}, a)
}

// UserID retrieves the authenticated user ID, or uuid.Nil when anonymous.
func UserID(ctx context.Context) uuid.UUID {
	if a, ok := AuthFrom(ctx); ok {
		return a.UserID
	}
	return uuid.Nil
}

// SessionID retrieves the session ID, or uuid.Nil when anonymous.
func SessionID(ctx context.Context) uuid.UUID {
	if a, ok := AuthFrom(ctx); ok {
		return a.SessionID
	}
	return uuid.Nil
}

// -----------------------------------------------------------------------------
// Correlation
// -----------------------------------------------------------------------------

// CorrelationID retrieves the request correlation ID.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID injects a correlation ID into the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context. Falls back to
// time.Now() for non-HTTP contexts (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context so all operations within a
// request share one "now".
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
