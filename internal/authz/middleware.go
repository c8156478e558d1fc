package authz

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"talentgate/internal/audit"
	dErrors "talentgate/pkg/domain-errors"
	"talentgate/pkg/platform/httperr"
	"talentgate/pkg/requestcontext"
)

// DenialAuditor records authorization denials in the audit trail. Denials
// are never silently 403'd.
type DenialAuditor interface {
	Denied(ctx context.Context, operation, reason string, severity audit.Severity)
}

// Guard builds authorization middlewares. Every check fails closed: a missing
// identity context is an authentication failure, a present identity lacking
// the grant is an authorization failure.
type Guard struct {
	auditor DenialAuditor
	errors  *httperr.Writer
	logger  *slog.Logger
}

func NewGuard(auditor DenialAuditor, errors *httperr.Writer, logger *slog.Logger) *Guard {
	return &Guard{auditor: auditor, errors: errors, logger: logger}
}

// RequirePermission admits callers whose role's static permission set
// contains permission.
func (g *Guard) RequirePermission(permission Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := requestcontext.AuthFrom(r.Context())
			if !ok {
				g.unauthenticated(w, r)
				return
			}
			if !HasPermission(Role(auth.Role), permission) {
				g.deny(w, r, auth.Role, dErrors.ReasonInsufficientPermissions,
					"missing permission: "+string(permission))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole admits callers whose role is in the allow-list.
func (g *Guard) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := requestcontext.AuthFrom(r.Context())
			if !ok {
				g.unauthenticated(w, r)
				return
			}
			if !roleAllowed(Role(auth.Role), roles) {
				g.deny(w, r, auth.Role, dErrors.ReasonInsufficientRole,
					"role not permitted for this resource")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnershipOrRole admits the owner of the addressed resource (the URL
// parameter must equal the caller's user id) or any caller in the role
// allow-list.
func (g *Guard) RequireOwnershipOrRole(ownerParam string, roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := requestcontext.AuthFrom(r.Context())
			if !ok {
				g.unauthenticated(w, r)
				return
			}
			if roleAllowed(Role(auth.Role), roles) {
				next.ServeHTTP(w, r)
				return
			}
			ownerID, err := uuid.Parse(chi.URLParam(r, ownerParam))
			if err == nil && ownerID == auth.UserID {
				next.ServeHTTP(w, r)
				return
			}
			g.deny(w, r, auth.Role, dErrors.ReasonNotOwner,
				"not the resource owner")
		})
	}
}

func roleAllowed(role Role, allowed []Role) bool {
	for _, a := range allowed {
		if a == role {
			return true
		}
	}
	return false
}

func (g *Guard) unauthenticated(w http.ResponseWriter, r *http.Request) {
	g.logger.WarnContext(r.Context(), "authorization check without identity",
		"path", r.URL.Path,
	)
	g.errors.Write(w, r,
		dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidToken, "authentication required"))
}

func (g *Guard) deny(w http.ResponseWriter, r *http.Request, role, reason, message string) {
	ctx := r.Context()
	g.logger.WarnContext(ctx, "authorization denied",
		"path", r.URL.Path,
		"role", role,
		"reason", reason,
	)
	g.auditor.Denied(ctx, r.Method+" "+r.URL.Path, reason, audit.SeverityWarning)
	g.errors.Write(w, r, dErrors.NewReason(dErrors.CodeForbidden, reason, message))
}
