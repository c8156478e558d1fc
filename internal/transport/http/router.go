// Package http assembles the gateway's public HTTP surface: the chi router,
// the middleware chain, the auth endpoints, and the proxied API routes.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"talentgate/internal/audit"
	"talentgate/internal/authz"
	"talentgate/internal/health"
	"talentgate/internal/proxy"
	authmw "talentgate/pkg/platform/middleware/auth"
	"talentgate/pkg/platform/middleware/metadata"
	"talentgate/pkg/platform/middleware/requestid"
	"talentgate/pkg/platform/middleware/requesttime"
)

// RouterDeps carries everything the router wires together.
type RouterDeps struct {
	AuthHandler   *AuthHandler
	HealthHandler *health.Handler
	Authenticate  *authmw.Middleware
	Guard         *authz.Guard
	Forwarder     *proxy.Forwarder
	Routes        []proxy.Route
	Audit         *audit.Recorder
	Classifier    audit.Classifier

	MetricsRegistry *prometheus.Registry
}

// NewRouter builds the gateway's handler tree.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(audit.Middleware(deps.Audit, deps.Classifier))

	// Operational endpoints sit outside authentication.
	r.Get("/health", deps.HealthHandler.Health)
	r.Get("/health/ready", deps.HealthHandler.Ready)
	r.Get("/health/live", deps.HealthHandler.Live)
	if deps.MetricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			deps.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", deps.AuthHandler.Login)
		r.Get("/callback", deps.AuthHandler.Callback)
		r.Post("/refresh", deps.AuthHandler.Refresh)
		r.Post("/logout", deps.AuthHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(deps.Authenticate.Authenticate)
			r.Get("/me", deps.AuthHandler.Me)
			r.Get("/sessions", deps.AuthHandler.Sessions)
		})
	})

	// Proxied API routes: authenticate, then the route's access policy,
	// then forward.
	for _, route := range deps.Routes {
		r.Route(route.PathPrefix, func(rr chi.Router) {
			if route.AuthRequired {
				rr.Use(deps.Authenticate.Authenticate)
			}
			for _, perm := range route.RequiredPermissions {
				rr.Use(deps.Guard.RequirePermission(perm))
			}
			if len(route.RequiredRoles) > 0 {
				rr.Use(deps.Guard.RequireRole(route.RequiredRoles...))
			}
			rr.Handle("/*", deps.Forwarder.Handler(route))
			rr.Handle("/", deps.Forwarder.Handler(route))
		})
	}

	return r
}
