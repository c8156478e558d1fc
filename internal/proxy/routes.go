package proxy

import (
	"fmt"
	"net/url"
	"time"

	"talentgate/internal/authz"
	"talentgate/internal/platform/config"
)

// Route binds a public path prefix to a downstream service with its access
// policy. The route table is static configuration assembled at startup.
type Route struct {
	PathPrefix          string
	Service             string
	Target              *url.URL
	AuthRequired        bool
	RequiredPermissions []authz.Permission
	RequiredRoles       []authz.Role
	Timeout             time.Duration
}

type routeSpec struct {
	prefix      string
	service     string
	permissions []authz.Permission
	roles       []authz.Role
}

// routeTable is the gateway's public API surface. Order matters: the first
// matching prefix wins, so more specific prefixes come first.
var routeTable = []routeSpec{
	{prefix: "/api/profile", service: "profile",
		permissions: []authz.Permission{authz.PermProfileRead}},
	{prefix: "/api/employees", service: "profile",
		permissions: []authz.Permission{authz.PermEmployeesRead}},
	{prefix: "/api/skills", service: "skills",
		permissions: []authz.Permission{authz.PermSkillsRead}},
	{prefix: "/api/matching", service: "matching",
		permissions: []authz.Permission{authz.PermMatchesRead}},
	{prefix: "/api/vacancies", service: "matching",
		permissions: []authz.Permission{authz.PermVacanciesRead}},
	{prefix: "/api/analytics", service: "analytics",
		permissions: []authz.Permission{authz.PermAnalyticsRead}},
	{prefix: "/api/gamification", service: "gamification",
		permissions: []authz.Permission{authz.PermGamificationRead}},
	{prefix: "/api/admin", service: "admin",
		roles: []authz.Role{authz.RoleAdmin, authz.RoleSuperAdmin}},
}

// BuildRoutes resolves the route table against the configured service base
// URLs. Unknown services fail loudly at startup instead of 502ing at runtime.
func BuildRoutes(cfg config.ProxyConfig) ([]Route, error) {
	routes := make([]Route, 0, len(routeTable))
	for _, spec := range routeTable {
		base, ok := cfg.Services[spec.service]
		if !ok {
			return nil, fmt.Errorf("route %s references unconfigured service %q", spec.prefix, spec.service)
		}
		target, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parsing %s base URL: %w", spec.service, err)
		}
		timeout := cfg.DefaultTimeout
		if t := cfg.ServiceTimeouts[spec.service]; t > 0 {
			timeout = t
		}
		routes = append(routes, Route{
			PathPrefix:          spec.prefix,
			Service:             spec.service,
			Target:              target,
			AuthRequired:        true,
			RequiredPermissions: spec.permissions,
			RequiredRoles:       spec.roles,
			Timeout:             timeout,
		})
	}
	return routes, nil
}
