// Package config builds the gateway configuration from environment variables
// so main stays lean. Defaults are development-friendly; production deploys
// override everything through the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full gateway configuration, loaded once at startup.
type Config struct {
	Addr        string
	Environment string // "development" or "production"

	JWT      JWTConfig
	Session  SessionConfig
	OIDC     OIDCConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Proxy    ProxyConfig
	Audit    AuditConfig
	Health   HealthConfig
}

// Production reports whether the gateway runs with production hardening
// (secure cookies, suppressed error detail).
func (c Config) Production() bool { return c.Environment == "production" }

// JWTConfig configures the session token codec.
type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
	TTL        time.Duration
}

// SessionConfig governs session lifecycle.
type SessionConfig struct {
	TTL            time.Duration // refreshable session window
	MaxPerUser     int           // concurrent session limit, oldest evicted beyond this
	SweepInterval  time.Duration // expired-session purge cadence
	CookieDomain   string
	LoginStateTTL  time.Duration // how long an in-flight login attempt is honored
	SuspiciousIPs  int           // distinct IPs threshold for suspicious activity
	SuspiciousRate int           // sessions-per-hour threshold for suspicious activity
}

// OIDCConfig points at the external identity provider.
type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Timeout      time.Duration
}

// RedisConfig configures the look-aside session cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the durable store.
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// ProxyConfig configures downstream routing and circuit breaking.
type ProxyConfig struct {
	Services        map[string]string        // service name -> base URL
	ServiceTimeouts map[string]time.Duration // per-service override, 0 means DefaultTimeout
	DefaultTimeout  time.Duration
	MaxFailures     int
	ResetTimeout    time.Duration
}

// AuditConfig governs the audit trail.
type AuditConfig struct {
	RetentionDays int
	QueueSize     int
	PurgeInterval time.Duration
}

// HealthConfig bounds dependency health-check load.
type HealthConfig struct {
	CacheTTL     time.Duration
	CheckTimeout time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:        envString("GATEWAY_ADDR", ":8080"),
		Environment: envString("GATEWAY_ENV", "development"),
		JWT: JWTConfig{
			// Development-only default; production must override.
			SigningKey: envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:     envString("JWT_ISSUER", "talentgate"),
			Audience:   envString("JWT_AUDIENCE", "talentgate-api"),
			TTL:        envDuration("JWT_TTL", time.Hour),
		},
		Session: SessionConfig{
			TTL:            envDuration("SESSION_TTL", 24*time.Hour),
			MaxPerUser:     envInt("SESSION_MAX_PER_USER", 5),
			SweepInterval:  envDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
			CookieDomain:   envString("SESSION_COOKIE_DOMAIN", ""),
			LoginStateTTL:  envDuration("LOGIN_STATE_TTL", 10*time.Minute),
			SuspiciousIPs:  envInt("SESSION_SUSPICIOUS_IPS", 2),
			SuspiciousRate: envInt("SESSION_SUSPICIOUS_RATE", 3),
		},
		OIDC: OIDCConfig{
			Issuer:       envString("OIDC_ISSUER", ""),
			ClientID:     envString("OIDC_CLIENT_ID", ""),
			ClientSecret: envString("OIDC_CLIENT_SECRET", ""),
			RedirectURL:  envString("OIDC_REDIRECT_URL", "http://localhost:8080/auth/callback"),
			Scopes:       envList("OIDC_SCOPES", []string{"openid", "profile", "email"}),
			Timeout:      envDuration("OIDC_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:          envString("REDIS_URL", ""),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:          envString("POSTGRES_DSN", "postgres://localhost/talentgate?sslmode=disable"),
			MaxOpenConns: envInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("POSTGRES_MAX_IDLE_CONNS", 5),
		},
		Proxy: ProxyConfig{
			Services: map[string]string{
				"profile":      envString("SVC_PROFILE_URL", "http://localhost:8101"),
				"skills":       envString("SVC_SKILLS_URL", "http://localhost:8102"),
				"matching":     envString("SVC_MATCHING_URL", "http://localhost:8103"),
				"analytics":    envString("SVC_ANALYTICS_URL", "http://localhost:8104"),
				"gamification": envString("SVC_GAMIFICATION_URL", "http://localhost:8105"),
				"admin":        envString("SVC_ADMIN_URL", "http://localhost:8106"),
			},
			ServiceTimeouts: map[string]time.Duration{
				"profile":      envDuration("SVC_PROFILE_TIMEOUT", 0),
				"skills":       envDuration("SVC_SKILLS_TIMEOUT", 0),
				"matching":     envDuration("SVC_MATCHING_TIMEOUT", 0),
				"analytics":    envDuration("SVC_ANALYTICS_TIMEOUT", 0),
				"gamification": envDuration("SVC_GAMIFICATION_TIMEOUT", 0),
				"admin":        envDuration("SVC_ADMIN_TIMEOUT", 0),
			},
			DefaultTimeout: envDuration("PROXY_TIMEOUT", 30*time.Second),
			MaxFailures:    envInt("BREAKER_MAX_FAILURES", 5),
			ResetTimeout:   envDuration("BREAKER_RESET_TIMEOUT", 60*time.Second),
		},
		Audit: AuditConfig{
			RetentionDays: envInt("AUDIT_RETENTION_DAYS", 365),
			QueueSize:     envInt("AUDIT_QUEUE_SIZE", 1024),
			PurgeInterval: envDuration("AUDIT_PURGE_INTERVAL", 24*time.Hour),
		},
		Health: HealthConfig{
			CacheTTL:     envDuration("HEALTH_CACHE_TTL", 30*time.Second),
			CheckTimeout: envDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
