// Command server runs the talentgate API gateway: OIDC login, session
// lifecycle, RBAC enforcement, downstream proxying, and the compliance audit
// trail.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"talentgate/internal/audit"
	"talentgate/internal/authz"
	"talentgate/internal/health"
	"talentgate/internal/identity"
	"talentgate/internal/oidc"
	"talentgate/internal/platform/config"
	"talentgate/internal/platform/httpserver"
	"talentgate/internal/platform/logger"
	"talentgate/internal/platform/metrics"
	"talentgate/internal/platform/postgres"
	platformredis "talentgate/internal/platform/redis"
	"talentgate/internal/proxy"
	"talentgate/internal/session"
	"talentgate/internal/token"
	httptransport "talentgate/internal/transport/http"
	"talentgate/pkg/platform/httperr"
	authmw "talentgate/pkg/platform/middleware/auth"
)

const version = "1.0.0"

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Platform dependencies.
	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	cache, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	if cache != nil {
		defer cache.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Audit trail.
	auditStore := audit.NewPostgres(db)
	recorder := audit.NewRecorder(auditStore, cfg.Audit.QueueSize, log,
		audit.WithRetention(time.Duration(cfg.Audit.RetentionDays)*24*time.Hour, cfg.Audit.PurgeInterval),
		audit.WithMetrics(m),
	)

	// Identity, tokens, sessions.
	identities := identity.NewPostgres(db)
	codec := token.NewCodec(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.TTL)

	var sessionRepo session.Repository = session.NewPostgresStore(db)
	if cache != nil {
		sessionRepo = session.NewCachedStore(sessionRepo, cache, log)
	}
	sessions := session.NewService(
		sessionRepo, identities, codec, recorder, log,
		cfg.Session.TTL, cfg.Session.MaxPerUser, cfg.Session.SweepInterval,
		session.WithMetrics(m),
		session.WithSuspiciousThresholds(cfg.Session.SuspiciousRate, cfg.Session.SuspiciousIPs),
	)

	// Login flow.
	provider, err := oidc.NewProvider(ctx, cfg.OIDC)
	if err != nil {
		return fmt.Errorf("initializing OIDC provider: %w", err)
	}
	var attempts oidc.AttemptStore = oidc.NewMemoryAttemptStore()
	if cache != nil {
		attempts = oidc.NewRedisAttemptStore(cache)
	}

	// Proxying.
	breakers := proxy.NewRegistry(cfg.Proxy.MaxFailures, cfg.Proxy.ResetTimeout,
		proxy.WithTransitionHook(func(service string, state proxy.BreakerState) {
			m.BreakerTransitions.WithLabelValues(service, string(state)).Inc()
			log.Warn("circuit breaker transition", "service", service, "state", string(state))
		}))
	routes, err := proxy.BuildRoutes(cfg.Proxy)
	if err != nil {
		return fmt.Errorf("building route table: %w", err)
	}

	errWriter := httperr.NewWriter(cfg.Production(), log)
	forwarder := proxy.NewForwarder(breakers, errWriter, log, proxy.WithForwarderMetrics(m))

	// Health probes: postgres is critical; redis and the downstream services
	// degrade only.
	checker := health.NewChecker(cfg.Health.CacheTTL, cfg.Health.CheckTimeout)
	checker.Register("postgres", true, postgres.Health(db))
	if cache != nil {
		checker.Register("redis", false, cache.Health)
	}
	probeClient := &http.Client{Timeout: cfg.Health.CheckTimeout}
	for name, base := range cfg.Proxy.Services {
		checker.Register(name, false, health.HTTPCheck(probeClient, base))
	}

	router := httptransport.NewRouter(httptransport.RouterDeps{
		AuthHandler: httptransport.NewAuthHandler(
			provider, attempts, identities, sessions, recorder, errWriter, log,
			httptransport.AuthHandlerConfig{
				LoginStateTTL: cfg.Session.LoginStateTTL,
				SessionTTL:    cfg.Session.TTL,
				CookieDomain:  cfg.Session.CookieDomain,
				Production:    cfg.Production(),
			},
		),
		HealthHandler:   health.NewHandler(checker, breakers, version),
		Authenticate:    authmw.NewMiddleware(codec, sessions, identities, recorder, errWriter, log, authmw.WithMetrics(m)),
		Guard:           authz.NewGuard(recorder, errWriter, log),
		Forwarder:       forwarder,
		Routes:          routes,
		Audit:           recorder,
		Classifier:      audit.DefaultClassifier(),
		MetricsRegistry: registry,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("gateway listening", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Background workers run until shutdown; their context errors are not
	// failures.
	g.Go(func() error { return ignoreCancel(recorder.Run(gctx)) })
	g.Go(func() error { return ignoreCancel(recorder.RunRetention(gctx)) })
	g.Go(func() error { return ignoreCancel(sessions.RunSweeper(gctx)) })

	return g.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
