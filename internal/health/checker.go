// Package health probes the gateway's dependencies and serves the liveness
// and readiness endpoints. Probe results are cached briefly so health
// polling cannot stampede the dependencies.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Check probes one dependency. A nil return means healthy.
type Check func(ctx context.Context) error

// Status values reported per dependency and overall.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckResult is one dependency's probe outcome.
type CheckResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Report is the aggregate health snapshot.
type Report struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Healthy reports whether every dependency probe passed.
func (r Report) Healthy() bool { return r.Status == StatusHealthy }

// HTTPCheck probes a downstream service over HTTP. Any response short of a
// server error counts as reachable; transport failures and 5xx answers do
// not.
func HTTPCheck(client *http.Client, rawURL string) Check {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil
	}
}

type registeredCheck struct {
	name     string
	check    Check
	critical bool
}

// Checker fans probes out concurrently and caches the aggregate result.
type Checker struct {
	cacheTTL     time.Duration
	checkTimeout time.Duration
	clock        func() time.Time

	mu       sync.Mutex
	checks   []registeredCheck
	cached   Report
	cachedAt time.Time
}

func NewChecker(cacheTTL, checkTimeout time.Duration) *Checker {
	return &Checker{
		cacheTTL:     cacheTTL,
		checkTimeout: checkTimeout,
		clock:        time.Now,
	}
}

// Register adds a dependency probe. Critical failures make the gateway
// unready; non-critical ones only degrade the report.
func (c *Checker) Register(name string, critical bool, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, registeredCheck{name: name, check: check, critical: critical})
}

// Report returns the current health snapshot, reusing a cached one while it
// is fresh.
func (c *Checker) Report(ctx context.Context) Report {
	c.mu.Lock()
	if !c.cachedAt.IsZero() && c.clock().Sub(c.cachedAt) < c.cacheTTL {
		report := c.cached
		c.mu.Unlock()
		return report
	}
	checks := make([]registeredCheck, len(c.checks))
	copy(checks, c.checks)
	c.mu.Unlock()

	report := c.probe(ctx, checks)

	c.mu.Lock()
	c.cached = report
	c.cachedAt = c.clock()
	c.mu.Unlock()
	return report
}

func (c *Checker) probe(ctx context.Context, checks []registeredCheck) Report {
	report := Report{
		Status:    StatusHealthy,
		Timestamp: c.clock(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, rc := range checks {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, c.checkTimeout)
			defer cancel()

			start := c.clock()
			err := rc.check(probeCtx)
			latency := time.Since(start).Milliseconds()

			result := CheckResult{Status: StatusHealthy, LatencyMS: latency}
			if err != nil {
				result.Status = StatusUnhealthy
				result.Error = err.Error()
			}

			mu.Lock()
			report.Checks[rc.name] = result
			if err != nil {
				if rc.critical {
					report.Status = StatusUnhealthy
				} else if report.Status == StatusHealthy {
					report.Status = StatusDegraded
				}
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return report
}
