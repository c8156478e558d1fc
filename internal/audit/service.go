package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"talentgate/internal/platform/metrics"
	"talentgate/pkg/requestcontext"
)

// Recorder accepts audit events from the request path and hands them to a
// background worker. Recording never blocks and never returns an error: a
// full queue drops the event with a local log line, a failed store write is
// logged and swallowed.
type Recorder struct {
	store   Store
	inbox   chan Event
	logger  *slog.Logger
	metrics *metrics.Metrics

	retention     time.Duration
	purgeInterval time.Duration
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRetention overrides how long events are kept before the purge worker
// removes them.
func WithRetention(retention, purgeInterval time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.retention = retention
		r.purgeInterval = purgeInterval
	}
}

// WithMetrics attaches gateway metrics.
func WithMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

func NewRecorder(store Store, queueSize int, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	r := &Recorder{
		store:         store,
		inbox:         make(chan Event, queueSize),
		logger:        logger,
		retention:     365 * 24 * time.Hour,
		purgeInterval: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record enqueues an event, filling in identity and correlation fields from
// the context when the caller left them empty.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.CorrelationID == "" {
		event.CorrelationID = requestcontext.CorrelationID(ctx)
	}
	if event.IPAddress == "" {
		event.IPAddress = requestcontext.ClientIP(ctx)
	}
	if auth, ok := requestcontext.AuthFrom(ctx); ok {
		if event.UserID == uuid.Nil {
			event.UserID = auth.UserID
		}
		if event.UserRole == "" {
			event.UserRole = auth.Role
		}
	}

	// Redaction is unconditional; payloads never reach the store raw.
	event.Changes = SanitizeMap(event.Changes)
	event.Metadata = SanitizeMap(event.Metadata)

	select {
	case r.inbox <- event:
		if r.metrics != nil {
			r.metrics.AuditEventsTotal.WithLabelValues(string(event.EventType)).Inc()
		}
	default:
		if r.metrics != nil {
			r.metrics.AuditDroppedTotal.Inc()
		}
		r.logger.Warn("audit queue full, event dropped",
			"operation", event.Operation,
			"correlation_id", event.CorrelationID,
		)
	}
}

// Security records a security event (auth failures, evictions, suspicious
// activity) independent of the HTTP response.
func (r *Recorder) Security(ctx context.Context, operation, reason string, severity Severity) {
	r.Record(ctx, Event{
		EventType: TypeSecurity,
		Operation: operation,
		Success:   false,
		Severity:  severity,
		Metadata:  map[string]any{"reason": reason},
	})
}

// Denied records an authorization denial. Denials carry the authorization
// event type so compliance queries can separate them from broader security
// incidents.
func (r *Recorder) Denied(ctx context.Context, operation, reason string, severity Severity) {
	r.Record(ctx, Event{
		EventType: TypeAuthorization,
		Operation: operation,
		Success:   false,
		Severity:  severity,
		Metadata:  map[string]any{"reason": reason},
	})
}

// Run consumes the inbox and persists events until ctx is cancelled. Store
// failures are logged and swallowed; the remaining queue is drained on
// shutdown.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return ctx.Err()
		case event := <-r.inbox:
			r.persist(ctx, event)
		}
	}
}

func (r *Recorder) drain() {
	// Best-effort flush with a bounded budget so shutdown cannot hang.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event := <-r.inbox:
			r.persist(ctx, event)
		default:
			return
		}
	}
}

func (r *Recorder) persist(ctx context.Context, event Event) {
	if err := r.store.Append(ctx, event); err != nil {
		r.logger.Error("audit write failed",
			"error", err,
			"operation", event.Operation,
			"correlation_id", event.CorrelationID,
		)
	}
}

// RunRetention periodically purges events older than the retention window.
func (r *Recorder) RunRetention(ctx context.Context) error {
	ticker := time.NewTicker(r.purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-r.retention)
			purged, err := r.store.Purge(ctx, cutoff)
			if err != nil {
				r.logger.Error("audit retention purge failed", "error", err)
				continue
			}
			if purged > 0 {
				r.logger.Info("audit retention purge", "purged", purged, "cutoff", cutoff)
			}
		}
	}
}
