package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"talentgate/internal/platform/metrics"
	dErrors "talentgate/pkg/domain-errors"
	"talentgate/pkg/platform/httperr"
	"talentgate/pkg/requestcontext"
)

// Identity headers stamped onto every forwarded request. Downstream services
// trust these because only the gateway can reach them.
const (
	headerUserID          = "X-User-ID"
	headerUserRole        = "X-User-Role"
	headerSessionID       = "X-Session-ID"
	headerUserPermissions = "X-User-Permissions"
	headerCorrelationID   = "X-Correlation-ID"
	headerTimestamp       = "X-Request-Timestamp"
)

// hopByHopHeaders never cross the proxy, per RFC 9110.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"TE", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Forwarder relays requests to downstream services. Gateway credentials are
// stripped before forwarding; the verified identity travels in headers
// instead.
type Forwarder struct {
	breakers  *Registry
	errors    *httperr.Writer
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	transport http.RoundTripper
}

// ForwarderOption configures a Forwarder.
type ForwarderOption func(*Forwarder)

// WithForwarderMetrics attaches gateway metrics.
func WithForwarderMetrics(m *metrics.Metrics) ForwarderOption {
	return func(f *Forwarder) { f.metrics = m }
}

// WithTransport overrides the outbound transport, for tests.
func WithTransport(rt http.RoundTripper) ForwarderOption {
	return func(f *Forwarder) { f.transport = rt }
}

func NewForwarder(breakers *Registry, errWriter *httperr.Writer, logger *slog.Logger, opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		breakers:  breakers,
		errors:    errWriter,
		logger:    logger,
		tracer:    otel.Tracer("talentgate/proxy"),
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Handler returns the terminal handler for a route.
func (f *Forwarder) Handler(route Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.forward(w, r, route)
	})
}

func (f *Forwarder) forward(w http.ResponseWriter, r *http.Request, route Route) {
	start := time.Now()
	breaker := f.breakers.Get(route.Service)

	if err := breaker.Allow(); err != nil {
		f.observe(route.Service, http.StatusServiceUnavailable, start)
		f.errors.Write(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), route.Timeout)
	defer cancel()

	ctx, span := f.tracer.Start(ctx, "proxy.forward",
		trace.WithAttributes(
			attribute.String("proxy.service", route.Service),
			attribute.String("http.method", r.Method),
		))
	defer span.End()

	outReq, err := f.buildOutbound(ctx, r, route)
	if err != nil {
		f.observe(route.Service, http.StatusBadGateway, start)
		f.errors.Write(w, r, dErrors.Wrap(err, dErrors.CodeBadGateway, "building upstream request"))
		return
	}

	resp, err := f.transport.RoundTrip(outReq)
	if err != nil {
		f.handleTransportError(w, r, route, breaker, err, start)
		return
	}
	defer resp.Body.Close()

	// 5xx responses count against the breaker; the response itself is still
	// relayed untouched.
	if resp.StatusCode >= 500 {
		breaker.RecordFailure()
	} else {
		breaker.RecordSuccess()
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	f.observe(route.Service, resp.StatusCode, start)

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		f.logger.WarnContext(ctx, "relaying upstream body failed",
			"service", route.Service,
			"error", err,
		)
	}
}

// buildOutbound clones the inbound request for the upstream, rewriting the
// URL, stripping gateway credentials and hop-by-hop headers, and stamping
// identity headers.
func (f *Forwarder) buildOutbound(ctx context.Context, r *http.Request, route Route) (*http.Request, error) {
	target := *route.Target
	target.Path = singleJoin(route.Target.Path, r.URL.Path)
	target.RawQuery = r.URL.RawQuery

	outReq, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}
	outReq.Header = r.Header.Clone()
	outReq.ContentLength = r.ContentLength

	// Gateway credentials stay at the gateway.
	outReq.Header.Del("Authorization")
	outReq.Header.Del("Cookie")
	for _, h := range hopByHopHeaders {
		outReq.Header.Del(h)
	}

	if auth, ok := requestcontext.AuthFrom(ctx); ok {
		outReq.Header.Set(headerUserID, auth.UserID.String())
		outReq.Header.Set(headerUserRole, auth.Role)
		outReq.Header.Set(headerSessionID, auth.SessionID.String())
		if perms, err := json.Marshal(auth.Permissions); err == nil {
			outReq.Header.Set(headerUserPermissions, string(perms))
		}
	}
	outReq.Header.Set(headerCorrelationID, requestcontext.CorrelationID(ctx))
	outReq.Header.Set(headerTimestamp, requestcontext.Now(ctx).UTC().Format(time.RFC3339))

	if ip := requestcontext.ClientIP(ctx); ip != "" {
		prior := r.Header.Get("X-Forwarded-For")
		if prior != "" {
			outReq.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			outReq.Header.Set("X-Forwarded-For", ip)
		}
	}
	return outReq, nil
}

// handleTransportError classifies connection-level failures into gateway
// errors. A client that went away says nothing about downstream health and
// never counts as a breaker failure.
func (f *Forwarder) handleTransportError(w http.ResponseWriter, r *http.Request, route Route, breaker *Breaker, err error, start time.Time) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		// Not a downstream verdict either way. If this was the half-open
		// trial, free the slot so the breaker is not pinned forever.
		breaker.CancelTrial()
		f.observe(route.Service, 499, start)
		return
	}

	breaker.RecordFailure()

	var code dErrors.Code
	var message string
	switch {
	case isTimeout(err):
		code, message = dErrors.CodeTimeout, "upstream request timed out: "+route.Service
	case errors.Is(err, syscall.ECONNREFUSED):
		code, message = dErrors.CodeUnavailable, "upstream connection refused: "+route.Service
	default:
		// DNS failures, connection resets, TLS trouble.
		code, message = dErrors.CodeBadGateway, "upstream request failed: "+route.Service
	}
	gwErr := dErrors.Wrap(err, code, message)

	f.observe(route.Service, dErrors.HTTPStatus(code), start)
	f.logger.ErrorContext(r.Context(), "upstream request failed",
		"service", route.Service,
		"error", err,
		"breaker_state", string(breaker.State()),
	)
	f.errors.Write(w, r, gwErr)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (f *Forwarder) observe(service string, status int, start time.Time) {
	if f.metrics == nil {
		return
	}
	f.metrics.ProxyRequestsTotal.WithLabelValues(service, strconv.Itoa(status)).Inc()
	f.metrics.ProxyDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func singleJoin(a, b string) string {
	switch {
	case strings.HasSuffix(a, "/") && strings.HasPrefix(b, "/"):
		return a + b[1:]
	case a == "":
		return b
	case !strings.HasSuffix(a, "/") && !strings.HasPrefix(b, "/"):
		return a + "/" + b
	default:
		return a + b
	}
}
