package health

import (
	"encoding/json"
	"net/http"

	"talentgate/internal/proxy"
)

// Handler serves the health endpoints. Liveness is unconditional; readiness
// reflects critical dependencies only.
type Handler struct {
	checker  *Checker
	breakers *proxy.Registry
	version  string
}

func NewHandler(checker *Checker, breakers *proxy.Registry, version string) *Handler {
	return &Handler{checker: checker, breakers: breakers, version: version}
}

type fullReport struct {
	Report
	Version  string                        `json:"version,omitempty"`
	Services map[string]proxy.BreakerState `json:"services,omitempty"`
}

// Health is the detailed report: dependency probes plus per-service breaker
// states. Degraded still answers 200; only unhealthy flips to 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	report := fullReport{
		Report:  h.checker.Report(r.Context()),
		Version: h.version,
	}
	if h.breakers != nil {
		report.Services = h.breakers.States()
	}

	status := http.StatusOK
	if report.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Ready answers whether the gateway should receive traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	report := h.checker.Report(r.Context())
	if report.Status == StatusUnhealthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Live answers whether the process is up. It never consults dependencies.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
