// Package httpserver centralizes HTTP server construction so timeouts stay
// consistent.
package httpserver

import (
	"net/http"
	"time"
)

// New returns an http.Server with sane defaults for a public-facing gateway.
// Write timeout stays generous because proxied downstream calls can run up to
// their per-service budget.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
