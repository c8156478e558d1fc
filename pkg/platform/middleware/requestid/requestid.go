// Package requestid assigns each inbound request a correlation ID. The ID is
// honored from X-Correlation-ID when a trusted upstream already set one,
// echoed on the response, and forwarded to downstream services by the proxy.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"talentgate/pkg/requestcontext"
)

// Header is the correlation ID header shared with clients and downstreams.
const Header = "X-Correlation-ID"

// Middleware ensures every request carries a correlation ID in its context
// and response headers.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		ctx := requestcontext.WithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
