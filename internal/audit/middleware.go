package audit

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxCapturedBody bounds how much of a request/response body detailed-depth
// auditing retains.
const maxCapturedBody = 64 * 1024

// abortedStatus marks audit records for requests whose client disconnected
// before a response was written.
const abortedStatus = 599

// Classifier decides audit depth and GDPR relevance from the request path.
// Prefix tables are static configuration, mirroring the proxy route table.
type Classifier struct {
	// SensitivePrefixes get standard depth (query params + headers).
	SensitivePrefixes []string
	// AdminPrefixes get detailed depth (sanitized bodies) and count as
	// admin actions.
	AdminPrefixes []string
	// GDPRPrefixes touch personal data; requests there emit a compliance
	// classification derived from the method.
	GDPRPrefixes []string
}

// DefaultClassifier matches the gateway's route table.
func DefaultClassifier() Classifier {
	return Classifier{
		SensitivePrefixes: []string{"/api/employees", "/api/profile", "/api/analytics"},
		AdminPrefixes:     []string{"/api/admin"},
		GDPRPrefixes:      []string{"/api/profile", "/api/employees"},
	}
}

// DepthFor returns the audit depth for a path.
func (c Classifier) DepthFor(path string) Depth {
	if hasAnyPrefix(path, c.AdminPrefixes) {
		return DepthDetailed
	}
	if hasAnyPrefix(path, c.SensitivePrefixes) {
		return DepthStandard
	}
	return DepthMinimal
}

// GDPRFor classifies a request against GDPR-relevant paths. The zero value
// means not GDPR-relevant.
func (c Classifier) GDPRFor(method, path string) (GDPRClass, string) {
	if strings.Contains(path, "/consent") {
		return GDPRConsentChange, "consent"
	}
	if !hasAnyPrefix(path, c.GDPRPrefixes) {
		return "", ""
	}
	switch {
	case method == http.MethodDelete:
		return GDPRDataDeletion, "right_to_erasure"
	case strings.Contains(path, "/export"):
		return GDPRDataExport, "data_portability"
	default:
		return GDPRDataAccess, "legitimate_interest"
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Middleware appends exactly one audit event per request, after the response
// finishes. It never fails the request.
func Middleware(recorder *Recorder, classifier Classifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			depth := classifier.DepthFor(r.URL.Path)

			var requestBody map[string]any
			if depth == DepthDetailed {
				requestBody = captureJSONBody(r)
			}

			rec := &responseRecorder{ResponseWriter: w, captureBody: depth == DepthDetailed}
			next.ServeHTTP(rec, r)

			status := rec.status
			success := status > 0 && status < 400
			if status == 0 && r.Context().Err() != nil {
				// Client went away before anything was written; the record
				// reflects the aborted outcome instead of being skipped.
				status = abortedStatus
				success = false
			}

			event := Event{
				EventType:  eventTypeFor(r.URL.Path, depth),
				Operation:  r.Method + " " + r.URL.Path,
				Resource:   resourceFrom(r.URL.Path),
				ResourceID: resourceIDFrom(r.URL.Path),
				Success:    success,
				StatusCode: status,
				Duration:   time.Since(start),
				Timestamp:  start,
			}

			event.GDPRClass, event.LegalBasis = classifier.GDPRFor(r.Method, r.URL.Path)
			if event.GDPRClass != "" {
				event.EventType = TypeCompliance
			}

			if depth != DepthMinimal {
				event.Metadata = map[string]any{
					"query":      r.URL.RawQuery,
					"user_agent": r.Header.Get("User-Agent"),
					"referer":    r.Header.Get("Referer"),
				}
			}
			if depth == DepthDetailed {
				if requestBody != nil {
					event.Changes = requestBody
				}
				if resp := rec.jsonBody(); resp != nil {
					event.Metadata["response"] = resp
				}
			}

			recorder.Record(r.Context(), event)
		})
	}
}

func eventTypeFor(path string, depth Depth) EventType {
	switch {
	case strings.HasPrefix(path, "/auth/"):
		return TypeAuthentication
	case depth == DepthDetailed:
		return TypeAdminAction
	default:
		return TypeDataAccess
	}
}

// resourceFrom extracts the service-level resource from a path like
// /api/analytics/reports/42 -> "analytics".
func resourceFrom(path string) string {
	parts := splitPath(path)
	if len(parts) >= 2 && parts[0] == "api" {
		return parts[1]
	}
	if len(parts) >= 1 {
		return parts[0]
	}
	return ""
}

func resourceIDFrom(path string) string {
	parts := splitPath(path)
	if len(parts) >= 4 && parts[0] == "api" {
		return parts[3]
	}
	return ""
}

func splitPath(path string) []string {
	raw := strings.Split(strings.Trim(path, "/"), "/")
	parts := raw[:0]
	for _, p := range raw {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func captureJSONBody(r *http.Request) map[string]any {
	if r.Body == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxCapturedBody))
	if err != nil {
		return nil
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(data), r.Body))

	var parsed map[string]any
	if json.Unmarshal(data, &parsed) != nil {
		return nil
	}
	return parsed
}

// responseRecorder captures the status code and, when asked, a bounded copy
// of the response body.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	captureBody bool
	body        bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	if r.captureBody && r.body.Len() < maxCapturedBody {
		r.body.Write(p[:min(len(p), maxCapturedBody-r.body.Len())])
	}
	return r.ResponseWriter.Write(p)
}

func (r *responseRecorder) jsonBody() map[string]any {
	if r.body.Len() == 0 {
		return nil
	}
	var parsed map[string]any
	if json.Unmarshal(r.body.Bytes(), &parsed) != nil {
		return nil
	}
	return parsed
}
