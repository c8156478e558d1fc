// Package httperr is the single boundary that translates domain errors into
// the gateway's JSON error envelope. Handlers and middleware never shape
// error JSON themselves.
package httperr

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	dErrors "talentgate/pkg/domain-errors"
	"talentgate/pkg/requestcontext"
)

// Envelope is the wire format for every error response.
type Envelope struct {
	Error         string         `json:"error"`
	Message       string         `json:"message"`
	Code          string         `json:"code"`
	Timestamp     string         `json:"timestamp"`
	Path          string         `json:"path"`
	CorrelationID string         `json:"correlationId"`
	Details       map[string]any `json:"details,omitempty"`
}

// Writer maps errors to envelopes. In production, non-operational errors are
// reduced to a generic message while the full detail is logged server-side.
type Writer struct {
	Production bool
	Logger     *slog.Logger
}

func NewWriter(production bool, logger *slog.Logger) *Writer {
	return &Writer{Production: production, Logger: logger}
}

// Write serializes err as the JSON envelope with the matching HTTP status.
func (wr *Writer) Write(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	correlationID := requestcontext.CorrelationID(ctx)

	code := dErrors.CodeInternal
	message := "an unexpected error occurred"
	reason := string(dErrors.CodeInternal)
	var details map[string]any

	if ge, ok := asGatewayError(err); ok {
		code = ge.Code
		reason = ge.Reason
		message = ge.Message
		details = ge.Details
		if ge.Err != nil {
			wr.Logger.ErrorContext(ctx, "request failed",
				"error", ge.Err,
				"code", ge.Code,
				"path", r.URL.Path,
				"correlation_id", correlationID,
			)
		}
	} else {
		// Defect: log full detail, expose nothing in production.
		wr.Logger.ErrorContext(ctx, "unclassified error",
			"error", err,
			"path", r.URL.Path,
			"correlation_id", correlationID,
		)
		if !wr.Production {
			message = err.Error()
		}
	}

	env := Envelope{
		Error:         dErrors.Name(code),
		Message:       message,
		Code:          reason,
		Timestamp:     requestcontext.Now(ctx).UTC().Format(time.RFC3339),
		Path:          r.URL.Path,
		CorrelationID: correlationID,
		Details:       details,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.HTTPStatus(code))
	_ = json.NewEncoder(w).Encode(env)
}

func asGatewayError(err error) (*dErrors.GatewayError, bool) {
	var ge *dErrors.GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}
