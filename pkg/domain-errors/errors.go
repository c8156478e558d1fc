// Package domainerrors defines the typed, operational error taxonomy for the
// gateway. Domain and service code raise these; the single HTTP boundary in
// internal/transport maps them to the JSON error envelope. Anything that is
// not a GatewayError is treated as a defect (500, detail suppressed in
// production).
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code buckets errors by taxonomy. Each code has a stable HTTP status.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"      // 400
	CodeUnauthorized Code = "AUTHENTICATION_ERROR"  // 401
	CodeForbidden    Code = "AUTHORIZATION_ERROR"   // 403
	CodeNotFound     Code = "NOT_FOUND"             // 404
	CodeConflict     Code = "CONFLICT"              // 409
	CodeRateLimited  Code = "RATE_LIMITED"          // 429
	CodeGDPR         Code = "GDPR_COMPLIANCE_ERROR" // 451
	CodeDatabase     Code = "DATABASE_ERROR"        // 500
	CodeInternal     Code = "INTERNAL_ERROR"        // 500
	CodeBadGateway   Code = "BAD_GATEWAY"           // 502
	CodeUnavailable  Code = "SERVICE_UNAVAILABLE"   // 503
	CodeTimeout      Code = "GATEWAY_TIMEOUT"       // 504
)

// Well-known reasons. A reason is the machine-readable discriminator inside a
// taxonomy bucket; clients branch on it, the status comes from the Code.
const (
	ReasonInvalidToken            = "INVALID_TOKEN"
	ReasonInvalidSession          = "INVALID_SESSION"
	ReasonInvalidState            = "INVALID_STATE"
	ReasonInvalidRefreshToken     = "INVALID_REFRESH_TOKEN"
	ReasonAccountDisabled         = "ACCOUNT_DISABLED"
	ReasonInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	ReasonInsufficientRole        = "INSUFFICIENT_ROLE"
	ReasonNotOwner                = "NOT_RESOURCE_OWNER"
	ReasonCircuitOpen             = "CIRCUIT_OPEN"
)

// GatewayError is the only error type that crosses the service boundary with
// user-facing intent. Err (if set) is internal detail and never serialized in
// production.
type GatewayError struct {
	Code    Code
	Reason  string
	Message string
	Details map[string]any
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// New creates a GatewayError with the bucket's default reason.
func New(code Code, message string) *GatewayError {
	return &GatewayError{Code: code, Reason: string(code), Message: message}
}

// NewReason creates a GatewayError with an explicit machine-readable reason.
func NewReason(code Code, reason, message string) *GatewayError {
	return &GatewayError{Code: code, Reason: reason, Message: message}
}

// Wrap attaches taxonomy to an underlying error. The cause is kept for
// server-side logging only.
func Wrap(err error, code Code, message string) *GatewayError {
	return &GatewayError{Code: code, Reason: string(code), Message: message, Err: err}
}

// WithDetails returns a copy carrying extra user-facing detail fields.
func (e *GatewayError) WithDetails(details map[string]any) *GatewayError {
	clone := *e
	clone.Details = details
	return &clone
}

// HasCode reports whether err (anywhere in its chain) carries the given code.
func HasCode(err error, code Code) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code == code
	}
	return false
}

// ReasonOf extracts the reason string, or "" for non-gateway errors.
func ReasonOf(err error) string {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Reason
	}
	return ""
}

// IsOperational reports whether the error is part of the expected taxonomy.
// Unclassified errors are defects and get their detail suppressed at the
// boundary in production.
func IsOperational(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// HTTPStatus maps a taxonomy code to its HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeGDPR:
		return http.StatusUnavailableForLegalReasons
	case CodeBadGateway:
		return http.StatusBadGateway
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Name returns the human-readable taxonomy name used in the envelope's
// "error" field.
func Name(code Code) string {
	switch code {
	case CodeValidation:
		return "ValidationError"
	case CodeUnauthorized:
		return "AuthenticationError"
	case CodeForbidden:
		return "AuthorizationError"
	case CodeNotFound:
		return "NotFoundError"
	case CodeConflict:
		return "ConflictError"
	case CodeRateLimited:
		return "RateLimitError"
	case CodeGDPR:
		return "GDPRComplianceError"
	case CodeDatabase:
		return "DatabaseError"
	case CodeBadGateway, CodeUnavailable, CodeTimeout:
		return "ExternalServiceError"
	default:
		return "InternalError"
	}
}
