// Package audit records every state-changing and sensitive-data operation
// that passes through the gateway. Events are transport-agnostic so stores
// and sinks can fan out; persistence is asynchronous and must never throw
// back into the request path.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies audit events by their primary purpose.
type EventType string

const (
	TypeAuthentication EventType = "authentication"
	TypeAuthorization  EventType = "authorization"
	TypeDataAccess     EventType = "data_access"
	TypeAdminAction    EventType = "admin_action"
	TypeSecurity       EventType = "security"
	TypeCompliance     EventType = "compliance"
)

// Depth tiers how much request detail an audited path captures.
type Depth string

const (
	DepthMinimal  Depth = "minimal"  // operation/resource/outcome only
	DepthStandard Depth = "standard" // + query params, headers
	DepthDetailed Depth = "detailed" // + sanitized request/response bodies
)

// GDPRClass annotates events on GDPR-relevant resource paths.
type GDPRClass string

const (
	GDPRDataAccess    GDPRClass = "data_access"
	GDPRDataExport    GDPRClass = "data_export"
	GDPRDataDeletion  GDPRClass = "data_deletion"
	GDPRConsentChange GDPRClass = "consent_change"
)

// Severity levels for security events, scaled by failure type.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one audit record. Exactly one is appended per inbound request on
// an audited route, regardless of outcome.
type Event struct {
	ID            uuid.UUID
	CorrelationID string
	EventType     EventType
	Operation     string // e.g. "GET /api/analytics/reports"
	Resource      string
	ResourceID    string
	UserID        uuid.UUID
	UserRole      string
	IPAddress     string
	Success       bool
	StatusCode    int
	Duration      time.Duration
	Severity      Severity
	GDPRClass     GDPRClass      // empty when not GDPR-relevant
	LegalBasis    string         // set together with GDPRClass
	Changes       map[string]any // sanitized request body (detailed paths)
	Metadata      map[string]any // query/headers (standard+), misc annotations
	Timestamp     time.Time
}
