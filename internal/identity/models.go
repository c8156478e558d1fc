// Package identity reads the platform's user records. The identity store is
// owned by the wider platform; the gateway only resolves identities during
// login, checks their status on every request, and touches the login
// timestamp.
package identity

import (
	"time"

	"github.com/google/uuid"
)

// Status of an identity. Anything other than active never passes
// authorization.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// Identity is a platform user as seen by the gateway.
type Identity struct {
	ID                    uuid.UUID
	Email                 string
	Role                  string
	Status                Status
	ExternalID            string // subject identifier at the OIDC provider
	DataProcessingConsent bool
	ConsentDate           *time.Time
	LastLoginAt           *time.Time
}

// CanAuthenticate reports whether the identity may hold a session.
func (i *Identity) CanAuthenticate() bool {
	return i.Status == StatusActive
}
