package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"talentgate/pkg/platform/sentinel"
)

// Store is the gateway's read/update surface over the identity records.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	FindByExternalID(ctx context.Context, externalID string) (*Identity, error)
	// Ensure resolves the identity for a verified OIDC subject, provisioning
	// a new active employee record on first login.
	Ensure(ctx context.Context, externalID, email string) (*Identity, error)
	// TouchLogin records a successful login. Best-effort from callers.
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// -----------------------------------------------------------------------------
// PostgreSQL
// -----------------------------------------------------------------------------

// PostgresStore backs Store with the platform's users table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const identityColumns = `id, email, role, status, external_id, data_processing_consent, consent_date, last_login_at`

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM users WHERE id = $1`, id)
	return scanIdentity(row)
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, externalID string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM users WHERE external_id = $1`, externalID)
	return scanIdentity(row)
}

func (s *PostgresStore) Ensure(ctx context.Context, externalID, email string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, role, status, external_id)
		VALUES ($1, $2, 'employee', 'active', $3)
		ON CONFLICT (external_id) DO UPDATE SET email = EXCLUDED.email
		RETURNING `+identityColumns,
		uuid.New(), email, externalID)
	return scanIdentity(row)
}

func (s *PostgresStore) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	return nil
}

func scanIdentity(row *sql.Row) (*Identity, error) {
	var ident Identity
	var consentDate, lastLogin sql.NullTime
	err := row.Scan(&ident.ID, &ident.Email, &ident.Role, &ident.Status,
		&ident.ExternalID, &ident.DataProcessingConsent, &consentDate, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	if consentDate.Valid {
		ident.ConsentDate = &consentDate.Time
	}
	if lastLogin.Valid {
		ident.LastLoginAt = &lastLogin.Time
	}
	return &ident, nil
}

// -----------------------------------------------------------------------------
// In-memory (tests, local development)
// -----------------------------------------------------------------------------

// MemoryStore is a map-backed Store for tests.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]*Identity
	byExternal map[string]uuid.UUID
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[uuid.UUID]*Identity),
		byExternal: make(map[string]uuid.UUID),
	}
}

// Put seeds an identity.
func (s *MemoryStore) Put(ident *Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ident
	s.byID[ident.ID] = &cp
	s.byExternal[ident.ExternalID] = ident.ID
}

func (s *MemoryStore) FindByID(_ context.Context, id uuid.UUID) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ident, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *ident
	return &cp, nil
}

func (s *MemoryStore) FindByExternalID(_ context.Context, externalID string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[externalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *MemoryStore) Ensure(_ context.Context, externalID, email string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byExternal[externalID]; ok {
		ident := s.byID[id]
		ident.Email = email
		cp := *ident
		return &cp, nil
	}
	ident := &Identity{
		ID:         uuid.New(),
		Email:      email,
		Role:       "employee",
		Status:     StatusActive,
		ExternalID: externalID,
	}
	s.byID[ident.ID] = ident
	s.byExternal[externalID] = ident.ID
	cp := *ident
	return &cp, nil
}

func (s *MemoryStore) TouchLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	t := at
	ident.LastLoginAt = &t
	return nil
}
