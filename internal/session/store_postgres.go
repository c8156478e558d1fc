package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"talentgate/pkg/platform/sentinel"
)

const sessionColumns = `id, user_id, session_token, refresh_token,
	created_at, last_activity_at, expires_at,
	ip_address, user_agent,
	provider_id_token, provider_access_token, provider_token_expires_at`

// PostgresStore is the durable Repository backed by the sessions table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, sess *Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.UserID, sess.SessionToken, sess.RefreshToken,
		sess.CreatedAt, sess.LastActivityAt, sess.ExpiresAt,
		sess.IPAddress, sess.UserAgent,
		nullString(sess.ProviderIDToken), nullString(sess.ProviderAccessToken), sess.ProviderTokenExpiresAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_token = $1`
	return scanSession(s.db.QueryRowContext(ctx, query, token))
}

func (s *PostgresStore) FindByRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_token = $1`
	return scanSession(s.db.QueryRowContext(ctx, query, refreshToken))
}

// Rotate swaps both tokens in a single UPDATE keyed on the old refresh token.
// A concurrent refresh with the same token loses the race and sees
// sentinel.ErrNotFound, which is what makes the refresh token single-use.
func (s *PostgresStore) Rotate(ctx context.Context, rot Rotation) (*Session, error) {
	query := `
		UPDATE sessions
		SET session_token = $1, refresh_token = $2, last_activity_at = $3, expires_at = $4
		WHERE id = $5 AND refresh_token = $6
		RETURNING ` + sessionColumns

	row := s.db.QueryRowContext(ctx, query,
		rot.NewSessionToken, rot.NewRefreshToken, rot.Now, rot.NewExpiresAt,
		rot.SessionID, rot.OldRefreshToken,
	)
	return scanSession(row)
}

func (s *PostgresStore) Touch(ctx context.Context, token string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity_at = $1 WHERE session_token = $2`, at, token)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_token = $1`, token)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= $1 RETURNING session_token`, now)
	if err != nil {
		return nil, fmt.Errorf("sweeping sessions: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scanning swept token: %w", err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess            Session
		idToken, access sql.NullString
		provExpiry      sql.NullTime
	)
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.SessionToken, &sess.RefreshToken,
		&sess.CreatedAt, &sess.LastActivityAt, &sess.ExpiresAt,
		&sess.IPAddress, &sess.UserAgent,
		&idToken, &access, &provExpiry,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	sess.ProviderIDToken = idToken.String
	sess.ProviderAccessToken = access.String
	if provExpiry.Valid {
		t := provExpiry.Time
		sess.ProviderTokenExpiresAt = &t
	}
	return &sess, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
