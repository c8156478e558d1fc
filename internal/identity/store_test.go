package identity

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentgate/pkg/platform/sentinel"
)

func identityRows(id uuid.UUID) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "role", "status", "external_id",
		"data_processing_consent", "consent_date", "last_login_at",
	}).AddRow(id, "ana@example.com", "employee", "active", "oidc|ana", false, nil, nil)
}

func TestPostgresStoreFindByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .+ FROM users WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewPostgres(db)
	_, err = store.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresStoreEnsureUpsertsByExternalID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(identityRows(id))

	store := NewPostgres(db)
	ident, err := store.Ensure(context.Background(), "oidc|ana", "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, ident.ID)
	assert.Equal(t, "employee", ident.Role)
	assert.Equal(t, StatusActive, ident.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStoreEnsureIsIdempotentPerSubject(t *testing.T) {
	store := NewMemory()

	first, err := store.Ensure(context.Background(), "oidc|ana", "ana@example.com")
	require.NoError(t, err)
	second, err := store.Ensure(context.Background(), "oidc|ana", "ana.new@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "ana.new@example.com", second.Email)
}

func TestCanAuthenticate(t *testing.T) {
	ident := &Identity{Status: StatusActive}
	assert.True(t, ident.CanAuthenticate())

	for _, status := range []Status{StatusInactive, StatusSuspended, StatusDeleted} {
		ident.Status = status
		assert.False(t, ident.CanAuthenticate(), string(status))
	}
}

func TestMemoryStoreTouchLogin(t *testing.T) {
	store := NewMemory()
	ident, err := store.Ensure(context.Background(), "oidc|ana", "ana@example.com")
	require.NoError(t, err)

	at := time.Now()
	require.NoError(t, store.TouchLogin(context.Background(), ident.ID, at))

	got, err := store.FindByID(context.Background(), ident.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	assert.WithinDuration(t, at, *got.LastLoginAt, time.Second)
}
