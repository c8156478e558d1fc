package authz

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentgate/internal/audit"
	"talentgate/pkg/platform/httperr"
	"talentgate/pkg/requestcontext"
)

type capturedEvent struct {
	operation string
	reason    string
	severity  audit.Severity
}

type captureAuditor struct {
	events []capturedEvent
}

func (c *captureAuditor) Denied(_ context.Context, operation, reason string, severity audit.Severity) {
	c.events = append(c.events, capturedEvent{operation, reason, severity})
}

func newGuardFixture() (*Guard, *captureAuditor) {
	auditor := &captureAuditor{}
	logger := slog.New(slog.DiscardHandler)
	return NewGuard(auditor, httperr.NewWriter(false, logger), logger), auditor
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(role Role, userID uuid.UUID, path string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	ctx := requestcontext.WithAuth(r.Context(), requestcontext.Auth{
		UserID:      userID,
		Role:        string(role),
		Permissions: PermissionStrings(role),
		SessionID:   uuid.New(),
	})
	return r.WithContext(ctx)
}

func envelopeCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env httperr.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Code
}

func TestRequirePermissionAdmitsGrantedRole(t *testing.T) {
	guard, auditor := newGuardFixture()
	handler := guard.RequirePermission(PermProfileRead)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(RoleEmployee, uuid.New(), "/api/profile"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, auditor.events)
}

func TestRequirePermissionDeniesAndAuditsDenial(t *testing.T) {
	guard, auditor := newGuardFixture()
	handler := guard.RequirePermission(PermAnalyticsRead)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(RoleEmployee, uuid.New(), "/api/analytics"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", envelopeCode(t, rec))
	require.Len(t, auditor.events, 1)
	assert.Equal(t, "GET /api/analytics", auditor.events[0].operation)
	assert.Equal(t, audit.SeverityWarning, auditor.events[0].severity)
}

func TestDenialIsRecordedAsAuthorizationEvent(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	store := audit.NewMemory()
	recorder := audit.NewRecorder(store, 8, logger)
	guard := NewGuard(recorder, httperr.NewWriter(false, logger), logger)
	handler := guard.RequirePermission(PermAnalyticsRead)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(RoleEmployee, uuid.New(), "/api/analytics"))
	require.Equal(t, http.StatusForbidden, rec.Code)

	runCtx, cancel := context.WithCancel(context.Background())
	cancel() // Run drains the queue on its way out
	_ = recorder.Run(runCtx)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.TypeAuthorization, events[0].EventType)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", events[0].Metadata["reason"])
	assert.False(t, events[0].Success)
}

func TestRequirePermissionWithoutIdentityIsUnauthorized(t *testing.T) {
	guard, _ := newGuardFixture()
	handler := guard.RequirePermission(PermProfileRead)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profile", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", envelopeCode(t, rec))
}

func TestRequireRole(t *testing.T) {
	guard, _ := newGuardFixture()
	handler := guard.RequireRole(RoleAdmin, RoleSuperAdmin)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(RoleAdmin, uuid.New(), "/api/admin"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs(RoleHRManager, uuid.New(), "/api/admin"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "INSUFFICIENT_ROLE", envelopeCode(t, rec))
}

func TestRequireOwnershipOrRole(t *testing.T) {
	guard, _ := newGuardFixture()
	owner := uuid.New()

	router := chi.NewRouter()
	router.With(guard.RequireOwnershipOrRole("employeeID", RoleHRManager)).
		Get("/api/employees/{employeeID}/profile", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

	// The owner may access their own resource.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(RoleEmployee, owner, "/api/employees/"+owner.String()+"/profile"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// A privileged role may access anyone's.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(RoleHRManager, uuid.New(), "/api/employees/"+owner.String()+"/profile"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Another employee may not.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(RoleEmployee, uuid.New(), "/api/employees/"+owner.String()+"/profile"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NOT_RESOURCE_OWNER", envelopeCode(t, rec))
}
