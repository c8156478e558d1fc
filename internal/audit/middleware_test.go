package audit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentgate/internal/audit"
)

func recordOne(t *testing.T, handler http.HandlerFunc, r *http.Request) audit.Event {
	t.Helper()
	store := audit.NewMemory()
	recorder := audit.NewRecorder(store, 8, discardLogger())

	audit.Middleware(recorder, audit.DefaultClassifier())(handler).
		ServeHTTP(httptest.NewRecorder(), r)

	runCtx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = recorder.Run(runCtx)

	events := store.Events()
	require.Len(t, events, 1, "expected exactly one audit event per request")
	return events[0]
}

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestMiddlewareMinimalDepthOmitsMetadata(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/matching/suggestions?limit=5", nil)
	event := recordOne(t, ok, r)

	assert.Equal(t, audit.TypeDataAccess, event.EventType)
	assert.Equal(t, "GET /api/matching/suggestions", event.Operation)
	assert.Equal(t, "matching", event.Resource)
	assert.True(t, event.Success)
	assert.Equal(t, http.StatusOK, event.StatusCode)
	assert.Nil(t, event.Metadata)
	assert.Nil(t, event.Changes)
}

func TestMiddlewareStandardDepthCapturesQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/analytics/reports?from=2026-01-01", nil)
	r.Header.Set("User-Agent", "test-agent")
	event := recordOne(t, ok, r)

	require.NotNil(t, event.Metadata)
	assert.Equal(t, "from=2026-01-01", event.Metadata["query"])
	assert.Equal(t, "test-agent", event.Metadata["user_agent"])
	assert.Nil(t, event.Changes)
}

func TestMiddlewareDetailedDepthCapturesSanitizedBody(t *testing.T) {
	body := `{"email":"x@example.com","password":"hunter2"}`
	r := httptest.NewRequest(http.MethodPost, "/api/admin/users", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	handlerSawBody := ""
	event := recordOne(t, func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		handlerSawBody = string(buf[:n])
		w.WriteHeader(http.StatusCreated)
	}, r)

	assert.Equal(t, audit.TypeAdminAction, event.EventType)
	require.NotNil(t, event.Changes)
	assert.Equal(t, "[REDACTED]", event.Changes["password"])
	assert.Equal(t, "x@example.com", event.Changes["email"])

	// Body capture must not eat the handler's copy.
	assert.JSONEq(t, body, handlerSawBody)
}

func TestMiddlewareGDPRClassification(t *testing.T) {
	tests := []struct {
		method string
		path   string
		class  audit.GDPRClass
		basis  string
	}{
		{http.MethodGet, "/api/profile/me", audit.GDPRDataAccess, "legitimate_interest"},
		{http.MethodDelete, "/api/employees/42", audit.GDPRDataDeletion, "right_to_erasure"},
		{http.MethodGet, "/api/profile/export", audit.GDPRDataExport, "data_portability"},
		{http.MethodPost, "/api/profile/consent", audit.GDPRConsentChange, "consent"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, tt.path, nil)
		event := recordOne(t, ok, r)
		assert.Equal(t, tt.class, event.GDPRClass, tt.path)
		assert.Equal(t, tt.basis, event.LegalBasis, tt.path)
		assert.Equal(t, audit.TypeCompliance, event.EventType, tt.path)
	}
}

func TestMiddlewareFailedRequestIsRecordedAsFailure(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/matching", nil)
	event := recordOne(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}, r)

	assert.False(t, event.Success)
	assert.Equal(t, http.StatusForbidden, event.StatusCode)
}

func TestMiddlewareClientDisconnectGetsSentinelStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := httptest.NewRequest(http.MethodGet, "/api/matching", nil).WithContext(ctx)

	event := recordOne(t, func(_ http.ResponseWriter, _ *http.Request) {
		cancel() // client went away; handler writes nothing
	}, r)

	assert.False(t, event.Success)
	assert.Equal(t, 599, event.StatusCode)
}

func TestMiddlewareAuthPathsAreAuthenticationEvents(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	event := recordOne(t, ok, r)
	assert.Equal(t, audit.TypeAuthentication, event.EventType)
}

func TestMiddlewareExtractsResourceID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/analytics/reports/42", nil)
	event := recordOne(t, ok, r)
	assert.Equal(t, "analytics", event.Resource)
	assert.Equal(t, "42", event.ResourceID)
}
