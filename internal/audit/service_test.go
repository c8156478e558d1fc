package audit_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"talentgate/internal/audit"
	"talentgate/internal/audit/mocks"
	"talentgate/pkg/requestcontext"
)

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestRecordFillsContextFields(t *testing.T) {
	store := audit.NewMemory()
	recorder := audit.NewRecorder(store, 8, discardLogger())

	ctx := requestcontext.WithCorrelationID(context.Background(), "corr-42")
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.9", "test-agent")
	recorder.Record(ctx, audit.Event{
		EventType: audit.TypeDataAccess,
		Operation: "GET /api/skills",
	})

	runCtx, cancel := context.WithCancel(context.Background())
	cancel() // Run drains the queue on its way out
	_ = recorder.Run(runCtx)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "corr-42", events[0].CorrelationID)
	assert.Equal(t, "10.0.0.9", events[0].IPAddress)
	assert.NotEqual(t, "", events[0].ID.String())
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestRecordRedactsPayloadsBeforeStorage(t *testing.T) {
	store := audit.NewMemory()
	recorder := audit.NewRecorder(store, 8, discardLogger())

	recorder.Record(context.Background(), audit.Event{
		EventType: audit.TypeAdminAction,
		Operation: "POST /api/admin/users",
		Changes:   map[string]any{"email": "x@example.com", "password": "hunter2"},
	})

	runCtx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = recorder.Run(runCtx)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "[REDACTED]", events[0].Changes["password"])
	assert.Equal(t, "x@example.com", events[0].Changes["email"])
}

func TestRecordNeverBlocksWhenQueueIsFull(t *testing.T) {
	store := audit.NewMemory()
	recorder := audit.NewRecorder(store, 2, discardLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			recorder.Record(context.Background(), audit.Event{Operation: "GET /api/skills"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}
}

func TestWorkerSwallowsStoreFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	appended := make(chan struct{}, 2)
	store.EXPECT().Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, audit.Event) error {
			appended <- struct{}{}
			return errors.New("connection reset")
		}).Times(2)

	recorder := audit.NewRecorder(store, 8, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = recorder.Run(ctx) }()

	recorder.Record(context.Background(), audit.Event{Operation: "GET /api/skills"})
	recorder.Record(context.Background(), audit.Event{Operation: "GET /api/matching"})

	for i := 0; i < 2; i++ {
		select {
		case <-appended:
		case <-time.After(2 * time.Second):
			t.Fatal("worker stopped after a store failure")
		}
	}
}

func TestSecurityEventCarriesSeverityAndReason(t *testing.T) {
	store := audit.NewMemory()
	recorder := audit.NewRecorder(store, 8, discardLogger())

	recorder.Security(context.Background(), "authenticate", "invalid_token", audit.SeverityWarning)

	runCtx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = recorder.Run(runCtx)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.TypeSecurity, events[0].EventType)
	assert.Equal(t, audit.SeverityWarning, events[0].Severity)
	assert.Equal(t, "invalid_token", events[0].Metadata["reason"])
	assert.False(t, events[0].Success)
}
