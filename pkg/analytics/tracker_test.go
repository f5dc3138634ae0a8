package analytics_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/analytics"
	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/queue"
)

func TestTracker_EnqueuesOnAnalyticsQueue(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	defer storage.Close()
	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	tracker := analytics.NewTracker(enq, analytics.WithLogger(logger.Discard()))
	require.NoError(t, tracker.Track(context.Background(), analytics.Event{
		TenantID:   "acme",
		Name:       "push.dispatched",
		Properties: map[string]any{"recipients": 3},
	}))

	pending, err := storage.Pending(context.Background(), analytics.QueueName)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	var e analytics.Event
	require.NoError(t, json.Unmarshal(pending[0].Payload, &e))
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.OccurredAt.IsZero())
	assert.Equal(t, "push.dispatched", e.Name)
}

func TestTracker_Validation(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	defer storage.Close()
	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)
	tracker := analytics.NewTracker(enq)

	err = tracker.Track(context.Background(), analytics.Event{Name: "x"})
	require.ErrorIs(t, err, analytics.ErrMissingTenantID)

	err = tracker.Track(context.Background(), analytics.Event{TenantID: "acme"})
	require.ErrorIs(t, err, analytics.ErrMissingName)
}

type failingEnqueuer struct{}

func (failingEnqueuer) Enqueue(context.Context, any, ...queue.EnqueueOption) error {
	return errors.New("broker down")
}

func TestTracker_TrackAsyncSwallowsErrors(t *testing.T) {
	t.Parallel()

	tracker := analytics.NewTracker(failingEnqueuer{}, analytics.WithLogger(logger.Discard()))
	assert.NotPanics(t, func() {
		tracker.TrackAsync(context.Background(), analytics.Event{TenantID: "acme", Name: "x"})
	})
	require.Error(t, tracker.Track(context.Background(), analytics.Event{TenantID: "acme", Name: "x"}))
}

func TestInsertHandler_IsIdempotent(t *testing.T) {
	t.Parallel()

	store := analytics.NewMemoryStore()
	h := analytics.NewInsertHandler(store)

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	payload, err := json.Marshal(analytics.Event{ID: "e1", TenantID: "acme", Name: "push.dispatched", OccurredAt: at})
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), payload))
	require.NoError(t, h.Handle(context.Background(), payload))
	assert.Equal(t, 1, store.Len())

	n, err := store.Count(context.Background(), "acme", "push.dispatched", at.Add(-time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = store.Count(context.Background(), "acme", "push.dispatched", at.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInsertHandler_InvalidEventIsNotRetried(t *testing.T) {
	t.Parallel()

	h := analytics.NewInsertHandler(analytics.NewMemoryStore())
	err := h.Handle(context.Background(), json.RawMessage(`{"tenant_id":"acme","name":"x"}`))
	require.ErrorIs(t, err, queue.ErrSkipRetry)
}
