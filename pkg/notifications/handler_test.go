package notifications_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/notifications"
	"github.com/dmitrymomot/pushkit/pkg/queue"
)

func TestSendHandler(t *testing.T) {
	t.Parallel()

	storage := notifications.NewMemoryStorage()
	h := notifications.NewSendHandler(newManager(storage, nil))

	payload, err := json.Marshal(notifications.SendPayload{
		ID:       "6f1c1f3e-0000-4000-8000-000000000001",
		TenantID: "t1",
		UserID:   "u1",
		Type:     notifications.TypeFollow,
		Title:    "New follower",
	})
	require.NoError(t, err)

	// At-least-once delivery: the same job handled twice yields one row.
	require.NoError(t, h.Handle(context.Background(), payload))
	require.NoError(t, h.Handle(context.Background(), payload))

	list, err := storage.List(context.Background(), "t1", "u1", notifications.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSendHandler_InvalidPayloadIsNotRetried(t *testing.T) {
	t.Parallel()

	h := notifications.NewSendHandler(newManager(notifications.NewMemoryStorage(), nil))

	tests := []struct {
		name    string
		payload string
	}{
		{"missing id", `{"tenant_id":"t","user_id":"u","title":"x"}`},
		{"missing tenant", `{"id":"n1","user_id":"u","title":"x"}`},
		{"not json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := h.Handle(context.Background(), json.RawMessage(tt.payload))
			require.ErrorIs(t, err, queue.ErrSkipRetry)
		})
	}
}
