package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/pushkit/pkg/queue"
)

// QueueName is the queue notification jobs are enqueued on.
const QueueName = "notifications"

// SendPayload is the queue job that creates one in-app notification. ID must be
// set by the producer so a redelivered job maps to the same row.
type SendPayload struct {
	ID       string         `json:"id"`
	TenantID string         `json:"tenant_id"`
	UserID   string         `json:"user_id"`
	Type     Type           `json:"type"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
}

// NewSendHandler returns a queue handler that stores and emits SendPayload jobs.
// Payloads that can never be stored are not retried.
func NewSendHandler(m *Manager) queue.Handler {
	return queue.NewTaskHandler(func(ctx context.Context, p SendPayload) error {
		if p.ID == "" {
			return fmt.Errorf("%w: %w", queue.ErrSkipRetry, ErrMissingID)
		}
		_, err := m.Send(ctx, Notification{
			ID:       p.ID,
			TenantID: p.TenantID,
			UserID:   p.UserID,
			Type:     p.Type,
			Title:    p.Title,
			Message:  p.Message,
			Data:     p.Data,
		})
		if isValidationError(err) {
			return fmt.Errorf("%w: %w", queue.ErrSkipRetry, err)
		}
		return err
	})
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrMissingID) ||
		errors.Is(err, ErrMissingTenantID) ||
		errors.Is(err, ErrMissingUserID) ||
		errors.Is(err, ErrMissingTitle)
}
