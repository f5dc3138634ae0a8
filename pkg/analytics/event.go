package analytics

import (
	"context"
	"time"
)

// QueueName is the queue analytics events travel on.
const QueueName = "analytics"

// Event is one tracked occurrence.
type Event struct {
	ID         string         `json:"id" bson:"_id"`
	TenantID   string         `json:"tenant_id" bson:"tenant_id"`
	UserID     string         `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Name       string         `json:"name" bson:"name"`
	Properties map[string]any `json:"properties,omitempty" bson:"properties,omitempty"`
	OccurredAt time.Time      `json:"occurred_at" bson:"occurred_at"`
}

func (e Event) validate() error {
	switch {
	case e.ID == "":
		return ErrMissingID
	case e.TenantID == "":
		return ErrMissingTenantID
	case e.Name == "":
		return ErrMissingName
	}
	return nil
}

// Store persists events. Insert must be idempotent by Event.ID.
type Store interface {
	Insert(ctx context.Context, e Event) error
	Count(ctx context.Context, tenantID, name string, since time.Time) (int64, error)
}
