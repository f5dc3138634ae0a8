package notifications

import (
	"context"
	"time"
)

// Storage persists notifications. Every method is scoped to one tenant and user.
type Storage interface {
	// Create stores notif. Creating an id that already exists is a no-op,
	// which makes queue redelivery harmless.
	Create(ctx context.Context, notif Notification) error

	Get(ctx context.Context, tenantID, userID, notifID string) (*Notification, error)

	// List returns notifications newest first.
	List(ctx context.Context, tenantID, userID string, opts ListOptions) ([]Notification, error)

	// MarkRead sets ReadAt on unread notifications among notifIDs and returns
	// the ones it changed.
	MarkRead(ctx context.Context, tenantID, userID string, at time.Time, notifIDs ...string) ([]Notification, error)

	Delete(ctx context.Context, tenantID, userID string, notifIDs ...string) error

	CountUnread(ctx context.Context, tenantID, userID string) (int, error)
}

// ListOptions filters and paginates List.
type ListOptions struct {
	Limit      int // 0 means no limit
	Offset     int
	OnlyUnread bool
	Types      []Type
	Since      *time.Time
}
