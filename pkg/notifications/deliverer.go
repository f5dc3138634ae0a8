package notifications

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// EventKind tells clients whether a notification is new or changed.
type EventKind string

const (
	EventCreated EventKind = "notification.created"
	EventUpdated EventKind = "notification.updated"
)

// Deliverer emits notification changes to connected clients. Delivery is
// best effort: there is no acknowledgement and no replay.
type Deliverer interface {
	Deliver(ctx context.Context, kind EventKind, notif Notification) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, kind EventKind, notif Notification) error

func (f DelivererFunc) Deliver(ctx context.Context, kind EventKind, notif Notification) error {
	return f(ctx, kind, notif)
}

// MultiDeliverer fans a change out to several deliverers. A failing deliverer
// is logged and skipped.
type MultiDeliverer struct {
	deliverers []Deliverer
	logger     *slog.Logger
}

// MultiDelivererOption configures a MultiDeliverer.
type MultiDelivererOption func(*MultiDeliverer)

// WithMultiDelivererLogger sets the logger for the MultiDeliverer.
func WithMultiDelivererLogger(l *slog.Logger) MultiDelivererOption {
	return func(m *MultiDeliverer) {
		m.logger = l
	}
}

// NewMultiDeliverer creates a deliverer that calls each of deliverers in order.
func NewMultiDeliverer(deliverers []Deliverer, opts ...MultiDelivererOption) *MultiDeliverer {
	m := &MultiDeliverer{
		deliverers: deliverers,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MultiDeliverer) Deliver(ctx context.Context, kind EventKind, notif Notification) error {
	for i, d := range m.deliverers {
		if err := d.Deliver(ctx, kind, notif); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "failed to deliver notification",
				slog.String("notification_id", notif.ID),
				slog.String("event", string(kind)),
				logger.TenantID(notif.TenantID),
				logger.UserID(notif.UserID),
				slog.Int("deliverer_index", i),
				logger.Error(err),
			)
		}
	}
	return nil
}

// NoOpDeliverer discards every change.
type NoOpDeliverer struct{}

func (NoOpDeliverer) Deliver(context.Context, EventKind, Notification) error {
	return nil
}
