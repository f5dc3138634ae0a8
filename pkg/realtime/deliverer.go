package realtime

import (
	"context"
	"time"

	"github.com/dmitrymomot/pushkit/pkg/broadcast"
	"github.com/dmitrymomot/pushkit/pkg/notifications"
)

// Deliverer publishes notification changes to tenant rooms.
type Deliverer struct {
	rooms *broadcast.Rooms[Event]
	now   func() time.Time
}

var _ notifications.Deliverer = (*Deliverer)(nil)

// NewDeliverer creates a deliverer publishing into rooms.
func NewDeliverer(rooms *broadcast.Rooms[Event]) *Deliverer {
	return &Deliverer{rooms: rooms, now: time.Now}
}

// Deliver emits notif to its owner's connections in the tenant room. A
// notification without a user reaches the whole tenant.
func (d *Deliverer) Deliver(ctx context.Context, kind notifications.EventKind, notif notifications.Notification) error {
	if notif.TenantID == "" {
		return ErrMissingRoom
	}
	return d.rooms.Broadcast(ctx, TenantRoom(notif.TenantID), broadcast.Message[Event]{Data: Event{
		Type:      string(kind),
		Data:      notif,
		Timestamp: d.now().UTC(),
		UserID:    notif.UserID,
	}})
}

// PublishGlobal emits an event to every connection.
func (d *Deliverer) PublishGlobal(ctx context.Context, eventType string, data any) error {
	return d.Publish(ctx, GlobalRoom, eventType, data)
}

// Publish emits an event to one room.
func (d *Deliverer) Publish(ctx context.Context, room, eventType string, data any) error {
	return d.rooms.Broadcast(ctx, room, broadcast.Message[Event]{Data: Event{
		Type:      eventType,
		Data:      data,
		Timestamp: d.now().UTC(),
	}})
}
