package notifications

import "time"

// Type classifies a notification by the event that produced it.
type Type string

const (
	TypeNewEpisode Type = "new_episode"
	TypeComment    Type = "comment"
	TypeLike       Type = "like"
	TypeFollow     Type = "follow"
	TypeBroadcast  Type = "broadcast"
	TypeSystem     Type = "system"
)

// Notification is an in-app notification owned by one user of one tenant.
type Notification struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	UserID    string         `json:"user_id"`
	Type      Type           `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Read reports whether the notification has been read.
func (n Notification) Read() bool {
	return n.ReadAt != nil
}

// MarkAsRead sets ReadAt unless it is already set.
func (n *Notification) MarkAsRead(at time.Time) {
	if n.ReadAt != nil {
		return
	}
	n.ReadAt = &at
}

// Validate checks the fields every stored notification needs.
func (n Notification) Validate() error {
	switch {
	case n.ID == "":
		return ErrMissingID
	case n.TenantID == "":
		return ErrMissingTenantID
	case n.UserID == "":
		return ErrMissingUserID
	case n.Title == "":
		return ErrMissingTitle
	}
	return nil
}
