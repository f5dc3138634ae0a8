package realtime

import "time"

// GlobalRoom is joined by every connection.
const GlobalRoom = "global"

// TenantRoom names the room of one tenant.
func TenantRoom(tenantID string) string {
	return "tenant:" + tenantID
}

// Event is the JSON frame written to clients.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`

	// UserID restricts the event to that user's connections in the room.
	UserID string `json:"-"`
}

// visibleTo reports whether a connection of userID may receive e.
func (e Event) visibleTo(userID string) bool {
	return e.UserID == "" || e.UserID == userID
}
