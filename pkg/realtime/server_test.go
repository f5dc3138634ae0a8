package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/broadcast"
	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/notifications"
	"github.com/dmitrymomot/pushkit/pkg/realtime"
)

type frame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func setup(t *testing.T) (*broadcast.Rooms[realtime.Event], *httptest.Server) {
	t.Helper()
	rooms := broadcast.NewRooms[realtime.Event](8)
	srv := realtime.NewServer(rooms, realtime.DefaultConfig(), realtime.WithLogger(logger.Discard()))
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		_ = rooms.Close()
	})
	return rooms, ts
}

func dial(t *testing.T, ts *httptest.Server, rooms *broadcast.Rooms[realtime.Event], tenantID, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	before := rooms.Len(realtime.TenantRoom(tenantID))

	header := http.Header{}
	header.Set("X-Tenant-ID", tenantID)
	if userID != "" {
		header.Set("X-User-ID", userID)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return rooms.Len(realtime.TenantRoom(tenantID)) == before+1
	}, time.Second, 5*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestServer_DeliversToTenantRoom(t *testing.T) {
	t.Parallel()
	rooms, ts := setup(t)

	acme := dial(t, ts, rooms, "acme", "u1")
	other := dial(t, ts, rooms, "other", "u1")

	d := realtime.NewDeliverer(rooms)
	require.NoError(t, d.Deliver(context.Background(), notifications.EventCreated, notifications.Notification{
		ID:       "n1",
		TenantID: "acme",
		UserID:   "u1",
		Title:    "New episode",
	}))

	f := readFrame(t, acme)
	assert.Equal(t, string(notifications.EventCreated), f.Type)
	assert.Equal(t, "n1", f.Data["id"])
	assert.Equal(t, "New episode", f.Data["title"])

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	require.Error(t, err, "other tenant must not receive acme events")
}

func TestServer_DeliversOnlyToOwner(t *testing.T) {
	t.Parallel()
	rooms, ts := setup(t)

	owner := dial(t, ts, rooms, "acme", "u1")
	peer := dial(t, ts, rooms, "acme", "u2")
	anonymous := dial(t, ts, rooms, "acme", "")

	d := realtime.NewDeliverer(rooms)
	require.NoError(t, d.Deliver(context.Background(), notifications.EventCreated, notifications.Notification{
		ID:       "n1",
		TenantID: "acme",
		UserID:   "u1",
		Title:    "Private",
	}))
	require.NoError(t, d.Publish(context.Background(), realtime.TenantRoom("acme"), "announcement", map[string]any{"id": "a1"}))

	f := readFrame(t, owner)
	assert.Equal(t, "n1", f.Data["id"])
	f = readFrame(t, owner)
	assert.Equal(t, "a1", f.Data["id"])

	for _, conn := range []*websocket.Conn{peer, anonymous} {
		f := readFrame(t, conn)
		assert.Equal(t, "announcement", f.Type, "tenant-wide events still reach everyone")
		assert.Equal(t, "a1", f.Data["id"])
	}
}

func TestServer_GlobalRoom(t *testing.T) {
	t.Parallel()
	rooms, ts := setup(t)

	a := dial(t, ts, rooms, "a", "")
	b := dial(t, ts, rooms, "b", "")
	require.Eventually(t, func() bool { return rooms.Len(realtime.GlobalRoom) == 2 }, time.Second, 5*time.Millisecond)

	d := realtime.NewDeliverer(rooms)
	require.NoError(t, d.PublishGlobal(context.Background(), "maintenance", map[string]any{"in": "5m"}))

	for _, conn := range []*websocket.Conn{a, b} {
		f := readFrame(t, conn)
		assert.Equal(t, "maintenance", f.Type)
		assert.Equal(t, "5m", f.Data["in"])
	}
}

func TestServer_RejectsUnidentified(t *testing.T) {
	t.Parallel()
	_, ts := setup(t)

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_DisconnectLeavesRoom(t *testing.T) {
	t.Parallel()
	rooms, ts := setup(t)

	conn := dial(t, ts, rooms, "acme", "u1")
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return rooms.Len(realtime.TenantRoom("acme")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDeliverer_RequiresTenant(t *testing.T) {
	t.Parallel()
	d := realtime.NewDeliverer(broadcast.NewRooms[realtime.Event](1))
	err := d.Deliver(context.Background(), notifications.EventUpdated, notifications.Notification{ID: "n1"})
	require.ErrorIs(t, err, realtime.ErrMissingRoom)
}
