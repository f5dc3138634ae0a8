package broadcast_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/broadcast"
)

func TestRooms(t *testing.T) {
	t.Parallel()

	t.Run("messages stay in their room", func(t *testing.T) {
		t.Parallel()
		rooms := broadcast.NewRooms[string](4)
		defer rooms.Close()
		ctx := context.Background()

		a, err := rooms.Subscribe(ctx, "tenant:a")
		require.NoError(t, err)
		b, err := rooms.Subscribe(ctx, "tenant:b")
		require.NoError(t, err)

		require.NoError(t, rooms.Broadcast(ctx, "tenant:a", broadcast.Message[string]{Data: "for-a"}))

		msg, ok := receive(t, a)
		require.True(t, ok)
		assert.Equal(t, "for-a", msg.Data)

		select {
		case m := <-b.Receive(ctx):
			t.Fatalf("unexpected message in tenant:b: %v", m)
		default:
		}
	})

	t.Run("broadcast to empty room is a no-op", func(t *testing.T) {
		t.Parallel()
		rooms := broadcast.NewRooms[string](1)
		defer rooms.Close()

		require.NoError(t, rooms.Broadcast(context.Background(), "nobody", broadcast.Message[string]{Data: "x"}))
		assert.Empty(t, rooms.Names())
	})

	t.Run("room is dropped when last subscriber leaves", func(t *testing.T) {
		t.Parallel()
		rooms := broadcast.NewRooms[string](1)
		defer rooms.Close()

		sub, err := rooms.Subscribe(context.Background(), "global")
		require.NoError(t, err)
		assert.Equal(t, 1, rooms.Len("global"))

		require.NoError(t, sub.Close())
		assert.Equal(t, 0, rooms.Len("global"))
		assert.Empty(t, rooms.Names())
	})

	t.Run("empty room name is rejected", func(t *testing.T) {
		t.Parallel()
		rooms := broadcast.NewRooms[string](1)
		defer rooms.Close()

		_, err := rooms.Subscribe(context.Background(), "")
		require.ErrorIs(t, err, broadcast.ErrEmptyRoom)
		require.ErrorIs(t, rooms.Broadcast(context.Background(), "", broadcast.Message[string]{}), broadcast.ErrEmptyRoom)
	})

	t.Run("closed registry rejects use", func(t *testing.T) {
		t.Parallel()
		rooms := broadcast.NewRooms[string](1)

		sub, err := rooms.Subscribe(context.Background(), "global")
		require.NoError(t, err)
		require.NoError(t, rooms.Close())

		_, ok := receive(t, sub)
		assert.False(t, ok)

		_, err = rooms.Subscribe(context.Background(), "global")
		require.ErrorIs(t, err, broadcast.ErrClosed)
		require.ErrorIs(t, rooms.Broadcast(context.Background(), "global", broadcast.Message[string]{}), broadcast.ErrClosed)
	})
}
