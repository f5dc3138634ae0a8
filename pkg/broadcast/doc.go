// Package broadcast provides in-process, type-safe fan-out of messages to
// subscribers, plus a registry of named rooms built on top of it.
//
// Delivery is fire-and-forget: Broadcast never blocks on a slow consumer.
// A subscriber whose buffer is full misses the message and is dropped, so a
// client that falls behind reconnects instead of stalling every other client.
//
// Basic usage:
//
//	rooms := broadcast.NewRooms[Event](16)
//	defer rooms.Close()
//
//	sub := rooms.Subscribe(ctx, "tenant:acme")
//	defer sub.Close()
//
//	_ = rooms.Broadcast(ctx, "tenant:acme", broadcast.Message[Event]{Data: ev})
//
//	for msg := range sub.Receive(ctx) {
//		handle(msg.Data)
//	}
//
// Subscriptions are removed when the context passed to Subscribe is cancelled,
// when Close is called on the subscriber, or when the owner is closed.
package broadcast
