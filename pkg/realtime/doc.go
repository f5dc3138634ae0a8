// Package realtime pushes notification changes to connected clients over
// websockets.
//
// Connections join two rooms: the room of their tenant and the global room.
// Deliverer implements notifications.Deliverer by publishing to the tenant
// room of each notification; only the connections of the notification's user
// receive it. Emission is fire-and-forget: a client that is
// not connected, or too slow to keep up, misses the event and catches up
// through the regular read path.
//
//	rooms := broadcast.NewRooms[realtime.Event](cfg.BufferSize)
//	srv := realtime.NewServer(rooms, cfg, realtime.WithIdentify(auth))
//	router.Handle("/ws", srv)
//
//	manager := notifications.NewManager(storage, realtime.NewDeliverer(rooms))
package realtime
