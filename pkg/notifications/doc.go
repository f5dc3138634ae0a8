// Package notifications stores tenant-scoped in-app notifications and emits
// every create and read-state change to a real-time Deliverer.
//
// The package is split into three layers:
//
//   - Storage: persistence (MemoryStorage, PostgresStorage)
//   - Deliverer: fire-and-forget emit to connected clients
//   - Manager: persists first, then emits
//
// # Basic Usage
//
//	storage := notifications.NewPostgresStorage(pool)
//	manager := notifications.NewManager(storage, deliverer)
//
//	n, err := manager.Send(ctx, notifications.Notification{
//	    TenantID: "acme",
//	    UserID:   "user-1",
//	    Type:     notifications.TypeComment,
//	    Title:    "New comment",
//	    Message:  "Someone replied to your episode",
//	})
//
// A notification is persisted before it is emitted. Emit failures are logged
// and never roll back the stored record; clients that were offline catch up
// through List.
//
// # Queue Integration
//
// NewSendHandler returns a queue handler for SendPayload jobs. Storage.Create
// is idempotent by notification id, so redelivered jobs do not duplicate rows.
//
//	worker.RegisterHandler(notifications.NewSendHandler(manager))
//	_ = enqueuer.Enqueue(ctx, notifications.SendPayload{...}, queue.WithQueue("notifications"))
package notifications
