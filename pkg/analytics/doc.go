// Package analytics records product events off the request path.
//
// Tracker enqueues events onto the analytics queue; NewInsertHandler drains
// that queue into a Store. MongoStore upserts by event id, so an event that is
// delivered twice is written once.
//
//	tracker := analytics.NewTracker(enqueuer)
//	_ = tracker.Track(ctx, analytics.Event{
//		TenantID: "acme",
//		Name:     "push.dispatched",
//		Properties: map[string]any{"recipients": 12},
//	})
//
//	worker.RegisterHandler(analytics.NewInsertHandler(analytics.NewMongoStore(db)))
package analytics
