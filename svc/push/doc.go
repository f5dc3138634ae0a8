// Package push is the tenant-scoped push notification service.
//
// It owns four records: the tenant's provider configuration, registered
// devices, per-user push settings and the delivery log. Registry handles
// devices and settings, ConfigService handles provider credentials (always
// stored as vault tokens), Dispatcher resolves recipients and calls the
// tenant's provider, and Triggers turn domain events into queue jobs.
//
// Basic wiring:
//
//	store := push.NewPostgresStore(pool)
//	providers := push.NewProviderCache(v, nil)
//	dispatcher := push.NewDispatcher(store, push.NewPostgresAudience(pool), providers,
//		push.WithRateLimitStore(ratelimiter.NewRedisStore(rdb)),
//		push.WithTracker(tracker),
//	)
//	log, err := dispatcher.SendPush(ctx, tenantID, push.SendRequest{
//		Title:      "New episode",
//		Body:       "Episode 12 is out",
//		TargetType: push.TargetUserIDs,
//		UserIDs:    []string{"u1", "u2"},
//	})
//
// Every dispatch attempt writes one PushNotificationLog row before any
// provider call, so failed sends stay auditable. Sends with a future
// ScheduledAt stay QUEUED until Dispatcher.DispatchDue claims them.
package push
