package push

import (
	"context"
	"time"
)

// Store persists the push records. Every method is tenant scoped; lookups
// that find nothing return ErrNotFound.
type Store interface {
	GetConfig(ctx context.Context, tenantID string) (*TenantPushConfig, error)
	// SaveConfig inserts or replaces the tenant's config, keeping CreatedAt.
	SaveConfig(ctx context.Context, cfg *TenantPushConfig) error

	// UpsertDevice inserts d or, when the tenant already has its token,
	// reassigns and reactivates the existing row. It returns the stored row.
	UpsertDevice(ctx context.Context, d *UserDevice) (*UserDevice, error)
	GetDevice(ctx context.Context, tenantID, deviceID string) (*UserDevice, error)
	DeactivateDevice(ctx context.Context, tenantID, deviceID string, at time.Time) error
	DeactivateTokens(ctx context.Context, tenantID string, tokens []string, at time.Time) (int, error)
	// ListActiveDevices returns active devices of userIDs, or of every user
	// when userIDs is empty.
	ListActiveDevices(ctx context.Context, tenantID string, userIDs []string) ([]UserDevice, error)

	GetSettings(ctx context.Context, tenantID, userID string) (*UserPushSettings, error)
	// ListSettings returns stored settings keyed by user id. Users without a
	// row are absent from the map.
	ListSettings(ctx context.Context, tenantID string, userIDs []string) (map[string]UserPushSettings, error)
	// CreateSettings stores s unless the user already has settings and
	// returns whichever row is stored.
	CreateSettings(ctx context.Context, s *UserPushSettings) (*UserPushSettings, error)
	SaveSettings(ctx context.Context, s *UserPushSettings) error

	CreateLog(ctx context.Context, l *PushNotificationLog) error
	// CompleteLog writes the outcome of a PENDING log. It fails with
	// ErrInvalidStatus when the stored row is no longer PENDING.
	CompleteLog(ctx context.Context, l *PushNotificationLog) error
	// TransitionLog moves a log from one status to another atomically.
	TransitionLog(ctx context.Context, tenantID, logID string, from, to LogStatus) error
	// ClaimDueLogs moves up to limit QUEUED logs scheduled at or before now to
	// PENDING and returns them. A log is claimed by one caller only.
	ClaimDueLogs(ctx context.Context, now time.Time, limit int) ([]PushNotificationLog, error)
	GetLog(ctx context.Context, tenantID, logID string) (*PushNotificationLog, error)
	// SumLogs totals the logs created at or after since; zero since means all.
	SumLogs(ctx context.Context, tenantID string, since time.Time) (LedgerTotals, error)
}

// Audience answers the podcast ownership and follow lookups creator
// broadcasts and triggers need.
type Audience interface {
	PodcastOwner(ctx context.Context, tenantID, podcastID string) (string, error)
	OwnedPodcasts(ctx context.Context, tenantID, ownerID string) ([]string, error)
	// Followers returns the distinct followers of the given podcasts.
	Followers(ctx context.Context, tenantID string, podcastIDs []string) ([]string, error)
}
