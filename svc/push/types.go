package push

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dmitrymomot/pushkit/pkg/provider"
)

// TenantPushConfig is the provider configuration of one tenant. The secret
// fields OneSignalAPIKey, FirebaseCredentials and VAPIDPrivateKey always hold
// vault tokens, never plaintext.
type TenantPushConfig struct {
	TenantID string
	Provider provider.Kind
	Enabled  bool

	OneSignalAppID  string
	OneSignalAPIKey string

	FirebaseProjectID   string
	FirebaseCredentials string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	DefaultTitle string
	DefaultIcon  string
	DefaultBadge string

	RateLimitPerMinute int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Platform is the kind of device a token belongs to.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return true
	}
	return false
}

// UserDevice is a push endpoint owned by a user. Token is unique per tenant.
// Web devices store the JSON push subscription as the token.
type UserDevice struct {
	ID           string
	TenantID     string
	UserID       string
	Token        string
	Platform     Platform
	DeviceName   string
	AppVersion   string
	OSVersion    string
	IsActive     bool
	LastActiveAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DeviceInput is the client-supplied part of a device registration.
type DeviceInput struct {
	Token      string   `json:"token"`
	Platform   Platform `json:"platform"`
	DeviceName string   `json:"device_name,omitempty"`
	AppVersion string   `json:"app_version,omitempty"`
	OSVersion  string   `json:"os_version,omitempty"`
}

func (in DeviceInput) Validate() error {
	if strings.TrimSpace(in.Token) == "" {
		return fmt.Errorf("%w: device token is required", ErrBadRequest)
	}
	if !in.Platform.Valid() {
		return fmt.Errorf("%w: unknown platform %q", ErrBadRequest, in.Platform)
	}
	return nil
}

// Category is a notification category a user can opt out of.
type Category string

const (
	CategoryNewEpisodes Category = "new_episodes"
	CategoryComments    Category = "comments"
	CategoryLikes       Category = "likes"
	CategoryFollows     Category = "follows"
	CategorySystem      Category = "system"
	CategoryMarketing   Category = "marketing"
)

// UserPushSettings holds one user's push preferences. Quiet hours are
// "HH:MM" wall clock times in Timezone; the window may wrap midnight.
type UserPushSettings struct {
	TenantID          string
	UserID            string
	EnablePush        bool
	NewEpisodes       bool
	Comments          bool
	Likes             bool
	Follows           bool
	System            bool
	Marketing         bool
	QuietHoursEnabled bool
	QuietHoursStart   string
	QuietHoursEnd     string
	Timezone          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DefaultSettings returns the settings a user gets on first use: everything
// enabled, quiet hours off.
func DefaultSettings(tenantID, userID string, now time.Time) UserPushSettings {
	return UserPushSettings{
		TenantID:        tenantID,
		UserID:          userID,
		EnablePush:      true,
		NewEpisodes:     true,
		Comments:        true,
		Likes:           true,
		Follows:         true,
		System:          true,
		Marketing:       true,
		QuietHoursStart: "22:00",
		QuietHoursEnd:   "08:00",
		Timezone:        "UTC",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Allows reports whether the user accepts pushes of category c. The master
// switch wins over every category.
func (s UserPushSettings) Allows(c Category) bool {
	return s.EnablePush && s.Wants(c)
}

// Wants reports the category toggle alone, ignoring the master switch.
func (s UserPushSettings) Wants(c Category) bool {
	switch c {
	case CategoryNewEpisodes:
		return s.NewEpisodes
	case CategoryComments:
		return s.Comments
	case CategoryLikes:
		return s.Likes
	case CategoryFollows:
		return s.Follows
	case CategorySystem:
		return s.System
	case CategoryMarketing:
		return s.Marketing
	}
	return false
}

// SettingsPatch updates the non-nil fields of UserPushSettings.
type SettingsPatch struct {
	EnablePush        *bool   `json:"enable_push,omitempty"`
	NewEpisodes       *bool   `json:"new_episodes,omitempty"`
	Comments          *bool   `json:"comments,omitempty"`
	Likes             *bool   `json:"likes,omitempty"`
	Follows           *bool   `json:"follows,omitempty"`
	System            *bool   `json:"system,omitempty"`
	Marketing         *bool   `json:"marketing,omitempty"`
	QuietHoursEnabled *bool   `json:"quiet_hours_enabled,omitempty"`
	QuietHoursStart   *string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd     *string `json:"quiet_hours_end,omitempty"`
	Timezone          *string `json:"timezone,omitempty"`
}

func (p SettingsPatch) apply(s *UserPushSettings) {
	setIf(&s.EnablePush, p.EnablePush)
	setIf(&s.NewEpisodes, p.NewEpisodes)
	setIf(&s.Comments, p.Comments)
	setIf(&s.Likes, p.Likes)
	setIf(&s.Follows, p.Follows)
	setIf(&s.System, p.System)
	setIf(&s.Marketing, p.Marketing)
	setIf(&s.QuietHoursEnabled, p.QuietHoursEnabled)
	setIf(&s.QuietHoursStart, p.QuietHoursStart)
	setIf(&s.QuietHoursEnd, p.QuietHoursEnd)
	setIf(&s.Timezone, p.Timezone)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// LogStatus is the state of a PushNotificationLog.
type LogStatus string

const (
	StatusPending    LogStatus = "PENDING"
	StatusQueued     LogStatus = "QUEUED"
	StatusSent       LogStatus = "SENT"
	StatusFailed     LogStatus = "FAILED"
	StatusCancelled  LogStatus = "CANCELLED"
	StatusSuppressed LogStatus = "SUPPRESSED"
)

// PENDING to QUEUED releases a sweep claim that was never attempted.
var transitions = map[LogStatus][]LogStatus{
	StatusQueued:  {StatusPending, StatusCancelled},
	StatusPending: {StatusSent, StatusFailed, StatusSuppressed, StatusQueued},
}

// CanTransition reports whether a log may move from one status to another.
func CanTransition(from, to LogStatus) bool {
	return slices.Contains(transitions[from], to)
}

// Final reports whether s is a terminal status.
func (s LogStatus) Final() bool {
	return len(transitions[s]) == 0
}

// TargetType selects how a send resolves its recipients.
type TargetType string

const (
	TargetAll     TargetType = "ALL"
	TargetUserIDs TargetType = "USER_IDS"
	TargetTopic   TargetType = "TOPIC"
	TargetSegment TargetType = "SEGMENT"
)

func (t TargetType) Valid() bool {
	switch t {
	case TargetAll, TargetUserIDs, TargetTopic, TargetSegment:
		return true
	}
	return false
}

// PushNotificationLog is the ledger row of one dispatch attempt.
type PushNotificationLog struct {
	ID                string
	TenantID          string
	Title             string
	Body              string
	ImageURL          string
	Data              map[string]any
	TargetType        TargetType
	TargetIDs         []string
	TotalRecipients   int
	SuccessCount      int
	FailureCount      int
	Status            LogStatus
	ProviderMessageID string
	Error             string
	ScheduledAt       *time.Time
	SentAt            *time.Time
	CreatedBy         string
	CreatedAt         time.Time
}

// SendRequest asks for one push dispatch. UserIDs, Topic or Segment is
// required for the matching TargetType.
type SendRequest struct {
	Title       string         `json:"title,omitempty"`
	Body        string         `json:"body"`
	ImageURL    string         `json:"image_url,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	TargetType  TargetType     `json:"target_type"`
	UserIDs     []string       `json:"user_ids,omitempty"`
	Topic       string         `json:"topic,omitempty"`
	Segment     string         `json:"segment,omitempty"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	CreatedBy   string         `json:"created_by,omitempty"`
}

func (r SendRequest) Validate() error {
	if strings.TrimSpace(r.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrBadRequest)
	}
	switch r.TargetType {
	case TargetAll:
	case TargetUserIDs:
		if len(r.UserIDs) == 0 {
			return fmt.Errorf("%w: user_ids are required for %s target", ErrBadRequest, r.TargetType)
		}
	case TargetTopic:
		if strings.TrimSpace(r.Topic) == "" {
			return fmt.Errorf("%w: topic is required for %s target", ErrBadRequest, r.TargetType)
		}
	case TargetSegment:
		if strings.TrimSpace(r.Segment) == "" {
			return fmt.Errorf("%w: segment is required for %s target", ErrBadRequest, r.TargetType)
		}
	default:
		return fmt.Errorf("%w: unknown target type %q", ErrBadRequest, r.TargetType)
	}
	return nil
}

func (r SendRequest) targetIDs() []string {
	switch r.TargetType {
	case TargetUserIDs:
		return slices.Compact(slices.Sorted(slices.Values(r.UserIDs)))
	case TargetTopic:
		return []string{r.Topic}
	case TargetSegment:
		return []string{r.Segment}
	}
	return nil
}

// Role is the actor's role inside the tenant.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEditor   Role = "editor"
	RoleCreator  Role = "creator"
	RoleListener Role = "listener"
)

// Actor is the authenticated caller of an authorization sensitive operation.
type Actor struct {
	TenantID string
	UserID   string
	Role     Role
}

func (a Actor) canBroadcast() bool {
	switch a.Role {
	case RoleAdmin, RoleEditor, RoleCreator:
		return true
	}
	return false
}

// CreatorBroadcast is a creator's message to the followers of one podcast,
// or of every podcast they own when PodcastID is empty.
type CreatorBroadcast struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	ImageURL  string `json:"image_url,omitempty"`
	PodcastID string `json:"podcast_id,omitempty"`
}

// LedgerTotals are the summed counts of a set of log rows.
type LedgerTotals struct {
	Sent      int64
	Delivered int64
	Failed    int64
}

// WindowStats are the totals of one time window plus the delivery rate in
// percent, rounded to two decimals.
type WindowStats struct {
	Sent         int64   `json:"sent"`
	Delivered    int64   `json:"delivered"`
	Failed       int64   `json:"failed"`
	DeliveryRate float64 `json:"delivery_rate"`
}

// DeliveryStats summarizes a tenant's ledger.
type DeliveryStats struct {
	Total   WindowStats `json:"total"`
	Last24h WindowStats `json:"last_24h"`
	Last7d  WindowStats `json:"last_7d"`
}
