package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/pushkit/pkg/analytics"
	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/provider"
	"github.com/dmitrymomot/pushkit/pkg/ratelimiter"
)

// EventDispatched is the analytics event recorded for every completed dispatch.
const EventDispatched = "push.dispatched"

// Dispatcher resolves send requests into provider calls and keeps the
// delivery ledger.
type Dispatcher struct {
	store     Store
	audience  Audience
	providers *ProviderCache
	limits    ratelimiter.Store
	tracker   Tracker
	logger    *slog.Logger
	now       func() time.Time
	batch     int
}

func NewDispatcher(store Store, audience Audience, providers *ProviderCache, opts ...Option) *Dispatcher {
	o := newOptions(opts)
	return &Dispatcher{
		store:     store,
		audience:  audience,
		providers: providers,
		limits:    o.limits,
		tracker:   o.tracker,
		logger:    o.logger.With(logger.Component("push.dispatcher")),
		now:       o.now,
		batch:     o.scheduleBatch,
	}
}

// SendPush dispatches req to the tenant's devices.
//
// A log row is written before anything can fail past validation, so every
// attempt is auditable. A ScheduledAt in the future leaves the log QUEUED and
// returns without calling the provider. Otherwise the returned log carries
// the terminal status; a FAILED log is returned together with the error.
func (d *Dispatcher) SendPush(ctx context.Context, tenantID string, req SendRequest) (*PushNotificationLog, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant is required", ErrBadRequest)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cfg, err := d.enabledConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	title := req.Title
	if title == "" {
		title = cfg.DefaultTitle
	}
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrBadRequest)
	}

	now := d.now().UTC()
	entry := &PushNotificationLog{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Title:       title,
		Body:        req.Body,
		ImageURL:    req.ImageURL,
		Data:        req.Data,
		TargetType:  req.TargetType,
		TargetIDs:   req.targetIDs(),
		Status:      StatusPending,
		ScheduledAt: req.ScheduledAt,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
	}
	if req.ScheduledAt != nil && req.ScheduledAt.After(now) {
		entry.Status = StatusQueued
	}

	if err := d.store.CreateLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("create push log: %w", err)
	}

	if entry.Status == StatusQueued {
		d.logger.InfoContext(ctx, "push scheduled",
			logger.TenantID(tenantID),
			logger.LogID(entry.ID),
			slog.Time("scheduled_at", *entry.ScheduledAt),
		)
		return entry, nil
	}
	return d.deliver(ctx, cfg, entry)
}

// DispatchDue claims QUEUED logs whose time has come and delivers them. It
// returns how many logs were claimed. Delivery failures are recorded on the
// logs and do not fail the sweep. When ctx ends mid-batch the logs not yet
// attempted go back to QUEUED and the ctx error is returned.
func (d *Dispatcher) DispatchDue(ctx context.Context) (int, error) {
	due, err := d.store.ClaimDueLogs(ctx, d.now().UTC(), d.batch)
	if err != nil {
		return 0, fmt.Errorf("claim due pushes: %w", err)
	}

	for i := range due {
		if err := ctx.Err(); err != nil {
			d.release(ctx, due[i:])
			return len(due), fmt.Errorf("dispatch due pushes: %w", err)
		}
		entry := &due[i]
		cfg, err := d.enabledConfig(ctx, entry.TenantID)
		if err != nil {
			_, err = d.fail(ctx, entry, err)
		} else {
			_, err = d.deliver(ctx, cfg, entry)
		}
		if err != nil {
			d.logger.WarnContext(ctx, "scheduled push failed",
				logger.TenantID(entry.TenantID),
				logger.LogID(entry.ID),
				logger.Error(err),
			)
		}
	}
	return len(due), nil
}

// release hands claimed but unattempted logs back to the next sweep.
func (d *Dispatcher) release(ctx context.Context, logs []PushNotificationLog) {
	ctx = context.WithoutCancel(ctx)
	for _, l := range logs {
		if err := d.store.TransitionLog(ctx, l.TenantID, l.ID, StatusPending, StatusQueued); err != nil {
			d.logger.ErrorContext(ctx, "failed to release scheduled push",
				logger.TenantID(l.TenantID),
				logger.LogID(l.ID),
				logger.Error(err),
			)
		}
	}
	d.logger.WarnContext(ctx, "sweep interrupted, scheduled pushes released",
		slog.Int("count", len(logs)),
	)
}

// CancelScheduled cancels a QUEUED log. Logs already claimed or completed
// fail with ErrInvalidStatus.
func (d *Dispatcher) CancelScheduled(ctx context.Context, tenantID, logID string) (*PushNotificationLog, error) {
	if err := d.store.TransitionLog(ctx, tenantID, logID, StatusQueued, StatusCancelled); err != nil {
		if errors.Is(err, ErrInvalidStatus) {
			return nil, fmt.Errorf("%w: log %s is not scheduled", ErrInvalidStatus, logID)
		}
		return nil, err
	}
	d.logger.InfoContext(ctx, "scheduled push cancelled",
		logger.TenantID(tenantID),
		logger.LogID(logID),
	)
	return d.store.GetLog(ctx, tenantID, logID)
}

// GetLog returns one ledger row.
func (d *Dispatcher) GetLog(ctx context.Context, tenantID, logID string) (*PushNotificationLog, error) {
	return d.store.GetLog(ctx, tenantID, logID)
}

func (d *Dispatcher) enabledConfig(ctx context.Context, tenantID string) (*TenantPushConfig, error) {
	cfg, err := d.store.GetConfig(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrConfigDisabled
		}
		return nil, fmt.Errorf("load push config: %w", err)
	}
	if !cfg.Enabled {
		return nil, ErrConfigDisabled
	}
	return cfg, nil
}

// deliver runs a PENDING log to completion.
func (d *Dispatcher) deliver(ctx context.Context, cfg *TenantPushConfig, entry *PushNotificationLog) (*PushNotificationLog, error) {
	if err := d.takeToken(ctx, cfg); err != nil {
		return d.fail(ctx, entry, err)
	}

	msg := provider.Message{
		Title:    entry.Title,
		Body:     entry.Body,
		ImageURL: entry.ImageURL,
		Icon:     cfg.DefaultIcon,
		Badge:    cfg.DefaultBadge,
		Data:     entry.Data,
	}

	var (
		tokens []string
		topic  string
	)
	switch entry.TargetType {
	case TargetTopic, TargetSegment:
		if len(entry.TargetIDs) == 0 || entry.TargetIDs[0] == "" {
			return d.fail(ctx, entry, fmt.Errorf("%w: %s target without name", ErrBadRequest, entry.TargetType))
		}
		topic = entry.TargetIDs[0]
	default:
		aud, err := d.resolve(ctx, entry)
		if err != nil {
			return d.fail(ctx, entry, err)
		}
		if len(aud.tokens) == 0 {
			entry.Status = StatusSent
			if aud.quiet > 0 && aud.disabled == 0 {
				entry.Status = StatusSuppressed
			}
			return d.complete(ctx, entry)
		}
		tokens = aud.tokens
	}

	p, err := d.providers.Get(ctx, cfg)
	if err != nil {
		return d.fail(ctx, entry, err)
	}

	var result provider.SendResult
	if topic != "" {
		result = p.SendToTopic(ctx, topic, msg)
		entry.TotalRecipients = result.SuccessCount + result.FailureCount
	} else {
		result = p.SendToDevices(ctx, tokens, msg)
		entry.TotalRecipients = len(tokens)
	}

	entry.SuccessCount = result.SuccessCount
	entry.FailureCount = result.FailureCount
	entry.ProviderMessageID = result.MessageID
	entry.Error = result.Error
	entry.Status = StatusSent
	if !result.Success {
		entry.Status = StatusFailed
	}

	if len(result.InvalidTokens) > 0 {
		d.deactivate(ctx, entry.TenantID, result.InvalidTokens)
	}

	entry, err = d.complete(ctx, entry)
	if err != nil {
		return entry, err
	}
	if entry.Status == StatusFailed {
		return entry, fmt.Errorf("%w: %s", ErrProviderSend, result.Error)
	}
	return entry, nil
}

// takeToken spends one token of the tenant's per-minute ceiling. A limiter
// outage lets the send through.
func (d *Dispatcher) takeToken(ctx context.Context, cfg *TenantPushConfig) error {
	if d.limits == nil || cfg.RateLimitPerMinute <= 0 {
		return nil
	}
	bucket, err := ratelimiter.NewBucket(d.limits, ratelimiter.PerMinute(cfg.RateLimitPerMinute))
	if err != nil {
		return fmt.Errorf("rate limit config: %w", err)
	}
	res, err := bucket.Allow(ctx, "push:"+cfg.TenantID)
	if err != nil {
		d.logger.WarnContext(ctx, "rate limiter unavailable, sending without limit",
			logger.TenantID(cfg.TenantID),
			logger.Error(err),
		)
		return nil
	}
	if !res.Allowed() {
		return fmt.Errorf("%w: retry after %s", ErrRateLimited, res.RetryAfter().Round(time.Second))
	}
	return nil
}

type recipients struct {
	tokens   []string
	disabled int // users excluded by their push switch
	quiet    int // users excluded by quiet hours
}

// resolve collects the device tokens of ALL and USER_IDS targets. Users who
// turned push off or are inside their quiet hours are left out.
func (d *Dispatcher) resolve(ctx context.Context, entry *PushNotificationLog) (recipients, error) {
	var users []string
	if entry.TargetType == TargetUserIDs {
		users = entry.TargetIDs
	}
	devices, err := d.store.ListActiveDevices(ctx, entry.TenantID, users)
	if err != nil {
		return recipients{}, fmt.Errorf("resolve devices: %w", err)
	}
	if len(devices) == 0 {
		return recipients{}, nil
	}

	owners := make([]string, 0, len(devices))
	seen := make(map[string]bool, len(devices))
	for _, dev := range devices {
		if !seen[dev.UserID] {
			seen[dev.UserID] = true
			owners = append(owners, dev.UserID)
		}
	}
	settings, err := d.store.ListSettings(ctx, entry.TenantID, owners)
	if err != nil {
		return recipients{}, fmt.Errorf("resolve settings: %w", err)
	}

	now := d.now()
	allowed := make(map[string]bool, len(owners))
	var aud recipients
	for _, user := range owners {
		st, ok := settings[user]
		if !ok {
			st = DefaultSettings(entry.TenantID, user, now)
		}
		switch {
		case !st.EnablePush:
			aud.disabled++
		case st.InQuietHours(now):
			aud.quiet++
		default:
			allowed[user] = true
		}
	}
	for _, dev := range devices {
		if allowed[dev.UserID] {
			aud.tokens = append(aud.tokens, dev.Token)
		}
	}
	return aud, nil
}

func (d *Dispatcher) deactivate(ctx context.Context, tenantID string, tokens []string) {
	ctx = context.WithoutCancel(ctx)
	n, err := d.store.DeactivateTokens(ctx, tenantID, tokens, d.now().UTC())
	if err != nil {
		d.logger.WarnContext(ctx, "failed to deactivate invalid tokens",
			logger.TenantID(tenantID),
			logger.Error(err),
		)
		return
	}
	if n > 0 {
		d.logger.InfoContext(ctx, "deactivated invalid device tokens",
			logger.TenantID(tenantID),
			slog.Int("count", n),
		)
	}
}

// fail marks the log FAILED with cause and returns cause.
func (d *Dispatcher) fail(ctx context.Context, entry *PushNotificationLog, cause error) (*PushNotificationLog, error) {
	entry.Status = StatusFailed
	entry.Error = cause.Error()
	entry, err := d.complete(ctx, entry)
	if err != nil {
		return entry, errors.Join(cause, err)
	}
	return entry, cause
}

// complete writes the terminal outcome of a PENDING log. The write ignores
// cancellation of ctx.
func (d *Dispatcher) complete(ctx context.Context, entry *PushNotificationLog) (*PushNotificationLog, error) {
	if !entry.Status.Final() || !CanTransition(StatusPending, entry.Status) {
		return entry, fmt.Errorf("%w: %s to %s", ErrInvalidStatus, StatusPending, entry.Status)
	}
	ctx = context.WithoutCancel(ctx)
	sentAt := d.now().UTC()
	entry.SentAt = &sentAt
	if err := d.store.CompleteLog(ctx, entry); err != nil {
		return entry, fmt.Errorf("complete push log: %w", err)
	}

	level := slog.LevelInfo
	if entry.Status == StatusFailed {
		level = slog.LevelWarn
	}
	d.logger.LogAttrs(ctx, level, "push dispatched",
		logger.TenantID(entry.TenantID),
		logger.LogID(entry.ID),
		slog.String("status", string(entry.Status)),
		slog.String("target_type", string(entry.TargetType)),
		slog.Int("recipients", entry.TotalRecipients),
		slog.Int("success", entry.SuccessCount),
		slog.Int("failure", entry.FailureCount),
	)

	if d.tracker != nil {
		d.tracker.TrackAsync(ctx, analytics.Event{
			ID:       entry.ID,
			TenantID: entry.TenantID,
			UserID:   entry.CreatedBy,
			Name:     EventDispatched,
			Properties: map[string]any{
				"status":      string(entry.Status),
				"target_type": string(entry.TargetType),
				"recipients":  entry.TotalRecipients,
				"success":     entry.SuccessCount,
				"failure":     entry.FailureCount,
			},
		})
	}
	return entry, nil
}
