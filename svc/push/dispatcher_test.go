package push_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/provider"
	"github.com/dmitrymomot/pushkit/pkg/ratelimiter"
	"github.com/dmitrymomot/pushkit/pkg/vault"
	"github.com/dmitrymomot/pushkit/svc/push"
)

func TestSendPushRequiresEnabledConfig(t *testing.T) {
	t.Parallel()

	t.Run("missing config", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		log, err := f.dispatcher.SendPush(context.Background(), tenant, push.SendRequest{
			Title: "hi", Body: "there", TargetType: push.TargetAll,
		})
		require.ErrorIs(t, err, push.ErrConfigDisabled)
		assert.Nil(t, log)
		assert.Zero(t, f.provider.calls())
	})

	t.Run("disabled config", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.enable(t, func(c *push.TenantPushConfig) { c.Enabled = false })

		_, err := f.dispatcher.SendPush(context.Background(), tenant, push.SendRequest{
			Title: "hi", Body: "there", TargetType: push.TargetAll,
		})
		require.ErrorIs(t, err, push.ErrConfigDisabled)
	})
}

func TestSendPushValidatesTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  push.SendRequest
	}{
		{"topic without topic", push.SendRequest{Title: "t", Body: "b", TargetType: push.TargetTopic}},
		{"segment without segment", push.SendRequest{Title: "t", Body: "b", TargetType: push.TargetSegment}},
		{"user ids without users", push.SendRequest{Title: "t", Body: "b", TargetType: push.TargetUserIDs}},
		{"unknown target", push.SendRequest{Title: "t", Body: "b", TargetType: "EVERYONE"}},
		{"missing body", push.SendRequest{Title: "t", TargetType: push.TargetAll}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.enable(t)

			log, err := f.dispatcher.SendPush(context.Background(), tenant, tt.req)
			require.ErrorIs(t, err, push.ErrBadRequest)
			assert.Nil(t, log)
			assert.Zero(t, f.provider.calls())

			stats, err := f.dispatcher.GetStats(context.Background(), tenant)
			require.NoError(t, err)
			assert.Zero(t, stats.Total.Sent)
		})
	}
}

func TestSendPushExcludesDisabledUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enable(t)

	f.device(t, "alice", "token-alice")
	f.device(t, "bob", "token-bob")
	f.device(t, "carol", "token-carol")
	f.settings(t, "bob", push.SettingsPatch{EnablePush: ptr(false)})

	t.Run("user ids", func(t *testing.T) {
		log, err := f.dispatcher.SendPush(ctx, tenant, push.SendRequest{
			Title:      "hi",
			Body:       "there",
			TargetType: push.TargetUserIDs,
			UserIDs:    []string{"alice", "bob"},
		})
		require.NoError(t, err)
		assert.Equal(t, push.StatusSent, log.Status)
		assert.Equal(t, 1, log.TotalRecipients)
		assert.Equal(t, 1, log.SuccessCount)
		require.NotEmpty(t, f.provider.deviceCalls)
		assert.Equal(t, []string{"token-alice"}, f.provider.deviceCalls[len(f.provider.deviceCalls)-1])
	})

	t.Run("all", func(t *testing.T) {
		log, err := f.dispatcher.SendPush(ctx, tenant, push.SendRequest{
			Body:       "there",
			TargetType: push.TargetAll,
		})
		require.NoError(t, err)
		assert.Equal(t, "Podcasts", log.Title, "falls back to the default title")
		assert.Equal(t, 2, log.TotalRecipients)
		assert.ElementsMatch(t, []string{"token-alice", "token-carol"}, f.provider.deviceCalls[len(f.provider.deviceCalls)-1])
	})
}

func TestSendPushEmptyAudienceIsSent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enable(t)

	f.device(t, "alice", "token-alice")
	f.device(t, "bob", "token-bob")
	f.settings(t, "alice", push.SettingsPatch{EnablePush: ptr(false)})
	f.settings(t, "bob", push.SettingsPatch{EnablePush: ptr(false)})

	log, err := f.dispatcher.SendPush(ctx, tenant, push.SendRequest{
		Title:      "hi",
		Body:       "there",
		TargetType: push.TargetUserIDs,
		UserIDs:    []string{"alice", "bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, push.StatusSent, log.Status)
	assert.Zero(t, log.SuccessCount)
	assert.Zero(t, log.FailureCount)
	assert.NotNil(t, log.SentAt)
	assert.Zero(t, f.provider.calls())
}

func TestSendPushQuietHours(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enable(t)

	// The fixture clock is 12:00 UTC.
	f.device(t, "alice", "token-alice")
	f.device(t, "bob", "token-bob")
	f.settings(t, "alice", push.SettingsPatch{
		QuietHoursEnabled: ptr(true),
		QuietHoursStart:   ptr("11:00"),
		QuietHoursEnd:     ptr("13:00"),
	})

	log, err := f.dispatcher.SendPush(ctx, tenant, push.SendRequest{
		Title: "hi", Body: "there", TargetType: push.TargetUserIDs, UserIDs: []string{"alice", "bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, push.StatusSent, log.Status)
	assert.Equal(t, []string{"token-bob"}, f.provider.deviceCalls[0])

	log, err = f.dispatcher.SendPush(ctx, tenant, push.SendRequest{
		Title: "hi", Body: "there", TargetType: push.TargetUserIDs, UserIDs: []string{"alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, push.StatusSuppressed, log.Status)
	assert.Equal(t, 1, f.provider.calls())
}

func TestSendPushScheduled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enable(t)
	f.device(t, "alice", "token-alice")

	at := f.clock.Now().Add(time.Hour)
	log, err := f.dispatcher.SendPush(ctx, tenant, push.SendRequest{
		Title:       "later",
		Body:        "scheduled",
		TargetType:  push.TargetUserIDs,
		UserIDs:     []string{"alice"},
		ScheduledAt: &at,
	})
	require.NoError(t, err)
	assert.Equal(t, push.StatusQueued, log.Status)
	assert.Zero(t, f.provider.calls())

	n, err := f.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "not due yet")

	f.clock.Advance(time.Hour)
	n, err = f.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.provider.calls())

	stored, err := f.dispatcher.GetLog(ctx, tenant, log.ID)
	require.NoError(t, err)
	assert.Equal(t, push.StatusSent, stored.Status)
	assert.Equal(t, 1, stored.SuccessCount)

	n, err = f.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "claimed logs are not claimed twice")
}

func TestCancelScheduled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enable(t)

	at := f.clock.Now().Add(time.Hour)
	log, err := f.dispatcher.SendPush(ctx, tenant, push.SendRequest{
		Title: "later", Body: "b", TargetType: push.TargetTopic, Topic: "news", ScheduledAt: &at,
	})
	require.NoError(t, err)

	cancelled, err := f.dispatcher.CancelScheduled(ctx, tenant, log.ID)
	require.NoError(t, err)
	assert.Equal(t, push.StatusCancelled, cancelled.Status)

	_, err = f.dispatcher.CancelScheduled(ctx, tenant, log.ID)
	require.ErrorIs(t, err, push.ErrInvalidStatus)

	_, err = f.dispatcher.CancelScheduled(ctx, "other-tenant", log.ID)
	require.ErrorIs(t, err, push.ErrNotFound)

	f.clock.Advance(2 * time.Hour)
	n, err := f.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.provider.calls())
}

func TestSendPushTopicAndSegment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enable(t)

	log, err := f.dispatcher.SendPush(ctx, tenant, push.SendRequest{
		Title: "t", Body: "b", TargetType: push.TargetTopic, Topic: "breaking",
	})
	require.NoError(t, err)
	assert.Equal(t, push.StatusSent, log.Status)
	assert.Equal(t, []string{"breaking"}, log.TargetIDs)
	assert.Equal(t, "topic-msg", log.ProviderMessageID)

	_, err = f.dispatcher.SendPush(ctx, tenant, push.SendRequest{
		Title: "t", Body: "b", TargetType: push.TargetSegment, Segment: "Active Users",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"breaking", "Active Users"}, f.provider.topicCalls)
}

func TestSendPushProviderNotReady(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enable(t)
	f.device(t, "alice", "token-alice")
	f.provider.initErr = provider.ErrInvalidCredentials

	log, err := f.dispatcher.SendPush(ctx, tenant, push.SendRequest{
		Title: "t", Body: "b", TargetType: push.TargetAll,
	})
	require.ErrorIs(t, err, push.ErrProviderNotReady)
	require.NotNil(t, log)
	assert.Equal(t, push.StatusFailed, log.Status)
	assert.NotEmpty(t, log.Error)
	assert.Zero(t, f.provider.calls())

	stored, err := f.dispatcher.GetLog(ctx, tenant, log.ID)
	require.NoError(t, err)
	assert.Equal(t, push.StatusFailed, stored.Status)
}

func TestSendPushCorruptedCredentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enable(t, func(c *push.TenantPushConfig) {
		c.OneSignalAPIKey = "AAAA:BBBB:CCCC"
	})
	f.device(t, "alice", "token-alice")

	log, err := f.dispatcher.SendPush(ctx, tenant, push.SendRequest{
		Title: "t", Body: "b", TargetType: push.TargetAll,
	})
	require.ErrorIs(t, err, vault.ErrDecryption)
	assert.Equal(t, push.StatusFailed, log.Status)
	assert.NotContains(t, log.Error, "AAAA:BBBB:CCCC")
	assert.Zero(t, f.provider.calls())
}

func TestSendPushProviderFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enable(t)
	f.device(t, "alice", "token-alice")
	f.provider.result = func(tokens []string) provider.SendResult {
		return provider.SendResult{FailureCount: len(tokens), Error: "upstream 503"}
	}

	log, err := f.dispatcher.SendPush(ctx, tenant, push.SendRequest{
		Title: "t", Body: "b", TargetType: push.TargetAll,
	})
	require.ErrorIs(t, err, push.ErrProviderSend)
	assert.Equal(t, push.StatusFailed, log.Status)
	assert.Equal(t, 1, log.FailureCount)
	assert.Equal(t, "upstream 503", log.Error)
}

func TestSendPushPartialSuccessDeactivatesInvalidTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enable(t)
	f.device(t, "alice", "token-alice")
	f.device(t, "bob", "token-bob-gone")
	f.provider.result = func(tokens []string) provider.SendResult {
		return provider.SendResult{
			Success:       true,
			SuccessCount:  len(tokens) - 1,
			FailureCount:  1,
			InvalidTokens: []string{"token-bob-gone"},
		}
	}

	log, err := f.dispatcher.SendPush(ctx, tenant, push.SendRequest{
		Title: "t", Body: "b", TargetType: push.TargetAll,
	})
	require.NoError(t, err)
	assert.Equal(t, push.StatusSent, log.Status)
	assert.Equal(t, 2, log.TotalRecipients)
	assert.Equal(t, 1, log.SuccessCount)
	assert.Equal(t, 1, log.FailureCount)

	active, err := f.registry.ListActiveDevices(ctx, tenant, "")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "token-alice", active[0].Token)
}

func TestSendPushRateLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	limits := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(limits.Close)

	f := newFixture(t, push.WithRateLimitStore(limits))
	f.enable(t, func(c *push.TenantPushConfig) { c.RateLimitPerMinute = 2 })
	f.device(t, "alice", "token-alice")

	req := push.SendRequest{Title: "t", Body: "b", TargetType: push.TargetAll}
	for range 2 {
		_, err := f.dispatcher.SendPush(ctx, tenant, req)
		require.NoError(t, err)
	}

	log, err := f.dispatcher.SendPush(ctx, tenant, req)
	require.ErrorIs(t, err, push.ErrRateLimited)
	assert.Equal(t, push.StatusFailed, log.Status)
	assert.Equal(t, 2, f.provider.calls())
}

func TestSendPushTracksAnalytics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enable(t)
	f.device(t, "alice", "token-alice")

	log, err := f.dispatcher.SendPush(ctx, tenant, push.SendRequest{
		Title: "t", Body: "b", TargetType: push.TargetAll, CreatedBy: "admin-1",
	})
	require.NoError(t, err)

	require.Len(t, f.tracker.events, 1)
	e := f.tracker.events[0]
	assert.Equal(t, push.EventDispatched, e.Name)
	assert.Equal(t, log.ID, e.ID)
	assert.Equal(t, tenant, e.TenantID)
	assert.Equal(t, "admin-1", e.UserID)
	assert.Equal(t, string(push.StatusSent), e.Properties["status"])
}

func TestProviderIsInitializedOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enable(t)
	f.device(t, "alice", "token-alice")

	for range 3 {
		_, err := f.dispatcher.SendPush(ctx, tenant, push.SendRequest{Title: "t", Body: "b", TargetType: push.TargetAll})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.provider.initCount())
	assert.Equal(t, "onesignal-api-key", f.provider.creds.OneSignalAPIKey)

	// A config saved elsewhere changes the stored ciphertext.
	f.enable(t)
	_, err := f.dispatcher.SendPush(ctx, tenant, push.SendRequest{Title: "t", Body: "b", TargetType: push.TargetAll})
	require.NoError(t, err)
	assert.Equal(t, 2, f.provider.initCount())
}

func TestLogStatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to push.LogStatus
		ok       bool
	}{
		{push.StatusQueued, push.StatusPending, true},
		{push.StatusQueued, push.StatusCancelled, true},
		{push.StatusPending, push.StatusSent, true},
		{push.StatusPending, push.StatusFailed, true},
		{push.StatusPending, push.StatusSuppressed, true},
		{push.StatusPending, push.StatusQueued, true},
		{push.StatusQueued, push.StatusSent, false},
		{push.StatusSent, push.StatusFailed, false},
		{push.StatusCancelled, push.StatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, push.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.True(t, push.StatusSent.Final())
	assert.False(t, push.StatusQueued.Final())
}

func TestDispatchDueFailsDisabledTenant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enable(t)

	at := f.clock.Now().Add(time.Minute)
	log, err := f.dispatcher.SendPush(ctx, tenant, push.SendRequest{
		Title: "t", Body: "b", TargetType: push.TargetAll, ScheduledAt: &at,
	})
	require.NoError(t, err)

	f.enable(t, func(c *push.TenantPushConfig) { c.Enabled = false })
	f.clock.Advance(time.Minute)

	n, err := f.dispatcher.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := f.dispatcher.GetLog(ctx, tenant, log.ID)
	require.NoError(t, err)
	assert.Equal(t, push.StatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "not enabled")
}

// ctxBoundStore fails ledger writes once ctx is done, as a database driver does.
type ctxBoundStore struct {
	*push.MemoryStore
}

func (s ctxBoundStore) CompleteLog(ctx context.Context, l *push.PushNotificationLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.CompleteLog(ctx, l)
}

func (s ctxBoundStore) TransitionLog(ctx context.Context, tenantID, logID string, from, to push.LogStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.TransitionLog(ctx, tenantID, logID, from, to)
}

func (s ctxBoundStore) DeactivateTokens(ctx context.Context, tenantID string, tokens []string, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.MemoryStore.DeactivateTokens(ctx, tenantID, tokens, at)
}

func TestDispatchDueReleasesClaimsWhenContextEnds(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enable(t)
	f.device(t, "alice", "token-alice")

	at := f.clock.Now().Add(time.Minute)
	ids := make([]string, 0, 3)
	for range 3 {
		log, err := f.dispatcher.SendPush(context.Background(), tenant, push.SendRequest{
			Title: "t", Body: "b", TargetType: push.TargetAll, ScheduledAt: &at,
		})
		require.NoError(t, err)
		ids = append(ids, log.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.provider.result = func(tokens []string) provider.SendResult {
		cancel()
		return provider.SendResult{Success: true, SuccessCount: len(tokens), MessageID: "msg-1"}
	}
	d := push.NewDispatcher(ctxBoundStore{f.store}, f.audience, f.providers,
		push.WithLogger(logger.Discard()),
		push.WithClock(f.clock.Now),
	)
	f.clock.Advance(time.Minute)

	n, err := d.DispatchDue(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, f.provider.calls())

	sent, err := d.GetLog(context.Background(), tenant, ids[0])
	require.NoError(t, err)
	assert.Equal(t, push.StatusSent, sent.Status, "attempted log is settled")
	assert.NotNil(t, sent.SentAt)
	for _, id := range ids[1:] {
		l, err := d.GetLog(context.Background(), tenant, id)
		require.NoError(t, err)
		assert.Equal(t, push.StatusQueued, l.Status, "unattempted log is released")
	}

	n, err = d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, id := range ids {
		l, err := d.GetLog(context.Background(), tenant, id)
		require.NoError(t, err)
		assert.Equal(t, push.StatusSent, l.Status)
	}
}

func TestSendPushSettlesLogAfterCallerCancels(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.enable(t)
	f.device(t, "alice", "token-alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.provider.result = func(tokens []string) provider.SendResult {
		cancel()
		return provider.SendResult{Success: true, SuccessCount: len(tokens), MessageID: "msg-1"}
	}
	d := push.NewDispatcher(ctxBoundStore{f.store}, f.audience, f.providers,
		push.WithLogger(logger.Discard()),
		push.WithClock(f.clock.Now),
	)

	log, err := d.SendPush(ctx, tenant, push.SendRequest{
		Title: "t", Body: "b", TargetType: push.TargetAll,
	})
	require.NoError(t, err)

	stored, err := d.GetLog(context.Background(), tenant, log.ID)
	require.NoError(t, err)
	assert.Equal(t, push.StatusSent, stored.Status)
	assert.Equal(t, 1, stored.SuccessCount)
}

func TestFailedLogCarriesSentAt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.enable(t)
	f.device(t, "alice", "token-alice")
	f.provider.result = func(tokens []string) provider.SendResult {
		return provider.SendResult{FailureCount: len(tokens), Error: "upstream 503"}
	}

	log, err := f.dispatcher.SendPush(ctx, tenant, push.SendRequest{
		Title: "t", Body: "b", TargetType: push.TargetAll,
	})
	require.ErrorIs(t, err, push.ErrProviderSend)

	stored, err := f.dispatcher.GetLog(ctx, tenant, log.ID)
	require.NoError(t, err)
	assert.Equal(t, push.StatusFailed, stored.Status)
	require.NotNil(t, stored.SentAt)
	assert.Equal(t, f.clock.Now(), *stored.SentAt)
}
