package push_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/analytics"
	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/provider"
	"github.com/dmitrymomot/pushkit/pkg/vault"
	"github.com/dmitrymomot/pushkit/svc/push"
)

const tenant = "tenant-1"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeProvider struct {
	mu          sync.Mutex
	kind        provider.Kind
	ready       bool
	initErr     error
	inits       int
	creds       provider.Credentials
	result      func(tokens []string) provider.SendResult
	deviceCalls [][]string
	topicCalls  []string
}

func (p *fakeProvider) Kind() provider.Kind { return p.kind }

func (p *fakeProvider) Initialize(_ context.Context, creds provider.Credentials) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inits++
	p.creds = creds
	if p.initErr != nil {
		p.ready = false
		return p.initErr
	}
	p.ready = true
	return nil
}

func (p *fakeProvider) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *fakeProvider) SendToDevices(_ context.Context, tokens []string, _ provider.Message) provider.SendResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deviceCalls = append(p.deviceCalls, slices.Clone(tokens))
	if p.result != nil {
		return p.result(tokens)
	}
	return provider.SendResult{Success: true, SuccessCount: len(tokens), MessageID: "msg-1"}
}

func (p *fakeProvider) SendToTopic(_ context.Context, topic string, _ provider.Message) provider.SendResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topicCalls = append(p.topicCalls, topic)
	return provider.SendResult{Success: true, SuccessCount: 5, MessageID: "topic-msg"}
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.deviceCalls) + len(p.topicCalls)
}

func (p *fakeProvider) initCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inits
}

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recordingTracker) TrackAsync(_ context.Context, e analytics.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type fixture struct {
	clock      *fakeClock
	store      *push.MemoryStore
	audience   *push.MemoryAudience
	vault      *vault.Vault
	provider   *fakeProvider
	providers  *push.ProviderCache
	registry   *push.Registry
	dispatcher *push.Dispatcher
	tracker    *recordingTracker
}

func newFixture(t *testing.T, opts ...push.Option) *fixture {
	t.Helper()

	key, err := vault.GenerateKey()
	require.NoError(t, err)
	v, err := vault.New(key, vault.WithLogger(logger.Discard()))
	require.NoError(t, err)

	f := &fixture{
		clock:    newClock(),
		store:    push.NewMemoryStore(),
		audience: push.NewMemoryAudience(),
		vault:    v,
		provider: &fakeProvider{kind: provider.KindOneSignal},
		tracker:  &recordingTracker{},
	}
	base := []push.Option{
		push.WithLogger(logger.Discard()),
		push.WithClock(f.clock.Now),
		push.WithTracker(f.tracker),
	}
	opts = append(base, opts...)

	f.providers = push.NewProviderCache(v, func(provider.Kind) (provider.Provider, error) {
		return f.provider, nil
	}, opts...)
	f.registry = push.NewRegistry(f.store, opts...)
	f.dispatcher = push.NewDispatcher(f.store, f.audience, f.providers, opts...)
	return f
}

// enable stores an enabled OneSignal config for tenant.
func (f *fixture) enable(t *testing.T, mutate ...func(*push.TenantPushConfig)) *push.TenantPushConfig {
	t.Helper()

	apiKey, err := f.vault.Encrypt("onesignal-api-key")
	require.NoError(t, err)
	cfg := &push.TenantPushConfig{
		TenantID:        tenant,
		Provider:        provider.KindOneSignal,
		Enabled:         true,
		OneSignalAppID:  "app-id",
		OneSignalAPIKey: apiKey,
		DefaultTitle:    "Podcasts",
		CreatedAt:       f.clock.Now(),
		UpdatedAt:       f.clock.Now(),
	}
	for _, m := range mutate {
		m(cfg)
	}
	require.NoError(t, f.store.SaveConfig(context.Background(), cfg))
	return cfg
}

// device registers a device for user and returns it.
func (f *fixture) device(t *testing.T, user, token string) *push.UserDevice {
	t.Helper()
	d, err := f.registry.RegisterDevice(context.Background(), tenant, user, push.DeviceInput{
		Token:    token,
		Platform: push.PlatformAndroid,
	})
	require.NoError(t, err)
	return d
}

func (f *fixture) settings(t *testing.T, user string, patch push.SettingsPatch) {
	t.Helper()
	_, err := f.registry.UpdateSettings(context.Background(), tenant, user, patch)
	require.NoError(t, err)
}

func ptr[T any](v T) *T { return &v }
