package push

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/provider"
	"github.com/dmitrymomot/pushkit/pkg/vault"
)

// ProviderFactory builds an uninitialized adapter of kind.
type ProviderFactory func(kind provider.Kind) (provider.Provider, error)

// ProviderCache holds one initialized adapter per tenant and provider kind.
//
// Lookups race freely: two callers may initialize the same key at once and
// the last store wins. Initialize is idempotent so either adapter is usable.
// Each entry remembers a fingerprint of the config it was built from; a
// config saved by another process yields a new fingerprint and the adapter is
// re-initialized in place.
type ProviderCache struct {
	vault   *vault.Vault
	factory ProviderFactory
	logger  *slog.Logger
	entries sync.Map // tenant/kind -> *providerEntry
}

type providerEntry struct {
	provider    provider.Provider
	fingerprint string
}

// NewProviderCache creates a cache that decrypts credentials with v. A nil
// factory uses provider.New.
func NewProviderCache(v *vault.Vault, factory ProviderFactory, opts ...Option) *ProviderCache {
	o := newOptions(opts)
	if factory == nil {
		factory = func(kind provider.Kind) (provider.Provider, error) {
			return provider.New(kind, provider.WithLogger(o.logger))
		}
	}
	return &ProviderCache{
		vault:   v,
		factory: factory,
		logger:  o.logger.With(logger.Component("push.providers")),
	}
}

// Get returns a ready adapter for cfg, building or re-initializing it when
// needed. Corrupted credentials fail with an error wrapping
// vault.ErrDecryption; rejected ones with ErrProviderNotReady.
func (c *ProviderCache) Get(ctx context.Context, cfg *TenantPushConfig) (provider.Provider, error) {
	key := cacheKey(cfg.TenantID, cfg.Provider)
	fp := c.fingerprint(cfg)

	if v, ok := c.entries.Load(key); ok {
		e := v.(*providerEntry)
		if e.fingerprint == fp && e.provider.IsReady() {
			return e.provider, nil
		}
		return c.initialize(ctx, cfg, key, fp, e.provider)
	}
	return c.initialize(ctx, cfg, key, fp, nil)
}

// Reload re-initializes the tenant's adapter with cfg right away.
func (c *ProviderCache) Reload(ctx context.Context, cfg *TenantPushConfig) error {
	var existing provider.Provider
	key := cacheKey(cfg.TenantID, cfg.Provider)
	if v, ok := c.entries.Load(key); ok {
		existing = v.(*providerEntry).provider
	}
	_, err := c.initialize(ctx, cfg, key, c.fingerprint(cfg), existing)
	return err
}

// Invalidate drops every cached adapter of the tenant.
func (c *ProviderCache) Invalidate(tenantID string) {
	prefix := tenantID + "/"
	c.entries.Range(func(k, _ any) bool {
		if strings.HasPrefix(k.(string), prefix) {
			c.entries.Delete(k)
		}
		return true
	})
}

func (c *ProviderCache) initialize(ctx context.Context, cfg *TenantPushConfig, key, fp string, p provider.Provider) (provider.Provider, error) {
	creds, err := c.credentials(cfg)
	if err != nil {
		c.logger.ErrorContext(ctx, "provider credentials unreadable",
			logger.TenantID(cfg.TenantID),
			logger.Provider(cfg.Provider.String()),
			logger.Error(err),
		)
		return nil, err
	}

	if p == nil {
		if p, err = c.factory(cfg.Provider); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProviderNotReady, err)
		}
	}
	if err := p.Initialize(ctx, creds); err != nil {
		c.entries.Delete(key)
		return nil, fmt.Errorf("%w: %w", ErrProviderNotReady, err)
	}
	if !p.IsReady() {
		c.entries.Delete(key)
		return nil, ErrProviderNotReady
	}

	c.entries.Store(key, &providerEntry{provider: p, fingerprint: fp})
	c.logger.InfoContext(ctx, "provider initialized",
		logger.TenantID(cfg.TenantID),
		logger.Provider(cfg.Provider.String()),
	)
	return p, nil
}

func (c *ProviderCache) credentials(cfg *TenantPushConfig) (provider.Credentials, error) {
	apiKey, err := c.vault.Decrypt(cfg.OneSignalAPIKey)
	if err != nil {
		return provider.Credentials{}, fmt.Errorf("decrypt onesignal api key: %w", err)
	}
	firebase, err := c.vault.Decrypt(cfg.FirebaseCredentials)
	if err != nil {
		return provider.Credentials{}, fmt.Errorf("decrypt firebase credentials: %w", err)
	}
	vapidPrivate, err := c.vault.Decrypt(cfg.VAPIDPrivateKey)
	if err != nil {
		return provider.Credentials{}, fmt.Errorf("decrypt vapid private key: %w", err)
	}
	return provider.Credentials{
		OneSignalAppID:      cfg.OneSignalAppID,
		OneSignalAPIKey:     apiKey,
		FirebaseProjectID:   cfg.FirebaseProjectID,
		FirebaseCredentials: firebase,
		VAPIDPublicKey:      cfg.VAPIDPublicKey,
		VAPIDPrivateKey:     vapidPrivate,
		VAPIDSubject:        cfg.VAPIDSubject,
	}, nil
}

// fingerprint hashes the stored form of the credentials. Secrets are vault
// tokens with a fresh IV per save, so any save changes the fingerprint.
func (c *ProviderCache) fingerprint(cfg *TenantPushConfig) string {
	return c.vault.Hash(strings.Join([]string{
		cfg.Provider.String(),
		cfg.OneSignalAppID, cfg.OneSignalAPIKey,
		cfg.FirebaseProjectID, cfg.FirebaseCredentials,
		cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject,
	}, "\x00"))
}

func cacheKey(tenantID string, kind provider.Kind) string {
	return tenantID + "/" + kind.String()
}
