package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/provider"
	"github.com/dmitrymomot/pushkit/pkg/vault"
)

// ConfigInput is an admin update of a tenant's push config. Empty secret
// fields keep the stored value; every other field is replaced.
type ConfigInput struct {
	Provider provider.Kind `json:"provider"`
	Enabled  bool          `json:"enabled"`

	OneSignalAppID  string `json:"onesignal_app_id,omitempty"`
	OneSignalAPIKey string `json:"onesignal_api_key,omitempty"`

	FirebaseProjectID   string `json:"firebase_project_id,omitempty"`
	FirebaseCredentials string `json:"firebase_credentials,omitempty"`

	VAPIDPublicKey  string `json:"vapid_public_key,omitempty"`
	VAPIDPrivateKey string `json:"vapid_private_key,omitempty"`
	VAPIDSubject    string `json:"vapid_subject,omitempty"`

	DefaultTitle string `json:"default_title,omitempty"`
	DefaultIcon  string `json:"default_icon,omitempty"`
	DefaultBadge string `json:"default_badge,omitempty"`

	RateLimitPerMinute int `json:"rate_limit_per_minute"`
}

// ConfigView is the admin facing form of a tenant config. Secrets are
// reported only as set or unset.
type ConfigView struct {
	TenantID string        `json:"tenant_id"`
	Provider provider.Kind `json:"provider"`
	Enabled  bool          `json:"enabled"`
	Ready    bool          `json:"ready"`

	OneSignalAppID     string `json:"onesignal_app_id,omitempty"`
	OneSignalAPIKeySet bool   `json:"onesignal_api_key_set"`

	FirebaseProjectID      string `json:"firebase_project_id,omitempty"`
	FirebaseCredentialsSet bool   `json:"firebase_credentials_set"`

	VAPIDPublicKey     string `json:"vapid_public_key,omitempty"`
	VAPIDPrivateKeySet bool   `json:"vapid_private_key_set"`
	VAPIDSubject       string `json:"vapid_subject,omitempty"`

	DefaultTitle string `json:"default_title,omitempty"`
	DefaultIcon  string `json:"default_icon,omitempty"`
	DefaultBadge string `json:"default_badge,omitempty"`

	RateLimitPerMinute int       `json:"rate_limit_per_minute"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ConfigService administers tenant push configs.
type ConfigService struct {
	store     Store
	vault     *vault.Vault
	providers *ProviderCache
	logger    *slog.Logger
	now       func() time.Time
}

func NewConfigService(store Store, v *vault.Vault, providers *ProviderCache, opts ...Option) *ConfigService {
	o := newOptions(opts)
	return &ConfigService{
		store:     store,
		vault:     v,
		providers: providers,
		logger:    o.logger.With(logger.Component("push.config")),
		now:       o.now,
	}
}

// SaveConfig creates or updates the tenant config. Secrets are encrypted
// before the store sees them. An enabled config is loaded into the provider
// cache right away; View.Ready reports whether the provider accepted it.
func (s *ConfigService) SaveConfig(ctx context.Context, tenantID string, in ConfigInput) (*ConfigView, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant is required", ErrBadRequest)
	}
	if !in.Provider.Valid() {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrBadRequest, in.Provider)
	}
	if in.RateLimitPerMinute < 0 {
		return nil, fmt.Errorf("%w: rate limit must not be negative", ErrBadRequest)
	}

	now := s.now().UTC()
	cfg, err := s.store.GetConfig(ctx, tenantID)
	switch {
	case errors.Is(err, ErrNotFound):
		cfg = &TenantPushConfig{TenantID: tenantID, CreatedAt: now}
	case err != nil:
		return nil, fmt.Errorf("load push config: %w", err)
	}

	cfg.Provider = in.Provider
	cfg.Enabled = in.Enabled
	cfg.OneSignalAppID = strings.TrimSpace(in.OneSignalAppID)
	cfg.FirebaseProjectID = strings.TrimSpace(in.FirebaseProjectID)
	cfg.VAPIDPublicKey = strings.TrimSpace(in.VAPIDPublicKey)
	cfg.VAPIDSubject = strings.TrimSpace(in.VAPIDSubject)
	cfg.DefaultTitle = in.DefaultTitle
	cfg.DefaultIcon = in.DefaultIcon
	cfg.DefaultBadge = in.DefaultBadge
	cfg.RateLimitPerMinute = in.RateLimitPerMinute
	cfg.UpdatedAt = now

	for _, secret := range []struct {
		plain string
		dst   *string
	}{
		{in.OneSignalAPIKey, &cfg.OneSignalAPIKey},
		{in.FirebaseCredentials, &cfg.FirebaseCredentials},
		{in.VAPIDPrivateKey, &cfg.VAPIDPrivateKey},
	} {
		if secret.plain == "" {
			continue
		}
		token, err := s.vault.Encrypt(secret.plain)
		if err != nil {
			return nil, fmt.Errorf("encrypt credentials: %w", err)
		}
		*secret.dst = token
	}

	if cfg.Enabled {
		if err := requireCredentials(cfg); err != nil {
			return nil, err
		}
	}

	if err := s.store.SaveConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save push config: %w", err)
	}

	view := newConfigView(cfg)
	if !cfg.Enabled {
		s.providers.Invalidate(tenantID)
	} else if err := s.providers.Reload(ctx, cfg); err != nil {
		s.logger.WarnContext(ctx, "saved push config was rejected by provider",
			logger.TenantID(tenantID),
			logger.Provider(cfg.Provider.String()),
			logger.Error(err),
		)
	} else {
		view.Ready = true
	}

	s.logger.InfoContext(ctx, "push config saved",
		logger.TenantID(tenantID),
		logger.Provider(cfg.Provider.String()),
		slog.Bool("enabled", cfg.Enabled),
	)
	return view, nil
}

// GetConfig returns the masked config of the tenant.
func (s *ConfigService) GetConfig(ctx context.Context, tenantID string) (*ConfigView, error) {
	cfg, err := s.store.GetConfig(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: push config for tenant %s", ErrNotFound, tenantID)
		}
		return nil, fmt.Errorf("load push config: %w", err)
	}
	return newConfigView(cfg), nil
}

// DisableConfig turns push off for the tenant. The config row is kept.
func (s *ConfigService) DisableConfig(ctx context.Context, tenantID string) error {
	cfg, err := s.store.GetConfig(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: push config for tenant %s", ErrNotFound, tenantID)
		}
		return fmt.Errorf("load push config: %w", err)
	}
	cfg.Enabled = false
	cfg.UpdatedAt = s.now().UTC()
	if err := s.store.SaveConfig(ctx, cfg); err != nil {
		return fmt.Errorf("disable push config: %w", err)
	}
	s.providers.Invalidate(tenantID)
	s.logger.InfoContext(ctx, "push config disabled", logger.TenantID(tenantID))
	return nil
}

// GenerateVAPIDKeys returns a fresh browser push key pair. Nothing is stored.
func (s *ConfigService) GenerateVAPIDKeys() (provider.VAPIDKeys, error) {
	return provider.GenerateVAPIDKeys()
}

func requireCredentials(cfg *TenantPushConfig) error {
	var missing []string
	check := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}
	switch cfg.Provider {
	case provider.KindOneSignal:
		check("onesignal_app_id", cfg.OneSignalAppID)
		check("onesignal_api_key", cfg.OneSignalAPIKey)
	case provider.KindFCM:
		// The project id may come from the service account JSON.
		check("firebase_credentials", cfg.FirebaseCredentials)
	case provider.KindWebPush:
		check("vapid_public_key", cfg.VAPIDPublicKey)
		check("vapid_private_key", cfg.VAPIDPrivateKey)
		check("vapid_subject", cfg.VAPIDSubject)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s credentials: %s", ErrBadRequest, cfg.Provider, strings.Join(missing, ", "))
	}
	return nil
}

func newConfigView(cfg *TenantPushConfig) *ConfigView {
	return &ConfigView{
		TenantID:               cfg.TenantID,
		Provider:               cfg.Provider,
		Enabled:                cfg.Enabled,
		OneSignalAppID:         cfg.OneSignalAppID,
		OneSignalAPIKeySet:     cfg.OneSignalAPIKey != "",
		FirebaseProjectID:      cfg.FirebaseProjectID,
		FirebaseCredentialsSet: cfg.FirebaseCredentials != "",
		VAPIDPublicKey:         cfg.VAPIDPublicKey,
		VAPIDPrivateKeySet:     cfg.VAPIDPrivateKey != "",
		VAPIDSubject:           cfg.VAPIDSubject,
		DefaultTitle:           cfg.DefaultTitle,
		DefaultIcon:            cfg.DefaultIcon,
		DefaultBadge:           cfg.DefaultBadge,
		RateLimitPerMinute:     cfg.RateLimitPerMinute,
		UpdatedAt:              cfg.UpdatedAt,
	}
}
