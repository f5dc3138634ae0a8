package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// Registry manages device registrations and per-user push settings.
type Registry struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewRegistry(store Store, opts ...Option) *Registry {
	o := newOptions(opts)
	return &Registry{
		store:  store,
		logger: o.logger.With(logger.Component("push.registry")),
		now:    o.now,
	}
}

// RegisterDevice stores the device or refreshes the existing registration of
// the same token: the owner is reassigned, the device reactivated and
// LastActiveAt bumped. The user's settings are created when missing.
func (r *Registry) RegisterDevice(ctx context.Context, tenantID, userID string, in DeviceInput) (*UserDevice, error) {
	if tenantID == "" || userID == "" {
		return nil, fmt.Errorf("%w: tenant and user are required", ErrBadRequest)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	device, err := r.store.UpsertDevice(ctx, &UserDevice{
		TenantID:     tenantID,
		UserID:       userID,
		Token:        in.Token,
		Platform:     in.Platform,
		DeviceName:   in.DeviceName,
		AppVersion:   in.AppVersion,
		OSVersion:    in.OSVersion,
		IsActive:     true,
		LastActiveAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}

	if _, err := r.ensureSettings(ctx, tenantID, userID); err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "device registered",
		logger.TenantID(tenantID),
		logger.UserID(userID),
		slog.String("device_id", device.ID),
		slog.String("platform", string(device.Platform)),
		logger.Token(device.Token),
	)
	return device, nil
}

// UnregisterDevice deactivates a device. The row is kept so a later
// registration of the same token reactivates it.
func (r *Registry) UnregisterDevice(ctx context.Context, tenantID, deviceID string) error {
	if err := r.store.DeactivateDevice(ctx, tenantID, deviceID, r.now().UTC()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
		}
		return fmt.Errorf("unregister device: %w", err)
	}
	return nil
}

// ListActiveDevices lists active devices of one user, or of the whole tenant
// when userID is empty.
func (r *Registry) ListActiveDevices(ctx context.Context, tenantID, userID string) ([]UserDevice, error) {
	var users []string
	if userID != "" {
		users = []string{userID}
	}
	devices, err := r.store.ListActiveDevices(ctx, tenantID, users)
	if err != nil {
		return nil, fmt.Errorf("list active devices: %w", err)
	}
	return devices, nil
}

// GetSettings returns the user's settings, creating the defaults on first read.
func (r *Registry) GetSettings(ctx context.Context, tenantID, userID string) (*UserPushSettings, error) {
	if tenantID == "" || userID == "" {
		return nil, fmt.Errorf("%w: tenant and user are required", ErrBadRequest)
	}
	return r.ensureSettings(ctx, tenantID, userID)
}

// UpdateSettings applies patch and validates the quiet hours window.
func (r *Registry) UpdateSettings(ctx context.Context, tenantID, userID string, patch SettingsPatch) (*UserPushSettings, error) {
	settings, err := r.GetSettings(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	patch.apply(settings)
	if err := validateQuietHours(*settings); err != nil {
		return nil, err
	}
	settings.UpdatedAt = r.now().UTC()

	if err := r.store.SaveSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("update push settings: %w", err)
	}
	return settings, nil
}

func (r *Registry) ensureSettings(ctx context.Context, tenantID, userID string) (*UserPushSettings, error) {
	settings, err := r.store.GetSettings(ctx, tenantID, userID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get push settings: %w", err)
	}

	defaults := DefaultSettings(tenantID, userID, r.now().UTC())
	settings, err = r.store.CreateSettings(ctx, &defaults)
	if err != nil {
		return nil, fmt.Errorf("create push settings: %w", err)
	}
	return settings, nil
}
