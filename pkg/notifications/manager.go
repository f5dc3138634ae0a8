package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// Manager persists notifications and emits every change to a Deliverer.
type Manager struct {
	storage   Storage
	deliverer Deliverer
	logger    *slog.Logger
	now       func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for the Manager.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithClock overrides the time source used for CreatedAt and ReadAt.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a manager. A nil deliverer disables real-time emit.
func NewManager(storage Storage, deliverer Deliverer, opts ...ManagerOption) *Manager {
	if deliverer == nil {
		deliverer = NoOpDeliverer{}
	}

	m := &Manager{
		storage:   storage,
		deliverer: deliverer,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send stores notif and then emits it as created. Missing ID and CreatedAt
// are filled in. An emit failure is logged, not returned.
func (m *Manager) Send(ctx context.Context, notif Notification) (*Notification, error) {
	if notif.ID == "" {
		notif.ID = uuid.NewString()
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = m.now()
	}
	if err := notif.Validate(); err != nil {
		return nil, err
	}

	if err := m.storage.Create(ctx, notif); err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}

	m.emit(ctx, EventCreated, notif)
	return &notif, nil
}

// SendToUsers stores one copy of template per user, then emits each.
func (m *Manager) SendToUsers(ctx context.Context, userIDs []string, template Notification) ([]Notification, error) {
	sent := make([]Notification, 0, len(userIDs))
	now := m.now()

	for _, userID := range userIDs {
		notif := template
		notif.ID = uuid.NewString()
		notif.UserID = userID
		notif.CreatedAt = now
		if err := notif.Validate(); err != nil {
			return sent, err
		}
		if err := m.storage.Create(ctx, notif); err != nil {
			return sent, fmt.Errorf("failed to store notification for user %s: %w", userID, err)
		}
		sent = append(sent, notif)
	}

	for _, notif := range sent {
		m.emit(ctx, EventCreated, notif)
	}
	return sent, nil
}

func (m *Manager) Get(ctx context.Context, tenantID, userID, notifID string) (*Notification, error) {
	return m.storage.Get(ctx, tenantID, userID, notifID)
}

func (m *Manager) List(ctx context.Context, tenantID, userID string, opts ListOptions) ([]Notification, error) {
	return m.storage.List(ctx, tenantID, userID, opts)
}

// MarkRead marks the given notifications read and emits an update for each
// one that changed.
func (m *Manager) MarkRead(ctx context.Context, tenantID, userID string, notifIDs ...string) error {
	if len(notifIDs) == 0 {
		return nil
	}
	updated, err := m.storage.MarkRead(ctx, tenantID, userID, m.now(), notifIDs...)
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	for _, notif := range updated {
		m.emit(ctx, EventUpdated, notif)
	}
	return nil
}

// MarkAllRead marks every unread notification of the user as read.
func (m *Manager) MarkAllRead(ctx context.Context, tenantID, userID string) error {
	unread, err := m.storage.List(ctx, tenantID, userID, ListOptions{OnlyUnread: true})
	if err != nil {
		return err
	}

	ids := make([]string, len(unread))
	for i, n := range unread {
		ids[i] = n.ID
	}
	return m.MarkRead(ctx, tenantID, userID, ids...)
}

func (m *Manager) Delete(ctx context.Context, tenantID, userID string, notifIDs ...string) error {
	return m.storage.Delete(ctx, tenantID, userID, notifIDs...)
}

func (m *Manager) CountUnread(ctx context.Context, tenantID, userID string) (int, error) {
	return m.storage.CountUnread(ctx, tenantID, userID)
}

func (m *Manager) emit(ctx context.Context, kind EventKind, notif Notification) {
	if err := m.deliverer.Deliver(ctx, kind, notif); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "notification stored but not delivered",
			slog.String("notification_id", notif.ID),
			slog.String("event", string(kind)),
			logger.TenantID(notif.TenantID),
			logger.UserID(notif.UserID),
			logger.Error(err),
		)
	}
}
