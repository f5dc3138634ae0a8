package notifications

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryStorage keeps notifications in process memory. Suitable for tests and
// single-process development setups.
type MemoryStorage struct {
	mu    sync.RWMutex
	byKey map[string][]Notification // tenant/user -> notifications
	ids   map[string]struct{}
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		byKey: make(map[string][]Notification),
		ids:   make(map[string]struct{}),
	}
}

func ownerKey(tenantID, userID string) string {
	return tenantID + "/" + userID
}

func (s *MemoryStorage) Create(_ context.Context, notif Notification) error {
	if err := notif.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[notif.ID]; ok {
		return nil
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = time.Now()
	}
	notif.Data = maps.Clone(notif.Data)

	key := ownerKey(notif.TenantID, notif.UserID)
	s.byKey[key] = append(s.byKey[key], notif)
	s.ids[notif.ID] = struct{}{}
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, tenantID, userID, notifID string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.byKey[ownerKey(tenantID, userID)] {
		if n.ID == notifID {
			return &n, nil
		}
	}
	return nil, ErrNotificationNotFound
}

func (s *MemoryStorage) List(_ context.Context, tenantID, userID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []Notification
	for _, n := range s.byKey[ownerKey(tenantID, userID)] {
		if opts.OnlyUnread && n.Read() {
			continue
		}
		if len(opts.Types) > 0 && !slices.Contains(opts.Types, n.Type) {
			continue
		}
		if opts.Since != nil && n.CreatedAt.Before(*opts.Since) {
			continue
		}
		filtered = append(filtered, n)
	}

	slices.SortStableFunc(filtered, func(a, b Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	start := min(opts.Offset, len(filtered))
	end := len(filtered)
	if opts.Limit > 0 {
		end = min(start+opts.Limit, end)
	}
	return append([]Notification{}, filtered[start:end]...), nil
}

func (s *MemoryStorage) MarkRead(_ context.Context, tenantID, userID string, at time.Time, notifIDs ...string) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey(tenantID, userID)
	list := s.byKey[key]

	var updated []Notification
	for i := range list {
		if list[i].Read() || !slices.Contains(notifIDs, list[i].ID) {
			continue
		}
		list[i].MarkAsRead(at)
		updated = append(updated, list[i])
	}
	return updated, nil
}

func (s *MemoryStorage) Delete(_ context.Context, tenantID, userID string, notifIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey(tenantID, userID)
	s.byKey[key] = slices.DeleteFunc(s.byKey[key], func(n Notification) bool {
		if slices.Contains(notifIDs, n.ID) {
			delete(s.ids, n.ID)
			return true
		}
		return false
	})
	return nil
}

func (s *MemoryStorage) CountUnread(_ context.Context, tenantID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.byKey[ownerKey(tenantID, userID)] {
		if !n.Read() {
			count++
		}
	}
	return count, nil
}
