package push

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and single node setups.
type MemoryStore struct {
	mu       sync.RWMutex
	configs  map[string]TenantPushConfig
	devices  map[string]*UserDevice // by id
	tokens   map[string]string      // tenant/token -> device id
	settings map[string]UserPushSettings
	logs     map[string]*PushNotificationLog
	logOrder []string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs:  make(map[string]TenantPushConfig),
		devices:  make(map[string]*UserDevice),
		tokens:   make(map[string]string),
		settings: make(map[string]UserPushSettings),
		logs:     make(map[string]*PushNotificationLog),
	}
}

func scopedKey(tenantID, id string) string {
	return tenantID + "/" + id
}

func (s *MemoryStore) GetConfig(_ context.Context, tenantID string) (*TenantPushConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

func (s *MemoryStore) SaveConfig(_ context.Context, cfg *TenantPushConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *cfg
	if prev, ok := s.configs[cfg.TenantID]; ok {
		stored.CreatedAt = prev.CreatedAt
	}
	s.configs[cfg.TenantID] = stored
	return nil
}

func (s *MemoryStore) UpsertDevice(_ context.Context, d *UserDevice) (*UserDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scopedKey(d.TenantID, d.Token)
	if id, ok := s.tokens[key]; ok {
		existing := s.devices[id]
		existing.UserID = d.UserID
		existing.Platform = d.Platform
		existing.DeviceName = d.DeviceName
		existing.AppVersion = d.AppVersion
		existing.OSVersion = d.OSVersion
		existing.IsActive = true
		existing.LastActiveAt = d.LastActiveAt
		existing.UpdatedAt = d.UpdatedAt
		out := *existing
		return &out, nil
	}

	stored := *d
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	s.devices[stored.ID] = &stored
	s.tokens[key] = stored.ID
	out := stored
	return &out, nil
}

func (s *MemoryStore) GetDevice(_ context.Context, tenantID, deviceID string) (*UserDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[deviceID]
	if !ok || d.TenantID != tenantID {
		return nil, ErrNotFound
	}
	out := *d
	return &out, nil
}

func (s *MemoryStore) DeactivateDevice(_ context.Context, tenantID, deviceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok || d.TenantID != tenantID {
		return ErrNotFound
	}
	d.IsActive = false
	d.UpdatedAt = at
	return nil
}

func (s *MemoryStore) DeactivateTokens(_ context.Context, tenantID string, tokens []string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, token := range tokens {
		id, ok := s.tokens[scopedKey(tenantID, token)]
		if !ok {
			continue
		}
		if d := s.devices[id]; d.IsActive {
			d.IsActive = false
			d.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListActiveDevices(_ context.Context, tenantID string, userIDs []string) ([]UserDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []UserDevice
	for _, d := range s.devices {
		if d.TenantID != tenantID || !d.IsActive {
			continue
		}
		if len(userIDs) > 0 && !slices.Contains(userIDs, d.UserID) {
			continue
		}
		out = append(out, *d)
	}
	slices.SortFunc(out, func(a, b UserDevice) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) GetSettings(_ context.Context, tenantID, userID string) (*UserPushSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.settings[scopedKey(tenantID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

func (s *MemoryStore) ListSettings(_ context.Context, tenantID string, userIDs []string) (map[string]UserPushSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]UserPushSettings, len(userIDs))
	for _, id := range userIDs {
		if st, ok := s.settings[scopedKey(tenantID, id)]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateSettings(_ context.Context, st *UserPushSettings) (*UserPushSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scopedKey(st.TenantID, st.UserID)
	if existing, ok := s.settings[key]; ok {
		return &existing, nil
	}
	s.settings[key] = *st
	out := *st
	return &out, nil
}

func (s *MemoryStore) SaveSettings(_ context.Context, st *UserPushSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *st
	key := scopedKey(st.TenantID, st.UserID)
	if prev, ok := s.settings[key]; ok {
		stored.CreatedAt = prev.CreatedAt
	}
	s.settings[key] = stored
	return nil
}

func (s *MemoryStore) CreateLog(_ context.Context, l *PushNotificationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.logs[l.ID]; ok {
		return nil
	}
	s.logs[l.ID] = cloneLog(l)
	s.logOrder = append(s.logOrder, l.ID)
	return nil
}

func (s *MemoryStore) CompleteLog(_ context.Context, l *PushNotificationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.logs[l.ID]
	if !ok || stored.TenantID != l.TenantID {
		return ErrNotFound
	}
	if stored.Status != StatusPending {
		return ErrInvalidStatus
	}
	stored.Status = l.Status
	stored.TotalRecipients = l.TotalRecipients
	stored.SuccessCount = l.SuccessCount
	stored.FailureCount = l.FailureCount
	stored.ProviderMessageID = l.ProviderMessageID
	stored.Error = l.Error
	stored.SentAt = l.SentAt
	return nil
}

func (s *MemoryStore) TransitionLog(_ context.Context, tenantID, logID string, from, to LogStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.logs[logID]
	if !ok || stored.TenantID != tenantID {
		return ErrNotFound
	}
	if stored.Status != from {
		return ErrInvalidStatus
	}
	stored.Status = to
	return nil
}

func (s *MemoryStore) ClaimDueLogs(_ context.Context, now time.Time, limit int) ([]PushNotificationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PushNotificationLog
	for _, id := range s.logOrder {
		if limit > 0 && len(out) >= limit {
			break
		}
		l := s.logs[id]
		if l.Status != StatusQueued || l.ScheduledAt == nil || l.ScheduledAt.After(now) {
			continue
		}
		l.Status = StatusPending
		out = append(out, *cloneLog(l))
	}
	return out, nil
}

func (s *MemoryStore) GetLog(_ context.Context, tenantID, logID string) (*PushNotificationLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.logs[logID]
	if !ok || l.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return cloneLog(l), nil
}

func (s *MemoryStore) SumLogs(_ context.Context, tenantID string, since time.Time) (LedgerTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t LedgerTotals
	for _, l := range s.logs {
		if l.TenantID != tenantID || l.CreatedAt.Before(since) {
			continue
		}
		t.Sent += int64(l.TotalRecipients)
		t.Delivered += int64(l.SuccessCount)
		t.Failed += int64(l.FailureCount)
	}
	return t, nil
}

func cloneLog(l *PushNotificationLog) *PushNotificationLog {
	out := *l
	out.Data = maps.Clone(l.Data)
	out.TargetIDs = slices.Clone(l.TargetIDs)
	return &out
}
