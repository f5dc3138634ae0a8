package push

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/pushkit/pkg/pg"
)

// PostgresStore implements Store over the tables of migrations/00001_push.sql.
type PostgresStore struct {
	db pg.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db pg.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const configColumns = `tenant_id, provider, enabled,
	onesignal_app_id, onesignal_api_key,
	firebase_project_id, firebase_credentials,
	vapid_public_key, vapid_private_key, vapid_subject,
	default_title, default_icon, default_badge,
	rate_limit_per_minute, created_at, updated_at`

func (s *PostgresStore) GetConfig(ctx context.Context, tenantID string) (*TenantPushConfig, error) {
	var c TenantPushConfig
	err := s.db.QueryRow(ctx,
		`SELECT `+configColumns+` FROM push_configs WHERE tenant_id = $1`,
		tenantID,
	).Scan(
		&c.TenantID, &c.Provider, &c.Enabled,
		&c.OneSignalAppID, &c.OneSignalAPIKey,
		&c.FirebaseProjectID, &c.FirebaseCredentials,
		&c.VAPIDPublicKey, &c.VAPIDPrivateKey, &c.VAPIDSubject,
		&c.DefaultTitle, &c.DefaultIcon, &c.DefaultBadge,
		&c.RateLimitPerMinute, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get push config: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) SaveConfig(ctx context.Context, c *TenantPushConfig) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO push_configs (`+configColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (tenant_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			enabled = EXCLUDED.enabled,
			onesignal_app_id = EXCLUDED.onesignal_app_id,
			onesignal_api_key = EXCLUDED.onesignal_api_key,
			firebase_project_id = EXCLUDED.firebase_project_id,
			firebase_credentials = EXCLUDED.firebase_credentials,
			vapid_public_key = EXCLUDED.vapid_public_key,
			vapid_private_key = EXCLUDED.vapid_private_key,
			vapid_subject = EXCLUDED.vapid_subject,
			default_title = EXCLUDED.default_title,
			default_icon = EXCLUDED.default_icon,
			default_badge = EXCLUDED.default_badge,
			rate_limit_per_minute = EXCLUDED.rate_limit_per_minute,
			updated_at = EXCLUDED.updated_at`,
		c.TenantID, c.Provider, c.Enabled,
		c.OneSignalAppID, c.OneSignalAPIKey,
		c.FirebaseProjectID, c.FirebaseCredentials,
		c.VAPIDPublicKey, c.VAPIDPrivateKey, c.VAPIDSubject,
		c.DefaultTitle, c.DefaultIcon, c.DefaultBadge,
		c.RateLimitPerMinute, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save push config: %w", err)
	}
	return nil
}

const deviceColumns = `id, tenant_id, user_id, token, platform, device_name,
	app_version, os_version, is_active, last_active_at, created_at, updated_at`

func (s *PostgresStore) UpsertDevice(ctx context.Context, d *UserDevice) (*UserDevice, error) {
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO user_devices (`+deviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $10, $11)
		ON CONFLICT (tenant_id, token) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			platform = EXCLUDED.platform,
			device_name = EXCLUDED.device_name,
			app_version = EXCLUDED.app_version,
			os_version = EXCLUDED.os_version,
			is_active = TRUE,
			last_active_at = EXCLUDED.last_active_at,
			updated_at = EXCLUDED.updated_at
		RETURNING `+deviceColumns,
		id, d.TenantID, d.UserID, d.Token, d.Platform, d.DeviceName,
		d.AppVersion, d.OSVersion, d.LastActiveAt, d.CreatedAt, d.UpdatedAt,
	)
	out, err := scanDevice(row)
	if err != nil {
		return nil, fmt.Errorf("upsert device: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetDevice(ctx context.Context, tenantID, deviceID string) (*UserDevice, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM user_devices WHERE tenant_id = $1 AND id = $2`,
		tenantID, deviceID,
	)
	d, err := scanDevice(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) DeactivateDevice(ctx context.Context, tenantID, deviceID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE user_devices SET is_active = FALSE, updated_at = $3
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, deviceID, at,
	)
	if err != nil {
		return fmt.Errorf("deactivate device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeactivateTokens(ctx context.Context, tenantID string, tokens []string, at time.Time) (int, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE user_devices SET is_active = FALSE, updated_at = $3
		WHERE tenant_id = $1 AND token = ANY($2) AND is_active`,
		tenantID, tokens, at,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ListActiveDevices(ctx context.Context, tenantID string, userIDs []string) ([]UserDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM user_devices WHERE tenant_id = $1 AND is_active`
	args := []any{tenantID}
	if len(userIDs) > 0 {
		query += ` AND user_id = ANY($2)`
		args = append(args, userIDs)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []UserDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return out, nil
}

func scanDevice(row pgx.Row) (*UserDevice, error) {
	var d UserDevice
	if err := row.Scan(
		&d.ID, &d.TenantID, &d.UserID, &d.Token, &d.Platform, &d.DeviceName,
		&d.AppVersion, &d.OSVersion, &d.IsActive, &d.LastActiveAt, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

const settingsColumns = `tenant_id, user_id, enable_push, new_episodes, comments,
	likes, follows, system, marketing, quiet_hours_enabled, quiet_hours_start,
	quiet_hours_end, timezone, created_at, updated_at`

func settingsArgs(st *UserPushSettings) []any {
	return []any{
		st.TenantID, st.UserID, st.EnablePush, st.NewEpisodes, st.Comments,
		st.Likes, st.Follows, st.System, st.Marketing, st.QuietHoursEnabled, st.QuietHoursStart,
		st.QuietHoursEnd, st.Timezone, st.CreatedAt, st.UpdatedAt,
	}
}

func scanSettings(row pgx.Row) (*UserPushSettings, error) {
	var st UserPushSettings
	if err := row.Scan(
		&st.TenantID, &st.UserID, &st.EnablePush, &st.NewEpisodes, &st.Comments,
		&st.Likes, &st.Follows, &st.System, &st.Marketing, &st.QuietHoursEnabled, &st.QuietHoursStart,
		&st.QuietHoursEnd, &st.Timezone, &st.CreatedAt, &st.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *PostgresStore) GetSettings(ctx context.Context, tenantID, userID string) (*UserPushSettings, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+settingsColumns+` FROM user_push_settings WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID,
	)
	st, err := scanSettings(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get push settings: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) ListSettings(ctx context.Context, tenantID string, userIDs []string) (map[string]UserPushSettings, error) {
	out := make(map[string]UserPushSettings, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+settingsColumns+` FROM user_push_settings WHERE tenant_id = $1 AND user_id = ANY($2)`,
		tenantID, userIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("list push settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		st, err := scanSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("scan push settings: %w", err)
		}
		out[st.UserID] = *st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate push settings: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateSettings(ctx context.Context, st *UserPushSettings) (*UserPushSettings, error) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_push_settings (`+settingsColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (tenant_id, user_id) DO NOTHING`,
		settingsArgs(st)...,
	)
	if err != nil {
		return nil, fmt.Errorf("create push settings: %w", err)
	}
	return s.GetSettings(ctx, st.TenantID, st.UserID)
}

func (s *PostgresStore) SaveSettings(ctx context.Context, st *UserPushSettings) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_push_settings (`+settingsColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			enable_push = EXCLUDED.enable_push,
			new_episodes = EXCLUDED.new_episodes,
			comments = EXCLUDED.comments,
			likes = EXCLUDED.likes,
			follows = EXCLUDED.follows,
			system = EXCLUDED.system,
			marketing = EXCLUDED.marketing,
			quiet_hours_enabled = EXCLUDED.quiet_hours_enabled,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			timezone = EXCLUDED.timezone,
			updated_at = EXCLUDED.updated_at`,
		settingsArgs(st)...,
	)
	if err != nil {
		return fmt.Errorf("save push settings: %w", err)
	}
	return nil
}

const logColumns = `id, tenant_id, title, body, image_url, data, target_type,
	target_ids, total_recipients, success_count, failure_count, status,
	provider_message_id, error, scheduled_at, sent_at, created_by, created_at`

func (s *PostgresStore) CreateLog(ctx context.Context, l *PushNotificationLog) error {
	targetIDs := l.TargetIDs
	if targetIDs == nil {
		targetIDs = []string{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO push_notification_logs (`+logColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO NOTHING`,
		l.ID, l.TenantID, l.Title, l.Body, l.ImageURL, l.Data, l.TargetType,
		targetIDs, l.TotalRecipients, l.SuccessCount, l.FailureCount, l.Status,
		l.ProviderMessageID, l.Error, l.ScheduledAt, l.SentAt, l.CreatedBy, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create push log: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompleteLog(ctx context.Context, l *PushNotificationLog) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE push_notification_logs SET
			status = $3,
			total_recipients = $4,
			success_count = $5,
			failure_count = $6,
			provider_message_id = $7,
			error = $8,
			sent_at = $9
		WHERE tenant_id = $1 AND id = $2 AND status = 'PENDING'`,
		l.TenantID, l.ID, l.Status, l.TotalRecipients, l.SuccessCount,
		l.FailureCount, l.ProviderMessageID, l.Error, l.SentAt,
	)
	if err != nil {
		return fmt.Errorf("complete push log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrMoved(ctx, l.TenantID, l.ID)
	}
	return nil
}

func (s *PostgresStore) TransitionLog(ctx context.Context, tenantID, logID string, from, to LogStatus) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE push_notification_logs SET status = $4
		WHERE tenant_id = $1 AND id = $2 AND status = $3`,
		tenantID, logID, from, to,
	)
	if err != nil {
		return fmt.Errorf("transition push log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrMoved(ctx, tenantID, logID)
	}
	return nil
}

func (s *PostgresStore) missingOrMoved(ctx context.Context, tenantID, logID string) error {
	if _, err := s.GetLog(ctx, tenantID, logID); err != nil {
		return err
	}
	return ErrInvalidStatus
}

// ClaimDueLogs uses SKIP LOCKED so concurrent sweepers never claim the same row.
func (s *PostgresStore) ClaimDueLogs(ctx context.Context, now time.Time, limit int) ([]PushNotificationLog, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE push_notification_logs SET status = 'PENDING'
		WHERE id IN (
			SELECT id FROM push_notification_logs
			WHERE status = 'QUEUED' AND scheduled_at <= $1
			ORDER BY scheduled_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+logColumns,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due push logs: %w", err)
	}
	defer rows.Close()

	var out []PushNotificationLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan push log: %w", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate push logs: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetLog(ctx context.Context, tenantID, logID string) (*PushNotificationLog, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+logColumns+` FROM push_notification_logs WHERE tenant_id = $1 AND id = $2`,
		tenantID, logID,
	)
	l, err := scanLog(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get push log: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) SumLogs(ctx context.Context, tenantID string, since time.Time) (LedgerTotals, error) {
	var t LedgerTotals
	err := s.db.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(total_recipients), 0),
			COALESCE(SUM(success_count), 0),
			COALESCE(SUM(failure_count), 0)
		FROM push_notification_logs
		WHERE tenant_id = $1 AND created_at >= $2`,
		tenantID, since,
	).Scan(&t.Sent, &t.Delivered, &t.Failed)
	if err != nil {
		return LedgerTotals{}, fmt.Errorf("sum push logs: %w", err)
	}
	return t, nil
}

func scanLog(row pgx.Row) (*PushNotificationLog, error) {
	var l PushNotificationLog
	if err := row.Scan(
		&l.ID, &l.TenantID, &l.Title, &l.Body, &l.ImageURL, &l.Data, &l.TargetType,
		&l.TargetIDs, &l.TotalRecipients, &l.SuccessCount, &l.FailureCount, &l.Status,
		&l.ProviderMessageID, &l.Error, &l.ScheduledAt, &l.SentAt, &l.CreatedBy, &l.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &l, nil
}
