package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/pushkit/pkg/pg"
)

// PostgresStorage stores notifications in the notifications table.
type PostgresStorage struct {
	db pg.DB
}

var _ Storage = (*PostgresStorage)(nil)

// NewPostgresStorage creates a storage backed by db.
func NewPostgresStorage(db pg.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

const notificationColumns = `id, tenant_id, user_id, type, title, message, data, read_at, created_at`

func (s *PostgresStorage) Create(ctx context.Context, notif Notification) error {
	if err := notif.Validate(); err != nil {
		return err
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		notif.ID, notif.TenantID, notif.UserID, notif.Type, notif.Title,
		notif.Message, notif.Data, notif.ReadAt, notif.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Get(ctx context.Context, tenantID, userID, notifID string) (*Notification, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE tenant_id = $1 AND user_id = $2 AND id = $3`,
		tenantID, userID, notifID,
	)
	n, err := scanNotification(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (s *PostgresStorage) List(ctx context.Context, tenantID, userID string, opts ListOptions) ([]Notification, error) {
	var (
		where = []string{"tenant_id = $1", "user_id = $2"}
		args  = []any{tenantID, userID}
	)
	if opts.OnlyUnread {
		where = append(where, "read_at IS NULL")
	}
	if len(opts.Types) > 0 {
		types := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		where = append(where, fmt.Sprintf("type = ANY($%d)", len(args)))
	}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return collectNotifications(rows)
}

func (s *PostgresStorage) MarkRead(ctx context.Context, tenantID, userID string, at time.Time, notifIDs ...string) ([]Notification, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE notifications SET read_at = $4
		WHERE tenant_id = $1 AND user_id = $2 AND id = ANY($3) AND read_at IS NULL
		RETURNING `+notificationColumns,
		tenantID, userID, notifIDs, at,
	)
	if err != nil {
		return nil, fmt.Errorf("mark notifications read: %w", err)
	}
	return collectNotifications(rows)
}

func (s *PostgresStorage) Delete(ctx context.Context, tenantID, userID string, notifIDs ...string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM notifications
		WHERE tenant_id = $1 AND user_id = $2 AND id = ANY($3)`,
		tenantID, userID, notifIDs,
	)
	if err != nil {
		return fmt.Errorf("delete notifications: %w", err)
	}
	return nil
}

func (s *PostgresStorage) CountUnread(ctx context.Context, tenantID, userID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM notifications
		WHERE tenant_id = $1 AND user_id = $2 AND read_at IS NULL`,
		tenantID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	if err := row.Scan(
		&n.ID, &n.TenantID, &n.UserID, &n.Type, &n.Title,
		&n.Message, &n.Data, &n.ReadAt, &n.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}

func collectNotifications(rows pgx.Rows) ([]Notification, error) {
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}
