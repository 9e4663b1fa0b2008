package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

const notificationColumns = `id::text, provider_id::text, content, read, COALESCE(dedupe_key, ''), created_at`

type NotificationRepository struct {
	pool *db.Pool
}

var _ storage.NotificationStore = (*NotificationRepository)(nil)

func NewNotificationRepository(pool *db.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) Insert(ctx context.Context, n model.Notification) (model.Notification, bool, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	var dedupe *string
	if n.DedupeKey != "" {
		dedupe = &n.DedupeKey
	}

	stored, err := scanNotification(r.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, provider_id, content, dedupe_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (dedupe_key) WHERE dedupe_key IS NOT NULL DO NOTHING
		RETURNING `+notificationColumns,
		n.ID, n.ProviderID, n.Content, dedupe))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || dedupe == nil {
		return model.Notification{}, false, fmt.Errorf("insert notification: %w", err)
	}

	// The dedupe key already exists: return the original row.
	stored, err = scanNotification(r.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE dedupe_key = $1
	`, n.DedupeKey))
	if err != nil {
		return model.Notification{}, false, fmt.Errorf("load deduplicated notification: %w", err)
	}
	return stored, false, nil
}

func (r *NotificationRepository) ListByProvider(ctx context.Context, providerID string, p model.Page) ([]model.Notification, error) {
	p = p.Normalize()
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE provider_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, providerID, p.Size, p.Offset())
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Notification, error) {
		return scanNotification(row)
	})
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

func (r *NotificationRepository) SetRead(ctx context.Context, providerID, id string) (model.Notification, error) {
	n, err := scanNotification(r.pool.QueryRow(ctx, `
		UPDATE notifications
		SET read = true
		WHERE id = $1 AND provider_id = $2
		RETURNING `+notificationColumns,
		id, providerID))
	if isMissing(err) {
		return model.Notification{}, storage.ErrNotFound
	}
	if err != nil {
		return model.Notification{}, fmt.Errorf("mark notification read: %w", err)
	}
	return n, nil
}

func scanNotification(row pgx.Row) (model.Notification, error) {
	var n model.Notification
	err := row.Scan(&n.ID, &n.ProviderID, &n.Content, &n.Read, &n.DedupeKey, &n.CreatedAt)
	return n, err
}
