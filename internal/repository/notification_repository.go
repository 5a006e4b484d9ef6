package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propagentic/maintenance-service/internal/domain"
)

// NotificationRepository persists notifications, their delivery records and
// the retention sweeps that age them out.
type NotificationRepository interface {
	Create(ctx context.Context, notification *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Notification, error)
	CreateDeliveryRecord(ctx context.Context, record *domain.DeliveryRecord) error
	UpdateDeliveryRecord(ctx context.Context, record *domain.DeliveryRecord) error
	GetDeliveryRecord(ctx context.Context, notificationID string) (*domain.DeliveryRecord, error)
	// DeleteOlderThan hard-deletes notifications (and delivery records)
	// created before the cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// PurgeSoftDeleted removes notifications soft-deleted before the cutoff.
	PurgeSoftDeleted(ctx context.Context, cutoff time.Time) (int64, error)
	// ArchiveRead archives read notifications created before the cutoff.
	ArchiveRead(ctx context.Context, cutoff time.Time) (int64, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, notification *domain.Notification) error {
	const query = `
        INSERT INTO notifications (user_id, user_role, type, title, message, data)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		notification.UserID,
		notification.UserRole,
		notification.Type,
		notification.Title,
		notification.Message,
		notification.Data,
	).Scan(&notification.ID, &notification.CreatedAt)
}

func (r *notificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	const query = `
        SELECT id, user_id, user_role, type, title, message, data, read, archived, deleted_at, created_at
        FROM notifications WHERE id=$1`
	row := r.pool.QueryRow(ctx, query, id)
	return scanNotificationRow(row)
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, user_id, user_role, type, title, message, data, read, archived, deleted_at, created_at
        FROM notifications
        WHERE user_id=$1 AND deleted_at IS NULL AND archived = FALSE
        ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		notification, err := scanNotificationRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *notification)
	}
	return result, rows.Err()
}

func scanNotificationRow(row rowScanner) (*domain.Notification, error) {
	var notification domain.Notification
	if err := row.Scan(
		&notification.ID,
		&notification.UserID,
		&notification.UserRole,
		&notification.Type,
		&notification.Title,
		&notification.Message,
		&notification.Data,
		&notification.Read,
		&notification.Archived,
		&notification.DeletedAt,
		&notification.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *notificationRepository) CreateDeliveryRecord(ctx context.Context, record *domain.DeliveryRecord) error {
	channels, err := json.Marshal(record.Channels)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO delivery_records (notification_id, user_id, channels, completed, failed, error)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		record.NotificationID,
		record.UserID,
		channels,
		record.Completed,
		record.Failed,
		record.Error,
	).Scan(&record.CreatedAt, &record.UpdatedAt)
}

func (r *notificationRepository) UpdateDeliveryRecord(ctx context.Context, record *domain.DeliveryRecord) error {
	channels, err := json.Marshal(record.Channels)
	if err != nil {
		return err
	}
	const query = `
        UPDATE delivery_records SET channels=$1, completed=$2, failed=$3, error=$4, updated_at=NOW()
        WHERE notification_id=$5`
	cmd, err := r.pool.Exec(ctx, query,
		channels,
		record.Completed,
		record.Failed,
		record.Error,
		record.NotificationID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationRepository) GetDeliveryRecord(ctx context.Context, notificationID string) (*domain.DeliveryRecord, error) {
	const query = `
        SELECT notification_id, user_id, channels, completed, failed, error, created_at, updated_at
        FROM delivery_records WHERE notification_id=$1`
	var record domain.DeliveryRecord
	var channels []byte
	if err := r.pool.QueryRow(ctx, query, notificationID).Scan(
		&record.NotificationID,
		&record.UserID,
		&channels,
		&record.Completed,
		&record.Failed,
		&record.Error,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &record.Channels); err != nil {
			return nil, err
		}
	}
	return &record, nil
}

func (r *notificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const deliveries = `
        DELETE FROM delivery_records WHERE notification_id IN
            (SELECT id FROM notifications WHERE created_at < $1)`
	if _, err := r.pool.Exec(ctx, deliveries, cutoff); err != nil {
		return 0, err
	}
	const query = `DELETE FROM notifications WHERE created_at < $1`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *notificationRepository) PurgeSoftDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	const deliveries = `
        DELETE FROM delivery_records WHERE notification_id IN
            (SELECT id FROM notifications WHERE deleted_at IS NOT NULL AND deleted_at < $1)`
	if _, err := r.pool.Exec(ctx, deliveries, cutoff); err != nil {
		return 0, err
	}
	const query = `DELETE FROM notifications WHERE deleted_at IS NOT NULL AND deleted_at < $1`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *notificationRepository) ArchiveRead(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
        UPDATE notifications SET archived=TRUE
        WHERE read=TRUE AND archived=FALSE AND created_at < $1`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
