package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/database"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/utils"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
)

// NotificationRepository は通知の永続化を担当するインターフェースです
type NotificationRepository interface {
	CreateNotifications(ctx context.Context, records []model.NotificationRecord) error
	Create(ctx context.Context, tx *sqlx.Tx, record *model.NotificationRecord) error
	GetByUserID(ctx context.Context, userID int64) ([]model.NotificationRecord, error)
	MarkAsRead(ctx context.Context, id int64) error
}

// NotificationRepositoryImpl は通知の永続化を担当します
type NotificationRepositoryImpl struct {
	db *database.DB
}

// NewNotificationRepository は新しいNotificationRepositoryを作成します
func NewNotificationRepository(db *database.DB) *NotificationRepositoryImpl {
	return &NotificationRepositoryImpl{
		db: db,
	}
}

// CreateNotifications は複数の通知レコードを1つのトランザクションで作成します
func (r *NotificationRepositoryImpl) CreateNotifications(ctx context.Context, records []model.NotificationRecord) (err error) {
	ctx, done := utils.BeginSubsegment(ctx, "NotificationRepository.CreateNotifications")
	defer func() { done(err) }()

	return RunInTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for i := range records {
			if err := r.Create(ctx, tx, &records[i]); err != nil {
				return fmt.Errorf("failed to create notification: %w", err)
			}
		}
		return nil
	})
}

// Create は単一の通知レコードを作成します
func (r *NotificationRepositoryImpl) Create(ctx context.Context, tx *sqlx.Tx, record *model.NotificationRecord) (err error) {
	ctx, done := utils.BeginSubsegment(ctx, "NotificationRepository.Create")
	defer func() { done(err) }()

	query := `
		INSERT INTO notifications (
			user_id, title, message, is_read, type, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		RETURNING id`

	return tx.QueryRowContext(ctx,
		query,
		record.UserID,
		record.Title,
		record.Message,
		record.IsRead,
		record.Type,
		record.CreatedAt,
		record.UpdatedAt,
	).Scan(&record.ID)
}

// GetByUserID は指定されたユーザーIDの通知を新しい順に取得します
func (r *NotificationRepositoryImpl) GetByUserID(ctx context.Context, userID int64) (_ []model.NotificationRecord, err error) {
	ctx, done := utils.BeginSubsegment(ctx, "NotificationRepository.GetByUserID")
	defer func() { done(err) }()

	query := `
		SELECT id, user_id, title, message, is_read, type, created_at, updated_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC`

	records := []model.NotificationRecord{}
	if err = r.db.SelectContext(ctx, &records, query, userID); err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	return records, nil
}

// MarkAsRead は通知を既読にします
func (r *NotificationRepositoryImpl) MarkAsRead(ctx context.Context, id int64) (err error) {
	ctx, done := utils.BeginSubsegment(ctx, "NotificationRepository.MarkAsRead")
	defer func() { done(err) }()

	query := `
		UPDATE notifications
		SET is_read = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to update notification is_read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: notification with id %d", model.ErrNotFound, id)
	}

	return nil
}
