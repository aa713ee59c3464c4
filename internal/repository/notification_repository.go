package repository

import (
	"context"
	"errors"
	"time"

	"staylink-chat/internal/domain/notification"
	staylink_errors "staylink-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresNotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

func (r *PostgresNotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *PostgresNotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (notification.Notification, error) {
	var n notification.Notification
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notification.Notification{}, staylink_errors.ErrNotFound
		}
		return notification.Notification{}, err
	}
	return n, nil
}

func (r *PostgresNotificationRepository) ListForRecipient(ctx context.Context, recipientID uuid.UUID, page, limit int) ([]notification.Notification, int64, error) {
	var items []notification.Notification
	var total int64

	q := r.db.WithContext(ctx).
		Model(&notification.Notification{}).
		Where("recipient_id = ? AND is_deleted = ?", recipientID, false)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	return r.setFlag(ctx, id, "is_read")
}

func (r *PostgresNotificationRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.setFlag(ctx, id, "is_deleted")
}

func (r *PostgresNotificationRepository) setFlag(ctx context.Context, id uuid.UUID, column string) error {
	res := r.db.WithContext(ctx).
		Model(&notification.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			column:       true,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return staylink_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresNotificationRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&notification.Notification{}).
		Where("recipient_id = ? AND is_read = ? AND is_deleted = ?", recipientID, false, false).
		Updates(map[string]interface{}{
			"is_read":    true,
			"updated_at": time.Now(),
		}).Error
}

func (r *PostgresNotificationRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&notification.Notification{}).
		Where("recipient_id = ? AND is_read = ? AND is_deleted = ?", recipientID, false, false).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
