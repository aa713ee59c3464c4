package repository

import (
	"context"
	"errors"
	"time"

	"staylink-chat/internal/domain/chat"
	staylink_errors "staylink-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m *chat.Message) error {
	res := r.db.WithContext(ctx).Create(m)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return staylink_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (chat.Message, error) {
	var m chat.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Message{}, staylink_errors.ErrNotFound
		}
		return chat.Message{}, err
	}
	return m, nil
}

func (r *PostgresMessageRepository) GetRoomMessages(ctx context.Context, roomID uuid.UUID, page, limit int) ([]chat.Message, error) {
	var messages []chat.Message
	offset := (page - 1) * limit
	err := r.db.WithContext(ctx).
		Where("chat_room_id = ?", roomID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *PostgresMessageRepository) MarkSeen(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&chat.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_seen":    true,
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

func (r *PostgresMessageRepository) MarkAllSeenByAuthor(ctx context.Context, roomID uuid.UUID, author chat.SenderType) (int64, error) {
	if !author.Valid() {
		return 0, staylink_errors.ErrInvalidInput
	}
	res := r.db.WithContext(ctx).
		Model(&chat.Message{}).
		Where("chat_room_id = ? AND sender_type = ? AND is_seen = ?", roomID, author, false).
		Updates(map[string]interface{}{
			"is_seen":    true,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *PostgresMessageRepository) CountUnseenByAuthor(ctx context.Context, roomID uuid.UUID, author chat.SenderType) (int64, error) {
	if !author.Valid() {
		return 0, staylink_errors.ErrInvalidInput
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&chat.Message{}).
		Where("chat_room_id = ? AND sender_type = ? AND is_seen = ?", roomID, author, false).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PostgresMessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&chat.Message{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return staylink_errors.ErrNotFound
	}
	return nil
}
