package repository

import (
	"context"
	"errors"
	"time"

	"staylink-chat/internal/domain/chat"
	staylink_errors "staylink-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type PostgresRoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &PostgresRoomRepository{db: db}
}

func (r *PostgresRoomRepository) Create(ctx context.Context, room *chat.ChatRoom) error {
	res := r.db.WithContext(ctx).Create(room)
	if res.Error != nil {
		if isUniqueViolation(res.Error) || errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return staylink_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (chat.ChatRoom, error) {
	var room chat.ChatRoom
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.ChatRoom{}, staylink_errors.ErrNotFound
		}
		return chat.ChatRoom{}, err
	}
	return room, nil
}

func (r *PostgresRoomRepository) GetByPair(ctx context.Context, userID, providerID uuid.UUID) (chat.ChatRoom, error) {
	var room chat.ChatRoom
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider_id = ? AND deleted_at IS NULL", userID, providerID).
		First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.ChatRoom{}, staylink_errors.ErrNotFound
		}
		return chat.ChatRoom{}, err
	}
	return room, nil
}

func (r *PostgresRoomRepository) GetForUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]chat.ChatRoom, int64, error) {
	return r.listByParty(ctx, "user_id", userID, page, limit)
}

func (r *PostgresRoomRepository) GetForProvider(ctx context.Context, providerID uuid.UUID, page, limit int) ([]chat.ChatRoom, int64, error) {
	return r.listByParty(ctx, "provider_id", providerID, page, limit)
}

func (r *PostgresRoomRepository) listByParty(ctx context.Context, column string, id uuid.UUID, page, limit int) ([]chat.ChatRoom, int64, error) {
	var rooms []chat.ChatRoom
	var total int64

	q := r.db.WithContext(ctx).
		Model(&chat.ChatRoom{}).
		Where(column+" = ? AND deleted_at IS NULL", id)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := q.Order("last_message_time DESC").Offset(offset).Limit(limit).Find(&rooms).Error; err != nil {
		return nil, 0, err
	}
	return rooms, total, nil
}

func (r *PostgresRoomRepository) SetLastMessage(ctx context.Context, roomID uuid.UUID, summary string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&chat.ChatRoom{}).
		Where("id = ? AND deleted_at IS NULL", roomID).
		Updates(map[string]interface{}{
			"last_message":      summary,
			"last_message_time": at,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return staylink_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresRoomRepository) IncrementUnread(ctx context.Context, roomID uuid.UUID, party chat.SenderType) error {
	column, err := unreadColumn(party)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).
		Model(&chat.ChatRoom{}).
		Where("id = ? AND deleted_at IS NULL", roomID).
		Updates(map[string]interface{}{
			column:       gorm.Expr(column+" + 1"),
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

func (r *PostgresRoomRepository) ResetUnread(ctx context.Context, roomID uuid.UUID, party chat.SenderType) error {
	column, err := unreadColumn(party)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).
		Model(&chat.ChatRoom{}).
		Where("id = ? AND deleted_at IS NULL", roomID).
		Updates(map[string]interface{}{
			column:       0,
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

func (r *PostgresRoomRepository) SoftDelete(ctx context.Context, roomID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&chat.ChatRoom{}).
		Where("id = ? AND deleted_at IS NULL", roomID).
		Update("deleted_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return staylink_errors.ErrNotFound
	}
	return nil
}

func unreadColumn(party chat.SenderType) (string, error) {
	switch party {
	case chat.SenderUser:
		return "user_unread_count", nil
	case chat.SenderProvider:
		return "provider_unread_count", nil
	default:
		return "", staylink_errors.ErrInvalidInput
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
