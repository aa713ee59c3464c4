package repository

import (
	"context"
	"time"

	"staylink-chat/internal/domain/chat"
	"staylink-chat/internal/domain/notification"

	"github.com/google/uuid"
)

// RoomRepository persists chat rooms.
type RoomRepository interface {
	Create(ctx context.Context, room *chat.ChatRoom) error
	GetByID(ctx context.Context, id uuid.UUID) (chat.ChatRoom, error)
	GetByPair(ctx context.Context, userID, providerID uuid.UUID) (chat.ChatRoom, error)
	GetForUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]chat.ChatRoom, int64, error)
	GetForProvider(ctx context.Context, providerID uuid.UUID, page, limit int) ([]chat.ChatRoom, int64, error)
	SetLastMessage(ctx context.Context, roomID uuid.UUID, summary string, at time.Time) error
	// IncrementUnread bumps the given party's unread counter atomically
	// in the store, never read-modify-write.
	IncrementUnread(ctx context.Context, roomID uuid.UUID, party chat.SenderType) error
	ResetUnread(ctx context.Context, roomID uuid.UUID, party chat.SenderType) error
	SoftDelete(ctx context.Context, roomID uuid.UUID) error
}

// MessageRepository persists chat messages.
type MessageRepository interface {
	Create(ctx context.Context, m *chat.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (chat.Message, error)
	// GetRoomMessages returns newest-first pages.
	GetRoomMessages(ctx context.Context, roomID uuid.UUID, page, limit int) ([]chat.Message, error)
	MarkSeen(ctx context.Context, id uuid.UUID) error
	// MarkAllSeenByAuthor flips is_seen on every unseen message in the
	// room authored by the given party and reports how many changed.
	MarkAllSeenByAuthor(ctx context.Context, roomID uuid.UUID, author chat.SenderType) (int64, error)
	CountUnseenByAuthor(ctx context.Context, roomID uuid.UUID, author chat.SenderType) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// NotificationRepository persists notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *notification.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (notification.Notification, error)
	ListForRecipient(ctx context.Context, recipientID uuid.UUID, page, limit int) ([]notification.Notification, int64, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error)
}
