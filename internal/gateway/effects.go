package gateway

import (
	"context"

	"github.com/google/uuid"

	"staylink-chat/internal/domain/chat"
	"staylink-chat/internal/domain/notification"
	"staylink-chat/internal/redis"
	"staylink-chat/internal/services"
)

// serviceEffects binds the protocol to the real services and presence store.
type serviceEffects struct {
	presence      *redis.PresenceStore
	chats         *services.ChatService
	notifications *services.NotificationService
}

func NewServiceEffects(presence *redis.PresenceStore, chats *services.ChatService, notifications *services.NotificationService) Effects {
	return &serviceEffects{
		presence:      presence,
		chats:         chats,
		notifications: notifications,
	}
}

func (e *serviceEffects) RecordConnection(ctx context.Context, userID, connID, role string) error {
	return e.presence.RecordConnection(ctx, userID, connID, role)
}

func (e *serviceEffects) SetOnline(ctx context.Context, userID, role string, online bool) error {
	return e.presence.SetOnline(ctx, userID, role, online)
}

func (e *serviceEffects) OnlineSnapshot(ctx context.Context) ([]string, []string, error) {
	users, err := e.presence.OnlineUserIDs(ctx, string(chat.SenderUser))
	if err != nil {
		return nil, nil, err
	}
	providers, err := e.presence.OnlineUserIDs(ctx, string(chat.SenderProvider))
	if err != nil {
		return nil, nil, err
	}
	return users, providers, nil
}

func (e *serviceEffects) JoinRoom(ctx context.Context, roomID, connID string) error {
	return e.presence.JoinRoom(ctx, roomID, connID)
}

func (e *serviceEffects) LeaveRoom(ctx context.Context, roomID, connID string) error {
	return e.presence.LeaveRoom(ctx, roomID, connID)
}

// RecipientWatching reports whether the user's current connection is
// subscribed to the room. A recipient with no recorded connection is never
// watching.
func (e *serviceEffects) RecipientWatching(ctx context.Context, roomID, userID string) (bool, error) {
	info, err := e.presence.ConnectionForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if info.ConnID == "" {
		return false, nil
	}
	return e.presence.IsRoomMember(ctx, roomID, info.ConnID)
}

func (e *serviceEffects) ClearConnection(ctx context.Context, connID string) (string, string, bool, error) {
	userID, role, err := e.presence.ClearConnection(ctx, connID)
	if err != nil {
		return userID, role, false, err
	}
	if userID == "" || role == "" {
		return userID, role, false, nil
	}
	stillOnline, err := e.presence.IsUserOnline(ctx, userID, role)
	if err != nil {
		return userID, role, false, err
	}
	return userID, role, stillOnline, nil
}

func (e *serviceEffects) Touch(ctx context.Context, userID, connID string) error {
	return e.presence.Touch(ctx, userID, connID)
}

func (e *serviceEffects) TrackTyping(ctx context.Context, roomID, userID string, isTyping bool) error {
	return e.presence.TrackTyping(ctx, roomID, userID, isTyping)
}

func (e *serviceEffects) Room(ctx context.Context, roomID uuid.UUID) (chat.ChatRoom, error) {
	return e.chats.GetRoom(ctx, roomID)
}

func (e *serviceEffects) SendMessage(ctx context.Context, in services.SendMessageInput) (chat.Message, error) {
	return e.chats.SendMessage(ctx, in)
}

func (e *serviceEffects) Message(ctx context.Context, id uuid.UUID) (chat.Message, error) {
	return e.chats.GetMessage(ctx, id)
}

func (e *serviceEffects) MarkAllSeen(ctx context.Context, roomID uuid.UUID, recipient chat.SenderType) (bool, error) {
	return e.chats.MarkAllSeen(ctx, roomID, recipient)
}

func (e *serviceEffects) CreateNotification(ctx context.Context, in services.CreateNotificationInput) (notification.Notification, error) {
	return e.notifications.Create(ctx, in)
}

func (e *serviceEffects) MarkNotificationRead(ctx context.Context, id uuid.UUID) error {
	return e.notifications.MarkRead(ctx, id)
}

func (e *serviceEffects) DeleteNotification(ctx context.Context, id uuid.UUID) error {
	return e.notifications.Delete(ctx, id)
}

func (e *serviceEffects) MarkAllNotificationsRead(ctx context.Context, recipientID uuid.UUID) error {
	return e.notifications.MarkAllRead(ctx, recipientID)
}

func (e *serviceEffects) UnreadNotificationCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	return e.notifications.UnreadCount(ctx, recipientID)
}
