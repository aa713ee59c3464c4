package gateway

import (
	"encoding/json"

	"staylink-chat/internal/domain/chat"
	"staylink-chat/internal/domain/notification"
)

// Frame is the wire envelope for every gateway event, both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewFrame(event string, payload interface{}) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: data}, nil
}

// Client -> server events
const (
	EventUserStatus               = "user_status"
	EventJoinRoom                 = "join_room"
	EventLeaveRoom                = "leave_room"
	EventSendMessage              = "send_message"
	EventMarkMessagesSeen         = "mark_messages_seen"
	EventTyping                   = "typing"
	EventMarkNotificationRead     = "mark_notification_read"
	EventDeleteNotification       = "delete_notification"
	EventMarkAllNotificationsRead = "mark_all_notifications_read"
)

// Server -> client events
const (
	EventReceiveMessage         = "receive_message"
	EventMessagesSeen           = "messages_seen"
	EventUserTyping             = "user_typing"
	EventNewMessageNotification = "new_message_notification"
	EventUserStatusChanged      = "user_status_changed"
	EventInitialOnlineUsers     = "initial_online_users"
	EventNewNotification        = "new_notification"
	EventNotificationCount      = "notification_count"
	EventError                  = "error"
)

// Inbound payloads. Sender identity fields are intentionally absent:
// the authenticated session supplies them.

type UserStatusPayload struct {
	IsOnline bool `json:"is_online"`
}

type RoomPayload struct {
	RoomID string `json:"room_id"`
}

type SendMessagePayload struct {
	RoomID           string `json:"room_id"`
	Content          string `json:"content"`
	Image            string `json:"image,omitempty"`
	ReplyToMessageID string `json:"reply_to_message_id,omitempty"`
	// MessageID set means the message is already persisted (optimistic
	// send de-dupe path); the gateway echoes it instead of re-creating.
	MessageID string `json:"message_id,omitempty"`
}

type TypingPayload struct {
	RoomID   string `json:"room_id"`
	IsTyping bool   `json:"is_typing"`
}

type NotificationIDPayload struct {
	NotificationID string `json:"notification_id"`
}

// Outbound payloads

type UserStatusChangedPayload struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	IsOnline bool   `json:"is_online"`
}

type InitialOnlineUsersPayload struct {
	Users     []string `json:"users"`
	Providers []string `json:"providers"`
}

type ReceiveMessagePayload struct {
	Message chat.Message `json:"message"`
}

type MessagesSeenPayload struct {
	RoomID        string `json:"room_id"`
	RecipientType string `json:"recipient_type"`
}

type UserTypingPayload struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type NewMessageNotificationPayload struct {
	RoomID      string `json:"room_id"`
	MessageID   string `json:"message_id"`
	SenderID    string `json:"sender_id"`
	SenderType  string `json:"sender_type"`
	Preview     string `json:"preview"`
	HasImage    bool   `json:"has_image,omitempty"`
	RecipientID string `json:"recipient_id"`
}

type NewNotificationPayload struct {
	Notification notification.Notification `json:"notification"`
}

type NotificationCountPayload struct {
	Count int64 `json:"count"`
}

type ErrorPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TargetKind selects how an outbound event is routed.
type TargetKind int

const (
	// TargetConn delivers to one connection.
	TargetConn TargetKind = iota
	// TargetRoom delivers to every connection subscribed to a room.
	TargetRoom
	// TargetUser delivers to every connection of a user.
	TargetUser
	// TargetAll delivers to every connected client.
	TargetAll
	// TargetJoinRoom and TargetLeaveRoom carry no frame. The hub updates
	// the dispatching session's room subscriptions instead of delivering.
	TargetJoinRoom
	TargetLeaveRoom
)

// OutEvent is a routed outbound frame produced by a protocol handler.
type OutEvent struct {
	Kind  TargetKind
	ID    string // conn, room or user id depending on Kind
	Frame Frame
}

// Channel returns the logical pub/sub channel an OutEvent travels on.
func (e OutEvent) Channel() string {
	switch e.Kind {
	case TargetConn:
		return "conn:" + e.ID
	case TargetRoom:
		return "room:" + e.ID
	case TargetUser:
		return "user:" + e.ID
	default:
		return "all"
	}
}
