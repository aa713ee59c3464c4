package chatclient

import (
	"encoding/json"
	"time"
)

// frame mirrors the gateway's wire envelope.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func newFrame(event string, payload interface{}) (frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return frame{}, err
	}
	return frame{Event: event, Data: data}, nil
}

const (
	eventUserStatus       = "user_status"
	eventJoinRoom         = "join_room"
	eventLeaveRoom        = "leave_room"
	eventSendMessage      = "send_message"
	eventMarkMessagesSeen = "mark_messages_seen"
	eventTyping           = "typing"

	eventReceiveMessage         = "receive_message"
	eventMessagesSeen           = "messages_seen"
	eventUserTyping             = "user_typing"
	eventNewMessageNotification = "new_message_notification"
	eventUserStatusChanged      = "user_status_changed"
	eventInitialOnlineUsers     = "initial_online_users"
	eventNewNotification        = "new_notification"
	eventNotificationCount      = "notification_count"
	eventError                  = "error"
)

type userStatusPayload struct {
	IsOnline bool `json:"is_online"`
}

type roomPayload struct {
	RoomID string `json:"room_id"`
}

type sendMessagePayload struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
}

type typingPayload struct {
	RoomID   string `json:"room_id"`
	IsTyping bool   `json:"is_typing"`
}

type receiveMessagePayload struct {
	Message wireMessage `json:"message"`
}

type messagesSeenPayload struct {
	RoomID        string `json:"room_id"`
	RecipientType string `json:"recipient_type"`
}

type userTypingPayload struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type userStatusChangedPayload struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	IsOnline bool   `json:"is_online"`
}

type newMessageNotificationPayload struct {
	RoomID      string `json:"room_id"`
	MessageID   string `json:"message_id"`
	SenderID    string `json:"sender_id"`
	SenderType  string `json:"sender_type"`
	Preview     string `json:"preview"`
	RecipientID string `json:"recipient_id"`
}

type notificationCountPayload struct {
	Count int64 `json:"count"`
}

type errorPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wireMessage is a message as the server serializes it.
type wireMessage struct {
	ID         string        `json:"id"`
	ChatRoomID string        `json:"chat_room_id"`
	SenderID   string        `json:"sender_id"`
	SenderType string        `json:"sender_type"`
	Content    string        `json:"content"`
	ImageURL   string        `json:"image,omitempty"`
	IsSeen     bool          `json:"is_seen"`
	CreatedAt  time.Time     `json:"created_at"`
	ReplyTo    *ReplyPreview `json:"reply_to,omitempty"`
}

func (m wireMessage) view() MessageView {
	return MessageView{
		ID:         m.ID,
		RoomID:     m.ChatRoomID,
		SenderID:   m.SenderID,
		SenderType: m.SenderType,
		Content:    m.Content,
		ImageURL:   m.ImageURL,
		IsSeen:     m.IsSeen,
		CreatedAt:  m.CreatedAt,
		ReplyTo:    m.ReplyTo,
	}
}
