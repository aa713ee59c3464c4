package chat

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// SenderType identifies which side of a room authored a message.
type SenderType string

const (
	SenderUser     SenderType = "user"
	SenderProvider SenderType = "provider"
)

func (s SenderType) Valid() bool {
	return s == SenderUser || s == SenderProvider
}

// Opposite returns the other party of a room.
func (s SenderType) Opposite() SenderType {
	if s == SenderUser {
		return SenderProvider
	}
	return SenderUser
}

// ChatRoom represents the chat_rooms table: one conversation between
// exactly one user and one provider.
type ChatRoom struct {
	ID                  uuid.UUID    `json:"id"`
	UserID              uuid.UUID    `json:"user_id"`
	ProviderID          uuid.UUID    `json:"provider_id"`
	LastMessage         string       `json:"last_message"`
	LastMessageTime     time.Time    `json:"last_message_time"`
	UserUnreadCount     int          `json:"user_unread_count"`
	ProviderUnreadCount int          `json:"provider_unread_count"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
	DeletedAt           sql.NullTime `json:"-"`
}

// UnreadFor returns the unread counter belonging to the given party.
func (r ChatRoom) UnreadFor(party SenderType) int {
	if party == SenderUser {
		return r.UserUnreadCount
	}
	return r.ProviderUnreadCount
}

// Message represents the messages table.
type Message struct {
	ID               uuid.UUID      `json:"id"`
	ChatRoomID       uuid.UUID      `json:"chat_room_id"`
	SenderID         uuid.UUID      `json:"sender_id"`
	SenderType       SenderType     `json:"sender_type"`
	Content          string         `json:"content"`
	Image            sql.NullString `json:"-"`
	ReplyToMessageID uuid.NullUUID  `json:"-"`
	IsSeen           bool           `json:"is_seen"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	// ImageURL is the presigned (or raw) image location, populated on
	// the fetch path. Never persisted.
	ImageURL string `json:"image,omitempty" gorm:"-"`
	// ReplyTo is resolved lazily from ReplyToMessageID; nil when the
	// message is not a reply, a placeholder when the target is gone.
	ReplyTo *ReplyPreview `json:"reply_to,omitempty" gorm:"-"`
}

// HasPayload reports whether at least one payload channel is populated.
func (m Message) HasPayload() bool {
	return m.Content != "" || (m.Image.Valid && m.Image.String != "")
}

// ReplyPreview is the denormalized summary of a reply target.
type ReplyPreview struct {
	ID          uuid.UUID  `json:"id"`
	SenderID    uuid.UUID  `json:"sender_id"`
	SenderType  SenderType `json:"sender_type"`
	Content     string     `json:"content"`
	Unavailable bool       `json:"unavailable,omitempty"`
}

func (ChatRoom) TableName() string {
	return "chat_rooms"
}

func (Message) TableName() string {
	return "messages"
}
