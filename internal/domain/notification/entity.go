package notification

import (
	"time"

	"github.com/google/uuid"
)

// Notification represents the notifications table. Rows are written by
// peripheral flows (booking updates, rent reminders, chat pings) and
// fanned out to the recipient over the realtime gateway.
type Notification struct {
	ID          uuid.UUID     `json:"id"`
	RecipientID uuid.UUID     `json:"recipient_id"`
	SenderID    uuid.NullUUID `json:"-"`
	Title       string        `json:"title"`
	Message     string        `json:"message"`
	Type        string        `json:"type"`
	IsRead      bool          `json:"is_read"`
	IsDeleted   bool          `json:"-"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

const (
	TypeNewMessage   = "new_message"
	TypeBooking      = "booking"
	TypeRentReminder = "rent_reminder"
	TypeAnnouncement = "announcement"
)

func (Notification) TableName() string {
	return "notifications"
}
