package httpdto

// CreateRoomRequest opens (or returns the existing) room between the
// authenticated party and the counterpart. Which side the caller is on
// comes from the token, not the body.
type CreateRoomRequest struct {
	CounterpartID string `json:"counterpart_id" binding:"required"`
}

type SendMessageRequest struct {
	RoomID           string `json:"room_id" binding:"required"`
	Content          string `json:"content"`
	Image            string `json:"image"`
	ReplyToMessageID string `json:"reply_to_message_id"`
}

// Paged wraps a list endpoint's page.
type Paged[T any] struct {
	Items []T   `json:"items"`
	Page  int   `json:"page"`
	Total int64 `json:"total,omitempty"`
}

type UnseenCountResponse struct {
	RoomID string `json:"room_id"`
	Count  int64  `json:"count"`
}

type MarkSeenResponse struct {
	RoomID  string `json:"room_id"`
	Updated bool   `json:"updated"`
}
