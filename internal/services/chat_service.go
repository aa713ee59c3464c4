package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"staylink-chat/internal/domain/chat"
	"staylink-chat/internal/repository"
	staylink_errors "staylink-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// MessagePageSize is the fixed page size for message history.
	MessagePageSize = 20
	// RoomPageSize is the default page size for room listings.
	RoomPageSize = 10

	imageSummary = "[image]"
)

// ChatService is the only writer of rooms and messages. It orchestrates
// message creation, room bookkeeping (last message, unread counters) and
// read-state queries.
type ChatService struct {
	db       *gorm.DB
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	media    *MediaService
}

func NewChatService(db *gorm.DB, rooms repository.RoomRepository, messages repository.MessageRepository, media *MediaService) *ChatService {
	return &ChatService{
		db:       db,
		rooms:    rooms,
		messages: messages,
		media:    media,
	}
}

// CreateOrGetRoom finds the room for a (user, provider) pair, creating it
// on first contact. The unique index on the pair makes the concurrent case
// safe: a losing writer re-reads and returns the winner's row.
func (s *ChatService) CreateOrGetRoom(ctx context.Context, userID, providerID uuid.UUID) (chat.ChatRoom, error) {
	if userID == uuid.Nil || providerID == uuid.Nil {
		return chat.ChatRoom{}, staylink_errors.ErrInvalidInput
	}

	room, err := s.rooms.GetByPair(ctx, userID, providerID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, staylink_errors.ErrNotFound) {
		return chat.ChatRoom{}, err
	}

	now := time.Now()
	room = chat.ChatRoom{
		ID:              uuid.New(),
		UserID:          userID,
		ProviderID:      providerID,
		LastMessageTime: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.rooms.Create(ctx, &room); err != nil {
		if errors.Is(err, staylink_errors.ErrAlreadyExists) {
			return s.rooms.GetByPair(ctx, userID, providerID)
		}
		return chat.ChatRoom{}, err
	}
	return room, nil
}

// SendMessageInput carries a validated send request. SenderID and
// SenderType come from the authenticated session, never from the wire.
type SendMessageInput struct {
	RoomID           uuid.UUID
	SenderID         uuid.UUID
	SenderType       chat.SenderType
	Content          string
	Image            string
	ReplyToMessageID uuid.NullUUID
}

// SendMessage persists the message and updates the room's last-message
// summary and the recipient's unread counter in one transaction.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (chat.Message, error) {
	if !in.SenderType.Valid() {
		return chat.Message{}, staylink_errors.ErrInvalidInput
	}
	if in.Content == "" && in.Image == "" {
		return chat.Message{}, staylink_errors.ErrInvalidInput
	}

	room, err := s.rooms.GetByID(ctx, in.RoomID)
	if err != nil {
		return chat.Message{}, err
	}
	if err := senderBelongsToRoom(room, in.SenderID, in.SenderType); err != nil {
		return chat.Message{}, err
	}

	if in.ReplyToMessageID.Valid {
		target, err := s.messages.GetByID(ctx, in.ReplyToMessageID.UUID)
		if err != nil {
			return chat.Message{}, err
		}
		if target.ChatRoomID != in.RoomID {
			return chat.Message{}, staylink_errors.ErrNotFound
		}
	}

	now := time.Now()
	msg := chat.Message{
		ID:               uuid.New(),
		ChatRoomID:       in.RoomID,
		SenderID:         in.SenderID,
		SenderType:       in.SenderType,
		Content:          in.Content,
		ReplyToMessageID: in.ReplyToMessageID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.Image != "" {
		msg.Image = sql.NullString{String: in.Image, Valid: true}
	}

	summary := in.Content
	if summary == "" {
		summary = imageSummary
	}

	if s.db == nil {
		err = s.persistSend(ctx, s.rooms, s.messages, &msg, summary)
	} else {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.persistSend(ctx, repository.NewRoomRepository(tx), repository.NewMessageRepository(tx), &msg, summary)
		})
	}
	if err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

func (s *ChatService) persistSend(ctx context.Context, rooms repository.RoomRepository, messages repository.MessageRepository, msg *chat.Message, summary string) error {
	if err := messages.Create(ctx, msg); err != nil {
		return err
	}
	if err := rooms.SetLastMessage(ctx, msg.ChatRoomID, summary, msg.CreatedAt); err != nil {
		return err
	}
	return rooms.IncrementUnread(ctx, msg.ChatRoomID, msg.SenderType.Opposite())
}

// GetMessage returns a persisted message by id, image URL rewritten. Used
// by the gateway's de-dupe path for optimistic sends.
func (s *ChatService) GetMessage(ctx context.Context, id uuid.UUID) (chat.Message, error) {
	msg, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return chat.Message{}, err
	}
	s.decorate(ctx, &msg)
	return msg, nil
}

// GetMessages returns one newest-first page of a room's history. Reply
// targets resolve lazily; a dangling reference degrades to an
// "unavailable" placeholder instead of failing the fetch.
func (s *ChatService) GetMessages(ctx context.Context, roomID uuid.UUID, page int) ([]chat.Message, error) {
	if page <= 0 {
		page = 1
	}
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return nil, err
	}

	messages, err := s.messages.GetRoomMessages(ctx, roomID, page, MessagePageSize)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		s.decorate(ctx, &messages[i])
	}
	return messages, nil
}

func (s *ChatService) decorate(ctx context.Context, msg *chat.Message) {
	if msg.Image.Valid && msg.Image.String != "" {
		msg.ImageURL = s.media.SignedURL(ctx, msg.Image.String)
	}
	if !msg.ReplyToMessageID.Valid {
		return
	}
	target, err := s.messages.GetByID(ctx, msg.ReplyToMessageID.UUID)
	if err != nil {
		msg.ReplyTo = &chat.ReplyPreview{ID: msg.ReplyToMessageID.UUID, Unavailable: true}
		return
	}
	msg.ReplyTo = &chat.ReplyPreview{
		ID:         target.ID,
		SenderID:   target.SenderID,
		SenderType: target.SenderType,
		Content:    target.Content,
	}
}

// MarkAllSeen flips is_seen on every unseen message authored by the other
// party and, when anything changed, resets the recipient's unread counter.
// Reports whether any row changed.
func (s *ChatService) MarkAllSeen(ctx context.Context, roomID uuid.UUID, recipient chat.SenderType) (bool, error) {
	if !recipient.Valid() {
		return false, staylink_errors.ErrInvalidInput
	}
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return false, err
	}

	changed, err := s.messages.MarkAllSeenByAuthor(ctx, roomID, recipient.Opposite())
	if err != nil {
		return false, err
	}
	if changed == 0 {
		return false, nil
	}
	if err := s.rooms.ResetUnread(ctx, roomID, recipient); err != nil {
		return true, err
	}
	return true, nil
}

// MarkMessageSeen flips a single message.
func (s *ChatService) MarkMessageSeen(ctx context.Context, id uuid.UUID) error {
	return s.messages.MarkSeen(ctx, id)
}

// CountUnseen counts unseen messages addressed to the recipient.
func (s *ChatService) CountUnseen(ctx context.Context, roomID uuid.UUID, recipient chat.SenderType) (int64, error) {
	if !recipient.Valid() {
		return 0, staylink_errors.ErrInvalidInput
	}
	return s.messages.CountUnseenByAuthor(ctx, roomID, recipient.Opposite())
}

func (s *ChatService) GetRoom(ctx context.Context, roomID uuid.UUID) (chat.ChatRoom, error) {
	return s.rooms.GetByID(ctx, roomID)
}

func (s *ChatService) GetRoomsForUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]chat.ChatRoom, int64, error) {
	page, limit = normalizePage(page, limit)
	return s.rooms.GetForUser(ctx, userID, page, limit)
}

func (s *ChatService) GetRoomsForProvider(ctx context.Context, providerID uuid.UUID, page, limit int) ([]chat.ChatRoom, int64, error) {
	page, limit = normalizePage(page, limit)
	return s.rooms.GetForProvider(ctx, providerID, page, limit)
}

// DeleteMessage removes a single message.
func (s *ChatService) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	return s.messages.Delete(ctx, id)
}

// DeleteRoom soft-deletes a room; history stays in place.
func (s *ChatService) DeleteRoom(ctx context.Context, roomID uuid.UUID) error {
	return s.rooms.SoftDelete(ctx, roomID)
}

func senderBelongsToRoom(room chat.ChatRoom, senderID uuid.UUID, senderType chat.SenderType) error {
	switch senderType {
	case chat.SenderUser:
		if room.UserID != senderID {
			return staylink_errors.ErrForbidden
		}
	case chat.SenderProvider:
		if room.ProviderID != senderID {
			return staylink_errors.ErrForbidden
		}
	}
	return nil
}

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = RoomPageSize
	}
	return page, limit
}
