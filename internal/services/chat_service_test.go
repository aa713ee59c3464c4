package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"staylink-chat/internal/domain/chat"
	staylink_errors "staylink-chat/pkg/errors"
)

type fakeRoomRepo struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*chat.ChatRoom
	// raceWinner, when set, lands in the store during the next Create and
	// makes it report a unique violation, simulating a concurrent writer
	// winning the insert race.
	raceWinner *chat.ChatRoom
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{rooms: make(map[uuid.UUID]*chat.ChatRoom)}
}

func (f *fakeRoomRepo) Create(_ context.Context, room *chat.ChatRoom) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.raceWinner != nil {
		winner := f.raceWinner
		f.raceWinner = nil
		f.rooms[winner.ID] = winner
		return staylink_errors.ErrAlreadyExists
	}
	for _, existing := range f.rooms {
		if existing.UserID == room.UserID && existing.ProviderID == room.ProviderID && !existing.DeletedAt.Valid {
			return staylink_errors.ErrAlreadyExists
		}
	}
	copied := *room
	f.rooms[room.ID] = &copied
	return nil
}

func (f *fakeRoomRepo) GetByID(_ context.Context, id uuid.UUID) (chat.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok || room.DeletedAt.Valid {
		return chat.ChatRoom{}, staylink_errors.ErrNotFound
	}
	return *room, nil
}

func (f *fakeRoomRepo) GetByPair(_ context.Context, userID, providerID uuid.UUID) (chat.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, room := range f.rooms {
		if room.UserID == userID && room.ProviderID == providerID && !room.DeletedAt.Valid {
			return *room, nil
		}
	}
	return chat.ChatRoom{}, staylink_errors.ErrNotFound
}

func (f *fakeRoomRepo) GetForUser(_ context.Context, userID uuid.UUID, page, limit int) ([]chat.ChatRoom, int64, error) {
	return f.listFor(func(r *chat.ChatRoom) bool { return r.UserID == userID }, page, limit)
}

func (f *fakeRoomRepo) GetForProvider(_ context.Context, providerID uuid.UUID, page, limit int) ([]chat.ChatRoom, int64, error) {
	return f.listFor(func(r *chat.ChatRoom) bool { return r.ProviderID == providerID }, page, limit)
}

func (f *fakeRoomRepo) listFor(match func(*chat.ChatRoom) bool, page, limit int) ([]chat.ChatRoom, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []chat.ChatRoom
	for _, room := range f.rooms {
		if match(room) && !room.DeletedAt.Valid {
			all = append(all, *room)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].LastMessageTime.After(all[j].LastMessageTime)
	})
	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (f *fakeRoomRepo) SetLastMessage(_ context.Context, roomID uuid.UUID, summary string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return staylink_errors.ErrNotFound
	}
	room.LastMessage = summary
	room.LastMessageTime = at
	return nil
}

func (f *fakeRoomRepo) IncrementUnread(_ context.Context, roomID uuid.UUID, party chat.SenderType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return staylink_errors.ErrNotFound
	}
	if party == chat.SenderUser {
		room.UserUnreadCount++
	} else {
		room.ProviderUnreadCount++
	}
	return nil
}

func (f *fakeRoomRepo) ResetUnread(_ context.Context, roomID uuid.UUID, party chat.SenderType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return staylink_errors.ErrNotFound
	}
	if party == chat.SenderUser {
		room.UserUnreadCount = 0
	} else {
		room.ProviderUnreadCount = 0
	}
	return nil
}

func (f *fakeRoomRepo) SoftDelete(_ context.Context, roomID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return staylink_errors.ErrNotFound
	}
	room.DeletedAt.Valid = true
	room.DeletedAt.Time = time.Now()
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*chat.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{}
}

func (f *fakeMessageRepo) Create(_ context.Context, m *chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *m
	f.messages = append(f.messages, &copied)
	return nil
}

func (f *fakeMessageRepo) GetByID(_ context.Context, id uuid.UUID) (chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			return *m, nil
		}
	}
	return chat.Message{}, staylink_errors.ErrNotFound
}

func (f *fakeMessageRepo) GetRoomMessages(_ context.Context, roomID uuid.UUID, page, limit int) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []chat.Message
	for _, m := range f.messages {
		if m.ChatRoomID == roomID {
			all = append(all, *m)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	start := (page - 1) * limit
	if start >= len(all) {
		return nil, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (f *fakeMessageRepo) MarkSeen(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			m.IsSeen = true
			return nil
		}
	}
	return staylink_errors.ErrNotFound
}

func (f *fakeMessageRepo) MarkAllSeenByAuthor(_ context.Context, roomID uuid.UUID, author chat.SenderType) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var changed int64
	for _, m := range f.messages {
		if m.ChatRoomID == roomID && m.SenderType == author && !m.IsSeen {
			m.IsSeen = true
			changed++
		}
	}
	return changed, nil
}

func (f *fakeMessageRepo) CountUnseenByAuthor(_ context.Context, roomID uuid.UUID, author chat.SenderType) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, m := range f.messages {
		if m.ChatRoomID == roomID && m.SenderType == author && !m.IsSeen {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessageRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.messages {
		if m.ID == id {
			f.messages = append(f.messages[:i], f.messages[i+1:]...)
			return nil
		}
	}
	return staylink_errors.ErrNotFound
}

func newTestChatService() (*ChatService, *fakeRoomRepo, *fakeMessageRepo) {
	rooms := newFakeRoomRepo()
	messages := newFakeMessageRepo()
	return NewChatService(nil, rooms, messages, nil), rooms, messages
}

func mustCreateRoom(t *testing.T, s *ChatService, userID, providerID uuid.UUID) chat.ChatRoom {
	t.Helper()
	room, err := s.CreateOrGetRoom(context.Background(), userID, providerID)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}

func TestCreateOrGetRoomIsIdempotentPerPair(t *testing.T) {
	s, _, _ := newTestChatService()
	userID, providerID := uuid.New(), uuid.New()

	first := mustCreateRoom(t, s, userID, providerID)
	second := mustCreateRoom(t, s, userID, providerID)
	if first.ID != second.ID {
		t.Fatalf("expected one room per pair, got %s and %s", first.ID, second.ID)
	}

	// Swapped roles form a different pair.
	other := mustCreateRoom(t, s, providerID, userID)
	if other.ID == first.ID {
		t.Fatal("swapped pair must map to a different room")
	}
}

func TestCreateOrGetRoomLosingRaceReturnsWinner(t *testing.T) {
	s, rooms, _ := newTestChatService()
	userID, providerID := uuid.New(), uuid.New()

	// The service misses on its first read, then loses the insert race to
	// this concurrent writer.
	winner := &chat.ChatRoom{ID: uuid.New(), UserID: userID, ProviderID: providerID}
	rooms.raceWinner = winner

	room, err := s.CreateOrGetRoom(context.Background(), userID, providerID)
	if err != nil {
		t.Fatalf("create or get: %v", err)
	}
	if room.ID != winner.ID {
		t.Fatalf("expected the winner's room, got %s", room.ID)
	}
}

func TestSendMessageRequiresPayload(t *testing.T) {
	s, _, _ := newTestChatService()
	userID, providerID := uuid.New(), uuid.New()
	room := mustCreateRoom(t, s, userID, providerID)

	_, err := s.SendMessage(context.Background(), SendMessageInput{
		RoomID:     room.ID,
		SenderID:   userID,
		SenderType: chat.SenderUser,
	})
	if !errors.Is(err, staylink_errors.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty payload, got %v", err)
	}

	// Image alone is a valid payload.
	msg, err := s.SendMessage(context.Background(), SendMessageInput{
		RoomID:     room.ID,
		SenderID:   userID,
		SenderType: chat.SenderUser,
		Image:      "uploads/photo.jpg",
	})
	if err != nil {
		t.Fatalf("image-only send: %v", err)
	}
	if !msg.Image.Valid {
		t.Fatal("expected image to be stored")
	}
}

func TestSendMessageRejectsOutsiders(t *testing.T) {
	s, _, _ := newTestChatService()
	room := mustCreateRoom(t, s, uuid.New(), uuid.New())

	_, err := s.SendMessage(context.Background(), SendMessageInput{
		RoomID:     room.ID,
		SenderID:   uuid.New(),
		SenderType: chat.SenderUser,
		Content:    "hello",
	})
	if !errors.Is(err, staylink_errors.ErrForbidden) {
		t.Fatalf("expected forbidden for outsider, got %v", err)
	}
}

func TestSendMessageUpdatesRoomBookkeeping(t *testing.T) {
	s, _, _ := newTestChatService()
	userID, providerID := uuid.New(), uuid.New()
	room := mustCreateRoom(t, s, userID, providerID)

	for i := 0; i < 3; i++ {
		if _, err := s.SendMessage(context.Background(), SendMessageInput{
			RoomID:     room.ID,
			SenderID:   userID,
			SenderType: chat.SenderUser,
			Content:    "hello",
		}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if _, err := s.SendMessage(context.Background(), SendMessageInput{
		RoomID:     room.ID,
		SenderID:   providerID,
		SenderType: chat.SenderProvider,
		Image:      "uploads/floorplan.png",
	}); err != nil {
		t.Fatalf("provider send: %v", err)
	}

	updated, err := s.GetRoom(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if updated.ProviderUnreadCount != 3 {
		t.Fatalf("expected provider unread 3, got %d", updated.ProviderUnreadCount)
	}
	if updated.UserUnreadCount != 1 {
		t.Fatalf("expected user unread 1, got %d", updated.UserUnreadCount)
	}
	if updated.LastMessage != "[image]" {
		t.Fatalf("expected image summary as last message, got %q", updated.LastMessage)
	}
}

func TestSendMessageValidatesReplyTarget(t *testing.T) {
	s, _, _ := newTestChatService()
	userID, providerID := uuid.New(), uuid.New()
	room := mustCreateRoom(t, s, userID, providerID)
	otherRoom := mustCreateRoom(t, s, userID, uuid.New())

	original, err := s.SendMessage(context.Background(), SendMessageInput{
		RoomID:     room.ID,
		SenderID:   userID,
		SenderType: chat.SenderUser,
		Content:    "is the room still free?",
	})
	if err != nil {
		t.Fatalf("send original: %v", err)
	}

	// Replying across rooms is rejected.
	_, err = s.SendMessage(context.Background(), SendMessageInput{
		RoomID:           otherRoom.ID,
		SenderID:         userID,
		SenderType:       chat.SenderUser,
		Content:          "cross-room reply",
		ReplyToMessageID: uuid.NullUUID{UUID: original.ID, Valid: true},
	})
	if !errors.Is(err, staylink_errors.ErrNotFound) {
		t.Fatalf("expected not found for cross-room reply, got %v", err)
	}

	reply, err := s.SendMessage(context.Background(), SendMessageInput{
		RoomID:           room.ID,
		SenderID:         providerID,
		SenderType:       chat.SenderProvider,
		Content:          "yes, it is",
		ReplyToMessageID: uuid.NullUUID{UUID: original.ID, Valid: true},
	})
	if err != nil {
		t.Fatalf("send reply: %v", err)
	}
	if reply.ReplyToMessageID.UUID != original.ID {
		t.Fatal("expected reply reference to be stored")
	}
}

func TestGetMessagesResolvesRepliesLazily(t *testing.T) {
	s, _, messages := newTestChatService()
	userID, providerID := uuid.New(), uuid.New()
	room := mustCreateRoom(t, s, userID, providerID)

	original, err := s.SendMessage(context.Background(), SendMessageInput{
		RoomID:     room.ID,
		SenderID:   userID,
		SenderType: chat.SenderUser,
		Content:    "original",
	})
	if err != nil {
		t.Fatalf("send original: %v", err)
	}
	if _, err := s.SendMessage(context.Background(), SendMessageInput{
		RoomID:           room.ID,
		SenderID:         providerID,
		SenderType:       chat.SenderProvider,
		Content:          "reply",
		ReplyToMessageID: uuid.NullUUID{UUID: original.ID, Valid: true},
	}); err != nil {
		t.Fatalf("send reply: %v", err)
	}

	page, err := s.GetMessages(context.Background(), room.ID, 1)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	var reply *chat.Message
	for i := range page {
		if page[i].Content == "reply" {
			reply = &page[i]
		}
	}
	if reply == nil || reply.ReplyTo == nil {
		t.Fatal("expected reply preview to be resolved")
	}
	if reply.ReplyTo.Content != "original" || reply.ReplyTo.Unavailable {
		t.Fatalf("unexpected preview: %+v", reply.ReplyTo)
	}

	// Deleting the target degrades the preview instead of failing the fetch.
	if err := messages.Delete(context.Background(), original.ID); err != nil {
		t.Fatalf("delete original: %v", err)
	}
	page, err = s.GetMessages(context.Background(), room.ID, 1)
	if err != nil {
		t.Fatalf("get messages after delete: %v", err)
	}
	if len(page) != 1 || page[0].ReplyTo == nil || !page[0].ReplyTo.Unavailable {
		t.Fatal("expected dangling reply to degrade to an unavailable preview")
	}
}

func TestGetMessagesPaginatesNewestFirst(t *testing.T) {
	s, _, _ := newTestChatService()
	userID, providerID := uuid.New(), uuid.New()
	room := mustCreateRoom(t, s, userID, providerID)

	base := time.Now()
	repo := s.messages.(*fakeMessageRepo)
	for i := 0; i < MessagePageSize+5; i++ {
		repo.Create(context.Background(), &chat.Message{
			ID:         uuid.New(),
			ChatRoomID: room.ID,
			SenderID:   userID,
			SenderType: chat.SenderUser,
			Content:    "m",
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
	}

	first, err := s.GetMessages(context.Background(), room.ID, 1)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(first) != MessagePageSize {
		t.Fatalf("expected a full page, got %d", len(first))
	}
	second, err := s.GetMessages(context.Background(), room.ID, 2)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(second) != 5 {
		t.Fatalf("expected 5 on the last page, got %d", len(second))
	}
	if !first[0].CreatedAt.After(second[0].CreatedAt) {
		t.Fatal("expected newest-first ordering across pages")
	}

	// Both pages together cover everything exactly once.
	seen := make(map[uuid.UUID]bool)
	for _, m := range append(first, second...) {
		if seen[m.ID] {
			t.Fatalf("message %s appeared twice", m.ID)
		}
		seen[m.ID] = true
	}
	if len(seen) != MessagePageSize+5 {
		t.Fatalf("expected %d distinct messages, got %d", MessagePageSize+5, len(seen))
	}
}

func TestMarkAllSeenFlipsAndResets(t *testing.T) {
	s, _, _ := newTestChatService()
	userID, providerID := uuid.New(), uuid.New()
	room := mustCreateRoom(t, s, userID, providerID)

	for i := 0; i < 2; i++ {
		if _, err := s.SendMessage(context.Background(), SendMessageInput{
			RoomID:     room.ID,
			SenderID:   userID,
			SenderType: chat.SenderUser,
			Content:    "ping",
		}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	// The provider reads the room.
	changed, err := s.MarkAllSeen(context.Background(), room.ID, chat.SenderProvider)
	if err != nil {
		t.Fatalf("mark all seen: %v", err)
	}
	if !changed {
		t.Fatal("expected changes on first read")
	}

	updated, err := s.GetRoom(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if updated.ProviderUnreadCount != 0 {
		t.Fatalf("expected provider unread reset, got %d", updated.ProviderUnreadCount)
	}

	count, err := s.CountUnseen(context.Background(), room.ID, chat.SenderProvider)
	if err != nil {
		t.Fatalf("count unseen: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero unseen, got %d", count)
	}

	// A second read is a no-op.
	changed, err = s.MarkAllSeen(context.Background(), room.ID, chat.SenderProvider)
	if err != nil {
		t.Fatalf("second mark all seen: %v", err)
	}
	if changed {
		t.Fatal("expected no changes on repeat read")
	}
}

func TestMarkAllSeenLeavesOwnMessagesAlone(t *testing.T) {
	s, _, _ := newTestChatService()
	userID, providerID := uuid.New(), uuid.New()
	room := mustCreateRoom(t, s, userID, providerID)

	if _, err := s.SendMessage(context.Background(), SendMessageInput{
		RoomID:     room.ID,
		SenderID:   userID,
		SenderType: chat.SenderUser,
		Content:    "from user",
	}); err != nil {
		t.Fatalf("user send: %v", err)
	}
	if _, err := s.SendMessage(context.Background(), SendMessageInput{
		RoomID:     room.ID,
		SenderID:   providerID,
		SenderType: chat.SenderProvider,
		Content:    "from provider",
	}); err != nil {
		t.Fatalf("provider send: %v", err)
	}

	// The user reads: only the provider's message flips.
	if _, err := s.MarkAllSeen(context.Background(), room.ID, chat.SenderUser); err != nil {
		t.Fatalf("mark all seen: %v", err)
	}

	unseenForProvider, err := s.CountUnseen(context.Background(), room.ID, chat.SenderProvider)
	if err != nil {
		t.Fatalf("count unseen for provider: %v", err)
	}
	if unseenForProvider != 1 {
		t.Fatalf("expected the user's message to stay unseen for the provider, got %d", unseenForProvider)
	}
}

func TestDeleteRoomHidesItFromListings(t *testing.T) {
	s, _, _ := newTestChatService()
	userID, providerID := uuid.New(), uuid.New()
	room := mustCreateRoom(t, s, userID, providerID)

	if err := s.DeleteRoom(context.Background(), room.ID); err != nil {
		t.Fatalf("delete room: %v", err)
	}
	if _, err := s.GetRoom(context.Background(), room.ID); !errors.Is(err, staylink_errors.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	rooms, _, err := s.GetRoomsForUser(context.Background(), userID, 1, RoomPageSize)
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 0 {
		t.Fatalf("expected deleted room hidden, got %d rooms", len(rooms))
	}

	// A fresh conversation starts a new room for the same pair.
	fresh := mustCreateRoom(t, s, userID, providerID)
	if fresh.ID == room.ID {
		t.Fatal("expected a new room after soft delete")
	}
}
