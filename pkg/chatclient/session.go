package chatclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	reconnectBase = 500 * time.Millisecond
	reconnectCap  = 30 * time.Second
)

// Callbacks receive pushed events. All are optional and are invoked from
// the session's read goroutine.
type Callbacks struct {
	OnMessage      func(MessageView)
	OnSeen         func(roomID, recipientType string)
	OnTyping       func(roomID, userID string, isTyping bool)
	OnStatus       func(userID, role string, online bool)
	OnOnlineUsers  func(users, providers []string)
	OnNotification func(preview string, unreadCount int64)
	OnError        func(event, code, message string)
}

// Session is the realtime half of the client: one websocket connection,
// the local cache, and the reconnect loop that stitches gaps back together.
type Session struct {
	client     *Client
	wsURL      string
	token      string
	senderID   string
	senderType string
	cache      *Cache
	callbacks  Callbacks
	logger     *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	joined map[string]struct{}
}

func NewSession(client *Client, wsURL, token, senderID, senderType string, callbacks Callbacks) *Session {
	return &Session{
		client:     client,
		wsURL:      wsURL,
		token:      token,
		senderID:   senderID,
		senderType: senderType,
		cache:      NewCache(),
		callbacks:  callbacks,
		joined:     make(map[string]struct{}),
		logger:     zap.L().With(zap.String("component", "chatclient")),
	}
}

// Cache exposes the local message store for rendering.
func (s *Session) Cache() *Cache {
	return s.cache
}

// Run connects and serves until ctx is cancelled, reconnecting with
// exponential backoff. The cache survives reconnects untouched; only
// presence and room subscriptions are re-established.
func (s *Session) Run(ctx context.Context) error {
	backoff := reconnectBase
	for {
		if err := s.connect(ctx); err != nil {
			s.logger.Warn("connect failed", zap.Error(err))
		} else {
			backoff = reconnectBase
			s.readLoop(ctx)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectCap {
			backoff = reconnectCap
		}
	}
}

func (s *Session) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL+"?token="+s.token, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	rooms := make([]string, 0, len(s.joined))
	for roomID := range s.joined {
		rooms = append(rooms, roomID)
	}
	s.mu.Unlock()

	// Re-announce presence and resubscribe to every previously entered room.
	if err := s.writeEvent(eventUserStatus, userStatusPayload{IsOnline: true}); err != nil {
		return err
	}
	for _, roomID := range rooms {
		if err := s.writeEvent(eventJoinRoom, roomPayload{RoomID: roomID}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) readLoop(ctx context.Context) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	defer conn.Close()

	// Unblock the pending read when the session is cancelled.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		if ctx.Err() != nil {
			return
		}
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			s.logger.Debug("connection dropped", zap.Error(err))
			return
		}
		s.handleFrame(f)
	}
}

func (s *Session) handleFrame(f frame) {
	switch f.Event {
	case eventReceiveMessage:
		var payload receiveMessagePayload
		if json.Unmarshal(f.Data, &payload) != nil {
			return
		}
		msg := payload.Message.view()
		// Merge is idempotent by id: our own broadcast echo lands on the
		// already swapped entry and changes nothing visible.
		inserted := s.cache.Upsert(msg)
		if inserted && msg.SenderID != s.senderID {
			s.cache.IncrementUnread(msg.RoomID)
		}
		if inserted && s.callbacks.OnMessage != nil {
			s.callbacks.OnMessage(msg)
		}
	case eventMessagesSeen:
		var payload messagesSeenPayload
		if json.Unmarshal(f.Data, &payload) != nil {
			return
		}
		// The recipient read everything the other side wrote.
		other := "user"
		if payload.RecipientType == "user" {
			other = "provider"
		}
		s.cache.MarkAllSeenByAuthor(payload.RoomID, other)
		if s.callbacks.OnSeen != nil {
			s.callbacks.OnSeen(payload.RoomID, payload.RecipientType)
		}
	case eventUserTyping:
		var payload userTypingPayload
		if json.Unmarshal(f.Data, &payload) != nil {
			return
		}
		if payload.UserID != s.senderID && s.callbacks.OnTyping != nil {
			s.callbacks.OnTyping(payload.RoomID, payload.UserID, payload.IsTyping)
		}
	case eventUserStatusChanged:
		var payload userStatusChangedPayload
		if json.Unmarshal(f.Data, &payload) != nil {
			return
		}
		if s.callbacks.OnStatus != nil {
			s.callbacks.OnStatus(payload.UserID, payload.Role, payload.IsOnline)
		}
	case eventInitialOnlineUsers:
		var payload struct {
			Users     []string `json:"users"`
			Providers []string `json:"providers"`
		}
		if json.Unmarshal(f.Data, &payload) != nil {
			return
		}
		if s.callbacks.OnOnlineUsers != nil {
			s.callbacks.OnOnlineUsers(payload.Users, payload.Providers)
		}
	case eventNewMessageNotification:
		var payload newMessageNotificationPayload
		if json.Unmarshal(f.Data, &payload) != nil {
			return
		}
		s.cache.IncrementUnread(payload.RoomID)
		if s.callbacks.OnNotification != nil {
			s.callbacks.OnNotification(payload.Preview, -1)
		}
	case eventNotificationCount:
		var payload notificationCountPayload
		if json.Unmarshal(f.Data, &payload) != nil {
			return
		}
		if s.callbacks.OnNotification != nil {
			s.callbacks.OnNotification("", payload.Count)
		}
	case eventError:
		var payload errorPayload
		if json.Unmarshal(f.Data, &payload) != nil {
			return
		}
		s.logger.Warn("server rejected event",
			zap.String("event", payload.Event), zap.String("code", payload.Code))
		if s.callbacks.OnError != nil {
			s.callbacks.OnError(payload.Event, payload.Code, payload.Message)
		}
	}
}

// Send performs an optimistic send: a temp entry appears in the cache
// immediately, the REST call persists it, the entry is swapped in place,
// and the realtime event broadcasts the persisted id. Returns the temp id
// so callers can track the entry through swap or failure.
func (s *Session) Send(ctx context.Context, roomID, content, image, replyTo string) (string, error) {
	tempID := uuid.NewString()
	temp := MessageView{
		ID:         tempID,
		RoomID:     roomID,
		SenderID:   s.senderID,
		SenderType: s.senderType,
		Content:    content,
		ImageURL:   image,
		CreatedAt:  time.Now(),
		Pending:    true,
	}
	s.cache.Upsert(temp)

	persisted, err := s.client.PersistMessage(ctx, SendMessageRequest{
		RoomID:           roomID,
		Content:          content,
		Image:            image,
		ReplyToMessageID: replyTo,
	})
	if err != nil {
		s.cache.MarkFailed(roomID, tempID)
		return tempID, err
	}
	s.cache.Swap(roomID, tempID, persisted)

	// Broadcast failure is fine: the message is durable and the other side
	// catches up on its next history fetch.
	if err := s.writeEvent(eventSendMessage, sendMessagePayload{
		RoomID:    roomID,
		MessageID: persisted.ID,
	}); err != nil {
		s.logger.Debug("broadcast skipped", zap.Error(err))
	}
	return tempID, nil
}

// EnterRoom subscribes to the room's broadcasts, resets the local unread
// counter and marks everything seen on both paths, so the counter is right
// even if one of them fails.
func (s *Session) EnterRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	s.joined[roomID] = struct{}{}
	s.mu.Unlock()

	if err := s.writeEvent(eventJoinRoom, roomPayload{RoomID: roomID}); err != nil {
		return err
	}
	s.cache.ResetUnread(roomID)

	if _, err := s.client.MarkSeen(ctx, roomID); err != nil {
		s.logger.Warn("mark seen over rest failed", zap.Error(err))
	}
	if err := s.writeEvent(eventMarkMessagesSeen, roomPayload{RoomID: roomID}); err != nil {
		s.logger.Debug("mark seen over socket failed", zap.Error(err))
	}
	return nil
}

func (s *Session) LeaveRoom(roomID string) error {
	s.mu.Lock()
	delete(s.joined, roomID)
	s.mu.Unlock()
	return s.writeEvent(eventLeaveRoom, roomPayload{RoomID: roomID})
}

func (s *Session) Typing(roomID string, isTyping bool) error {
	return s.writeEvent(eventTyping, typingPayload{RoomID: roomID, IsTyping: isTyping})
}

func (s *Session) writeEvent(event string, payload interface{}) error {
	f, err := newFrame(event, payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return websocket.ErrCloseSent
	}
	return s.conn.WriteJSON(f)
}
