package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"staylink-chat/internal/domain/chat"
	"staylink-chat/internal/domain/notification"
	"staylink-chat/internal/services"
	staylink_errors "staylink-chat/pkg/errors"
)

// SessionState is the per-connection state the protocol operates on.
// Identity comes from the authenticated upgrade, never from payloads.
type SessionState struct {
	ConnID string
	UserID uuid.UUID
	Role   string
}

func (s SessionState) senderType() chat.SenderType {
	return chat.SenderType(s.Role)
}

// Effects is everything a protocol handler may ask the outside world to do.
// Handlers stay free of sockets and hubs, so the whole event protocol is
// testable against a fake.
type Effects interface {
	RecordConnection(ctx context.Context, userID, connID, role string) error
	SetOnline(ctx context.Context, userID, role string, online bool) error
	OnlineSnapshot(ctx context.Context) (users, providers []string, err error)
	JoinRoom(ctx context.Context, roomID, connID string) error
	LeaveRoom(ctx context.Context, roomID, connID string) error
	RecipientWatching(ctx context.Context, roomID, userID string) (bool, error)
	ClearConnection(ctx context.Context, connID string) (userID, role string, stillOnline bool, err error)
	Touch(ctx context.Context, userID, connID string) error
	TrackTyping(ctx context.Context, roomID, userID string, isTyping bool) error

	Room(ctx context.Context, roomID uuid.UUID) (chat.ChatRoom, error)
	SendMessage(ctx context.Context, in services.SendMessageInput) (chat.Message, error)
	Message(ctx context.Context, id uuid.UUID) (chat.Message, error)
	MarkAllSeen(ctx context.Context, roomID uuid.UUID, recipient chat.SenderType) (bool, error)

	CreateNotification(ctx context.Context, in services.CreateNotificationInput) (notification.Notification, error)
	MarkNotificationRead(ctx context.Context, id uuid.UUID) error
	DeleteNotification(ctx context.Context, id uuid.UUID) error
	MarkAllNotificationsRead(ctx context.Context, recipientID uuid.UUID) error
	UnreadNotificationCount(ctx context.Context, recipientID uuid.UUID) (int64, error)
}

// Protocol turns inbound frames into routed outbound events. It holds no
// connection state of its own.
type Protocol struct {
	effects Effects
	logger  *zap.Logger
}

func NewProtocol(effects Effects) *Protocol {
	return &Protocol{
		effects: effects,
		logger:  zap.L().With(zap.String("component", "gateway_protocol")),
	}
}

// HandleConnect records the connection in the presence store. Failures are
// logged and swallowed: a client must be able to chat even when presence
// bookkeeping is down.
func (p *Protocol) HandleConnect(ctx context.Context, sess SessionState) {
	if err := p.effects.RecordConnection(ctx, sess.UserID.String(), sess.ConnID, sess.Role); err != nil {
		p.logger.Warn("failed to record connection",
			zap.String("conn_id", sess.ConnID), zap.Error(err))
	}
}

// HandleHeartbeat refreshes the presence TTLs from the ping/pong cycle.
func (p *Protocol) HandleHeartbeat(ctx context.Context, sess SessionState) {
	if err := p.effects.Touch(ctx, sess.UserID.String(), sess.ConnID); err != nil {
		p.logger.Debug("presence touch failed",
			zap.String("conn_id", sess.ConnID), zap.Error(err))
	}
}

// HandleDisconnect tears down presence for the connection and, when the user
// has no other live connection, announces them offline.
func (p *Protocol) HandleDisconnect(ctx context.Context, sess SessionState) []OutEvent {
	userID, role, stillOnline, err := p.effects.ClearConnection(ctx, sess.ConnID)
	if err != nil {
		p.logger.Warn("failed to clear connection",
			zap.String("conn_id", sess.ConnID), zap.Error(err))
		return nil
	}
	if userID == "" || stillOnline {
		return nil
	}
	frame, err := NewFrame(EventUserStatusChanged, UserStatusChangedPayload{
		UserID:   userID,
		Role:     role,
		IsOnline: false,
	})
	if err != nil {
		return nil
	}
	return []OutEvent{{Kind: TargetAll, Frame: frame}}
}

// Dispatch decodes one inbound frame, runs the matching handler and returns
// the outbound events to route. Handler errors come back to the sender as a
// typed error frame instead of failing the connection.
func (p *Protocol) Dispatch(ctx context.Context, sess SessionState, frame Frame) []OutEvent {
	out, err := p.dispatch(ctx, sess, frame)
	if err == nil {
		return out
	}

	code := staylink_errors.Code(err)
	p.logger.Debug("event rejected",
		zap.String("event", frame.Event),
		zap.String("conn_id", sess.ConnID),
		zap.String("code", code))

	errFrame, ferr := NewFrame(EventError, ErrorPayload{
		Event:   frame.Event,
		Code:    code,
		Message: err.Error(),
	})
	if ferr != nil {
		return nil
	}
	return []OutEvent{{Kind: TargetConn, ID: sess.ConnID, Frame: errFrame}}
}

func (p *Protocol) dispatch(ctx context.Context, sess SessionState, frame Frame) ([]OutEvent, error) {
	switch frame.Event {
	case EventUserStatus:
		return p.handleUserStatus(ctx, sess, frame.Data)
	case EventJoinRoom:
		return p.handleJoinRoom(ctx, sess, frame.Data)
	case EventLeaveRoom:
		return p.handleLeaveRoom(ctx, sess, frame.Data)
	case EventSendMessage:
		return p.handleSendMessage(ctx, sess, frame.Data)
	case EventMarkMessagesSeen:
		return p.handleMarkMessagesSeen(ctx, sess, frame.Data)
	case EventTyping:
		return p.handleTyping(ctx, sess, frame.Data)
	case EventMarkNotificationRead:
		return p.handleNotificationRead(ctx, sess, frame.Data)
	case EventDeleteNotification:
		return p.handleNotificationDelete(ctx, sess, frame.Data)
	case EventMarkAllNotificationsRead:
		return p.handleNotificationsAllRead(ctx, sess)
	default:
		return nil, staylink_errors.ErrInvalidInput
	}
}

func (p *Protocol) handleUserStatus(ctx context.Context, sess SessionState, data json.RawMessage) ([]OutEvent, error) {
	var payload UserStatusPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, staylink_errors.ErrInvalidInput
	}

	if err := p.effects.SetOnline(ctx, sess.UserID.String(), sess.Role, payload.IsOnline); err != nil {
		return nil, staylink_errors.ErrServiceUnavailable
	}

	statusFrame, err := NewFrame(EventUserStatusChanged, UserStatusChangedPayload{
		UserID:   sess.UserID.String(),
		Role:     sess.Role,
		IsOnline: payload.IsOnline,
	})
	if err != nil {
		return nil, staylink_errors.ErrInternal
	}
	out := []OutEvent{{Kind: TargetAll, Frame: statusFrame}}

	if !payload.IsOnline {
		return out, nil
	}

	// Seed the freshly announced client with the current online snapshot.
	users, providers, err := p.effects.OnlineSnapshot(ctx)
	if err != nil {
		p.logger.Warn("online snapshot unavailable", zap.Error(err))
		return out, nil
	}
	snapshotFrame, err := NewFrame(EventInitialOnlineUsers, InitialOnlineUsersPayload{
		Users:     users,
		Providers: providers,
	})
	if err != nil {
		return out, nil
	}
	return append(out, OutEvent{Kind: TargetConn, ID: sess.ConnID, Frame: snapshotFrame}), nil
}

func (p *Protocol) handleJoinRoom(ctx context.Context, sess SessionState, data json.RawMessage) ([]OutEvent, error) {
	roomID, err := decodeRoomID(data)
	if err != nil {
		return nil, err
	}
	if err := p.authorizeRoom(ctx, sess, roomID); err != nil {
		return nil, err
	}
	// The local subscription stands even when the presence write fails, so a
	// degraded Redis still leaves room broadcasts flowing on this process.
	if err := p.effects.JoinRoom(ctx, roomID.String(), sess.ConnID); err != nil {
		p.logger.Warn("room presence not recorded",
			zap.String("room_id", roomID.String()),
			zap.String("conn_id", sess.ConnID), zap.Error(err))
	}
	return []OutEvent{{Kind: TargetJoinRoom, ID: roomID.String()}}, nil
}

func (p *Protocol) handleLeaveRoom(ctx context.Context, sess SessionState, data json.RawMessage) ([]OutEvent, error) {
	roomID, err := decodeRoomID(data)
	if err != nil {
		return nil, err
	}
	if err := p.effects.LeaveRoom(ctx, roomID.String(), sess.ConnID); err != nil {
		return nil, staylink_errors.ErrServiceUnavailable
	}
	return []OutEvent{{Kind: TargetLeaveRoom, ID: roomID.String()}}, nil
}

func (p *Protocol) handleSendMessage(ctx context.Context, sess SessionState, data json.RawMessage) ([]OutEvent, error) {
	var payload SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, staylink_errors.ErrInvalidInput
	}
	roomID, err := uuid.Parse(payload.RoomID)
	if err != nil {
		return nil, staylink_errors.ErrInvalidInput
	}

	room, err := p.effects.Room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !roomHasMember(room, sess) {
		return nil, staylink_errors.ErrForbidden
	}

	var msg chat.Message
	if payload.MessageID != "" {
		// Already persisted over REST; rebroadcast instead of duplicating.
		msg, err = p.lookupPersisted(ctx, sess, roomID, payload.MessageID)
	} else {
		replyTo, perr := parseNullUUID(payload.ReplyToMessageID)
		if perr != nil {
			return nil, staylink_errors.ErrInvalidInput
		}
		msg, err = p.effects.SendMessage(ctx, services.SendMessageInput{
			RoomID:           roomID,
			SenderID:         sess.UserID,
			SenderType:       sess.senderType(),
			Content:          strings.TrimSpace(payload.Content),
			Image:            payload.Image,
			ReplyToMessageID: replyTo,
		})
	}
	if err != nil {
		return nil, err
	}

	receiveFrame, err := NewFrame(EventReceiveMessage, ReceiveMessagePayload{Message: msg})
	if err != nil {
		return nil, staylink_errors.ErrInternal
	}
	out := []OutEvent{{Kind: TargetRoom, ID: roomID.String(), Frame: receiveFrame}}

	recipientID := roomCounterpart(room, sess.senderType())
	out = append(out, p.notifyRecipient(ctx, sess, room, msg, recipientID)...)
	return out, nil
}

// notifyRecipient targets the counterpart with a lightweight notification
// when they are not watching the room. Presence failures degrade to "not
// watching": delivering an extra notification beats losing one.
func (p *Protocol) notifyRecipient(ctx context.Context, sess SessionState, room chat.ChatRoom, msg chat.Message, recipientID uuid.UUID) []OutEvent {
	watching, err := p.effects.RecipientWatching(ctx, room.ID.String(), recipientID.String())
	if err != nil {
		p.logger.Warn("recipient presence check failed",
			zap.String("room_id", room.ID.String()), zap.Error(err))
		watching = false
	}
	if watching {
		return nil
	}

	preview := msg.Content
	if preview == "" && msg.Image.Valid {
		preview = "[image]"
	}

	var out []OutEvent
	pushFrame, err := NewFrame(EventNewMessageNotification, NewMessageNotificationPayload{
		RoomID:      room.ID.String(),
		MessageID:   msg.ID.String(),
		SenderID:    sess.UserID.String(),
		SenderType:  sess.Role,
		Preview:     preview,
		HasImage:    msg.Image.Valid,
		RecipientID: recipientID.String(),
	})
	if err == nil {
		out = append(out, OutEvent{Kind: TargetUser, ID: recipientID.String(), Frame: pushFrame})
	}

	stored, err := p.effects.CreateNotification(ctx, services.CreateNotificationInput{
		RecipientID: recipientID,
		SenderID:    uuid.NullUUID{UUID: sess.UserID, Valid: true},
		Title:       "New message",
		Message:     preview,
		Type:        notification.TypeNewMessage,
	})
	if err != nil {
		p.logger.Warn("failed to store notification",
			zap.String("recipient_id", recipientID.String()), zap.Error(err))
		return out
	}

	if frame, err := NewFrame(EventNewNotification, NewNotificationPayload{Notification: stored}); err == nil {
		out = append(out, OutEvent{Kind: TargetUser, ID: recipientID.String(), Frame: frame})
	}
	out = append(out, p.notificationCount(ctx, recipientID)...)
	return out
}

// lookupPersisted serves the optimistic-send reconnect path: the client
// already stored the message over REST and only needs the broadcast.
func (p *Protocol) lookupPersisted(ctx context.Context, sess SessionState, roomID uuid.UUID, messageID string) (chat.Message, error) {
	id, err := uuid.Parse(messageID)
	if err != nil {
		return chat.Message{}, staylink_errors.ErrInvalidInput
	}
	msg, err := p.effects.Message(ctx, id)
	if err != nil {
		return chat.Message{}, err
	}
	if msg.ChatRoomID != roomID || msg.SenderID != sess.UserID {
		return chat.Message{}, staylink_errors.ErrForbidden
	}
	return msg, nil
}

func (p *Protocol) handleMarkMessagesSeen(ctx context.Context, sess SessionState, data json.RawMessage) ([]OutEvent, error) {
	roomID, err := decodeRoomID(data)
	if err != nil {
		return nil, err
	}
	if err := p.authorizeRoom(ctx, sess, roomID); err != nil {
		return nil, err
	}

	changed, err := p.effects.MarkAllSeen(ctx, roomID, sess.senderType())
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}

	frame, err := NewFrame(EventMessagesSeen, MessagesSeenPayload{
		RoomID:        roomID.String(),
		RecipientType: sess.Role,
	})
	if err != nil {
		return nil, staylink_errors.ErrInternal
	}
	return []OutEvent{{Kind: TargetRoom, ID: roomID.String(), Frame: frame}}, nil
}

func (p *Protocol) handleTyping(ctx context.Context, sess SessionState, data json.RawMessage) ([]OutEvent, error) {
	var payload TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, staylink_errors.ErrInvalidInput
	}
	roomID, err := uuid.Parse(payload.RoomID)
	if err != nil {
		return nil, staylink_errors.ErrInvalidInput
	}

	if err := p.effects.TrackTyping(ctx, roomID.String(), sess.UserID.String(), payload.IsTyping); err != nil {
		p.logger.Debug("typing indicator not recorded", zap.Error(err))
	}

	frame, err := NewFrame(EventUserTyping, UserTypingPayload{
		RoomID:   roomID.String(),
		UserID:   sess.UserID.String(),
		IsTyping: payload.IsTyping,
	})
	if err != nil {
		return nil, staylink_errors.ErrInternal
	}
	return []OutEvent{{Kind: TargetRoom, ID: roomID.String(), Frame: frame}}, nil
}

func (p *Protocol) handleNotificationRead(ctx context.Context, sess SessionState, data json.RawMessage) ([]OutEvent, error) {
	id, err := decodeNotificationID(data)
	if err != nil {
		return nil, err
	}
	if err := p.effects.MarkNotificationRead(ctx, id); err != nil {
		return nil, err
	}
	return p.notificationCount(ctx, sess.UserID), nil
}

func (p *Protocol) handleNotificationDelete(ctx context.Context, sess SessionState, data json.RawMessage) ([]OutEvent, error) {
	id, err := decodeNotificationID(data)
	if err != nil {
		return nil, err
	}
	if err := p.effects.DeleteNotification(ctx, id); err != nil {
		return nil, err
	}
	return p.notificationCount(ctx, sess.UserID), nil
}

func (p *Protocol) handleNotificationsAllRead(ctx context.Context, sess SessionState) ([]OutEvent, error) {
	if err := p.effects.MarkAllNotificationsRead(ctx, sess.UserID); err != nil {
		return nil, err
	}
	return p.notificationCount(ctx, sess.UserID), nil
}

func (p *Protocol) notificationCount(ctx context.Context, recipientID uuid.UUID) []OutEvent {
	count, err := p.effects.UnreadNotificationCount(ctx, recipientID)
	if err != nil {
		p.logger.Warn("failed to count notifications",
			zap.String("recipient_id", recipientID.String()), zap.Error(err))
		return nil
	}
	frame, err := NewFrame(EventNotificationCount, NotificationCountPayload{Count: count})
	if err != nil {
		return nil
	}
	return []OutEvent{{Kind: TargetUser, ID: recipientID.String(), Frame: frame}}
}

func (p *Protocol) authorizeRoom(ctx context.Context, sess SessionState, roomID uuid.UUID) error {
	room, err := p.effects.Room(ctx, roomID)
	if err != nil {
		return err
	}
	if !roomHasMember(room, sess) {
		return staylink_errors.ErrForbidden
	}
	return nil
}

func roomHasMember(room chat.ChatRoom, sess SessionState) bool {
	switch sess.senderType() {
	case chat.SenderUser:
		return room.UserID == sess.UserID
	case chat.SenderProvider:
		return room.ProviderID == sess.UserID
	default:
		return false
	}
}

func roomCounterpart(room chat.ChatRoom, sender chat.SenderType) uuid.UUID {
	if sender == chat.SenderUser {
		return room.ProviderID
	}
	return room.UserID
}

func decodeRoomID(data json.RawMessage) (uuid.UUID, error) {
	var payload RoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return uuid.Nil, staylink_errors.ErrInvalidInput
	}
	id, err := uuid.Parse(payload.RoomID)
	if err != nil {
		return uuid.Nil, staylink_errors.ErrInvalidInput
	}
	return id, nil
}

func decodeNotificationID(data json.RawMessage) (uuid.UUID, error) {
	var payload NotificationIDPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return uuid.Nil, staylink_errors.ErrInvalidInput
	}
	id, err := uuid.Parse(payload.NotificationID)
	if err != nil {
		return uuid.Nil, staylink_errors.ErrInvalidInput
	}
	return id, nil
}

func parseNullUUID(s string) (uuid.NullUUID, error) {
	if s == "" {
		return uuid.NullUUID{}, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.NullUUID{}, err
	}
	return uuid.NullUUID{UUID: id, Valid: true}, nil
}
