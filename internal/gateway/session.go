package gateway

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
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 64
)

// Session is one authenticated websocket connection. It decodes frames,
// hands them to the protocol and executes the routing the protocol decides.
type Session struct {
	ConnID string
	UserID uuid.UUID
	Role   string

	conn     *websocket.Conn
	send     chan Frame
	hub      *Hub
	protocol *Protocol
	logger   *zap.Logger

	closeOnce sync.Once
}

func NewSession(conn *websocket.Conn, hub *Hub, protocol *Protocol, userID uuid.UUID, role string) *Session {
	connID := uuid.NewString()
	return &Session{
		ConnID:   connID,
		UserID:   userID,
		Role:     role,
		conn:     conn,
		send:     make(chan Frame, sendBuffer),
		hub:      hub,
		protocol: protocol,
		logger: zap.L().With(
			zap.String("component", "gateway_session"),
			zap.String("conn_id", connID),
			zap.String("user_id", userID.String())),
	}
}

func (s *Session) state() SessionState {
	return SessionState{ConnID: s.ConnID, UserID: s.UserID, Role: s.Role}
}

// Serve registers the session, records presence and runs both pumps until
// the connection drops.
func (s *Session) Serve(ctx context.Context) {
	s.hub.Register(s)
	s.protocol.HandleConnect(ctx, s.state())

	go s.writePump()
	s.readPump(ctx)
}

func (s *Session) readPump(ctx context.Context) {
	defer func() {
		events := s.protocol.HandleDisconnect(ctx, s.state())
		s.hub.Route(ctx, s, events)
		s.hub.Unregister(s)
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.protocol.HandleHeartbeat(ctx, s.state())
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("unexpected close", zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			s.logger.Debug("dropping malformed frame")
			continue
		}

		events := s.protocol.Dispatch(ctx, s.state(), frame)
		s.hub.Route(ctx, s, events)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(frame); err != nil {
				s.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues a frame without blocking the hub. A slow client loses
// frames rather than stalling everyone else.
func (s *Session) enqueue(frame Frame) {
	select {
	case s.send <- frame:
	default:
		s.logger.Warn("send buffer full, dropping frame", zap.String("event", frame.Event))
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.send)
	})
}
