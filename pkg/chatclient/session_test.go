package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordedFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// sessionHarness is a combined REST + websocket server for session tests.
// Every frame a client writes lands on frames; every accepted websocket
// connection lands on conns so tests can drop the link server-side.
type sessionHarness struct {
	srv    *httptest.Server
	frames chan recordedFrame
	conns  chan *websocket.Conn
}

func newSessionHarness(t *testing.T, rest func(mux *http.ServeMux)) *sessionHarness {
	t.Helper()
	h := &sessionHarness{
		frames: make(chan recordedFrame, 32),
		conns:  make(chan *websocket.Conn, 4),
	}

	mux := http.NewServeMux()
	if rest != nil {
		rest(mux)
	}
	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		h.conns <- conn
		for {
			var f recordedFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			h.frames <- f
		}
	})

	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *sessionHarness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
}

func (h *sessionHarness) session(callbacks Callbacks) *Session {
	return NewSession(NewClient(h.srv.URL, "token"), h.wsURL(), "token", "me", "user", callbacks)
}

func nextFrame(t *testing.T, h *sessionHarness) recordedFrame {
	t.Helper()
	select {
	case f := <-h.frames:
		return f
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a client frame")
		return recordedFrame{}
	}
}

func nextConn(t *testing.T, h *sessionHarness) *websocket.Conn {
	t.Helper()
	select {
	case c := <-h.conns:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a connection")
		return nil
	}
}

func TestSessionSendOptimisticFlow(t *testing.T) {
	persistedID := "11111111-1111-1111-1111-111111111111"
	h := newSessionHarness(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/v1/chat/messages", func(w http.ResponseWriter, r *http.Request) {
			var req SendMessageRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode persist request: %v", err)
			}
			respond(t, w, http.StatusCreated, map[string]interface{}{
				"success": true,
				"data": wireMessage{
					ID:         persistedID,
					ChatRoomID: req.RoomID,
					SenderID:   "me",
					SenderType: "user",
					Content:    req.Content,
				},
			})
		})
	})

	sess := h.session(Callbacks{})
	ctx := context.Background()
	if err := sess.connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if f := nextFrame(t, h); f.Event != eventUserStatus {
		t.Fatalf("expected presence announcement first, got %q", f.Event)
	}

	tempID, err := sess.Send(ctx, "room-1", "hello", "", "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if tempID == persistedID {
		t.Fatal("temp id must differ from the persisted id")
	}

	// The temp entry is swapped in place: one message, persisted id, settled.
	msgs := sess.Cache().Messages("room-1")
	if len(msgs) != 1 {
		t.Fatalf("expected one cached message, got %d", len(msgs))
	}
	if msgs[0].ID != persistedID || msgs[0].Pending || msgs[0].Failed {
		t.Fatalf("expected a settled persisted entry, got %+v", msgs[0])
	}

	// The realtime event carries the persisted id, never the temp one.
	f := nextFrame(t, h)
	if f.Event != eventSendMessage {
		t.Fatalf("expected a send_message broadcast, got %q", f.Event)
	}
	var payload sendMessagePayload
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.MessageID != persistedID || payload.RoomID != "room-1" {
		t.Fatalf("unexpected broadcast payload: %+v", payload)
	}
}

func TestSessionSendFailureFlagsTempEntry(t *testing.T) {
	h := newSessionHarness(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/v1/chat/messages", func(w http.ResponseWriter, r *http.Request) {
			respond(t, w, http.StatusInternalServerError, map[string]interface{}{
				"success": false,
				"error":   "persist failed",
				"code":    "INTERNAL",
			})
		})
	})

	sess := h.session(Callbacks{})
	ctx := context.Background()
	if err := sess.connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	nextFrame(t, h) // presence announcement

	tempID, err := sess.Send(ctx, "room-1", "doomed", "", "")
	if err == nil {
		t.Fatal("expected the persist error surfaced")
	}

	msgs := sess.Cache().Messages("room-1")
	if len(msgs) != 1 {
		t.Fatalf("expected the temp entry kept, got %d messages", len(msgs))
	}
	if msgs[0].ID != tempID || !msgs[0].Failed {
		t.Fatalf("expected the temp entry flagged failed in place, got %+v", msgs[0])
	}
}

func TestSessionReconnectRejoinsRooms(t *testing.T) {
	h := newSessionHarness(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/v1/chat/rooms/room-1/seen", func(w http.ResponseWriter, r *http.Request) {
			respond(t, w, http.StatusOK, map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"room_id": "room-1", "updated": true},
			})
		})
	})

	sess := h.session(Callbacks{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(ctx)
	}()

	first := nextConn(t, h)
	if f := nextFrame(t, h); f.Event != eventUserStatus {
		t.Fatalf("expected presence announcement, got %q", f.Event)
	}

	if err := sess.EnterRoom(ctx, "room-1"); err != nil {
		t.Fatalf("EnterRoom: %v", err)
	}
	if f := nextFrame(t, h); f.Event != eventJoinRoom {
		t.Fatalf("expected join_room, got %q", f.Event)
	}
	if f := nextFrame(t, h); f.Event != eventMarkMessagesSeen {
		t.Fatalf("expected mark_messages_seen, got %q", f.Event)
	}

	// Drop the link server-side; the session must come back on its own,
	// re-announce presence and resubscribe the room it had entered.
	first.Close()
	nextConn(t, h)

	if f := nextFrame(t, h); f.Event != eventUserStatus {
		t.Fatalf("expected presence re-announcement, got %q", f.Event)
	}
	rejoin := nextFrame(t, h)
	if rejoin.Event != eventJoinRoom {
		t.Fatalf("expected the room resubscription, got %q", rejoin.Event)
	}
	var payload roomPayload
	if err := json.Unmarshal(rejoin.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.RoomID != "room-1" {
		t.Fatalf("expected room-1 rejoined, got %q", payload.RoomID)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("run loop did not stop on cancel")
	}
}
