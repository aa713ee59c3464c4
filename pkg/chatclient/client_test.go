package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func respond(t *testing.T, w http.ResponseWriter, status int, body interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		respond(t, w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    Room{ID: "room-1"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token-abc")
	room, err := client.CreateRoom(context.Background(), "provider-1")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if gotAuth != "Bearer token-abc" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if room.ID != "room-1" {
		t.Fatalf("room id = %q", room.ID)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, http.StatusForbidden, map[string]interface{}{
			"success": false,
			"error":   "not a room member",
			"code":    "FORBIDDEN",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	_, err := client.PersistMessage(context.Background(), SendMessageRequest{RoomID: "r", Content: "hi"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "FORBIDDEN" || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestClientDecodesMessagePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/rooms/room-1/messages" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("page") != "2" {
			t.Fatalf("unexpected page %q", r.URL.Query().Get("page"))
		}
		respond(t, w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"items": []map[string]interface{}{
					{"id": "m2", "chat_room_id": "room-1", "sender_type": "provider", "content": "later"},
					{"id": "m1", "chat_room_id": "room-1", "sender_type": "user", "content": "earlier"},
				},
				"page": 2,
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	msgs, err := client.Messages(context.Background(), "room-1", 2)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m2" || msgs[1].Content != "earlier" {
		t.Fatalf("unexpected page %+v", msgs)
	}
}

func TestClientMarkSeen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		respond(t, w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"room_id": "room-1", "updated": true},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	updated, err := client.MarkSeen(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	if !updated {
		t.Fatal("expected updated true")
	}
}
