package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Room is a chat room as the server serializes it.
type Room struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	ProviderID          string    `json:"provider_id"`
	LastMessage         string    `json:"last_message"`
	LastMessageTime     time.Time `json:"last_message_time"`
	UserUnreadCount     int       `json:"user_unread_count"`
	ProviderUnreadCount int       `json:"provider_unread_count"`
}

// SendMessageRequest is the REST persist call of an optimistic send.
type SendMessageRequest struct {
	RoomID           string `json:"room_id"`
	Content          string `json:"content"`
	Image            string `json:"image,omitempty"`
	ReplyToMessageID string `json:"reply_to_message_id,omitempty"`
}

// Client calls the chat REST surface. The websocket side lives on Session.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
}

type pagedRooms struct {
	Items []Room `json:"items"`
	Page  int    `json:"page"`
	Total int64  `json:"total,omitempty"`
}

type pagedMessages struct {
	Items []wireMessage `json:"items"`
	Page  int           `json:"page"`
}

type markSeenResult struct {
	RoomID  string `json:"room_id"`
	Updated bool   `json:"updated"`
}

// CreateRoom opens (or fetches) the room with the counterpart.
func (c *Client) CreateRoom(ctx context.Context, counterpartID string) (Room, error) {
	var room Room
	err := c.do(ctx, http.MethodPost, "/v1/chat/rooms",
		map[string]string{"counterpart_id": counterpartID}, &room)
	return room, err
}

// Rooms fetches one page of the caller's room list, most recent first.
func (c *Client) Rooms(ctx context.Context, page int) ([]Room, error) {
	var paged pagedRooms
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/chat/rooms?page=%d", page), nil, &paged)
	return paged.Items, err
}

// PersistMessage stores the message. The realtime broadcast is a separate
// step carrying the returned id.
func (c *Client) PersistMessage(ctx context.Context, req SendMessageRequest) (MessageView, error) {
	var msg wireMessage
	if err := c.do(ctx, http.MethodPost, "/v1/chat/messages", req, &msg); err != nil {
		return MessageView{}, err
	}
	return msg.view(), nil
}

// Messages fetches a page of room history, newest first.
func (c *Client) Messages(ctx context.Context, roomID string, page int) ([]MessageView, error) {
	var paged pagedMessages
	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/v1/chat/rooms/%s/messages?page=%d", roomID, page), nil, &paged)
	if err != nil {
		return nil, err
	}
	out := make([]MessageView, 0, len(paged.Items))
	for _, m := range paged.Items {
		out = append(out, m.view())
	}
	return out, nil
}

// MarkSeen flips every unseen counterpart message and resets the caller's
// unread counter.
func (c *Client) MarkSeen(ctx context.Context, roomID string) (bool, error) {
	var result markSeenResult
	err := c.do(ctx, http.MethodPost, "/v1/chat/rooms/"+roomID+"/seen", nil, &result)
	return result.Updated, err
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api: %s (%s, http %d)", e.Message, e.Code, e.StatusCode)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Error}
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}
