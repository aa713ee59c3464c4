package chatclient

import (
	"sync"
	"time"
)

// MessageView is a message as the client renders it: the persisted fields
// plus local delivery state for optimistic sends.
type MessageView struct {
	ID         string
	RoomID     string
	SenderID   string
	SenderType string
	Content    string
	ImageURL   string
	IsSeen     bool
	CreatedAt  time.Time
	ReplyTo    *ReplyPreview

	// Pending marks a message inserted locally before the server
	// confirmed it; Failed marks one whose persist call failed.
	Pending bool
	Failed  bool
}

// ReplyPreview is the summary of a reply target as the server resolves it.
type ReplyPreview struct {
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	SenderType  string `json:"sender_type"`
	Content     string `json:"content"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

type roomCache struct {
	order  []string
	byID   map[string]*MessageView
	unread int
}

// Cache is the client's local message store. It is additive: entries are
// merged in by id and never invalidated, so a reconnect replays safely.
type Cache struct {
	mu    sync.Mutex
	rooms map[string]*roomCache
}

func NewCache() *Cache {
	return &Cache{rooms: make(map[string]*roomCache)}
}

func (c *Cache) room(roomID string) *roomCache {
	rc, ok := c.rooms[roomID]
	if !ok {
		rc = &roomCache{byID: make(map[string]*MessageView)}
		c.rooms[roomID] = rc
	}
	return rc
}

// Upsert merges a message by id. Returns true when the message was new;
// a repeated id only refreshes the stored fields, so replayed broadcasts
// are harmless.
func (c *Cache) Upsert(msg MessageView) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	rc := c.room(msg.RoomID)
	if existing, ok := rc.byID[msg.ID]; ok {
		*existing = msg
		return false
	}
	copied := msg
	rc.byID[msg.ID] = &copied
	rc.order = append(rc.order, msg.ID)
	return true
}

// Swap replaces a locally inserted temp message with its persisted form,
// keeping its position in the timeline.
func (c *Cache) Swap(roomID, tempID string, msg MessageView) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	rc := c.room(roomID)
	if _, ok := rc.byID[tempID]; !ok {
		return false
	}
	delete(rc.byID, tempID)
	copied := msg
	rc.byID[msg.ID] = &copied
	for i, id := range rc.order {
		if id == tempID {
			rc.order[i] = msg.ID
			break
		}
	}
	return true
}

// MarkFailed flags a pending message in place so the UI can offer a retry.
func (c *Cache) MarkFailed(roomID, tempID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg, ok := c.room(roomID).byID[tempID]; ok {
		msg.Pending = false
		msg.Failed = true
	}
}

// Messages returns the room's timeline in arrival order.
func (c *Cache) Messages(roomID string) []MessageView {
	c.mu.Lock()
	defer c.mu.Unlock()

	rc := c.room(roomID)
	out := make([]MessageView, 0, len(rc.order))
	for _, id := range rc.order {
		if msg, ok := rc.byID[id]; ok {
			out = append(out, *msg)
		}
	}
	return out
}

// MarkAllSeenByAuthor flips the seen flag on every cached message written
// by the given side, mirroring what the server did.
func (c *Cache) MarkAllSeenByAuthor(roomID, authorType string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, msg := range c.room(roomID).byID {
		if msg.SenderType == authorType {
			msg.IsSeen = true
		}
	}
}

func (c *Cache) IncrementUnread(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room(roomID).unread++
}

func (c *Cache) ResetUnread(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room(roomID).unread = 0
}

func (c *Cache) Unread(roomID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room(roomID).unread
}
