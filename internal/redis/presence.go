package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ConnectionInfo is the metadata recorded for a user's live connection.
type ConnectionInfo struct {
	ConnID string
	Role   string
	Online bool
}

// PresenceStore is the shared source of truth for who is online and which
// connection is subscribed to which room. Every server process consults it,
// so chat keeps working when scaled past one instance. All operations are
// best-effort from the caller's point of view: message persistence must
// never depend on this store being reachable.
type PresenceStore struct {
	client *goredis.Client
	ttl    time.Duration
}

// Redis key layout for presence
const (
	userKeyPrefix   = "presence:user:" // hash {conn_id, role, online}
	connKeyPrefix   = "presence:conn:" // string -> user id (reverse map)
	onlineSetPrefix = "online:"        // online:<role> set of user ids
	roomKeyPrefix   = "room:"          // room:<id>:members set of conn ids
	connRoomsSuffix = ":rooms"         // presence:conn:<id>:rooms set of room ids
	typingKeyPrefix = "typing:"        // typing:<roomId> set of user ids
)

func NewPresenceStore(client *goredis.Client, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &PresenceStore{client: client, ttl: ttl}
}

// RecordConnection upserts both directions of the user<->connection mapping.
// Last write wins on reconnect: a user has at most one recorded connection.
func (p *PresenceStore) RecordConnection(ctx context.Context, userID, connID, role string) error {
	pipe := p.client.Pipeline()
	pipe.HSet(ctx, userKeyPrefix+userID, "conn_id", connID, "role", role)
	pipe.Expire(ctx, userKeyPrefix+userID, p.ttl)
	pipe.Set(ctx, connKeyPrefix+connID, userID, p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// SetOnline toggles the user's membership of the per-role online set and
// flags the connection metadata.
func (p *PresenceStore) SetOnline(ctx context.Context, userID, role string, online bool) error {
	pipe := p.client.Pipeline()
	pipe.HSet(ctx, userKeyPrefix+userID, "online", online, "role", role)
	pipe.Expire(ctx, userKeyPrefix+userID, p.ttl)
	if online {
		pipe.SAdd(ctx, onlineSetPrefix+role, userID)
	} else {
		pipe.SRem(ctx, onlineSetPrefix+role, userID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// ConnectionForUser resolves the user's current connection. Returns an
// empty ConnID when the user has none recorded.
func (p *PresenceStore) ConnectionForUser(ctx context.Context, userID string) (ConnectionInfo, error) {
	values, err := p.client.HGetAll(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return ConnectionInfo{}, err
	}
	return ConnectionInfo{
		ConnID: values["conn_id"],
		Role:   values["role"],
		Online: values["online"] == "1" || values["online"] == "true",
	}, nil
}

// UserForConnection resolves which user owns a connection, via the reverse
// map. Returns empty string when unknown.
func (p *PresenceStore) UserForConnection(ctx context.Context, connID string) (string, error) {
	userID, err := p.client.Get(ctx, connKeyPrefix+connID).Result()
	if err == goredis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// JoinRoom adds the connection to the room membership set and remembers the
// room on the connection, so teardown is proportional to rooms joined.
func (p *PresenceStore) JoinRoom(ctx context.Context, roomID, connID string) error {
	pipe := p.client.Pipeline()
	pipe.SAdd(ctx, roomMembersKey(roomID), connID)
	pipe.SAdd(ctx, connRoomsKey(connID), roomID)
	pipe.Expire(ctx, connRoomsKey(connID), p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *PresenceStore) LeaveRoom(ctx context.Context, roomID, connID string) error {
	pipe := p.client.Pipeline()
	pipe.SRem(ctx, roomMembersKey(roomID), connID)
	pipe.SRem(ctx, connRoomsKey(connID), roomID)
	_, err := pipe.Exec(ctx)
	return err
}

// IsRoomMember reports whether the connection currently watches the room.
// Used to choose between a room broadcast and a targeted notification.
func (p *PresenceStore) IsRoomMember(ctx context.Context, roomID, connID string) (bool, error) {
	return p.client.SIsMember(ctx, roomMembersKey(roomID), connID).Result()
}

// OnlineUserIDs returns the online snapshot for a role, used to seed a
// freshly connected client.
func (p *PresenceStore) OnlineUserIDs(ctx context.Context, role string) ([]string, error) {
	return p.client.SMembers(ctx, onlineSetPrefix+role).Result()
}

func (p *PresenceStore) IsUserOnline(ctx context.Context, userID, role string) (bool, error) {
	return p.client.SIsMember(ctx, onlineSetPrefix+role, userID).Result()
}

// Touch refreshes the TTLs on the presence keys. Called from the gateway's
// ping/pong cycle so entries from crashed processes eventually expire.
func (p *PresenceStore) Touch(ctx context.Context, userID, connID string) error {
	pipe := p.client.Pipeline()
	pipe.Expire(ctx, userKeyPrefix+userID, p.ttl)
	pipe.Expire(ctx, connKeyPrefix+connID, p.ttl)
	pipe.Expire(ctx, connRoomsKey(connID), p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// ClearConnection tears down everything recorded for a connection: the
// reverse map, every room membership, and - when this connection is still
// the user's current one - the online flag. Returns the owning user id and
// role so the caller can broadcast the status change.
func (p *PresenceStore) ClearConnection(ctx context.Context, connID string) (userID, role string, err error) {
	userID, err = p.UserForConnection(ctx, connID)
	if err != nil {
		return "", "", err
	}

	rooms, err := p.client.SMembers(ctx, connRoomsKey(connID)).Result()
	if err != nil && err != goredis.Nil {
		return userID, "", err
	}

	pipe := p.client.Pipeline()
	for _, roomID := range rooms {
		pipe.SRem(ctx, roomMembersKey(roomID), connID)
	}
	pipe.Del(ctx, connRoomsKey(connID))
	pipe.Del(ctx, connKeyPrefix+connID)
	if _, err := pipe.Exec(ctx); err != nil {
		return userID, "", err
	}

	if userID == "" {
		return "", "", nil
	}

	info, err := p.ConnectionForUser(ctx, userID)
	if err != nil {
		return userID, "", err
	}
	role = info.Role
	if info.ConnID != connID {
		// The user already reconnected elsewhere; leave them online.
		return userID, role, nil
	}

	pipe = p.client.Pipeline()
	pipe.Del(ctx, userKeyPrefix+userID)
	if role != "" {
		pipe.SRem(ctx, onlineSetPrefix+role, userID)
	}
	_, err = pipe.Exec(ctx)
	return userID, role, err
}

// ClearUser removes the user's presence record and their connection's
// reverse map entry.
func (p *PresenceStore) ClearUser(ctx context.Context, userID string) error {
	info, err := p.ConnectionForUser(ctx, userID)
	if err != nil {
		return err
	}

	pipe := p.client.Pipeline()
	pipe.Del(ctx, userKeyPrefix+userID)
	if info.Role != "" {
		pipe.SRem(ctx, onlineSetPrefix+info.Role, userID)
	}
	if info.ConnID != "" {
		pipe.Del(ctx, connKeyPrefix+info.ConnID)
		pipe.Del(ctx, connRoomsKey(info.ConnID))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// TrackTyping sets a self-expiring typing indicator so a crashed client's
// "typing" state does not linger.
func (p *PresenceStore) TrackTyping(ctx context.Context, roomID, userID string, isTyping bool) error {
	key := typingKeyPrefix + roomID
	if isTyping {
		pipe := p.client.Pipeline()
		pipe.SAdd(ctx, key, userID)
		pipe.Expire(ctx, key, 10*time.Second)
		_, err := pipe.Exec(ctx)
		return err
	}
	return p.client.SRem(ctx, key, userID).Err()
}

// TypingUsers returns users currently typing in a room.
func (p *PresenceStore) TypingUsers(ctx context.Context, roomID string) ([]string, error) {
	return p.client.SMembers(ctx, typingKeyPrefix+roomID).Result()
}

func roomMembersKey(roomID string) string {
	return fmt.Sprintf("%s%s:members", roomKeyPrefix, roomID)
}

func connRoomsKey(connID string) string {
	return connKeyPrefix + connID + connRoomsSuffix
}
