package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"staylink-chat/internal/redis"
)

// bridgePrefix namespaces the gateway's pub/sub traffic in Redis.
const bridgePrefix = "staylink:gw:"

// busEnvelope is the frame wrapper published over Redis so other server
// processes can deliver to their own connections.
type busEnvelope struct {
	Origin  string `json:"origin"`
	Channel string `json:"channel"`
	Frame   Frame  `json:"frame"`
}

type subscription struct {
	session *Session
	roomID  string
	join    bool
}

type delivery struct {
	channel string
	frame   Frame
}

// Hub owns the local connection registry and fans outbound events out to
// local sessions and, through Redis, to every other server process. Room
// membership here is delivery plumbing for this process only; the presence
// store remains the authority on who is in which room.
type Hub struct {
	id         string
	publisher  *redis.Publisher
	subscriber *redis.Subscriber

	register   chan *Session
	unregister chan *Session
	subs       chan subscription
	deliveries chan delivery

	sessions map[string]*Session            // conn id -> session
	users    map[string]map[string]*Session // user id -> conn id -> session
	rooms    map[string]map[string]*Session // room id -> conn id -> session

	logger *zap.Logger
}

func NewHub(publisher *redis.Publisher, subscriber *redis.Subscriber) *Hub {
	return &Hub{
		id:         uuid.NewString(),
		publisher:  publisher,
		subscriber: subscriber,
		register:   make(chan *Session),
		unregister: make(chan *Session),
		subs:       make(chan subscription, 64),
		deliveries: make(chan delivery, 256),
		sessions:   make(map[string]*Session),
		users:      make(map[string]map[string]*Session),
		rooms:      make(map[string]map[string]*Session),
		logger:     zap.L().With(zap.String("component", "gateway_hub")),
	}
}

// Run owns all registry maps. It is the only goroutine that touches them.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case sess := <-h.register:
			h.addSession(sess)
		case sess := <-h.unregister:
			h.removeSession(sess)
		case sub := <-h.subs:
			h.applySubscription(sub)
		case d := <-h.deliveries:
			h.deliverLocal(d.channel, d.frame)
		}
	}
}

// RunBridge consumes the Redis side of the fan-out and feeds frames from
// other processes into the local delivery loop.
func (h *Hub) RunBridge(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, []string{bridgePrefix + "*"}, func(_ string, payload []byte) {
		var env busEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			h.logger.Warn("dropping malformed bridge payload", zap.Error(err))
			return
		}
		if env.Origin == h.id {
			return
		}
		select {
		case h.deliveries <- delivery{channel: env.Channel, frame: env.Frame}:
		case <-ctx.Done():
		}
	})
}

func (h *Hub) Register(sess *Session)   { h.register <- sess }
func (h *Hub) Unregister(sess *Session) { h.unregister <- sess }

// Route executes the routing decisions a protocol handler produced.
// Everything except conn-targeted and control events is also published to
// Redis; a publish failure degrades to local-only delivery.
func (h *Hub) Route(ctx context.Context, sess *Session, events []OutEvent) {
	for _, ev := range events {
		switch ev.Kind {
		case TargetJoinRoom:
			h.subs <- subscription{session: sess, roomID: ev.ID, join: true}
		case TargetLeaveRoom:
			h.subs <- subscription{session: sess, roomID: ev.ID, join: false}
		default:
			h.deliveries <- delivery{channel: ev.Channel(), frame: ev.Frame}
			if ev.Kind != TargetConn {
				h.publish(ctx, ev)
			}
		}
	}
}

func (h *Hub) publish(ctx context.Context, ev OutEvent) {
	payload, err := json.Marshal(busEnvelope{
		Origin:  h.id,
		Channel: ev.Channel(),
		Frame:   ev.Frame,
	})
	if err != nil {
		return
	}
	if err := h.publisher.Publish(ctx, bridgePrefix+ev.Channel(), payload); err != nil {
		h.logger.Warn("bridge publish failed",
			zap.String("channel", ev.Channel()), zap.Error(err))
	}
}

func (h *Hub) addSession(sess *Session) {
	// A replaced connection with the same id is closed first.
	if old, ok := h.sessions[sess.ConnID]; ok && old != sess {
		h.removeSession(old)
	}
	h.sessions[sess.ConnID] = sess

	userID := sess.UserID.String()
	if h.users[userID] == nil {
		h.users[userID] = make(map[string]*Session)
	}
	h.users[userID][sess.ConnID] = sess

	h.logger.Info("session registered",
		zap.String("conn_id", sess.ConnID),
		zap.String("user_id", userID),
		zap.String("role", sess.Role))
}

func (h *Hub) removeSession(sess *Session) {
	if current, ok := h.sessions[sess.ConnID]; !ok || current != sess {
		return
	}
	delete(h.sessions, sess.ConnID)

	userID := sess.UserID.String()
	if conns := h.users[userID]; conns != nil {
		delete(conns, sess.ConnID)
		if len(conns) == 0 {
			delete(h.users, userID)
		}
	}
	for roomID, conns := range h.rooms {
		delete(conns, sess.ConnID)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
	sess.close()

	h.logger.Info("session unregistered",
		zap.String("conn_id", sess.ConnID),
		zap.String("user_id", userID))
}

func (h *Hub) applySubscription(sub subscription) {
	if _, ok := h.sessions[sub.session.ConnID]; !ok {
		return
	}
	if sub.join {
		if h.rooms[sub.roomID] == nil {
			h.rooms[sub.roomID] = make(map[string]*Session)
		}
		h.rooms[sub.roomID][sub.session.ConnID] = sub.session
		return
	}
	if conns := h.rooms[sub.roomID]; conns != nil {
		delete(conns, sub.session.ConnID)
		if len(conns) == 0 {
			delete(h.rooms, sub.roomID)
		}
	}
}

func (h *Hub) deliverLocal(channel string, frame Frame) {
	switch {
	case channel == "all":
		for _, sess := range h.sessions {
			sess.enqueue(frame)
		}
	case strings.HasPrefix(channel, "conn:"):
		if sess, ok := h.sessions[strings.TrimPrefix(channel, "conn:")]; ok {
			sess.enqueue(frame)
		}
	case strings.HasPrefix(channel, "user:"):
		for _, sess := range h.users[strings.TrimPrefix(channel, "user:")] {
			sess.enqueue(frame)
		}
	case strings.HasPrefix(channel, "room:"):
		for _, sess := range h.rooms[strings.TrimPrefix(channel, "room:")] {
			sess.enqueue(frame)
		}
	}
}

func (h *Hub) closeAll() {
	for _, sess := range h.sessions {
		sess.close()
	}
	h.sessions = make(map[string]*Session)
	h.users = make(map[string]map[string]*Session)
	h.rooms = make(map[string]map[string]*Session)
}
