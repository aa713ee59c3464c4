package gateway

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"staylink-chat/internal/domain/chat"
	"staylink-chat/internal/redis"
	"staylink-chat/internal/services"
	"staylink-chat/internal/transport/httpdto"
	staylink_errors "staylink-chat/pkg/errors"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks belong to the edge proxy in this deployment.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades authenticated HTTP requests into gateway sessions.
type Handler struct {
	hub      *Hub
	protocol *Protocol
	auth     *services.AuthService
	limiter  *redis.RateLimiter
	logger   *zap.Logger
}

func NewHandler(hub *Hub, protocol *Protocol, auth *services.AuthService, limiter *redis.RateLimiter) *Handler {
	return &Handler{
		hub:      hub,
		protocol: protocol,
		auth:     auth,
		limiter:  limiter,
		logger:   zap.L().With(zap.String("component", "gateway_handler")),
	}
}

// ServeWS handles GET /v1/ws. The token rides in the query string because
// browser websocket clients cannot set headers; a bearer header works too.
func (h *Handler) ServeWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}

	claims, err := h.auth.ParseAccessToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.Error(staylink_errors.Code(staylink_errors.ErrUnauthorized), "invalid or missing token"))
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil || !chat.SenderType(claims.Role).Valid() {
		c.JSON(http.StatusUnauthorized, httpdto.Error(staylink_errors.Code(staylink_errors.ErrUnauthorized), "invalid identity claims"))
		return
	}

	// A broken limiter never blocks reconnects; it only throttles loops.
	if h.limiter != nil {
		if result, err := h.limiter.AllowConnect(c.Request.Context(), claims.UserID); err == nil && !result.Allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.Error("RATE_LIMITED", "connection rate limit exceeded"))
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	// Serve blocks for the lifetime of the connection, keeping the request
	// context alive for the pumps.
	sess := NewSession(conn, h.hub, h.protocol, userID, claims.Role)
	sess.Serve(c.Request.Context())
}
