package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"staylink-chat/internal/domain/chat"
	"staylink-chat/internal/services"
	"staylink-chat/internal/transport/httpdto"
	staylink_errors "staylink-chat/pkg/errors"
)

type ChatHandler struct {
	service *services.ChatService
}

func NewChatHandler(service *services.ChatService) *ChatHandler {
	return &ChatHandler{service: service}
}

// CreateRoom opens the room between the caller and the counterpart, or
// returns the existing one. One room per pair.
func (h *ChatHandler) CreateRoom(c *gin.Context) {
	identity, ok := services.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.Error("UNAUTHORIZED", "unauthorized"))
		return
	}

	var req httpdto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.Error("INVALID_REQUEST", "invalid request"))
		return
	}
	counterpartID, err := uuid.Parse(req.CounterpartID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.Error("INVALID_REQUEST", "invalid counterpart_id"))
		return
	}

	userID, providerID := identity.UserID, counterpartID
	if identity.Role == string(chat.SenderProvider) {
		userID, providerID = counterpartID, identity.UserID
	}

	room, err := h.service.CreateOrGetRoom(c.Request.Context(), userID, providerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.Success(room))
}

func (h *ChatHandler) ListRooms(c *gin.Context) {
	identity, ok := services.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.Error("UNAUTHORIZED", "unauthorized"))
		return
	}
	page := parsePage(c.Query("page"))

	var (
		rooms []chat.ChatRoom
		total int64
		err   error
	)
	if identity.Role == string(chat.SenderProvider) {
		rooms, total, err = h.service.GetRoomsForProvider(c.Request.Context(), identity.UserID, page, services.RoomPageSize)
	} else {
		rooms, total, err = h.service.GetRoomsForUser(c.Request.Context(), identity.UserID, page, services.RoomPageSize)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.Success(httpdto.Paged[chat.ChatRoom]{
		Items: rooms,
		Page:  page,
		Total: total,
	}))
}

// SendMessage is the persist step of an optimistic send. The broadcast
// happens afterwards over the gateway, carrying the id returned here.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	identity, ok := services.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.Error("UNAUTHORIZED", "unauthorized"))
		return
	}

	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.Error("INVALID_REQUEST", "invalid request"))
		return
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.Error("INVALID_REQUEST", "invalid room_id"))
		return
	}
	var replyTo uuid.NullUUID
	if req.ReplyToMessageID != "" {
		id, err := uuid.Parse(req.ReplyToMessageID)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.Error("INVALID_REQUEST", "invalid reply_to_message_id"))
			return
		}
		replyTo = uuid.NullUUID{UUID: id, Valid: true}
	}

	msg, err := h.service.SendMessage(c.Request.Context(), services.SendMessageInput{
		RoomID:           roomID,
		SenderID:         identity.UserID,
		SenderType:       chat.SenderType(identity.Role),
		Content:          req.Content,
		Image:            req.Image,
		ReplyToMessageID: replyTo,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.Success(msg))
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	_, roomID, ok := h.authorizedRoom(c)
	if !ok {
		return
	}
	page := parsePage(c.Query("page"))

	messages, err := h.service.GetMessages(c.Request.Context(), roomID, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.Success(httpdto.Paged[chat.Message]{
		Items: messages,
		Page:  page,
	}))
}

func (h *ChatHandler) MarkSeen(c *gin.Context) {
	identity, roomID, ok := h.authorizedRoom(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllSeen(c.Request.Context(), roomID, chat.SenderType(identity.Role))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.Success(httpdto.MarkSeenResponse{
		RoomID:  roomID.String(),
		Updated: updated,
	}))
}

func (h *ChatHandler) CountUnseen(c *gin.Context) {
	identity, roomID, ok := h.authorizedRoom(c)
	if !ok {
		return
	}

	count, err := h.service.CountUnseen(c.Request.Context(), roomID, chat.SenderType(identity.Role))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.Success(httpdto.UnseenCountResponse{
		RoomID: roomID.String(),
		Count:  count,
	}))
}

func (h *ChatHandler) DeleteRoom(c *gin.Context) {
	_, roomID, ok := h.authorizedRoom(c)
	if !ok {
		return
	}

	if err := h.service.DeleteRoom(c.Request.Context(), roomID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.Success(gin.H{"deleted": true}))
}

// DeleteMessage removes one of the caller's own messages.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	identity, ok := services.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.Error("UNAUTHORIZED", "unauthorized"))
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.Error("INVALID_REQUEST", "invalid message id"))
		return
	}

	msg, err := h.service.GetMessage(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if msg.SenderID != identity.UserID {
		c.JSON(http.StatusForbidden, httpdto.Error("FORBIDDEN", "not the message author"))
		return
	}

	if err := h.service.DeleteMessage(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.Success(gin.H{"deleted": true}))
}

// authorizedRoom loads the room from the :id param and verifies the caller
// is one of its two parties.
func (h *ChatHandler) authorizedRoom(c *gin.Context) (services.Identity, uuid.UUID, bool) {
	identity, ok := services.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.Error("UNAUTHORIZED", "unauthorized"))
		return services.Identity{}, uuid.Nil, false
	}
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.Error("INVALID_REQUEST", "invalid room id"))
		return services.Identity{}, uuid.Nil, false
	}

	room, err := h.service.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		respondError(c, err)
		return services.Identity{}, uuid.Nil, false
	}

	member := (identity.Role == string(chat.SenderUser) && room.UserID == identity.UserID) ||
		(identity.Role == string(chat.SenderProvider) && room.ProviderID == identity.UserID)
	if !member {
		c.JSON(http.StatusForbidden, httpdto.Error("FORBIDDEN", "not a room member"))
		return services.Identity{}, uuid.Nil, false
	}
	return identity, roomID, true
}

func parsePage(raw string) int {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func respondError(c *gin.Context, err error) {
	code := staylink_errors.Code(err)
	c.JSON(httpStatus(code), httpdto.Error(code, err.Error()))
}

func httpStatus(code string) int {
	switch code {
	case "INVALID_ARGUMENT":
		return http.StatusBadRequest
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	case "FORBIDDEN":
		return http.StatusForbidden
	case "NOT_FOUND":
		return http.StatusNotFound
	case "CONFLICT":
		return http.StatusConflict
	case "UNAVAILABLE":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
