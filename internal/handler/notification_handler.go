package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"staylink-chat/internal/domain/notification"
	"staylink-chat/internal/services"
	"staylink-chat/internal/transport/httpdto"
)

type NotificationHandler struct {
	service *services.NotificationService
}

func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

func (h *NotificationHandler) List(c *gin.Context) {
	identity, ok := services.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.Error("UNAUTHORIZED", "unauthorized"))
		return
	}
	page := parsePage(c.Query("page"))

	items, total, err := h.service.List(c.Request.Context(), identity.UserID, page, services.NotificationPageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.Success(httpdto.Paged[notification.Notification]{
		Items: items,
		Page:  page,
		Total: total,
	}))
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.Error("INVALID_REQUEST", "invalid notification id"))
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.Success(gin.H{"read": true}))
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.Error("INVALID_REQUEST", "invalid notification id"))
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.Success(gin.H{"deleted": true}))
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	identity, ok := services.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.Error("UNAUTHORIZED", "unauthorized"))
		return
	}
	if err := h.service.MarkAllRead(c.Request.Context(), identity.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.Success(gin.H{"read": true}))
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	identity, ok := services.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.Error("UNAUTHORIZED", "unauthorized"))
		return
	}
	count, err := h.service.UnreadCount(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.Success(httpdto.UnreadNotificationsResponse{Count: count}))
}
