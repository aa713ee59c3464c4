package middleware

import (
	"net/http"
	"strings"

	"staylink-chat/internal/domain/chat"
	"staylink-chat/internal/services"
	"staylink-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuthMiddleware binds the token's identity to the request context. Every
// chat handler reads who the caller is from there, never from the body.
func AuthMiddleware(service *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		claims, err := service.ParseAccessToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.Error("UNAUTHORIZED", "unauthorized"))
			c.Abort()
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.Error("UNAUTHORIZED", "unauthorized"))
			c.Abort()
			return
		}
		if !chat.SenderType(claims.Role).Valid() {
			c.JSON(http.StatusUnauthorized, httpdto.Error("UNAUTHORIZED", "unauthorized"))
			c.Abort()
			return
		}

		ctx := services.WithIdentity(c.Request.Context(), services.Identity{
			UserID: userID,
			Role:   claims.Role,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
