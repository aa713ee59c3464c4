package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"staylink-chat/config"
	"staylink-chat/internal/gateway"
	"staylink-chat/internal/handler"
	"staylink-chat/internal/middleware"
	"staylink-chat/internal/redis"
	"staylink-chat/internal/services"
	"staylink-chat/internal/transport/httpdto"
	"staylink-chat/pkg/database"
	"staylink-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Chat          *handler.ChatHandler
	Notifications *handler.NotificationHandler
	Gateway       *gateway.Handler
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.AppPort),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

func (s *Server) SetupRoutes(handlers *Handlers, authService *services.AuthService, limiter *redis.RateLimiter) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.Success(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if err := database.HealthCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.Error("UNHEALTHY", err.Error()))
			return
		}
		c.JSON(http.StatusOK, httpdto.Success(gin.H{"status": "healthy"}))
	})

	authed := middleware.AuthMiddleware(authService)

	chat := s.engine.Group("/v1/chat", authed)
	{
		chat.POST("/rooms", handlers.Chat.CreateRoom)
		chat.GET("/rooms", handlers.Chat.ListRooms)
		chat.DELETE("/rooms/:id", handlers.Chat.DeleteRoom)
		chat.POST("/messages", middleware.MessageRateLimitMiddleware(limiter), handlers.Chat.SendMessage)
		chat.DELETE("/messages/:id", handlers.Chat.DeleteMessage)
		chat.GET("/rooms/:id/messages", handlers.Chat.ListMessages)
		chat.POST("/rooms/:id/seen", handlers.Chat.MarkSeen)
		chat.GET("/rooms/:id/unseen", handlers.Chat.CountUnseen)
	}

	notifications := s.engine.Group("/v1/notifications", authed)
	{
		notifications.GET("", handlers.Notifications.List)
		notifications.PATCH("/:id/read", handlers.Notifications.MarkRead)
		notifications.DELETE("/:id", handlers.Notifications.Delete)
		notifications.POST("/read-all", handlers.Notifications.MarkAllRead)
		notifications.GET("/unread-count", handlers.Notifications.UnreadCount)
	}

	// The gateway authenticates inside the upgrade (query token), so only
	// the rate limit wraps it here.
	s.engine.GET("/v1/ws", handlers.Gateway.ServeWS)
}

// Start serves until ctx is cancelled, then drains connections for up to
// five seconds.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if s.logger != nil {
		s.logger.Infof("Shutting down the server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return nil
}
