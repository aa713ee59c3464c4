package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	staylinkchat "staylink-chat"
	"staylink-chat/config"
	"staylink-chat/internal/gateway"
	"staylink-chat/internal/handler"
	"staylink-chat/internal/redis"
	"staylink-chat/internal/repository"
	"staylink-chat/internal/server"
	"staylink-chat/internal/services"
	"staylink-chat/internal/storage"
	"staylink-chat/pkg/database"
	"staylink-chat/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	database.Connect(cfg)
	defer database.Close()

	if err := database.Migrate(cfg.DatabaseURL(), staylinkchat.MigrationsFS); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	redisClient, err := redis.Connect(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	// Media is optional: without S3 config, image keys come back raw.
	var media *services.MediaService
	if cfg.S3Bucket != "" {
		s3Client, err := storage.NewClient(ctx, storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PresignTTL: cfg.S3PresignTTL,
		})
		if err != nil {
			log.Fatalf("Failed to init S3 client: %v", err)
		}
		media = services.NewMediaService(s3Client)
	}

	rooms := repository.NewRoomRepository(database.DB)
	messages := repository.NewMessageRepository(database.DB)
	notifications := repository.NewNotificationRepository(database.DB)

	authService := services.NewAuthService(cfg.JWTSecret)
	chatService := services.NewChatService(database.DB, rooms, messages, media)
	notificationService := services.NewNotificationService(notifications)

	presence := redis.NewPresenceStore(redisClient, cfg.PresenceTTL)
	limiter := redis.NewRateLimiter(redisClient, redis.DefaultRateLimitConfig())

	hub := gateway.NewHub(redis.NewPublisher(redisClient), redis.NewSubscriber(redisClient))
	protocol := gateway.NewProtocol(gateway.NewServiceEffects(presence, chatService, notificationService))

	handlers := &server.Handlers{
		Chat:          handler.NewChatHandler(chatService),
		Notifications: handler.NewNotificationHandler(notificationService),
		Gateway:       gateway.NewHandler(hub, protocol, authService, limiter),
	}

	srv := server.New(cfg, l)
	srv.SetupRoutes(handlers, authService, limiter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		err := hub.RunBridge(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return srv.Start(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
