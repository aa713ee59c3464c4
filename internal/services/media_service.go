package services

import (
	"context"

	"staylink-chat/internal/storage"

	"go.uber.org/zap"
)

// MediaService rewrites stored object keys into time-limited download URLs.
// A presign failure degrades to returning the raw key; chat fetches never
// fail because of the media backend.
type MediaService struct {
	storage *storage.Client
	logger  *zap.Logger
}

func NewMediaService(client *storage.Client) *MediaService {
	return &MediaService{
		storage: client,
		logger:  zap.L().With(zap.String("component", "media")),
	}
}

func (s *MediaService) SignedURL(ctx context.Context, key string) string {
	if key == "" {
		return ""
	}
	if s == nil || s.storage == nil {
		return key
	}
	url, err := s.storage.PresignGet(ctx, key)
	if err != nil {
		s.logger.Warn("presign failed, returning raw key", zap.Error(err))
		return key
	}
	return url
}
