package services

import (
	"context"
	"time"

	"staylink-chat/internal/domain/notification"
	"staylink-chat/internal/repository"
	staylink_errors "staylink-chat/pkg/errors"

	"github.com/google/uuid"
)

const NotificationPageSize = 10

// NotificationService owns the notifications table. Peripheral flows
// (booking updates, rent reminders) create rows here; the gateway fans
// them out to online recipients.
type NotificationService struct {
	repo repository.NotificationRepository
}

type CreateNotificationInput struct {
	RecipientID uuid.UUID
	SenderID    uuid.NullUUID
	Title       string
	Message     string
	Type        string
}

func NewNotificationService(repo repository.NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

func (s *NotificationService) Create(ctx context.Context, in CreateNotificationInput) (notification.Notification, error) {
	if in.RecipientID == uuid.Nil || in.Title == "" || in.Type == "" {
		return notification.Notification{}, staylink_errors.ErrInvalidInput
	}

	now := time.Now()
	n := notification.Notification{
		ID:          uuid.New(),
		RecipientID: in.RecipientID,
		SenderID:    in.SenderID,
		Title:       in.Title,
		Message:     in.Message,
		Type:        in.Type,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, &n); err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, id)
}

func (s *NotificationService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.SoftDelete(ctx, id)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, recipientID)
}

func (s *NotificationService) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, recipientID)
}

func (s *NotificationService) List(ctx context.Context, recipientID uuid.UUID, page, limit int) ([]notification.Notification, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = NotificationPageSize
	}
	return s.repo.ListForRecipient(ctx, recipientID, page, limit)
}
