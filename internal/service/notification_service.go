package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/notify"
	"github.com/spec-kit/support-chat/internal/repository"
	"github.com/spec-kit/support-chat/internal/worker"
)

const notificationPreviewLen = 140

// TaskQueue accepts background work without blocking.
type TaskQueue interface {
	Enqueue(task worker.Task) bool
}

// NotificationService tells recipients about messages they missed while offline.
type NotificationService struct {
	users  repository.UserRepository
	queue  TaskQueue
	sender notify.Sender
	logger *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(users repository.UserRepository, queue TaskQueue, sender notify.Sender, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{users: users, queue: queue, sender: sender, logger: logger}
}

// NotifyOffline schedules a notice for recipientID about msg and returns
// immediately. It reports whether the notice was queued.
func (n *NotificationService) NotifyOffline(_ context.Context, recipientID string, msg *domain.Message) bool {
	if n.queue == nil || n.sender == nil {
		return false
	}
	snapshot := *msg
	return n.queue.Enqueue(worker.Task{
		Name: "offline_notification",
		Run: func(ctx context.Context) error {
			return n.deliver(ctx, recipientID, &snapshot)
		},
	})
}

func (n *NotificationService) deliver(ctx context.Context, recipientID string, msg *domain.Message) error {
	recipient, err := n.users.GetByID(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("resolve recipient %s: %w", recipientID, err)
	}
	if strings.TrimSpace(recipient.Email) == "" {
		n.logger.Debug("recipient has no contact address", zap.String("user_id", recipientID))
		return nil
	}

	notice := notify.OfflineNotice{
		To:             recipient.Email,
		Subject:        fmt.Sprintf("New message from %s", msg.SenderName),
		Body:           stringPreview(msg.Content, notificationPreviewLen),
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
	}
	return n.sender.Send(ctx, notice)
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
