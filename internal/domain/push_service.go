package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeviceTokenRepository stores push registration tokens per user.
type DeviceTokenRepository interface {
	SaveDeviceToken(ctx context.Context, userID uuid.UUID, token string) error
	GetDeviceTokens(ctx context.Context, userID uuid.UUID) ([]string, error)
	DeleteDeviceTokens(ctx context.Context, tokens []string) error
}

// PushSender delivers one notification to many devices and reports the
// tokens the provider no longer recognises.
type PushSender interface {
	SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) (stale []string, err error)
}

const pushPreviewLength = 120

type PushService struct {
	repo   DeviceTokenRepository
	sender PushSender
	logger *zap.Logger
}

// NewPushService creates a push service. A nil sender disables delivery but
// still accepts device registrations.
func NewPushService(repo DeviceTokenRepository, sender PushSender, logger *zap.Logger) *PushService {
	return &PushService{
		repo:   repo,
		sender: sender,
		logger: logger,
	}
}

func (s *PushService) RegisterDevice(ctx context.Context, userID uuid.UUID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("device token is empty")
	}
	return s.repo.SaveDeviceToken(ctx, userID, token)
}

// NotifyNewMessage pushes a message preview to every device of the receiver.
func (s *PushService) NotifyNewMessage(ctx context.Context, msg *ChatMessage, senderName string) error {
	if s.sender == nil {
		return nil
	}

	tokens, err := s.repo.GetDeviceTokens(ctx, msg.ReceiverID)
	if err != nil {
		return fmt.Errorf("get device tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	preview := msg.Body
	if r := []rune(preview); len(r) > pushPreviewLength {
		preview = string(r[:pushPreviewLength]) + "…"
	}

	stale, err := s.sender.SendMulticast(ctx, tokens, senderName, preview, map[string]string{
		"type":      "message",
		"chat_id":   msg.ID.String(),
		"sender_id": msg.SenderID.String(),
	})
	if len(stale) > 0 {
		if derr := s.repo.DeleteDeviceTokens(ctx, stale); derr != nil {
			s.logger.Warn("failed to prune stale device tokens", zap.Error(derr))
		}
	}
	return err
}
