package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kitalumni/backend/internal/metrics"
	"github.com/kitalumni/backend/pkg/validator"
)

const (
	maxMessageLength = 4000
	pushTimeout      = 10 * time.Second
)

type ChatService struct {
	repo    ChatRepository
	users   Directory
	relay   Relay
	pusher  MessagePusher
	metrics metrics.Recorder
	logger  *zap.Logger
}

func NewChatService(repo ChatRepository, users Directory, relay Relay, pusher MessagePusher, recorder metrics.Recorder, logger *zap.Logger) *ChatService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &ChatService{
		repo:    repo,
		users:   users,
		relay:   relay,
		pusher:  pusher,
		metrics: recorder,
		logger:  logger,
	}
}

// SendMessage stores the message, then relays it to the receiver if online.
// An offline receiver gets a push notification instead.
func (s *ChatService) SendMessage(ctx context.Context, senderID, receiverID uuid.UUID, body string) (*ChatMessage, error) {
	body = validator.NormalizeMessageBody(body, maxMessageLength)
	if body == "" {
		return nil, ErrEmptyMessage
	}

	sender, err := s.users.GetUserByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetUserByID(ctx, receiverID); err != nil {
		return nil, err
	}

	msg, err := s.repo.CreateMessage(ctx, senderID, receiverID, body)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	s.metrics.RecordChatEvent("sent")

	if s.relay.IsOnline(receiverID) {
		s.relay.SendToUser(receiverID, EventMessageReceived, msg)
	} else if s.pusher != nil {
		go s.push(context.WithoutCancel(ctx), msg, sender.DisplayName())
	}

	return msg, nil
}

// EditMessage replaces the body of a message the actor sent.
func (s *ChatService) EditMessage(ctx context.Context, chatID, actorID uuid.UUID, body string) (*ChatMessage, error) {
	body = validator.NormalizeMessageBody(body, maxMessageLength)
	if body == "" {
		return nil, ErrEmptyMessage
	}

	if _, err := s.authorize(ctx, chatID, actorID); err != nil {
		return nil, err
	}

	msg, err := s.repo.UpdateMessageBody(ctx, chatID, actorID, body)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordChatEvent("edited")

	s.relay.SendToUser(msg.ReceiverID, EventMessageEdited, msg)
	return msg, nil
}

// DeleteMessage removes a message the actor sent.
func (s *ChatService) DeleteMessage(ctx context.Context, chatID, actorID uuid.UUID) error {
	msg, err := s.authorize(ctx, chatID, actorID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteMessage(ctx, chatID, actorID); err != nil {
		return err
	}
	s.metrics.RecordChatEvent("deleted")

	s.relay.SendToUser(msg.ReceiverID, EventMessageDeleted, MessageDeleted{
		ChatID:     msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
	})
	return nil
}

// FetchHistory returns every message between a and b, oldest first.
func (s *ChatService) FetchHistory(ctx context.Context, a, b uuid.UUID) ([]*ChatMessage, error) {
	return s.repo.GetHistory(ctx, a, b)
}

func (s *ChatService) authorize(ctx context.Context, chatID, actorID uuid.UUID) (*ChatMessage, error) {
	msg, err := s.repo.GetMessage(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actorID {
		return nil, ErrNotSender
	}
	return msg, nil
}

func (s *ChatService) push(ctx context.Context, msg *ChatMessage, senderName string) {
	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	err := s.pusher.NotifyNewMessage(ctx, msg, senderName)
	s.metrics.RecordNotification("push", err)
	if err != nil {
		s.logger.Warn("chat push notification failed",
			zap.String("receiver", msg.ReceiverID.String()),
			zap.Error(err),
		)
	}
}
