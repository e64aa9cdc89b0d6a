package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Live channel event names for chat traffic.
const (
	EventMessageReceived = "message-received"
	EventMessageEdited   = "message-edited"
	EventMessageDeleted  = "message-deleted"
)

type ChatMessage struct {
	ID         uuid.UUID  `json:"id"`
	SenderID   uuid.UUID  `json:"sender"`
	ReceiverID uuid.UUID  `json:"receiver"`
	Body       string     `json:"body"`
	CreatedAt  time.Time  `json:"created_at"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`
}

// Counterpart returns the other participant.
func (m *ChatMessage) Counterpart(userID uuid.UUID) uuid.UUID {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// MessageDeleted is the payload of EventMessageDeleted.
type MessageDeleted struct {
	ChatID     uuid.UUID `json:"chatId"`
	SenderID   uuid.UUID `json:"sender"`
	ReceiverID uuid.UUID `json:"receiver"`
}

// ChatRepository is the durable message store. UpdateMessageBody and
// DeleteMessage only touch rows whose sender matches and return
// ErrMessageNotFound otherwise.
type ChatRepository interface {
	CreateMessage(ctx context.Context, senderID, receiverID uuid.UUID, body string) (*ChatMessage, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*ChatMessage, error)
	UpdateMessageBody(ctx context.Context, id, senderID uuid.UUID, body string) (*ChatMessage, error)
	DeleteMessage(ctx context.Context, id, senderID uuid.UUID) error
	GetHistory(ctx context.Context, a, b uuid.UUID) ([]*ChatMessage, error)
}

// Relay pushes events to a user's live channel if one exists. Delivery is
// best-effort; the repository is the source of truth.
type Relay interface {
	PresenceReader
	SendToUser(userID uuid.UUID, eventType string, payload interface{})
}

// MessagePusher notifies a receiver who is not connected.
type MessagePusher interface {
	NotifyNewMessage(ctx context.Context, msg *ChatMessage, senderName string) error
}
