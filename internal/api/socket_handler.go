package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kitalumni/backend/internal/middleware"
	"github.com/kitalumni/backend/internal/realtime"
	"github.com/kitalumni/backend/pkg/response"
)

// Inbound live channel frame types.
const (
	FrameAnnouncePresence = "announce-presence"
	FrameSendMessage      = "send-message"
	FrameEditMessage      = "edit-message"
	FrameDeleteMessage    = "delete-message"
)

const frameTimeout = 10 * time.Second

// SocketHandler serves the live channel.
type SocketHandler struct {
	hub         *realtime.Hub
	chatService ChatMessenger
	upgrader    *websocket.Upgrader
	logger      *zap.Logger
}

func NewSocketHandler(hub *realtime.Hub, chatService ChatMessenger, allowedOrigins []string, logger *zap.Logger) *SocketHandler {
	return &SocketHandler{
		hub:         hub,
		chatService: chatService,
		upgrader:    realtime.NewUpgrader(allowedOrigins),
		logger:      logger,
	}
}

// HandleWebSocket upgrades HTTP connection to WebSocket
func (h *SocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := realtime.NewClient(conn, userID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.hub, h.dispatch)
}

type presencePayload struct {
	UserID uuid.UUID `json:"userId"`
}

type sendPayload struct {
	From uuid.UUID `json:"from"`
	To   uuid.UUID `json:"to"`
	Body string    `json:"body"`
}

type editPayload struct {
	ChatID uuid.UUID `json:"chatId"`
	Body   string    `json:"body"`
}

// dispatch handles one inbound frame. Identities in the payload must match
// the authenticated user; the connection is the credential.
func (h *SocketHandler) dispatch(c *realtime.Client, frame realtime.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()

	switch frame.Type {
	case FrameAnnouncePresence:
		var p presencePayload
		if len(frame.Payload) > 0 {
			if err := json.Unmarshal(frame.Payload, &p); err != nil {
				h.hub.SendError(c, "malformed payload")
				return
			}
		}
		if p.UserID != uuid.Nil && p.UserID != c.UserID {
			h.hub.SendError(c, "cannot announce another user")
			return
		}
		h.hub.Announce(c)

	case FrameSendMessage:
		var p sendPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.To == uuid.Nil {
			h.hub.SendError(c, "malformed payload")
			return
		}
		if p.From != uuid.Nil && p.From != c.UserID {
			h.hub.SendError(c, "cannot send as another user")
			return
		}
		if _, err := h.chatService.SendMessage(ctx, c.UserID, p.To, p.Body); err != nil {
			h.frameFailed(c, frame.Type, err)
		}

	case FrameEditMessage:
		var p editPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.ChatID == uuid.Nil {
			h.hub.SendError(c, "malformed payload")
			return
		}
		if _, err := h.chatService.EditMessage(ctx, p.ChatID, c.UserID, p.Body); err != nil {
			h.frameFailed(c, frame.Type, err)
		}

	case FrameDeleteMessage:
		var p editPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.ChatID == uuid.Nil {
			h.hub.SendError(c, "malformed payload")
			return
		}
		if err := h.chatService.DeleteMessage(ctx, p.ChatID, c.UserID); err != nil {
			h.frameFailed(c, frame.Type, err)
		}

	default:
		h.hub.SendError(c, "unknown frame type: "+frame.Type)
	}
}

func (h *SocketHandler) frameFailed(c *realtime.Client, frameType string, err error) {
	msg, known := frameError(err)
	if !known {
		h.logger.Error("live channel frame failed",
			zap.String("type", frameType),
			zap.String("userID", c.UserID.String()),
			zap.Error(err),
		)
	}
	h.hub.SendError(c, msg)
}

// GetPresence handles GET /presence
func (h *SocketHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	response.OK(w, realtime.OnlineUsers{UserIDs: h.hub.OnlineUsers()})
}
