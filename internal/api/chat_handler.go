package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kitalumni/backend/internal/domain"
	"github.com/kitalumni/backend/internal/middleware"
	"github.com/kitalumni/backend/pkg/response"
	"github.com/kitalumni/backend/pkg/validator"
)

// ChatMessenger persists chat messages and relays them live.
type ChatMessenger interface {
	SendMessage(ctx context.Context, senderID, receiverID uuid.UUID, body string) (*domain.ChatMessage, error)
	EditMessage(ctx context.Context, chatID, actorID uuid.UUID, body string) (*domain.ChatMessage, error)
	DeleteMessage(ctx context.Context, chatID, actorID uuid.UUID) error
	FetchHistory(ctx context.Context, a, b uuid.UUID) ([]*domain.ChatMessage, error)
}

// ProfileReader looks up users for display.
type ProfileReader interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*domain.UserResponse, error)
	ListBatches(ctx context.Context, role domain.Role) ([]domain.Batch, error)
}

type ChatHandler struct {
	chatService ChatMessenger
	directory   ProfileReader
	logger      *zap.Logger
}

func NewChatHandler(chatService ChatMessenger, directory ProfileReader, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		directory:   directory,
		logger:      logger,
	}
}

// GetHistory handles GET /chat/history/{userA}/{userB}. The caller must be
// one of the two.
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var errs validator.ValidationErrors
	a := validator.ParseUUID(&errs, "userA", chi.URLParam(r, "userA"))
	b := validator.ParseUUID(&errs, "userB", chi.URLParam(r, "userB"))
	if errs.HasErrors() {
		response.BadRequest(w, errs.Error())
		return
	}
	if userID != a && userID != b {
		response.Forbidden(w, "you can only read your own conversations")
		return
	}

	messages, err := h.chatService.FetchHistory(r.Context(), a, b)
	if err != nil {
		writeError(w, h.logger, err, "failed to get messages")
		return
	}

	response.OK(w, messages)
}

// SendMessage handles POST /chat/messages, the HTTP fallback for the live
// channel's send-message.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req struct {
		To   string `json:"to"`
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}

	var errs validator.ValidationErrors
	to := validator.ParseUUID(&errs, "to", req.To)
	if errs.HasErrors() {
		response.BadRequest(w, errs.Error())
		return
	}

	msg, err := h.chatService.SendMessage(r.Context(), userID, to, req.Body)
	if err != nil {
		writeError(w, h.logger, err, "failed to send message")
		return
	}

	response.Created(w, msg)
}

// EditMessage handles PUT /chat/messages/{chatId}
func (h *ChatHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var errs validator.ValidationErrors
	chatID := validator.ParseUUID(&errs, "chatId", chi.URLParam(r, "chatId"))
	if errs.HasErrors() {
		response.BadRequest(w, errs.Error())
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}

	msg, err := h.chatService.EditMessage(r.Context(), chatID, userID, req.Body)
	if err != nil {
		writeError(w, h.logger, err, "failed to edit message")
		return
	}

	response.OK(w, msg)
}

// DeleteMessage handles DELETE /chat/messages/{chatId}
func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var errs validator.ValidationErrors
	chatID := validator.ParseUUID(&errs, "chatId", chi.URLParam(r, "chatId"))
	if errs.HasErrors() {
		response.BadRequest(w, errs.Error())
		return
	}

	if err := h.chatService.DeleteMessage(r.Context(), chatID, userID); err != nil {
		writeError(w, h.logger, err, "failed to delete message")
		return
	}

	response.Message(w, http.StatusOK, "Message deleted", map[string]uuid.UUID{"chatId": chatID})
}

// GetReceiver handles GET /chat/receiver/{userId}, the chat header profile.
func (h *ChatHandler) GetReceiver(w http.ResponseWriter, r *http.Request) {
	var errs validator.ValidationErrors
	id := validator.ParseUUID(&errs, "userId", chi.URLParam(r, "userId"))
	if errs.HasErrors() {
		response.BadRequest(w, errs.Error())
		return
	}

	profile, err := h.directory.GetProfile(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, "failed to get user")
		return
	}

	response.OK(w, profile)
}
