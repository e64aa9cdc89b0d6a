package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kitalumni/backend/internal/domain"
	"github.com/kitalumni/backend/internal/middleware"
	"github.com/kitalumni/backend/pkg/response"
	"github.com/kitalumni/backend/pkg/validator"
)

// ConnectionLedger is the connection request workflow.
type ConnectionLedger interface {
	SendRequest(ctx context.Context, fromID, toID uuid.UUID) (*domain.RequestResult, error)
	ResendRequest(ctx context.Context, fromID, toID uuid.UUID) (*domain.RequestResult, error)
	AcceptRequest(ctx context.Context, token string) (*domain.Resolution, error)
	RejectRequest(ctx context.Context, token string) (*domain.Resolution, error)
	Disconnect(ctx context.Context, userID, targetID uuid.UUID) error
	ListConnections(ctx context.Context, userID uuid.UUID) ([]*domain.UserResponse, error)
	ListPendingRequests(ctx context.Context, userID uuid.UUID) ([]*domain.ConnectionRequest, error)
}

type ConnectionHandler struct {
	connService ConnectionLedger
	logger      *zap.Logger
}

func NewConnectionHandler(connService ConnectionLedger, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		connService: connService,
		logger:      logger,
	}
}

// SendRequest handles POST /connections/send-request
func (h *ConnectionHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, h.connService.SendRequest, http.StatusCreated, "Connection request sent")
}

// ResendRequest handles POST /connections/resend-request
func (h *ConnectionHandler) ResendRequest(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, h.connService.ResendRequest, http.StatusOK, "Connection request resent")
}

type issueFunc func(ctx context.Context, fromID, toID uuid.UUID) (*domain.RequestResult, error)

func (h *ConnectionHandler) issue(w http.ResponseWriter, r *http.Request, fn issueFunc, status int, message string) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req struct {
		To string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}

	var errs validator.ValidationErrors
	toID := validator.ParseUUID(&errs, "to", req.To)
	if errs.HasErrors() {
		response.BadRequest(w, errs.Error())
		return
	}

	result, err := fn(r.Context(), userID, toID)
	if err != nil {
		writeError(w, h.logger, err, "failed to send request")
		return
	}

	if !result.Notified {
		message += ", but the email could not be delivered"
	}
	response.Message(w, status, message, result)
}

// Disconnect handles POST /connections/disconnect
func (h *ConnectionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req struct {
		TargetUserID string `json:"targetUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request")
		return
	}

	var errs validator.ValidationErrors
	targetID := validator.ParseUUID(&errs, "targetUserId", req.TargetUserID)
	if errs.HasErrors() {
		response.BadRequest(w, errs.Error())
		return
	}

	if err := h.connService.Disconnect(r.Context(), userID, targetID); err != nil {
		writeError(w, h.logger, err, "failed to disconnect")
		return
	}

	response.Message(w, http.StatusOK, "Disconnected successfully", nil)
}

// AcceptRequest handles GET /connections/accept-request/{token}
func (h *ConnectionHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	res, err := h.connService.AcceptRequest(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.renderTokenError(w, err)
		return
	}

	renderPage(w, h.logger, http.StatusOK, pageData{
		Title:   "Connection accepted",
		Message: "You are now connected with " + res.From.DisplayName() + ".",
		OK:      true,
	})
}

// RejectRequest handles GET /connections/reject-request/{token}
func (h *ConnectionHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	res, err := h.connService.RejectRequest(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.renderTokenError(w, err)
		return
	}

	renderPage(w, h.logger, http.StatusOK, pageData{
		Title:   "Connection rejected",
		Message: "You declined the request from " + res.From.DisplayName() + ".",
		OK:      true,
	})
}

func (h *ConnectionHandler) renderTokenError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrInvalidOrExpiredToken) {
		renderPage(w, h.logger, http.StatusBadRequest, pageData{
			Title:   "Invalid or expired link",
			Message: "This link is no longer valid. Ask the sender to resend the request.",
		})
		return
	}

	h.logger.Error("failed to resolve connection request", zap.Error(err))
	renderPage(w, h.logger, http.StatusInternalServerError, pageData{
		Title:   "Something went wrong",
		Message: "Please try the link again later.",
	})
}

// GetConnections handles GET /connections
func (h *ConnectionHandler) GetConnections(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	conns, err := h.connService.ListConnections(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err, "failed to get connections")
		return
	}

	response.OK(w, conns)
}

// GetPendingRequests handles GET /connections/pending
func (h *ConnectionHandler) GetPendingRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	requests, err := h.connService.ListPendingRequests(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err, "failed to get requests")
		return
	}

	response.OK(w, requests)
}
