package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kitalumni/backend/internal/middleware"
	"github.com/kitalumni/backend/pkg/response"
)

// DeviceRegistrar stores push tokens.
type DeviceRegistrar interface {
	RegisterDevice(ctx context.Context, userID uuid.UUID, token string) error
}

type DeviceHandler struct {
	service DeviceRegistrar
	logger  *zap.Logger
}

func NewDeviceHandler(service DeviceRegistrar, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterDevice handles POST /devices
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		response.BadRequest(w, "token is required")
		return
	}

	if err := h.service.RegisterDevice(r.Context(), userID, req.Token); err != nil {
		h.logger.Error("failed to register device", zap.Error(err))
		response.InternalError(w, "failed to register device")
		return
	}

	response.Message(w, http.StatusOK, "Device registered", nil)
}
