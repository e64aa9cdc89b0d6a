package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kitalumni/backend/internal/domain"
	"github.com/kitalumni/backend/pkg/response"
)

type DirectoryHandler struct {
	directory ProfileReader
	logger    *zap.Logger
}

func NewDirectoryHandler(directory ProfileReader, logger *zap.Logger) *DirectoryHandler {
	return &DirectoryHandler{
		directory: directory,
		logger:    logger,
	}
}

// GetBatches handles GET /users/{role}/batches
func (h *DirectoryHandler) GetBatches(w http.ResponseWriter, r *http.Request) {
	role, err := domain.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		writeError(w, h.logger, err, "failed to list users")
		return
	}

	batches, err := h.directory.ListBatches(r.Context(), role)
	if err != nil {
		writeError(w, h.logger, err, "failed to list users")
		return
	}

	response.OK(w, batches)
}
