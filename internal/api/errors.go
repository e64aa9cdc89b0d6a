package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kitalumni/backend/internal/domain"
	"github.com/kitalumni/backend/pkg/response"
	"github.com/kitalumni/backend/pkg/validator"
)

// writeError maps domain errors onto HTTP responses. Anything unrecognised
// is logged and reported as a 500 with the fallback message.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		response.BadRequest(w, verrs.Error())
	case errors.Is(err, domain.ErrAlreadyConnected):
		response.Conflict(w, "ALREADY_CONNECTED", "You are already connected")
	case errors.Is(err, domain.ErrDuplicatePending):
		response.Conflict(w, "REQUEST_PENDING", "Request already sent")
	case errors.Is(err, domain.ErrSelfRequest):
		response.Forbidden(w, "You cannot do that to yourself")
	case errors.Is(err, domain.ErrNotSender):
		response.Forbidden(w, "Only the sender can change this message")
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(w, "forbidden")
	case errors.Is(err, domain.ErrUserNotFound):
		response.NotFound(w, "User not found")
	case errors.Is(err, domain.ErrMessageNotFound):
		response.NotFound(w, "Message not found")
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, "not found")
	case errors.Is(err, domain.ErrInvalidOrExpiredToken):
		response.BadRequest(w, "Invalid or expired link")
	case errors.Is(err, domain.ErrEmptyMessage):
		response.BadRequest(w, "Message body is required")
	case errors.Is(err, domain.ErrInvalidRole):
		response.BadRequest(w, "Invalid role")
	default:
		logger.Error(fallback, zap.Error(err))
		response.InternalError(w, fallback)
	}
}

// frameError is the live channel counterpart of writeError. known is false
// for errors the client did not cause.
func frameError(err error) (msg string, known bool) {
	switch {
	case errors.Is(err, domain.ErrNotSender):
		return "only the sender can change this message", true
	case errors.Is(err, domain.ErrUserNotFound):
		return "user not found", true
	case errors.Is(err, domain.ErrMessageNotFound):
		return "message not found", true
	case errors.Is(err, domain.ErrEmptyMessage):
		return "message body is required", true
	default:
		return "something went wrong", false
	}
}
