package domain

import (
	"errors"
	"fmt"
)

// Error classes. Handlers map on these with errors.Is.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
)

var (
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrRequestNotFound = fmt.Errorf("connection request %w", ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("message %w", ErrNotFound)

	ErrSelfRequest = fmt.Errorf("cannot send a request to yourself: %w", ErrForbidden)
	ErrNotSender   = fmt.Errorf("only the sender may change this message: %w", ErrForbidden)

	ErrAlreadyConnected = fmt.Errorf("already connected: %w", ErrConflict)
	ErrDuplicatePending = fmt.Errorf("request already sent: %w", ErrConflict)

	// ErrInvalidOrExpiredToken deliberately does not say which of the two it was.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired link")

	ErrEmptyMessage = errors.New("message body is empty")
	ErrInvalidRole  = errors.New("invalid role")
)
