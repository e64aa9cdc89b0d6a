package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusConnected RequestStatus = "connected"
	RequestStatusRejected  RequestStatus = "rejected"
)

// ConnectionRequest is a directed, token-bound request from one party to
// another. Status only ever leaves pending once.
type ConnectionRequest struct {
	ID         uuid.UUID     `json:"id"`
	FromID     uuid.UUID     `json:"from"`
	ToID       uuid.UUID     `json:"to"`
	TokenHash  string        `json:"-"`
	Status     RequestStatus `json:"status"`
	ExpiresAt  time.Time     `json:"expires_at"`
	CreatedAt  time.Time     `json:"created_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`

	// For API responses
	From *UserResponse `json:"from_user,omitempty"`
}

type CreateRequestParams struct {
	FromID    uuid.UUID
	ToID      uuid.UUID
	TokenHash string
	ExpiresAt time.Time
}

// ResolveRequestParams identifies a pending request by its link. From and To
// come from the verified link claims and must match the stored row.
type ResolveRequestParams struct {
	TokenHash string
	FromID    uuid.UUID
	ToID      uuid.UUID
	Now       time.Time
}

// ConnectionRepository persists requests and the symmetric connection set.
//
// AcceptRequest and RejectRequest must move the row out of pending with a
// single conditional update and return ErrRequestNotFound when no pending,
// unexpired row matched. AcceptRequest also adds both connection edges in the
// same transaction; adding an existing edge is a no-op.
type ConnectionRepository interface {
	CreateRequest(ctx context.Context, params CreateRequestParams) (*ConnectionRequest, error)
	HasPendingRequest(ctx context.Context, fromID, toID uuid.UUID, now time.Time) (bool, error)
	DeletePendingRequests(ctx context.Context, fromID, toID uuid.UUID) (int64, error)
	AcceptRequest(ctx context.Context, params ResolveRequestParams) (*ConnectionRequest, error)
	RejectRequest(ctx context.Context, params ResolveRequestParams) (*ConnectionRequest, error)
	ListIncomingRequests(ctx context.Context, userID uuid.UUID, now time.Time) ([]*ConnectionRequest, error)
	DeleteStaleRequests(ctx context.Context, before time.Time) (int64, error)

	AreConnected(ctx context.Context, a, b uuid.UUID) (bool, error)
	RemoveConnection(ctx context.Context, a, b uuid.UUID) error
	ListConnections(ctx context.Context, userID uuid.UUID) ([]*User, error)
}
