package domain

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kitalumni/backend/internal/auth"
	"github.com/kitalumni/backend/internal/metrics"
	"github.com/kitalumni/backend/pkg/validator"
)

// ConnectionServiceConfig carries link and notification settings.
type ConnectionServiceConfig struct {
	// LinkBaseURL is the public prefix of the accept/reject routes,
	// e.g. https://host/api/v1/connections.
	LinkBaseURL   string
	NotifyTimeout time.Duration
	Metrics       metrics.Recorder
}

// RequestResult is returned by send and resend.
type RequestResult struct {
	Request  *ConnectionRequest `json:"request"`
	Notified bool               `json:"notified"`
}

// Resolution is returned by accept and reject.
type Resolution struct {
	Request *ConnectionRequest
	From    *User
	To      *User
}

// ConnectionService is the connection request ledger. It serves every role;
// the role of a party never changes the state machine.
type ConnectionService struct {
	repo     ConnectionRepository
	users    Directory
	tokens   *auth.RequestTokenManager
	notifier Notifier
	cfg      ConnectionServiceConfig
	logger   *zap.Logger
}

func NewConnectionService(
	repo ConnectionRepository,
	users Directory,
	tokens *auth.RequestTokenManager,
	notifier Notifier,
	cfg ConnectionServiceConfig,
	logger *zap.Logger,
) *ConnectionService {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	return &ConnectionService{
		repo:     repo,
		users:    users,
		tokens:   tokens,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// SendRequest creates a pending request from -> to and emails the receiver.
func (s *ConnectionService) SendRequest(ctx context.Context, fromID, toID uuid.UUID) (*RequestResult, error) {
	if fromID == toID {
		return nil, ErrSelfRequest
	}

	sender, receiver, err := s.parties(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}

	connected, err := s.repo.AreConnected(ctx, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("check connection: %w", err)
	}
	if connected {
		return nil, ErrAlreadyConnected
	}

	pending, err := s.repo.HasPendingRequest(ctx, fromID, toID, s.tokens.Now())
	if err != nil {
		return nil, fmt.Errorf("check pending request: %w", err)
	}
	if pending {
		return nil, ErrDuplicatePending
	}

	result, err := s.issue(ctx, sender, receiver, false)
	if err != nil {
		return nil, err
	}
	s.cfg.Metrics.RecordConnectionRequest("sent")
	return result, nil
}

// ResendRequest replaces any pending (from, to) requests with a fresh one.
// It skips the already-connected and duplicate checks on purpose: it is the
// override path for a lost or expired link.
func (s *ConnectionService) ResendRequest(ctx context.Context, fromID, toID uuid.UUID) (*RequestResult, error) {
	if fromID == toID {
		return nil, ErrSelfRequest
	}

	sender, receiver, err := s.parties(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}

	removed, err := s.repo.DeletePendingRequests(ctx, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("delete pending requests: %w", err)
	}

	result, err := s.issue(ctx, sender, receiver, true)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("connection request resent",
		zap.String("from", fromID.String()),
		zap.String("to", toID.String()),
		zap.Int64("superseded", removed),
	)
	s.cfg.Metrics.RecordConnectionRequest("resent")
	return result, nil
}

// AcceptRequest resolves a link to connected and links both users.
func (s *ConnectionService) AcceptRequest(ctx context.Context, token string) (*Resolution, error) {
	params, err := s.resolveParams(token)
	if err != nil {
		return nil, err
	}

	req, err := s.repo.AcceptRequest(ctx, params)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			s.cfg.Metrics.RecordConnectionRequest("invalid_token")
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("accept request: %w", err)
	}

	s.cfg.Metrics.RecordConnectionRequest("accepted")
	return s.resolution(ctx, req), nil
}

// RejectRequest resolves a link to rejected. Connections are untouched.
func (s *ConnectionService) RejectRequest(ctx context.Context, token string) (*Resolution, error) {
	params, err := s.resolveParams(token)
	if err != nil {
		return nil, err
	}

	req, err := s.repo.RejectRequest(ctx, params)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			s.cfg.Metrics.RecordConnectionRequest("invalid_token")
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("reject request: %w", err)
	}

	s.cfg.Metrics.RecordConnectionRequest("rejected")
	return s.resolution(ctx, req), nil
}

// Disconnect removes the connection between userID and targetID in both
// directions. Removing an absent connection succeeds.
func (s *ConnectionService) Disconnect(ctx context.Context, userID, targetID uuid.UUID) error {
	if userID == targetID {
		return ErrSelfRequest
	}
	if _, err := s.users.GetUserByID(ctx, targetID); err != nil {
		return err
	}

	if err := s.repo.RemoveConnection(ctx, userID, targetID); err != nil {
		return fmt.Errorf("remove connection: %w", err)
	}
	s.cfg.Metrics.RecordConnectionRequest("disconnected")
	return nil
}

// ListConnections returns the users connected to userID.
func (s *ConnectionService) ListConnections(ctx context.Context, userID uuid.UUID) ([]*UserResponse, error) {
	users, err := s.repo.ListConnections(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, u.ToResponse())
	}
	return out, nil
}

// ListPendingRequests returns unexpired requests waiting on userID.
func (s *ConnectionService) ListPendingRequests(ctx context.Context, userID uuid.UUID) ([]*ConnectionRequest, error) {
	return s.repo.ListIncomingRequests(ctx, userID, s.tokens.Now())
}

// PurgeStaleRequests deletes pending requests whose links expired before
// the retention window. Expiry itself is always checked lazily.
func (s *ConnectionService) PurgeStaleRequests(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteStaleRequests(ctx, s.tokens.Now().Add(-retention))
}

// StartCleanupWorker purges stale requests every interval until ctx is done.
func (s *ConnectionService) StartCleanupWorker(ctx context.Context, interval, retention time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.PurgeStaleRequests(ctx, retention)
				if err != nil {
					s.logger.Warn("stale request cleanup failed", zap.Error(err))
					continue
				}
				if n > 0 {
					s.logger.Info("purged stale connection requests", zap.Int64("count", n))
				}
			}
		}
	}()
}

func (s *ConnectionService) parties(ctx context.Context, fromID, toID uuid.UUID) (*User, *User, error) {
	sender, err := s.users.GetUserByID(ctx, fromID)
	if err != nil {
		return nil, nil, err
	}
	receiver, err := s.users.GetUserByID(ctx, toID)
	if err != nil {
		return nil, nil, err
	}
	return sender, receiver, nil
}

func (s *ConnectionService) issue(ctx context.Context, sender, receiver *User, resent bool) (*RequestResult, error) {
	issued, err := s.tokens.Issue(sender.ID, receiver.ID)
	if err != nil {
		return nil, fmt.Errorf("issue request token: %w", err)
	}

	req, err := s.repo.CreateRequest(ctx, CreateRequestParams{
		FromID:    sender.ID,
		ToID:      receiver.ID,
		TokenHash: issued.Hash,
		ExpiresAt: issued.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// The record stays even when the email fails; resend is the recovery path.
	notified := s.notify(ctx, sender, receiver, issued.Token, resent)

	return &RequestResult{Request: req, Notified: notified}, nil
}

var errNoAddress = errors.New("receiver has no deliverable email address")

func (s *ConnectionService) notify(ctx context.Context, sender, receiver *User, token string, resent bool) bool {
	if !validator.ValidateEmail(receiver.Email) {
		s.cfg.Metrics.RecordNotification("email", errNoAddress)
		s.logger.Warn("connection request not emailed", zap.String("to", receiver.ID.String()), zap.Error(errNoAddress))
		return false
	}

	subject, body, err := renderRequestEmail(requestEmail{
		SenderName:   sender.DisplayName(),
		ReceiverName: receiver.DisplayName(),
		AcceptURL:    s.cfg.LinkBaseURL + "/accept-request/" + url.PathEscape(token),
		RejectURL:    s.cfg.LinkBaseURL + "/reject-request/" + url.PathEscape(token),
		Resent:       resent,
	})
	if err == nil {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
		defer cancel()
		err = s.notifier.Notify(nctx, receiver.Email, subject, body)
	}

	s.cfg.Metrics.RecordNotification("email", err)
	if err != nil {
		s.logger.Warn("connection request notification failed",
			zap.String("from", sender.ID.String()),
			zap.String("to", receiver.ID.String()),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *ConnectionService) resolveParams(token string) (ResolveRequestParams, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		s.cfg.Metrics.RecordConnectionRequest("invalid_token")
		return ResolveRequestParams{}, ErrInvalidOrExpiredToken
	}

	return ResolveRequestParams{
		TokenHash: auth.HashToken(token),
		FromID:    claims.From,
		ToID:      claims.To,
		Now:       s.tokens.Now(),
	}, nil
}

// resolution decorates a resolved request with both parties for the
// confirmation page. Lookup failures only cost the names.
func (s *ConnectionService) resolution(ctx context.Context, req *ConnectionRequest) *Resolution {
	res := &Resolution{Request: req}
	if u, err := s.users.GetUserByID(ctx, req.FromID); err == nil {
		res.From = u
	}
	if u, err := s.users.GetUserByID(ctx, req.ToID); err == nil {
		res.To = u
	}
	return res
}
