package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kitalumni/backend/internal/domain"
)

const requestColumns = `id, from_id, to_id, token_hash, status, expires_at, created_at, resolved_at`

// CreateRequest stores a new pending request
func (r *PostgresRepository) CreateRequest(ctx context.Context, params domain.CreateRequestParams) (*domain.ConnectionRequest, error) {
	query := `
		INSERT INTO connection_requests (from_id, to_id, token_hash, status, expires_at)
		VALUES ($1, $2, $3, 'pending', $4)
		RETURNING ` + requestColumns
	row := r.db.QueryRow(ctx, query, params.FromID, params.ToID, params.TokenHash, params.ExpiresAt)
	return scanRequest(row)
}

// HasPendingRequest reports whether an unexpired pending request from -> to exists
func (r *PostgresRepository) HasPendingRequest(ctx context.Context, fromID, toID uuid.UUID, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM connection_requests
			WHERE from_id = $1 AND to_id = $2 AND status = 'pending' AND expires_at > $3
		)
	`
	var exists bool
	err := r.db.QueryRow(ctx, query, fromID, toID, now).Scan(&exists)
	return exists, err
}

// DeletePendingRequests removes every pending request from -> to
func (r *PostgresRepository) DeletePendingRequests(ctx context.Context, fromID, toID uuid.UUID) (int64, error) {
	query := `DELETE FROM connection_requests WHERE from_id = $1 AND to_id = $2 AND status = 'pending'`
	tag, err := r.db.Exec(ctx, query, fromID, toID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// AcceptRequest flips a pending request to connected and adds both edges in
// one transaction. The conditional update is what makes a second accept fail.
func (r *PostgresRepository) AcceptRequest(ctx context.Context, params domain.ResolveRequestParams) (*domain.ConnectionRequest, error) {
	var req *domain.ConnectionRequest

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		req, err = resolveRequest(ctx, tx, params, domain.RequestStatusConnected)
		if err != nil {
			return err
		}

		query := `
			INSERT INTO user_connections (user_id, peer_id)
			VALUES ($1, $2), ($2, $1)
			ON CONFLICT DO NOTHING
		`
		if _, err := tx.Exec(ctx, query, req.FromID, req.ToID); err != nil {
			return fmt.Errorf("insert connection: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return req, nil
}

// RejectRequest flips a pending request to rejected
func (r *PostgresRepository) RejectRequest(ctx context.Context, params domain.ResolveRequestParams) (*domain.ConnectionRequest, error) {
	return resolveRequest(ctx, r.db, params, domain.RequestStatusRejected)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func resolveRequest(ctx context.Context, q querier, params domain.ResolveRequestParams, status domain.RequestStatus) (*domain.ConnectionRequest, error) {
	query := `
		UPDATE connection_requests
		SET status = $2, resolved_at = $3
		WHERE token_hash = $1
		  AND status = 'pending'
		  AND expires_at > $3
		  AND from_id = $4
		  AND to_id = $5
		RETURNING ` + requestColumns
	row := q.QueryRow(ctx, query, params.TokenHash, status, params.Now, params.FromID, params.ToID)
	return scanRequest(row)
}

// ListIncomingRequests returns unexpired pending requests addressed to userID,
// newest first, with the sender attached
func (r *PostgresRepository) ListIncomingRequests(ctx context.Context, userID uuid.UUID, now time.Time) ([]*domain.ConnectionRequest, error) {
	query := `
		SELECT cr.id, cr.from_id, cr.to_id, cr.token_hash, cr.status, cr.expires_at, cr.created_at, cr.resolved_at,
		       u.id, u.role, u.username, u.email, u.branch, u.batch_year, u.image_url, u.is_online, u.created_at
		FROM connection_requests cr
		JOIN users u ON u.id = cr.from_id
		WHERE cr.to_id = $1 AND cr.status = 'pending' AND cr.expires_at > $2
		ORDER BY cr.created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*domain.ConnectionRequest
	for rows.Next() {
		var req domain.ConnectionRequest
		var from domain.User
		err := rows.Scan(
			&req.ID, &req.FromID, &req.ToID, &req.TokenHash, &req.Status,
			&req.ExpiresAt, &req.CreatedAt, &req.ResolvedAt,
			&from.ID, &from.Role, &from.Username, &from.Email, &from.Branch,
			&from.BatchYear, &from.ImageURL, &from.IsOnline, &from.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		req.From = from.ToResponse()
		requests = append(requests, &req)
	}

	return requests, rows.Err()
}

// DeleteStaleRequests removes pending requests that expired before the cutoff
func (r *PostgresRepository) DeleteStaleRequests(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM connection_requests WHERE status = 'pending' AND expires_at < $1`
	tag, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// AreConnected checks the a -> b edge; edges always exist in pairs
func (r *PostgresRepository) AreConnected(ctx context.Context, a, b uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM user_connections WHERE user_id = $1 AND peer_id = $2)`
	var exists bool
	err := r.db.QueryRow(ctx, query, a, b).Scan(&exists)
	return exists, err
}

// RemoveConnection deletes both edges; missing edges are not an error
func (r *PostgresRepository) RemoveConnection(ctx context.Context, a, b uuid.UUID) error {
	query := `
		DELETE FROM user_connections
		WHERE (user_id = $1 AND peer_id = $2) OR (user_id = $2 AND peer_id = $1)
	`
	_, err := r.db.Exec(ctx, query, a, b)
	return err
}

// ListConnections returns the users connected to userID
func (r *PostgresRepository) ListConnections(ctx context.Context, userID uuid.UUID) ([]*domain.User, error) {
	query := `
		SELECT u.id, u.role, u.username, u.email, u.branch, u.batch_year, u.image_url, u.is_online, u.created_at
		FROM user_connections c
		JOIN users u ON u.id = c.peer_id
		WHERE c.user_id = $1
		ORDER BY u.username
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectUsers(rows)
}

func scanRequest(row pgx.Row) (*domain.ConnectionRequest, error) {
	var req domain.ConnectionRequest
	err := row.Scan(
		&req.ID,
		&req.FromID,
		&req.ToID,
		&req.TokenHash,
		&req.Status,
		&req.ExpiresAt,
		&req.CreatedAt,
		&req.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}
