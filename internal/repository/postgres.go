package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitalumni/backend/internal/domain"
)

// PostgresRepository implements the domain stores using PostgreSQL
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Ping checks the database connection
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

const userColumns = `id, role, username, email, branch, batch_year, image_url, is_online, created_at`

// GetUserByID retrieves a user by ID
func (r *PostgresRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	row := r.db.QueryRow(ctx, query, id)
	return scanUser(row)
}

// ListUsersByRole returns every user with the given role
func (r *PostgresRepository) ListUsersByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE role = $1
		ORDER BY batch_year NULLS FIRST, username
	`
	rows, err := r.db.Query(ctx, query, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectUsers(rows)
}

// SetOnline updates the persisted presence flag
func (r *PostgresRepository) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	query := `UPDATE users SET is_online = $2 WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id, online)
	return err
}

// ResetPresence marks every user offline. Called at startup since no live
// channel survives a restart.
func (r *PostgresRepository) ResetPresence(ctx context.Context) error {
	query := `UPDATE users SET is_online = FALSE WHERE is_online`
	_, err := r.db.Exec(ctx, query)
	return err
}

// Helper functions for scanning rows

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Role,
		&user.Username,
		&user.Email,
		&user.Branch,
		&user.BatchYear,
		&user.ImageURL,
		&user.IsOnline,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func collectUsers(rows pgx.Rows) ([]*domain.User, error) {
	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
