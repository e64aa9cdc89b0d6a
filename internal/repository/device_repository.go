package repository

import (
	"context"

	"github.com/google/uuid"
)

// SaveDeviceToken registers a push token. A token moves to the latest user
// that registers it.
func (r *PostgresRepository) SaveDeviceToken(ctx context.Context, userID uuid.UUID, token string) error {
	query := `
		INSERT INTO device_tokens (token, user_id)
		VALUES ($1, $2)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, token, userID)
	return err
}

// GetDeviceTokens returns every push token of a user
func (r *PostgresRepository) GetDeviceTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	query := `SELECT token FROM device_tokens WHERE user_id = $1 ORDER BY updated_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// DeleteDeviceTokens drops tokens the push provider rejected
func (r *PostgresRepository) DeleteDeviceTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	query := `DELETE FROM device_tokens WHERE token = ANY($1)`
	_, err := r.db.Exec(ctx, query, tokens)
	return err
}
