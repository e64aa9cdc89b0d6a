package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kitalumni/backend/internal/domain"
)

const messageColumns = `id, sender_id, receiver_id, body, created_at, edited_at`

// CreateMessage stores a chat message
func (r *PostgresRepository) CreateMessage(ctx context.Context, senderID, receiverID uuid.UUID, body string) (*domain.ChatMessage, error) {
	query := `
		INSERT INTO chat_messages (sender_id, receiver_id, body)
		VALUES ($1, $2, $3)
		RETURNING ` + messageColumns
	row := r.db.QueryRow(ctx, query, senderID, receiverID, body)
	return scanMessage(row)
}

// GetMessage retrieves a message by ID
func (r *PostgresRepository) GetMessage(ctx context.Context, id uuid.UUID) (*domain.ChatMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM chat_messages WHERE id = $1`
	row := r.db.QueryRow(ctx, query, id)
	return scanMessage(row)
}

// UpdateMessageBody edits a message the sender owns
func (r *PostgresRepository) UpdateMessageBody(ctx context.Context, id, senderID uuid.UUID, body string) (*domain.ChatMessage, error) {
	query := `
		UPDATE chat_messages SET body = $3, edited_at = NOW()
		WHERE id = $1 AND sender_id = $2
		RETURNING ` + messageColumns
	row := r.db.QueryRow(ctx, query, id, senderID, body)
	return scanMessage(row)
}

// DeleteMessage removes a message the sender owns
func (r *PostgresRepository) DeleteMessage(ctx context.Context, id, senderID uuid.UUID) error {
	query := `DELETE FROM chat_messages WHERE id = $1 AND sender_id = $2`
	tag, err := r.db.Exec(ctx, query, id, senderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

// GetHistory returns the conversation between a and b in insertion order.
// created_at is the transaction start time, so seq is the tie-free order.
func (r *PostgresRepository) GetHistory(ctx context.Context, a, b uuid.UUID) ([]*domain.ChatMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE LEAST(sender_id, receiver_id) = LEAST($1::uuid, $2::uuid)
		  AND GREATEST(sender_id, receiver_id) = GREATEST($1::uuid, $2::uuid)
		ORDER BY seq ASC
	`
	rows, err := r.db.Query(ctx, query, a, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*domain.ChatMessage{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func scanMessage(row pgx.Row) (*domain.ChatMessage, error) {
	var msg domain.ChatMessage
	err := row.Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Body,
		&msg.CreatedAt,
		&msg.EditedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}
