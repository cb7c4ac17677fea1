package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/freeholdgames/stellar-dominion/internal/model"
)

// MessageRepo handles diplomatic message database operations.
type MessageRepo struct {
	db *sql.DB
}

// NewMessageRepo creates a MessageRepo.
func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create inserts a new message between two empires.
func (r *MessageRepo) Create(ctx context.Context, senderID, recipientID, body string) (*model.Message, error) {
	var m model.Message
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO messages (id, sender_id, recipient_id, body)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, sender_id, recipient_id, body, created_at`,
		uuid.NewString(), senderID, recipientID, body,
	).Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Body, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return &m, nil
}

// ListBetween returns the conversation between two empires in either
// direction, oldest first.
func (r *MessageRepo) ListBetween(ctx context.Context, a, b string) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sender_id, recipient_id, body, created_at
		 FROM messages
		 WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)
		 ORDER BY created_at`, a, b,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
