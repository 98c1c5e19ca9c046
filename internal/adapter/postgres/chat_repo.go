package postgres

import (
	"context"

	"family6/internal/domain"
)

// ChatRepo implements chat history persistence on DB.
type ChatRepo struct {
	db *DB
}

// NewChatRepo wraps a DB as a ChatRepository.
func NewChatRepo(db *DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// Append inserts one immutable chat message row.
func (r *ChatRepo) Append(ctx context.Context, m domain.ChatMessage) error {
	_, err := r.db.sql.ExecContext(ctx,
		"INSERT INTO chat_messages (id, session_id, user_email, message_type, content, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		m.ID, m.SessionID, m.UserEmail, string(m.Type), m.Content, m.CreatedAt)
	return err
}

// ListByUser returns the user's messages in insertion order.
func (r *ChatRepo) ListByUser(ctx context.Context, email string) ([]domain.ChatMessage, error) {
	rows, err := r.db.sql.QueryContext(ctx,
		"SELECT id, session_id, user_email, message_type, content, created_at FROM chat_messages WHERE user_email = $1 ORDER BY created_at, id",
		email)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		var mt string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserEmail, &mt, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = domain.MessageType(mt)
		out = append(out, m)
	}
	return out, rows.Err()
}
