// Package conversation persists conversations and their messages.
package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ragline/ragline/internal/domain"
)

// Repo implements conversation persistence over database/sql.
type Repo struct {
	db *sql.DB
}

// New creates a conversation repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Create inserts a conversation.
func (r *Repo) Create(ctx context.Context, c *domain.Conversation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, document_id, title, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.DocumentID, c.Title, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// Get returns a conversation by id.
func (r *Repo) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, document_id, title, created_at
		FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.UserID, &c.DocumentID, &c.Title, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

// AppendMessage inserts a message into a conversation.
func (r *Repo) AppendMessage(ctx context.Context, m *domain.Message) error {
	sources, err := json.Marshal(m.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, model, sources, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, string(m.Role), m.Content, m.Model, string(sources), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns a conversation's messages ordered by creation time.
func (r *Repo) ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, model, sources, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		var (
			m       domain.Message
			role    string
			sources string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Model, &sources, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = domain.Role(role)
		if err := json.Unmarshal([]byte(sources), &m.Sources); err != nil {
			return nil, fmt.Errorf("unmarshal sources: %w", err)
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}
