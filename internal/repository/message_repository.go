package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-chat/internal/domain"
)

// MessageRepository manages conversation messages and their delivery status.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	// UpdateStatus moves the message to next when its current status allows it.
	// It reports whether a change was made; ErrNotFound if the id is unknown.
	UpdateStatus(ctx context.Context, id string, next domain.MessageStatus) (bool, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (conversation_id, sender_id, content, status)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		msg.ConversationID,
		msg.SenderID,
		msg.Content,
		msg.Status,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	const query = `
        SELECT m.id, m.conversation_id, m.sender_id, u.username, m.content, m.status, m.created_at
        FROM messages m JOIN users u ON u.id = m.sender_id
        WHERE m.id=$1`
	var msg domain.Message
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.SenderName,
		&msg.Content,
		&msg.Status,
		&msg.CreatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

func (r *messageRepository) UpdateStatus(ctx context.Context, id string, next domain.MessageStatus) (bool, error) {
	allowed := domain.AllowedPredecessors(next)
	prior := make([]string, 0, len(allowed))
	for _, status := range allowed {
		prior = append(prior, string(status))
	}

	cmd, err := r.pool.Exec(ctx,
		`UPDATE messages SET status=$1 WHERE id=$2 AND status = ANY($3)`,
		string(next), id, prior)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE id=$1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}
