package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-chat/internal/domain"
)

// ConversationRepository encapsulates conversation persistence.
type ConversationRepository interface {
	// Create inserts conv. A customer holds at most one OPEN conversation;
	// a second one yields ErrDuplicate.
	Create(ctx context.Context, conv *domain.Conversation) error
	// Update writes conv only if the stored status still equals from.
	// A changed status yields ErrStale; an unknown id yields ErrNotFound.
	Update(ctx context.Context, conv *domain.Conversation, from domain.ConversationStatus) error
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	// FindOpenByCustomer returns the customer's newest OPEN conversation.
	FindOpenByCustomer(ctx context.Context, customerID string) (*domain.Conversation, error)
	// OpenCountsByAgent counts OPEN conversations per assigned agent id.
	OpenCountsByAgent(ctx context.Context) (map[string]int, error)
}

type conversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository instantiates repository.
func NewConversationRepository(pool *pgxpool.Pool) ConversationRepository {
	return &conversationRepository{pool: pool}
}

const conversationColumns = `id, customer_id, agent_id, status, created_at, updated_at`

func (r *conversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	const query = `
        INSERT INTO conversations (customer_id, agent_id, status)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		conv.CustomerID,
		conv.AgentID,
		conv.Status,
	).Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt)
	return translate(err)
}

func (r *conversationRepository) Update(ctx context.Context, conv *domain.Conversation, from domain.ConversationStatus) error {
	const query = `
        UPDATE conversations SET agent_id=$1, status=$2, updated_at=NOW()
        WHERE id=$3 AND status=$4
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query, conv.AgentID, conv.Status, conv.ID, from).Scan(&conv.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id=$1)`, conv.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStale
}

func (r *conversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	return r.fetchSingle(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, id)
}

func (r *conversationRepository) FindOpenByCustomer(ctx context.Context, customerID string) (*domain.Conversation, error) {
	return r.fetchSingle(ctx, `SELECT `+conversationColumns+`
        FROM conversations WHERE customer_id=$1 AND status='OPEN'
        ORDER BY created_at DESC LIMIT 1`, customerID)
}

func (r *conversationRepository) OpenCountsByAgent(ctx context.Context) (map[string]int, error) {
	const query = `
        SELECT agent_id, COUNT(*) FROM conversations
        WHERE status='OPEN' AND agent_id IS NOT NULL
        GROUP BY agent_id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var agentID string
		var count int
		if err := rows.Scan(&agentID, &count); err != nil {
			return nil, err
		}
		counts[agentID] = count
	}
	return counts, rows.Err()
}

func (r *conversationRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&conv.ID,
		&conv.CustomerID,
		&conv.AgentID,
		&conv.Status,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}

