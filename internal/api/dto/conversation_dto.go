package dto

import (
	"time"

	"github.com/spec-kit/support-chat/internal/domain"
)

// ConversationResponse is the REST view of a conversation.
type ConversationResponse struct {
	ID         string                    `json:"id"`
	CustomerID string                    `json:"customer_id"`
	AgentID    *string                   `json:"agent_id"`
	Status     domain.ConversationStatus `json:"status"`
	CreatedAt  time.Time                 `json:"created_at"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

// NewConversationResponse maps a domain conversation.
func NewConversationResponse(conv *domain.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:         conv.ID,
		CustomerID: conv.CustomerID,
		AgentID:    conv.AgentID,
		Status:     conv.Status,
		CreatedAt:  conv.CreatedAt,
		UpdatedAt:  conv.UpdatedAt,
	}
}
