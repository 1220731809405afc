package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/repository"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

// ConversationService opens conversations for customers.
type ConversationService struct {
	conversations repository.ConversationRepository
	assignment    *AssignmentService
	logger        *zap.Logger
}

// NewConversationService creates the service.
func NewConversationService(conversations repository.ConversationRepository, assignment *AssignmentService, logger *zap.Logger) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{conversations: conversations, assignment: assignment, logger: logger}
}

// Create returns the customer's OPEN conversation, or opens a new one and
// assigns it to the least busy agent. created reports which happened.
func (s *ConversationService) Create(ctx context.Context, customer *domain.Identity) (conv *domain.Conversation, created bool, err error) {
	if customer == nil {
		return nil, false, apperrors.NewUnauthorized("authentication required")
	}
	if customer.Role != domain.RoleCustomer {
		return nil, false, apperrors.NewForbidden("customer role required")
	}

	existing, err := s.conversations.FindOpenByCustomer(ctx, customer.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, apperrors.MapError(err)
	}

	conv = &domain.Conversation{CustomerID: customer.ID, Status: domain.ConversationStatusOpen}
	if err := s.conversations.Create(ctx, conv); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// a concurrent request opened it first
			existing, findErr := s.conversations.FindOpenByCustomer(ctx, customer.ID)
			if findErr != nil {
				return nil, false, apperrors.MapError(findErr)
			}
			return existing, false, nil
		}
		return nil, false, apperrors.MapError(err)
	}
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("customer_id", customer.ID))

	if s.assignment != nil {
		if _, err := s.assignment.AutoAssign(ctx, conv, customer.Username); err != nil {
			// the conversation stays open and unassigned; an agent can still accept it
			s.logger.Warn("auto-assignment failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		}
	}
	return conv, true, nil
}
