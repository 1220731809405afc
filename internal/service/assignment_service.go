package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/events"
	"github.com/spec-kit/support-chat/internal/repository"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

// AssignmentService routes conversations to agents.
type AssignmentService struct {
	users         repository.UserRepository
	conversations repository.ConversationRepository
	fabric        events.Fabric
	logger        *zap.Logger
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	UserRepo         repository.UserRepository
	ConversationRepo repository.ConversationRepository
	Fabric           events.Fabric
	Logger           *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		users:         deps.UserRepo,
		conversations: deps.ConversationRepo,
		fabric:        deps.Fabric,
		logger:        logger,
	}
}

// SelectLeastBusy picks the agent with the fewest OPEN conversations.
// Agents missing from openCounts have none. Ties go to the earliest agent
// in the given order.
func SelectLeastBusy(agents []domain.User, openCounts map[string]int) (*domain.User, bool) {
	var (
		best      *domain.User
		bestCount int
	)
	for i := range agents {
		count := openCounts[agents[i].ID]
		if best == nil || count < bestCount {
			best = &agents[i]
			bestCount = count
		}
	}
	return best, best != nil
}

// AutoAssign sets the least busy agent on an OPEN conversation and notifies
// them. It returns nil when no agent exists.
func (s *AssignmentService) AutoAssign(ctx context.Context, conv *domain.Conversation, customer string) (*domain.User, error) {
	agents, err := s.users.ListByRole(ctx, domain.RoleAgent)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	counts, err := s.conversations.OpenCountsByAgent(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	agent, ok := SelectLeastBusy(agents, counts)
	if !ok {
		s.logger.Warn("no agents available for assignment", zap.String("conversation_id", conv.ID))
		return nil, nil
	}

	if err := conv.AssignAgent(agent.ID); err != nil {
		return nil, mapConversationError(err, conv.ID)
	}
	if err := s.conversations.Update(ctx, conv, domain.ConversationStatusOpen); err != nil {
		return nil, mapConversationError(err, conv.ID)
	}

	s.logger.Info("conversation auto-assigned",
		zap.String("conversation_id", conv.ID),
		zap.String("agent_id", agent.ID))
	s.publishAssignment(ctx, agent.ID, conv.ID, customer)
	return agent, nil
}

// Accept lets an agent take an OPEN conversation, moving it to ASSIGNED.
func (s *AssignmentService) Accept(ctx context.Context, agent *domain.Identity, conversationID string) (*domain.Conversation, error) {
	if err := requireAgent(agent); err != nil {
		return nil, err
	}
	conv, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := conv.Accept(agent.ID); err != nil {
		return nil, mapConversationError(err, conversationID)
	}
	if err := s.conversations.Update(ctx, conv, domain.ConversationStatusOpen); err != nil {
		return nil, mapConversationError(err, conversationID)
	}

	customer := conv.CustomerID
	if user, err := s.users.GetByID(ctx, conv.CustomerID); err == nil {
		customer = user.Username
	} else {
		s.logger.Warn("customer lookup failed", zap.String("customer_id", conv.CustomerID), zap.Error(err))
	}
	s.publishAssignment(ctx, agent.ID, conv.ID, customer)
	return conv, nil
}

// Close ends an ASSIGNED conversation. Only its agent may close it.
func (s *AssignmentService) Close(ctx context.Context, agent *domain.Identity, conversationID string) (*domain.Conversation, error) {
	if err := requireAgent(agent); err != nil {
		return nil, err
	}
	conv, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := conv.Close(agent.ID); err != nil {
		return nil, mapConversationError(err, conversationID)
	}
	if err := s.conversations.Update(ctx, conv, domain.ConversationStatusAssigned); err != nil {
		return nil, mapConversationError(err, conversationID)
	}
	return conv, nil
}

func (s *AssignmentService) loadConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		return nil, mapConversationError(err, id)
	}
	return conv, nil
}

func (s *AssignmentService) publishAssignment(ctx context.Context, agentID, conversationID, customer string) {
	if s.fabric == nil {
		return
	}
	event := events.NewNewConversationEvent(conversationID, customer)
	if err := s.fabric.Publish(ctx, events.AgentGroup(agentID), event); err != nil {
		s.logger.Warn("assignment notification failed",
			zap.String("agent_id", agentID),
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}

func requireAgent(identity *domain.Identity) error {
	if identity == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if identity.Role != domain.RoleAgent {
		return apperrors.NewForbidden("agent role required")
	}
	return nil
}

func mapConversationError(err error, conversationID string) error {
	details := map[string]any{"conversation_id": conversationID}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("conversation", details)
	case errors.Is(err, domain.ErrNotConversationAgent):
		return apperrors.NewForbidden("only the assigned agent may do this")
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, repository.ErrStale):
		return apperrors.NewConflict("conversation status does not allow this", details)
	}
	return apperrors.MapError(err)
}
