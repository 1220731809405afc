package realtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/auth"
	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/events"
)

// ServeAgent relays assignment notices for agentID to that agent.
func (h *Hub) ServeAgent(ctx context.Context, conn Conn, identity *domain.Identity, agentID string) error {
	logger := h.logger.With(append(identityFields(identity), zap.String("agent_id", agentID))...)
	if identity == nil {
		return h.reject(conn, channelAgent, ErrUnauthenticated, logger)
	}
	if !auth.CanJoinAgentChannel(identity, agentID) {
		return h.reject(conn, channelAgent, ErrForbidden, logger)
	}

	logger.Info("agent notification channel opened")
	sess := h.newSession(conn, channelAgent, logger)
	return h.serve(ctx, sess, []string{events.AgentGroup(agentID)}, hooks{})
}
