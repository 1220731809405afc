package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-chat/internal/domain"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

// CanJoinConversation reports whether identity may join conv: supervisors
// always, agents when assigned to it, customers when it is theirs.
func CanJoinConversation(identity *domain.Identity, conv *domain.Conversation) bool {
	if identity == nil || conv == nil {
		return false
	}
	switch identity.Role {
	case domain.RoleSupervisor:
		return true
	case domain.RoleAgent:
		return conv.HasAgent(identity.ID)
	case domain.RoleCustomer:
		return conv.CustomerID == identity.ID
	}
	return false
}

// CanJoinSupervisor reports whether identity may watch presence.
func CanJoinSupervisor(identity *domain.Identity) bool {
	return identity != nil && identity.Role == domain.RoleSupervisor
}

// CanJoinAgentChannel reports whether identity owns the notification channel of agentID.
func CanJoinAgentChannel(identity *domain.Identity, agentID string) bool {
	return identity != nil && identity.Role == domain.RoleAgent && identity.ID == agentID
}

// RequireRole rejects anonymous callers with 401 and callers outside allowed with 403.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[identity.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
