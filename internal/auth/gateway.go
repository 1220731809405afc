package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/domain"
)

const identityKey = "auth_identity"

// DefaultCookieName carries the access token on browser connections.
const DefaultCookieName = "access_token"

// CredentialValidator checks a token's signature and expiry and returns its subject id.
type CredentialValidator interface {
	Validate(token string) (string, error)
}

// IdentityStore loads the stored account for a subject id.
type IdentityStore interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Gateway resolves connection credentials to identities. It never rejects a
// request; callers without a valid credential are anonymous and downstream
// authorization turns them away.
type Gateway struct {
	validator  CredentialValidator
	users      IdentityStore
	cookieName string
	logger     *zap.Logger
}

// NewGateway constructs a gateway reading the token from cookieName.
func NewGateway(validator CredentialValidator, users IdentityStore, cookieName string, logger *zap.Logger) *Gateway {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{validator: validator, users: users, cookieName: cookieName, logger: logger}
}

// Resolve returns the identity behind token, or nil for anonymous.
func (g *Gateway) Resolve(ctx context.Context, token string) *domain.Identity {
	if token == "" {
		return nil
	}
	userID, err := g.validator.Validate(token)
	if err != nil {
		g.logger.Debug("credential rejected", zap.Error(err))
		return nil
	}
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		g.logger.Debug("identity lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if !user.Role.Valid() {
		g.logger.Warn("stored user has unknown role", zap.String("user_id", userID), zap.String("role", string(user.Role)))
		return nil
	}
	return user.Identity()
}

// Handle resolves the caller and stores the identity on the request.
func (g *Gateway) Handle(c *fiber.Ctx) error {
	if identity := g.Resolve(c.UserContext(), g.credential(c)); identity != nil {
		c.Locals(identityKey, identity)
	}
	return c.Next()
}

// credential prefers the cookie and falls back to a bearer header.
func (g *Gateway) credential(c *fiber.Ctx) string {
	if token := c.Cookies(g.cookieName); token != "" {
		return token
	}
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// IdentityFromContext returns the identity stored by Handle.
func IdentityFromContext(c *fiber.Ctx) (*domain.Identity, bool) {
	identity, ok := c.Locals(identityKey).(*domain.Identity)
	return identity, ok && identity != nil
}
