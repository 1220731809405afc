package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/repository"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

func seedUser(t *testing.T, store *repository.MemoryStore, username string, role domain.Role) *domain.User {
	t.Helper()
	user := &domain.User{Username: username, Email: username + "@example.com", Role: role}
	require.NoError(t, store.Users().Create(context.Background(), user))
	return user
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, expiresAt, err := tm.GenerateToken("u1")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	userID, err := tm.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := NewTokenManager("secret", 5)

	other := NewTokenManager("other-secret", 5)
	forged, _, err := other.GenerateToken("u1")
	require.NoError(t, err)

	expiredTM := NewTokenManager("secret", 5)
	expiredTM.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := expiredTM.GenerateToken("u1")
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": forged,
		"expired":      expired,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tm.Validate(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestGateway_Resolve(t *testing.T) {
	store := repository.NewMemoryStore()
	user := seedUser(t, store, "carol", domain.RoleCustomer)
	tm := NewTokenManager("secret", 5)
	gw := NewGateway(tm, store.Users(), "", nil)

	token, _, err := tm.GenerateToken(user.ID)
	require.NoError(t, err)
	identity := gw.Resolve(context.Background(), token)
	require.NotNil(t, identity)
	assert.Equal(t, domain.Identity{ID: user.ID, Username: "carol", Role: domain.RoleCustomer}, *identity)

	assert.Nil(t, gw.Resolve(context.Background(), ""))
	assert.Nil(t, gw.Resolve(context.Background(), "junk"))

	ghost, _, err := tm.GenerateToken("missing-user")
	require.NoError(t, err)
	assert.Nil(t, gw.Resolve(context.Background(), ghost))
}

func newRoleApp(gw *Gateway) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := apperrors.ToDomainError(err)
			return c.SendStatus(domainErr.HTTPStatus)
		},
	})
	app.Use(gw.Handle)
	app.Get("/agents-only", RequireRole(domain.RoleAgent), func(c *fiber.Ctx) error {
		identity, _ := IdentityFromContext(c)
		return c.SendString(identity.Username)
	})
	return app
}

func TestGateway_HandleAndRequireRole(t *testing.T) {
	store := repository.NewMemoryStore()
	agent := seedUser(t, store, "agent1", domain.RoleAgent)
	customer := seedUser(t, store, "carol", domain.RoleCustomer)
	tm := NewTokenManager("secret", 5)
	app := newRoleApp(NewGateway(tm, store.Users(), "", nil))

	agentToken, _, err := tm.GenerateToken(agent.ID)
	require.NoError(t, err)
	customerToken, _, err := tm.GenerateToken(customer.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"anonymous", func(r *http.Request) {}, http.StatusUnauthorized},
		{"cookie agent", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: agentToken})
		}, http.StatusOK},
		{"bearer agent", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+agentToken)
		}, http.StatusOK},
		{"wrong role", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: customerToken})
		}, http.StatusForbidden},
		{"bad token", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "junk"})
		}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/agents-only", nil)
			tt.setup(req)
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestCanJoinConversation(t *testing.T) {
	agentID := "a1"
	conv := &domain.Conversation{ID: "k1", CustomerID: "c1", AgentID: &agentID, Status: domain.ConversationStatusAssigned}
	unassigned := &domain.Conversation{ID: "k2", CustomerID: "c1", Status: domain.ConversationStatusOpen}

	tests := []struct {
		name     string
		identity *domain.Identity
		conv     *domain.Conversation
		want     bool
	}{
		{"anonymous", nil, conv, false},
		{"own customer", &domain.Identity{ID: "c1", Role: domain.RoleCustomer}, conv, true},
		{"other customer", &domain.Identity{ID: "c2", Role: domain.RoleCustomer}, conv, false},
		{"assigned agent", &domain.Identity{ID: "a1", Role: domain.RoleAgent}, conv, true},
		{"other agent", &domain.Identity{ID: "a2", Role: domain.RoleAgent}, conv, false},
		{"agent on unassigned", &domain.Identity{ID: "a1", Role: domain.RoleAgent}, unassigned, false},
		{"supervisor", &domain.Identity{ID: "s1", Role: domain.RoleSupervisor}, unassigned, true},
		{"customer id used as agent", &domain.Identity{ID: "c1", Role: domain.RoleAgent}, conv, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanJoinConversation(tt.identity, tt.conv))
		})
	}
}

func TestChannelPredicates(t *testing.T) {
	supervisor := &domain.Identity{ID: "s1", Role: domain.RoleSupervisor}
	agent := &domain.Identity{ID: "a1", Role: domain.RoleAgent}

	assert.True(t, CanJoinSupervisor(supervisor))
	assert.False(t, CanJoinSupervisor(agent))
	assert.False(t, CanJoinSupervisor(nil))

	assert.True(t, CanJoinAgentChannel(agent, "a1"))
	assert.False(t, CanJoinAgentChannel(agent, "a2"))
	assert.False(t, CanJoinAgentChannel(supervisor, "s1"))
	assert.False(t, CanJoinAgentChannel(nil, "a1"))
}

func TestPassword(t *testing.T) {
	hashed, err := HashPassword("hunter2", 4)
	require.NoError(t, err)
	assert.True(t, PasswordMatches(hashed, "hunter2"))
	assert.False(t, PasswordMatches(hashed, "wrong"))
}
