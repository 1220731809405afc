package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-chat/internal/domain"
)

func seedUser(t *testing.T, users UserRepository, name string, role domain.Role) *domain.User {
	t.Helper()
	user := &domain.User{Username: name, Email: name + "@example.com", Role: role}
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func TestMemoryStore_UserLookups(t *testing.T) {
	store := NewMemoryStore()
	users := store.Users()
	ctx := context.Background()

	a1 := seedUser(t, users, "agent1", domain.RoleAgent)
	seedUser(t, users, "customer1", domain.RoleCustomer)
	a2 := seedUser(t, users, "agent2", domain.RoleAgent)

	got, err := users.GetByID(ctx, a1.ID)
	require.NoError(t, err)
	assert.Equal(t, "agent1", got.Username)

	got, err = users.GetByUsername(ctx, "agent2")
	require.NoError(t, err)
	assert.Equal(t, a2.ID, got.ID)

	_, err = users.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	agents, err := users.ListByRole(ctx, domain.RoleAgent)
	require.NoError(t, err)
	require.Len(t, agents, 2)

	again := &domain.User{Username: "agent1", Email: "new@example.com", Role: domain.RoleAgent}
	require.NoError(t, users.Create(ctx, again))
	assert.Equal(t, a1.ID, again.ID)
}

func TestMemoryStore_ListByRoleIsDeterministic(t *testing.T) {
	store := NewMemoryStore()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	users := store.Users()

	seedUser(t, users, "zed", domain.RoleAgent)
	seedUser(t, users, "amy", domain.RoleAgent)
	seedUser(t, users, "kim", domain.RoleAgent)

	agents, err := users.ListByRole(context.Background(), domain.RoleAgent)
	require.NoError(t, err)
	require.Len(t, agents, 3)
	assert.Equal(t, []string{"amy", "kim", "zed"}, []string{agents[0].Username, agents[1].Username, agents[2].Username})
}

func TestMemoryStore_Conversations(t *testing.T) {
	store := NewMemoryStore()
	convs := store.Conversations()
	ctx := context.Background()

	agentID := "agent-1"
	open := &domain.Conversation{CustomerID: "c1", Status: domain.ConversationStatusOpen, AgentID: &agentID}
	require.NoError(t, convs.Create(ctx, open))
	other := &domain.Conversation{CustomerID: "c2", Status: domain.ConversationStatusAssigned, AgentID: &agentID}
	require.NoError(t, convs.Create(ctx, other))

	found, err := convs.FindOpenByCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, open.ID, found.ID)

	_, err = convs.FindOpenByCustomer(ctx, "c2")
	assert.ErrorIs(t, err, ErrNotFound)

	counts, err := convs.OpenCountsByAgent(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"agent-1": 1}, counts)

	// mutations on a returned copy do not leak into the store
	*found.AgentID = "someone-else"
	reloaded, err := convs.GetByID(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", *reloaded.AgentID)

	assert.ErrorIs(t, convs.Update(ctx, &domain.Conversation{ID: "missing"}, domain.ConversationStatusOpen), ErrNotFound)
}

func TestMemoryStore_MessageStatusIsMonotonic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv := &domain.Conversation{CustomerID: "c1", Status: domain.ConversationStatusOpen}
	require.NoError(t, store.Conversations().Create(ctx, conv))

	messages := store.Messages()
	msg := &domain.Message{ConversationID: conv.ID, SenderID: "c1", Content: "hello", Status: domain.MessageStatusSent}
	require.NoError(t, messages.Create(ctx, msg))
	assert.False(t, msg.CreatedAt.IsZero())

	changed, err := messages.UpdateStatus(ctx, msg.ID, domain.MessageStatusRead)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = messages.UpdateStatus(ctx, msg.ID, domain.MessageStatusDelivered)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = messages.UpdateStatus(ctx, msg.ID, domain.MessageStatusRead)
	require.NoError(t, err)
	assert.False(t, changed)

	stored, err := messages.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageStatusRead, stored.Status)

	_, err = messages.UpdateStatus(ctx, "missing", domain.MessageStatusRead)
	assert.ErrorIs(t, err, ErrNotFound)

	err = messages.Create(ctx, &domain.Message{ConversationID: "missing", Status: domain.MessageStatusSent})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ConcurrentReadReceipts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conv := &domain.Conversation{CustomerID: "c1", Status: domain.ConversationStatusOpen}
	require.NoError(t, store.Conversations().Create(ctx, conv))
	msg := &domain.Message{ConversationID: conv.ID, SenderID: "c1", Content: "hi", Status: domain.MessageStatusSent}
	require.NoError(t, store.Messages().Create(ctx, msg))

	var wg sync.WaitGroup
	var mu sync.Mutex
	changes := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := store.Messages().UpdateStatus(ctx, msg.ID, domain.MessageStatusRead)
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, changes)
}

func TestMemoryStore_ConversationUpdateIsConditional(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	convs := store.Conversations()

	conv := &domain.Conversation{CustomerID: "c1", Status: domain.ConversationStatusOpen}
	require.NoError(t, convs.Create(ctx, conv))

	first := *conv
	require.NoError(t, first.Accept("a1"))
	require.NoError(t, convs.Update(ctx, &first, domain.ConversationStatusOpen))

	second := *conv
	require.NoError(t, second.Accept("a2"))
	assert.ErrorIs(t, convs.Update(ctx, &second, domain.ConversationStatusOpen), ErrStale)

	stored, err := convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationStatusAssigned, stored.Status)
	assert.Equal(t, "a1", *stored.AgentID)
}

func TestMemoryStore_OneOpenConversationPerCustomer(t *testing.T) {
	store := NewMemoryStore()
	convs := store.Conversations()
	ctx := context.Background()

	first := &domain.Conversation{CustomerID: "c1", Status: domain.ConversationStatusOpen}
	require.NoError(t, convs.Create(ctx, first))
	assert.ErrorIs(t, convs.Create(ctx, &domain.Conversation{CustomerID: "c1", Status: domain.ConversationStatusOpen}), ErrDuplicate)
	require.NoError(t, convs.Create(ctx, &domain.Conversation{CustomerID: "c2", Status: domain.ConversationStatusOpen}))

	agentID := "agent-1"
	require.NoError(t, first.Accept(agentID))
	require.NoError(t, convs.Update(ctx, first, domain.ConversationStatusOpen))
	assert.NoError(t, convs.Create(ctx, &domain.Conversation{CustomerID: "c1", Status: domain.ConversationStatusOpen}),
		"an assigned conversation does not block a new open one")
}
