package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-chat/internal/domain"
)

// MemoryStore keeps users, conversations and messages in process memory.
// It backs single-process deployments without POSTGRES_DSN and the tests.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	conversations map[string]domain.Conversation
	messages      map[string]domain.Message
	now           func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]domain.User),
		conversations: make(map[string]domain.Conversation),
		messages:      make(map[string]domain.Message),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Users returns the store's UserRepository view.
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

// Conversations returns the store's ConversationRepository view.
func (s *MemoryStore) Conversations() ConversationRepository { return memoryConversations{s} }

// Messages returns the store's MessageRepository view.
func (s *MemoryStore) Messages() MessageRepository { return memoryMessages{s} }

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(_ context.Context, user *domain.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	now := m.s.now()
	for id, existing := range m.s.users {
		if existing.Username == user.Username {
			user.ID = id
			user.CreatedAt = existing.CreatedAt
			user.UpdatedAt = now
			m.s.users[id] = *user
			return nil
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	m.s.users[user.ID] = *user
	return nil
}

func (m memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	user, ok := m.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (m memoryUsers) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, user := range m.s.users {
		if user.Username == username {
			u := user
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m memoryUsers) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var result []domain.User
	for _, user := range m.s.users {
		if user.Role == role {
			result = append(result, user)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Username < result[j].Username
	})
	return result, nil
}

type memoryConversations struct{ s *MemoryStore }

func (m memoryConversations) Create(_ context.Context, conv *domain.Conversation) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if conv.Status == domain.ConversationStatusOpen {
		for _, existing := range m.s.conversations {
			if existing.CustomerID == conv.CustomerID && existing.Status == domain.ConversationStatusOpen {
				return ErrDuplicate
			}
		}
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := m.s.now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	m.s.conversations[conv.ID] = cloneConversation(*conv)
	return nil
}

func (m memoryConversations) Update(_ context.Context, conv *domain.Conversation, from domain.ConversationStatus) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.conversations[conv.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != from {
		return ErrStale
	}
	conv.UpdatedAt = m.s.now()
	m.s.conversations[conv.ID] = cloneConversation(*conv)
	return nil
}

func (m memoryConversations) GetByID(_ context.Context, id string) (*domain.Conversation, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	conv, ok := m.s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneConversation(conv)
	return &c, nil
}

func (m memoryConversations) FindOpenByCustomer(_ context.Context, customerID string) (*domain.Conversation, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var found *domain.Conversation
	for _, conv := range m.s.conversations {
		if conv.CustomerID != customerID || conv.Status != domain.ConversationStatusOpen {
			continue
		}
		if found == nil || conv.CreatedAt.After(found.CreatedAt) {
			c := cloneConversation(conv)
			found = &c
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (m memoryConversations) OpenCountsByAgent(_ context.Context) (map[string]int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	counts := make(map[string]int)
	for _, conv := range m.s.conversations {
		if conv.Status == domain.ConversationStatusOpen && conv.AgentID != nil {
			counts[*conv.AgentID]++
		}
	}
	return counts, nil
}

func cloneConversation(c domain.Conversation) domain.Conversation {
	if c.AgentID != nil {
		agent := *c.AgentID
		c.AgentID = &agent
	}
	return c
}

type memoryMessages struct{ s *MemoryStore }

func (m memoryMessages) Create(_ context.Context, msg *domain.Message) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.conversations[msg.ConversationID]; !ok {
		return ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = m.s.now()
	m.s.messages[msg.ID] = *msg
	return nil
}

func (m memoryMessages) GetByID(_ context.Context, id string) (*domain.Message, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	msg, ok := m.s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &msg, nil
}

func (m memoryMessages) UpdateStatus(_ context.Context, id string, next domain.MessageStatus) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	msg, ok := m.s.messages[id]
	if !ok {
		return false, ErrNotFound
	}
	if !msg.Status.CanTransitionTo(next) {
		return false, nil
	}
	msg.Status = next
	m.s.messages[id] = msg
	return true, nil
}
