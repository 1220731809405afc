package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" agent ")
	require.NoError(t, err)
	assert.Equal(t, RoleAgent, role)
	assert.Equal(t, "agent", role.Normalized())

	_, err = ParseRole("admin")
	assert.Error(t, err)
}

func TestConversation_ForwardOnly(t *testing.T) {
	conv := &Conversation{ID: "k", CustomerID: "c", Status: ConversationStatusOpen}
	assert.Nil(t, conv.AgentID)

	require.NoError(t, conv.Accept("a1"))
	assert.Equal(t, ConversationStatusAssigned, conv.Status)
	assert.True(t, conv.HasAgent("a1"))

	assert.ErrorIs(t, conv.Accept("a2"), ErrInvalidTransition)
	assert.ErrorIs(t, conv.AssignAgent("a2"), ErrInvalidTransition)
	assert.ErrorIs(t, conv.Close("a2"), ErrNotConversationAgent)

	require.NoError(t, conv.Close("a1"))
	assert.Equal(t, ConversationStatusClosed, conv.Status)

	assert.ErrorIs(t, conv.Close("a1"), ErrInvalidTransition)
	assert.ErrorIs(t, conv.Accept("a1"), ErrInvalidTransition)
}

func TestConversation_CloseRequiresAssigned(t *testing.T) {
	conv := &Conversation{ID: "k", CustomerID: "c", Status: ConversationStatusOpen}
	require.NoError(t, conv.AssignAgent("a1"))
	assert.Equal(t, ConversationStatusOpen, conv.Status)
	assert.ErrorIs(t, conv.Close("a1"), ErrInvalidTransition)
}

func TestMessageStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to MessageStatus
		ok       bool
	}{
		{MessageStatusSent, MessageStatusDelivered, true},
		{MessageStatusSent, MessageStatusRead, true},
		{MessageStatusDelivered, MessageStatusRead, true},
		{MessageStatusRead, MessageStatusRead, false},
		{MessageStatusRead, MessageStatusDelivered, false},
		{MessageStatusDelivered, MessageStatusSent, false},
		{MessageStatusDelivered, MessageStatusDelivered, false},
		{MessageStatusSent, MessageStatusSent, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}
