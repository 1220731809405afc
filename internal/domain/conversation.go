package domain

import (
	"errors"
	"time"
)

// ConversationStatus enumerates lifecycle states for conversations.
type ConversationStatus string

const (
	ConversationStatusOpen     ConversationStatus = "OPEN"
	ConversationStatusAssigned ConversationStatus = "ASSIGNED"
	ConversationStatusClosed   ConversationStatus = "CLOSED"
)

var (
	// ErrInvalidTransition is returned when a status change would move backward or skip a state.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotConversationAgent is returned when someone other than the assigned agent acts on a conversation.
	ErrNotConversationAgent = errors.New("not the conversation agent")
)

// Conversation is the chat session between one customer and at most one agent.
type Conversation struct {
	ID         string
	CustomerID string
	AgentID    *string
	Status     ConversationStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasAgent reports whether agentID is the conversation's agent.
func (c *Conversation) HasAgent(agentID string) bool {
	return c.AgentID != nil && *c.AgentID == agentID
}

// AssignAgent records a proposed agent while the conversation is still open.
func (c *Conversation) AssignAgent(agentID string) error {
	if c.Status != ConversationStatusOpen {
		return ErrInvalidTransition
	}
	c.AgentID = &agentID
	return nil
}

// Accept moves an open conversation to ASSIGNED with the accepting agent.
func (c *Conversation) Accept(agentID string) error {
	if c.Status != ConversationStatusOpen {
		return ErrInvalidTransition
	}
	c.AgentID = &agentID
	c.Status = ConversationStatusAssigned
	return nil
}

// Close ends an assigned conversation. Only its agent may close it.
func (c *Conversation) Close(agentID string) error {
	if !c.HasAgent(agentID) {
		return ErrNotConversationAgent
	}
	if c.Status != ConversationStatusAssigned {
		return ErrInvalidTransition
	}
	c.Status = ConversationStatusClosed
	return nil
}
