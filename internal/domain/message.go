package domain

import "time"

// MessageStatus is the delivery lifecycle of a message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "SENT"
	MessageStatusDelivered MessageStatus = "DELIVERED"
	MessageStatusRead      MessageStatus = "READ"
)

// Wire returns the lower-case form reported to clients.
func (s MessageStatus) Wire() string {
	switch s {
	case MessageStatusSent:
		return "sent"
	case MessageStatusDelivered:
		return "delivered"
	case MessageStatusRead:
		return "read"
	}
	return ""
}

// CanTransitionTo reports whether moving from s to next is a forward step.
// READ is reachable from any status except READ itself.
func (s MessageStatus) CanTransitionTo(next MessageStatus) bool {
	for _, prev := range AllowedPredecessors(next) {
		if prev == s {
			return true
		}
	}
	return false
}

// AllowedPredecessors lists the statuses a message may hold before moving to next.
func AllowedPredecessors(next MessageStatus) []MessageStatus {
	switch next {
	case MessageStatusDelivered:
		return []MessageStatus{MessageStatusSent}
	case MessageStatusRead:
		return []MessageStatus{MessageStatusSent, MessageStatusDelivered}
	}
	return nil
}

// Message is a single chat line within a conversation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string
	Content        string
	Status         MessageStatus
	CreatedAt      time.Time
}
