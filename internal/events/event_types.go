package events

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/presence"
)

// EventType enumerates the "type" tag of real-time frames.
type EventType string

const (
	EventTypingStart     EventType = "typing.start"
	EventTypingStop      EventType = "typing.stop"
	EventMessage         EventType = "message"
	EventMessageRead     EventType = "message.read"
	EventUserJoin        EventType = "user.join"
	EventPresenceOnline  EventType = "presence.online"
	EventPresenceOffline EventType = "presence.offline"
	EventPresenceSnap    EventType = "presence.snapshot"
	EventNewConversation EventType = "new_conversation"
)

// Group names.
const PresenceGroup = "presence_updates"

// ConversationGroup names the broadcast group of one conversation.
func ConversationGroup(conversationID string) string {
	return "conversation_" + conversationID
}

// AgentGroup names the notification group of one agent.
func AgentGroup(agentID string) string {
	return "agent_" + agentID
}

// Outbound is any frame that can be sent to a connected client.
type Outbound interface {
	Kind() EventType
}

// Encode renders an outbound event as a JSON frame.
func Encode(ev Outbound) ([]byte, error) {
	return json.Marshal(ev)
}

// TypingEvent relays a typing indicator.
type TypingEvent struct {
	Type EventType `json:"type"`
	User string    `json:"user"`
}

func (e TypingEvent) Kind() EventType { return e.Type }

// NewTypingEvent builds a typing relay for user; kind is typing.start or typing.stop.
func NewTypingEvent(kind EventType, user string) TypingEvent {
	return TypingEvent{Type: kind, User: user}
}

// MessageEvent announces a persisted message and its delivery status.
type MessageEvent struct {
	Type      EventType `json:"type"`
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Timestamp string    `json:"timestamp"`
	Status    string    `json:"status"`
}

func (e MessageEvent) Kind() EventType { return e.Type }

// NewMessageEvent renders msg for broadcast.
func NewMessageEvent(msg *domain.Message) MessageEvent {
	return MessageEvent{
		Type:      EventMessage,
		ID:        msg.ID,
		Content:   msg.Content,
		Sender:    msg.SenderName,
		Timestamp: msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		Status:    msg.Status.Wire(),
	}
}

// ReadEvent is a read receipt.
type ReadEvent struct {
	Type   EventType `json:"type"`
	ID     string    `json:"id"`
	Reader string    `json:"reader"`
}

func (e ReadEvent) Kind() EventType { return e.Type }

// NewReadEvent builds a read receipt for messageID by reader.
func NewReadEvent(messageID, reader string) ReadEvent {
	return ReadEvent{Type: EventMessageRead, ID: messageID, Reader: reader}
}

// JoinEvent announces a participant joining a conversation.
type JoinEvent struct {
	Type EventType `json:"type"`
	User string    `json:"user"`
	Role string    `json:"role"`
}

func (e JoinEvent) Kind() EventType { return e.Type }

// NewJoinEvent builds a join announcement.
func NewJoinEvent(user string, role domain.Role) JoinEvent {
	return JoinEvent{Type: EventUserJoin, User: user, Role: role.Normalized()}
}

// PresenceEvent reports an identity going online or offline.
type PresenceEvent struct {
	Type EventType `json:"type"`
	User string    `json:"user"`
	Role string    `json:"role,omitempty"`
}

func (e PresenceEvent) Kind() EventType { return e.Type }

// NewPresenceOnline builds a presence.online event.
func NewPresenceOnline(user string, role domain.Role) PresenceEvent {
	return PresenceEvent{Type: EventPresenceOnline, User: user, Role: role.Normalized()}
}

// NewPresenceOffline builds a presence.offline event.
func NewPresenceOffline(user string) PresenceEvent {
	return PresenceEvent{Type: EventPresenceOffline, User: user}
}

// OnlineUser is one row of a presence snapshot.
type OnlineUser struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// SnapshotEvent lists every online identity.
type SnapshotEvent struct {
	Type  EventType    `json:"type"`
	Users []OnlineUser `json:"users"`
}

func (e SnapshotEvent) Kind() EventType { return e.Type }

// NewSnapshotEvent builds a presence.snapshot event. An empty registry
// encodes as an empty list, not null.
func NewSnapshotEvent(entries []presence.Entry) SnapshotEvent {
	users := make([]OnlineUser, 0, len(entries))
	for _, entry := range entries {
		users = append(users, OnlineUser{Username: entry.Username, Role: entry.Role.Normalized()})
	}
	return SnapshotEvent{Type: EventPresenceSnap, Users: users}
}

// NewConversationEvent tells an agent a conversation was assigned to them.
type NewConversationEvent struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	Customer       string    `json:"customer"`
}

func (e NewConversationEvent) Kind() EventType { return e.Type }

// NewNewConversationEvent builds an assignment notice.
func NewNewConversationEvent(conversationID, customer string) NewConversationEvent {
	return NewConversationEvent{Type: EventNewConversation, ConversationID: conversationID, Customer: customer}
}
