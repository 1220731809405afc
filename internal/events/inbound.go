package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEvent is returned for frames whose type tag is not handled.
var ErrUnknownEvent = errors.New("unknown event type")

// Inbound is a client frame. The concrete type is one of TypingCommand,
// MessageCommand or ReadCommand.
type Inbound interface {
	inbound()
}

// TypingCommand is typing.start or typing.stop.
type TypingCommand struct {
	Kind EventType
}

// MessageCommand submits chat text. ClientID is the optional dedup token.
type MessageCommand struct {
	Content  string
	ClientID string
}

// ReadCommand marks a message as read.
type ReadCommand struct {
	MessageID string
}

func (TypingCommand) inbound()  {}
func (MessageCommand) inbound() {}
func (ReadCommand) inbound()    {}

type rawInbound struct {
	Type     EventType `json:"type"`
	Message  *string   `json:"message"`
	ClientID string    `json:"client_id"`
	ID       string    `json:"id"`
}

// ParseInbound decodes a client frame. Frames without a type that carry a
// "message" field are treated as messages.
func ParseInbound(data []byte) (Inbound, error) {
	var raw rawInbound
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch raw.Type {
	case EventTypingStart, EventTypingStop:
		return TypingCommand{Kind: raw.Type}, nil
	case EventMessage:
		return messageCommand(raw), nil
	case EventMessageRead:
		return ReadCommand{MessageID: raw.ID}, nil
	case "":
		if raw.Message != nil {
			return messageCommand(raw), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, raw.Type)
}

func messageCommand(raw rawInbound) MessageCommand {
	cmd := MessageCommand{ClientID: raw.ClientID}
	if raw.Message != nil {
		cmd.Content = *raw.Message
	}
	return cmd
}
