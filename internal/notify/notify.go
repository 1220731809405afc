// Package notify delivers offline-message notices to out-of-band channels.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OfflineMessageType is the envelope type and routing key for offline notices.
const OfflineMessageType = "chat.offline_message.v1"

// OfflineNotice tells a recipient that a message arrived while they were away.
type OfflineNotice struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// Sender delivers a notice.
type Sender interface {
	Send(ctx context.Context, notice OfflineNotice) error
}

// Meta identifies an envelope.
type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Time          time.Time `json:"time"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
}

// Envelope is the wire form published to the broker.
type Envelope struct {
	Meta Meta          `json:"meta"`
	Data OfflineNotice `json:"data"`
}

// NewEnvelope wraps notice with fresh metadata. The message id doubles as
// correlation id so consumers can dedupe redeliveries.
func NewEnvelope(notice OfflineNotice, now time.Time) Envelope {
	correlation := notice.MessageID
	env := Envelope{
		Meta: Meta{ID: uuid.NewString(), Type: OfflineMessageType, Time: now.UTC()},
		Data: notice,
	}
	if correlation != "" {
		env.Meta.CorrelationID = &correlation
	}
	return env
}

// LogSender records notices in the log. It is used when no broker is configured.
type LogSender struct {
	logger *zap.Logger
	from   string
}

// NewLogSender builds a log-only sender.
func NewLogSender(logger *zap.Logger, from string) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger, from: from}
}

func (s *LogSender) Send(_ context.Context, notice OfflineNotice) error {
	s.logger.Info("offline notification",
		zap.String("from", s.from),
		zap.String("to", notice.To),
		zap.String("subject", notice.Subject),
		zap.String("conversation_id", notice.ConversationID),
		zap.String("message_id", notice.MessageID))
	return nil
}
