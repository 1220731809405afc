package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultExchange receives offline notices when none is configured.
const DefaultExchange = "notifications"

// RabbitSender publishes notices to a topic exchange for a mailer to consume.
type RabbitSender struct {
	conn     *amqp091.Connection
	exchange string
	logger   *zap.Logger
	now      func() time.Time
}

// NewRabbitSender declares exchange on conn and returns a sender bound to it.
func NewRabbitSender(conn *amqp091.Connection, exchange string, logger *zap.Logger) (*RabbitSender, error) {
	if conn == nil {
		return nil, errors.New("rabbitmq connection is nil")
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &RabbitSender{conn: conn, exchange: exchange, logger: logger, now: time.Now}, nil
}

func (s *RabbitSender) Send(ctx context.Context, notice OfflineNotice) error {
	env := NewEnvelope(notice, s.now())
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    env.Meta.ID,
		Timestamp:    env.Meta.Time,
		Type:         OfflineMessageType,
		Body:         body,
	}
	if env.Meta.CorrelationID != nil {
		publishing.CorrelationId = *env.Meta.CorrelationID
	}
	if err := ch.PublishWithContext(ctx, s.exchange, OfflineMessageType, false, false, publishing); err != nil {
		return fmt.Errorf("publish offline notice: %w", err)
	}
	s.logger.Debug("offline notice published",
		zap.String("exchange", s.exchange),
		zap.String("message_id", notice.MessageID))
	return nil
}

// FallbackSender tries primary and hands the notice to secondary when it fails.
type FallbackSender struct {
	primary   Sender
	secondary Sender
	logger    *zap.Logger
}

// NewFallbackSender chains two senders.
func NewFallbackSender(primary, secondary Sender, logger *zap.Logger) *FallbackSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackSender{primary: primary, secondary: secondary, logger: logger}
}

func (s *FallbackSender) Send(ctx context.Context, notice OfflineNotice) error {
	err := s.primary.Send(ctx, notice)
	if err == nil {
		return nil
	}
	s.logger.Warn("primary notification sender failed, using fallback", zap.Error(err))
	return s.secondary.Send(ctx, notice)
}
