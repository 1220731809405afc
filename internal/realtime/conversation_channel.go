package realtime

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spec-kit/support-chat/internal/auth"
	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/events"
	"github.com/spec-kit/support-chat/internal/repository"
)

// ServeConversation runs the chat session of identity in conversationID
// until the connection ends. Anonymous or unauthorized callers are closed
// without joining.
func (h *Hub) ServeConversation(ctx context.Context, conn Conn, identity *domain.Identity, conversationID string) error {
	logger := h.logger.With(append(identityFields(identity), zap.String("conversation_id", conversationID))...)
	if identity == nil {
		return h.reject(conn, channelConversation, ErrUnauthenticated, logger)
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return h.reject(conn, channelConversation, ErrNotFound, logger)
	}

	conv, err := h.deps.Conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return h.reject(conn, channelConversation, ErrNotFound, logger)
		}
		logger.Error("conversation lookup failed", zap.Error(err))
		return h.reject(conn, channelConversation, err, logger)
	}
	if !auth.CanJoinConversation(identity, conv) {
		return h.reject(conn, channelConversation, ErrForbidden, logger)
	}

	ch := &conversationChannel{
		hub:      h,
		identity: identity,
		conv:     conv,
		group:    events.ConversationGroup(conv.ID),
		seen:     newTokenSet(h.deps.MaxClientTokens),
		typing:   h.typingLimiter(),
		logger:   logger,
	}
	sess := h.newSession(conn, channelConversation, logger)
	return h.serve(ctx, sess, []string{ch.group}, hooks{join: ch.join, leave: ch.leave, frame: ch.frame})
}

type conversationChannel struct {
	hub      *Hub
	identity *domain.Identity
	conv     *domain.Conversation
	group    string
	seen     *tokenSet
	typing   *rate.Limiter
	logger   *zap.Logger
}

func (c *conversationChannel) join(ctx context.Context) error {
	if err := c.hub.deps.Presence.Set(ctx, c.identity.Username, c.identity.Role); err != nil {
		return err
	}
	c.hub.publish(ctx, c.logger, events.PresenceGroup, events.NewPresenceOnline(c.identity.Username, c.identity.Role))
	c.hub.publish(ctx, c.logger, c.group, events.NewJoinEvent(c.identity.Username, c.identity.Role))
	c.hub.deps.Metrics.RecordEvent(channelConversation, "join", "ok")
	c.logger.Info("joined conversation")
	return nil
}

func (c *conversationChannel) leave(ctx context.Context) {
	gone, err := c.hub.deps.Presence.Remove(ctx, c.identity.Username)
	if err != nil {
		c.logger.Error("presence removal failed", zap.Error(err))
		return
	}
	if gone {
		c.hub.publish(ctx, c.logger, events.PresenceGroup, events.NewPresenceOffline(c.identity.Username))
	}
	c.logger.Info("left conversation", zap.Bool("offline", gone))
}

func (c *conversationChannel) frame(ctx context.Context, data []byte) error {
	inbound, err := events.ParseInbound(data)
	if err != nil {
		c.logger.Debug("dropping frame", zap.Error(err))
		c.hub.deps.Metrics.RecordEvent(channelConversation, "frame", "invalid")
		return nil
	}

	switch cmd := inbound.(type) {
	case events.TypingCommand:
		c.handleTyping(ctx, cmd)
	case events.MessageCommand:
		return c.handleMessage(ctx, cmd)
	case events.ReadCommand:
		c.handleRead(ctx, cmd)
	}
	return nil
}

// handleTyping relays typing indicators. They are advisory, so a client
// over its typing allowance just loses the excess.
func (c *conversationChannel) handleTyping(ctx context.Context, cmd events.TypingCommand) {
	if c.typing != nil && !c.typing.Allow() {
		c.hub.deps.Metrics.RecordEvent(channelConversation, string(cmd.Kind), "rate_limited")
		return
	}
	c.hub.publish(ctx, c.logger, c.group, events.NewTypingEvent(cmd.Kind, c.identity.Username))
	c.hub.deps.Metrics.RecordEvent(channelConversation, string(cmd.Kind), "relayed")
}

func (c *conversationChannel) handleMessage(ctx context.Context, cmd events.MessageCommand) error {
	record := func(outcome string) {
		c.hub.deps.Metrics.RecordEvent(channelConversation, string(events.EventMessage), outcome)
	}

	if cmd.ClientID != "" && c.seen.Seen(cmd.ClientID) {
		c.logger.Debug("duplicate message token", zap.String("client_id", cmd.ClientID))
		record("duplicate")
		return nil
	}
	if strings.TrimSpace(cmd.Content) == "" {
		record("empty")
		return nil
	}
	if cmd.ClientID != "" && c.seen.Full() {
		c.logger.Warn("client token limit reached, closing connection", zap.Int("tokens", c.seen.Len()))
		record("token_limit")
		return errTokenLimit
	}

	msg := &domain.Message{
		ConversationID: c.conv.ID,
		SenderID:       c.identity.ID,
		SenderName:     c.identity.Username,
		Content:        cmd.Content,
		Status:         domain.MessageStatusSent,
	}
	if err := c.hub.deps.Messages.Create(ctx, msg); err != nil {
		c.logger.Error("message persist failed", zap.Error(err))
		record("error")
		return nil
	}
	if cmd.ClientID != "" {
		c.seen.Add(cmd.ClientID)
	}

	c.route(ctx, msg)
	c.hub.publish(ctx, c.logger, c.group, events.NewMessageEvent(msg))
	record("ok")
	return nil
}

// route marks msg delivered when its counterpart is online, and otherwise
// queues an offline notice for them.
func (c *conversationChannel) route(ctx context.Context, msg *domain.Message) {
	recipientID, ok := c.counterpart(ctx)
	if !ok {
		return
	}
	logger := c.logger.With(zap.String("message_id", msg.ID), zap.String("recipient_id", recipientID))

	recipient, err := c.hub.deps.Users.GetByID(ctx, recipientID)
	if err != nil {
		logger.Warn("recipient lookup failed", zap.Error(err))
		return
	}

	online, err := c.hub.deps.Presence.Exists(ctx, recipient.Username)
	if err != nil {
		logger.Warn("presence lookup failed, treating recipient as offline", zap.Error(err))
	}
	if online {
		if _, err := c.hub.deps.Messages.UpdateStatus(ctx, msg.ID, domain.MessageStatusDelivered); err != nil {
			logger.Error("delivery status update failed", zap.Error(err))
			return
		}
		msg.Status = domain.MessageStatusDelivered
		return
	}

	if c.hub.deps.Notifier == nil || !c.hub.deps.Notifier.NotifyOffline(ctx, recipientID, msg) {
		logger.Warn("offline notification not queued")
		c.hub.deps.Metrics.RecordEvent(channelConversation, "offline_notification", "dropped")
		return
	}
	c.hub.deps.Metrics.RecordEvent(channelConversation, "offline_notification", "queued")
}

// counterpart is the agent for customer senders and the customer for
// everyone else. The conversation is reloaded so a later accept is seen.
func (c *conversationChannel) counterpart(ctx context.Context) (string, bool) {
	if fresh, err := c.hub.deps.Conversations.GetByID(ctx, c.conv.ID); err == nil {
		c.conv = fresh
	} else {
		c.logger.Warn("conversation reload failed", zap.Error(err))
	}

	if c.identity.Role == domain.RoleCustomer {
		if c.conv.AgentID == nil {
			return "", false
		}
		return *c.conv.AgentID, true
	}
	return c.conv.CustomerID, true
}

func (c *conversationChannel) handleRead(ctx context.Context, cmd events.ReadCommand) {
	record := func(outcome string) {
		c.hub.deps.Metrics.RecordEvent(channelConversation, string(events.EventMessageRead), outcome)
	}
	if cmd.MessageID == "" {
		record("invalid")
		return
	}
	if _, err := uuid.Parse(cmd.MessageID); err != nil {
		record("not_found")
		return
	}

	msg, err := c.hub.deps.Messages.GetByID(ctx, cmd.MessageID)
	if err != nil || msg.ConversationID != c.conv.ID {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			c.logger.Error("message lookup failed", zap.String("message_id", cmd.MessageID), zap.Error(err))
		}
		record("not_found")
		return
	}
	// a sender's own client reporting its message as displayed says
	// nothing about the counterpart having read it
	if msg.SenderID == c.identity.ID {
		record("own_message")
		return
	}

	changed, err := c.hub.deps.Messages.UpdateStatus(ctx, msg.ID, domain.MessageStatusRead)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			c.logger.Error("read status update failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
		record("not_found")
		return
	}
	if !changed {
		record("noop")
		return
	}
	c.hub.publish(ctx, c.logger, c.group, events.NewReadEvent(msg.ID, c.identity.Username))
	record("ok")
}
