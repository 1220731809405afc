package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/events"
	"github.com/spec-kit/support-chat/internal/observability"
	"github.com/spec-kit/support-chat/internal/presence"
	"github.com/spec-kit/support-chat/internal/repository"
)

const (
	defaultPingPeriod   = 30 * time.Second
	defaultLeaveTimeout = 5 * time.Second

	channelConversation = "conversation"
	channelSupervisor   = "supervisor"
	channelAgent        = "agent"
)

// OfflineNotifier schedules a notice for a recipient who missed a message.
// It must return without waiting for delivery.
type OfflineNotifier interface {
	NotifyOffline(ctx context.Context, recipientID string, msg *domain.Message) bool
}

// Dependencies wires a Hub.
type Dependencies struct {
	Users         repository.UserRepository
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
	Presence      presence.Registry
	Fabric        events.Fabric
	Notifier      OfflineNotifier
	Logger        *zap.Logger
	Metrics       *observability.Metrics

	// TypingPerSecond and TypingBurst bound typing frames per connection;
	// zero disables the limit. Messages and read receipts are never limited.
	// MaxClientTokens caps distinct message tokens per connection.
	PingPeriod      time.Duration
	LeaveTimeout    time.Duration
	TypingPerSecond float64
	TypingBurst     int
	MaxClientTokens int
}

// Hub starts sessions for authenticated connections and tracks them until
// their cleanup has run.
type Hub struct {
	deps   Dependencies
	logger *zap.Logger

	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

// NewHub creates a hub.
func NewHub(deps Dependencies) *Hub {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.PingPeriod <= 0 {
		deps.PingPeriod = defaultPingPeriod
	}
	if deps.LeaveTimeout <= 0 {
		deps.LeaveTimeout = defaultLeaveTimeout
	}
	return &Hub{deps: deps, logger: deps.Logger.With(zap.String("component", "realtime"))}
}

func (h *Hub) newSession(conn Conn, channel string, logger *zap.Logger) *session {
	return &session{
		conn:         conn,
		fabric:       h.deps.Fabric,
		logger:       logger,
		metrics:      h.deps.Metrics,
		channel:      channel,
		pingPeriod:   h.deps.PingPeriod,
		leaveTimeout: h.deps.LeaveTimeout,
	}
}

// typingLimiter returns nil when typing frames are unlimited.
func (h *Hub) typingLimiter() *rate.Limiter {
	if h.deps.TypingPerSecond <= 0 {
		return nil
	}
	burst := h.deps.TypingBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(h.deps.TypingPerSecond), burst)
}

// serve runs sess under the hub's session count. Once Wait has been
// called new sessions are turned away.
func (h *Hub) serve(ctx context.Context, sess *session, groups []string, hk hooks) error {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return h.reject(sess.conn, sess.channel, ErrShuttingDown, sess.logger)
	}
	h.sessions.Add(1)
	h.mu.Unlock()
	defer h.sessions.Done()

	return sess.run(ctx, groups, hk)
}

// Wait stops admitting sessions and blocks until every running session
// has finished its cleanup, or ctx ends. Cancel the sessions' context first.
func (h *Hub) Wait(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reject closes conn without starting a session.
func (h *Hub) reject(conn Conn, channel string, err error, logger *zap.Logger) error {
	code := CloseInternalError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		code = CloseUnauthenticated
	case errors.Is(err, ErrForbidden):
		code = CloseForbidden
	case errors.Is(err, ErrNotFound):
		code = CloseNotFound
	case errors.Is(err, ErrShuttingDown):
		code = CloseGoingAway
	}
	logger.Info("connection rejected", zap.Error(err))
	h.deps.Metrics.RecordEvent(channel, "join", "rejected")
	_ = conn.Close(code, err.Error())
	return err
}

func (h *Hub) publish(ctx context.Context, logger *zap.Logger, group string, event events.Outbound) {
	if err := h.deps.Fabric.Publish(ctx, group, event); err != nil {
		logger.Warn("broadcast failed",
			zap.String("group", group),
			zap.String("event", string(event.Kind())),
			zap.Error(err))
	}
}

func identityFields(identity *domain.Identity) []zap.Field {
	if identity == nil {
		return []zap.Field{zap.String("user", "")}
	}
	return []zap.Field{zap.String("user", identity.Username), zap.String("role", string(identity.Role))}
}
