package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/events"
	"github.com/spec-kit/support-chat/internal/observability"
)

var errSubscriptionLost = errors.New("group subscription ended")

// hooks are a channel's contribution to a session.
type hooks struct {
	// join runs once every group subscription is active. An error ends the
	// session before leave is armed.
	join func(ctx context.Context) error
	// leave runs exactly once after a successful join, on every exit path,
	// with a context that survives the session's cancellation.
	leave func(ctx context.Context)
	// frame handles one inbound frame; nil ignores client frames. An error
	// ends the session with a policy violation close.
	frame func(ctx context.Context, data []byte) error
}

// session pumps one connection: inbound frames are handled one at a time
// in arrival order, and group deliveries are written in between.
type session struct {
	conn         Conn
	fabric       events.Fabric
	logger       *zap.Logger
	metrics      *observability.Metrics
	channel      string
	pingPeriod   time.Duration
	leaveTimeout time.Duration
}

func (s *session) run(ctx context.Context, groups []string, h hooks) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// the reader must be gone before the transport is handed back
	var readerDone chan struct{}
	closeCode, closeReason := CloseNormal, ""
	defer func() {
		cancel()
		_ = s.conn.Close(closeCode, closeReason)
		if readerDone != nil {
			<-readerDone
		}
	}()

	s.metrics.ConnectionOpened(s.channel)
	defer s.metrics.ConnectionClosed(s.channel)

	subs := make([]events.Subscription, 0, len(groups))
	defer func() {
		for _, sub := range subs {
			_ = sub.Close()
		}
	}()
	for _, group := range groups {
		sub, subErr := s.fabric.Subscribe(ctx, group)
		if subErr != nil {
			closeCode, closeReason = CloseInternalError, "subscription failed"
			return fmt.Errorf("subscribe %s: %w", group, subErr)
		}
		subs = append(subs, sub)
	}

	deliveries := make(chan []byte)
	subEnded := make(chan struct{}, len(subs))
	for _, sub := range subs {
		go forward(ctx, sub, deliveries, subEnded)
	}

	if h.join != nil {
		if joinErr := h.join(ctx); joinErr != nil {
			closeCode, closeReason = CloseInternalError, "join failed"
			return fmt.Errorf("join: %w", joinErr)
		}
	}
	if h.leave != nil {
		defer func() {
			leaveCtx, cancelLeave := context.WithTimeout(context.WithoutCancel(ctx), s.leaveTimeout)
			defer cancelLeave()
			h.leave(leaveCtx)
		}()
	}

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	readerDone = make(chan struct{})
	go func() {
		defer close(readerDone)
		s.read(ctx, frames, readErr)
	}()

	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			closeCode, closeReason = CloseGoingAway, "server shutting down"
			return nil
		case readFailure := <-readErr:
			s.logger.Debug("connection closed by peer", zap.Error(readFailure))
			return nil
		case data := <-frames:
			if frameErr := s.handleFrame(ctx, h.frame, data); frameErr != nil {
				closeCode, closeReason = ClosePolicyViolation, frameErr.Error()
				return frameErr
			}
		case payload := <-deliveries:
			if writeErr := s.conn.WriteMessage(payload); writeErr != nil {
				return fmt.Errorf("write: %w", writeErr)
			}
		case <-subEnded:
			if ctx.Err() != nil {
				closeCode, closeReason = CloseGoingAway, "server shutting down"
				return nil
			}
			closeCode, closeReason = CloseInternalError, "subscription lost"
			return errSubscriptionLost
		case <-ticker.C:
			if pingErr := s.conn.Ping(); pingErr != nil {
				return fmt.Errorf("ping: %w", pingErr)
			}
		}
	}
}

func (s *session) handleFrame(ctx context.Context, handle func(context.Context, []byte) error, data []byte) error {
	if handle == nil {
		s.metrics.RecordEvent(s.channel, "frame", "ignored")
		return nil
	}
	return handle(ctx, data)
}

func (s *session) read(ctx context.Context, frames chan<- []byte, readErr chan<- error) {
	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		select {
		case frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

func forward(ctx context.Context, sub events.Subscription, out chan<- []byte, ended chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.Events():
			if !ok {
				select {
				case ended <- struct{}{}:
				default:
				}
				return
			}
			select {
			case out <- payload:
			case <-ctx.Done():
				return
			}
		}
	}
}
