package realtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/auth"
	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/events"
)

// ServeSupervisor streams presence changes to a supervisor, starting with
// a snapshot of everyone online.
func (h *Hub) ServeSupervisor(ctx context.Context, conn Conn, identity *domain.Identity) error {
	logger := h.logger.With(identityFields(identity)...)
	if identity == nil {
		return h.reject(conn, channelSupervisor, ErrUnauthenticated, logger)
	}
	if !auth.CanJoinSupervisor(identity) {
		return h.reject(conn, channelSupervisor, ErrForbidden, logger)
	}

	// subscribed before the snapshot is taken, so no change is missed
	join := func(ctx context.Context) error {
		entries, err := h.deps.Presence.Snapshot(ctx)
		if err != nil {
			return err
		}
		payload, err := events.Encode(events.NewSnapshotEvent(entries))
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(payload); err != nil {
			return err
		}
		logger.Info("supervisor joined", zap.Int("online", len(entries)))
		return nil
	}

	sess := h.newSession(conn, channelSupervisor, logger)
	return h.serve(ctx, sess, []string{events.PresenceGroup}, hooks{join: join})
}
