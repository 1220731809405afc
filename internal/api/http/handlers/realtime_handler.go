package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/auth"
	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/realtime"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

const wsIdentityKey = "ws_identity"

var errConnClosed = errors.New("websocket connection closed")

// ConnSettings tunes websocket transports.
type ConnSettings struct {
	ReadLimit  int64
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// RealtimeHandler upgrades requests and hands the sockets to the hub.
type RealtimeHandler struct {
	hub      *realtime.Hub
	baseCtx  context.Context
	settings ConnSettings
	logger   *zap.Logger
}

// NewRealtimeHandler builds the handler. Sessions end when baseCtx is cancelled.
func NewRealtimeHandler(baseCtx context.Context, hub *realtime.Hub, settings ConnSettings, logger *zap.Logger) *RealtimeHandler {
	if settings.PingPeriod <= 0 {
		settings.PingPeriod = 30 * time.Second
	}
	if settings.WriteWait <= 0 {
		settings.WriteWait = 10 * time.Second
	}
	return &RealtimeHandler{hub: hub, baseCtx: baseCtx, settings: settings, logger: logger}
}

// Upgrade rejects plain HTTP requests and carries the resolved identity
// into the websocket handler. Anonymous callers are let through so the
// channel can close them with a proper close code.
func (h *RealtimeHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return apperrors.NewDomainError("UPGRADE_REQUIRED", "websocket upgrade required", http.StatusUpgradeRequired, nil)
	}
	if identity, ok := auth.IdentityFromContext(c); ok {
		c.Locals(wsIdentityKey, identity)
	}
	return c.Next()
}

// Conversation GET /ws/chat/:conversation_id.
func (h *RealtimeHandler) Conversation() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		err := h.hub.ServeConversation(h.baseCtx, h.wrap(conn), identityFromConn(conn), conn.Params("conversation_id"))
		h.sessionEnded("conversation", err)
	})
}

// Supervisor GET /ws/supervisor.
func (h *RealtimeHandler) Supervisor() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		err := h.hub.ServeSupervisor(h.baseCtx, h.wrap(conn), identityFromConn(conn))
		h.sessionEnded("supervisor", err)
	})
}

// Agent GET /ws/agent/:agent_id.
func (h *RealtimeHandler) Agent() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		err := h.hub.ServeAgent(h.baseCtx, h.wrap(conn), identityFromConn(conn), conn.Params("agent_id"))
		h.sessionEnded("agent", err)
	})
}

func (h *RealtimeHandler) sessionEnded(channel string, err error) {
	if err != nil {
		h.logger.Debug("websocket session ended", zap.String("channel", channel), zap.Error(err))
	}
}

func identityFromConn(conn *websocket.Conn) *domain.Identity {
	identity, _ := conn.Locals(wsIdentityKey).(*domain.Identity)
	return identity
}

func (h *RealtimeHandler) wrap(conn *websocket.Conn) *wsConn {
	w := &wsConn{conn: conn, writeWait: h.settings.WriteWait}
	pongWait := 2 * h.settings.PingPeriod
	if h.settings.ReadLimit > 0 {
		conn.SetReadLimit(h.settings.ReadLimit)
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		if w.closed.Load() {
			return errConnClosed
		}
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return w
}

// wsConn adapts a fiber websocket to realtime.Conn. The underlying conn is
// pooled once the handler returns, so nothing may touch it after Close
// except a read that Close has already cut short.
type wsConn struct {
	conn      *websocket.Conn
	writeWait time.Duration
	closed    atomic.Bool
	closeOnce sync.Once
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	for {
		if w.closed.Load() {
			return nil, errConnClosed
		}
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *wsConn) WriteMessage(data []byte) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeWait)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Ping() error {
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeWait))
}

// Close sends the close frame and expires the read deadline, since closing
// a hijacked fasthttp conn does not interrupt a blocked read.
func (w *wsConn) Close(code int, reason string) error {
	var err error
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(w.writeWait))
		_ = w.conn.SetReadDeadline(time.Now())
		err = w.conn.Close()
	})
	return err
}
