package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/events"
	"github.com/spec-kit/support-chat/internal/observability"
	"github.com/spec-kit/support-chat/internal/presence"
	"github.com/spec-kit/support-chat/internal/repository"
)

const waitTimeout = 2 * time.Second

var errConnClosed = errors.New("connection closed")

// fakeConn is an in-memory Conn driven by a test acting as the client.
type fakeConn struct {
	inbound  chan []byte
	writes   chan []byte
	peerGone chan struct{}
	closed   chan struct{}

	hangupOnce sync.Once
	closeOnce  sync.Once
	mu         sync.Mutex
	closeCode  int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan []byte, 16),
		writes:   make(chan []byte, 256),
		peerGone: make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.peerGone:
		return nil, io.EOF
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.writes <- data
	return nil
}

func (c *fakeConn) Ping() error { return nil }

func (c *fakeConn) Close(code int, _ string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode = code
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) code() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// client is the test's side of one connection.
type client struct {
	t    *testing.T
	conn *fakeConn
	done chan error
}

func (c *client) send(frame string) {
	c.t.Helper()
	select {
	case c.conn.inbound <- []byte(frame):
	case <-time.After(waitTimeout):
		c.t.Fatalf("send blocked: %s", frame)
	}
}

// expect returns the next frame of the given type, skipping others.
func (c *client) expect(eventType events.EventType) map[string]any {
	c.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case payload := <-c.conn.writes:
			var frame map[string]any
			require.NoError(c.t, json.Unmarshal(payload, &frame))
			if frame["type"] == string(eventType) {
				return frame
			}
		case <-deadline:
			c.t.Fatalf("no %s frame received", eventType)
			return nil
		}
	}
}

// expectNone asserts no frame of the given type arrives within d.
func (c *client) expectNone(eventType events.EventType, d time.Duration) {
	c.t.Helper()
	deadline := time.After(d)
	for {
		select {
		case payload := <-c.conn.writes:
			var frame map[string]any
			require.NoError(c.t, json.Unmarshal(payload, &frame))
			if frame["type"] == string(eventType) {
				c.t.Fatalf("unexpected %s frame: %s", eventType, payload)
			}
		case <-deadline:
			return
		}
	}
}

func (c *client) hangup() error {
	c.t.Helper()
	c.conn.hangupOnce.Do(func() { close(c.conn.peerGone) })
	return c.wait()
}

func (c *client) wait() error {
	c.t.Helper()
	select {
	case err := <-c.done:
		return err
	case <-time.After(waitTimeout):
		c.t.Fatal("session did not end")
		return nil
	}
}

type notification struct {
	recipientID string
	message     domain.Message
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) NotifyOffline(_ context.Context, recipientID string, msg *domain.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{recipientID: recipientID, message: *msg})
	return true
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

type env struct {
	t        *testing.T
	ctx      context.Context
	store    *repository.MemoryStore
	presence *presence.MemoryRegistry
	fabric   *events.MemoryFabric
	notifier *recordingNotifier
	metrics  *observability.Metrics
	hub      *Hub
}

func newEnv(t *testing.T, tune ...func(*Dependencies)) *env {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	e := &env{
		t:        t,
		ctx:      ctx,
		store:    repository.NewMemoryStore(),
		presence: presence.NewMemoryRegistry(),
		fabric:   events.NewMemoryFabric(nil),
		notifier: &recordingNotifier{},
		metrics:  observability.NewMetrics(),
	}
	deps := Dependencies{
		Users:         e.store.Users(),
		Conversations: e.store.Conversations(),
		Messages:      e.store.Messages(),
		Presence:      e.presence,
		Fabric:        e.fabric,
		Notifier:      e.notifier,
		Metrics:       e.metrics,
	}
	for _, fn := range tune {
		fn(&deps)
	}
	e.hub = NewHub(deps)
	return e
}

func (e *env) user(username string, role domain.Role) *domain.User {
	e.t.Helper()
	u := &domain.User{Username: username, Email: username + "@example.com", Role: role}
	require.NoError(e.t, e.store.Users().Create(e.ctx, u))
	return u
}

func (e *env) conversation(customer *domain.User, agent *domain.User) *domain.Conversation {
	e.t.Helper()
	conv := &domain.Conversation{CustomerID: customer.ID, Status: domain.ConversationStatusOpen}
	require.NoError(e.t, e.store.Conversations().Create(e.ctx, conv))
	if agent != nil {
		require.NoError(e.t, conv.Accept(agent.ID))
		require.NoError(e.t, e.store.Conversations().Update(e.ctx, conv, domain.ConversationStatusOpen))
	}
	return conv
}

func (e *env) start(serve func(ctx context.Context, conn Conn) error) *client {
	c := &client{t: e.t, conn: newFakeConn(), done: make(chan error, 1)}
	go func() { c.done <- serve(e.ctx, c.conn) }()
	e.t.Cleanup(func() { c.conn.hangupOnce.Do(func() { close(c.conn.peerGone) }) })
	return c
}

func (e *env) joinConversation(identity *domain.Identity, conversationID string) *client {
	return e.start(func(ctx context.Context, conn Conn) error {
		return e.hub.ServeConversation(ctx, conn, identity, conversationID)
	})
}

// joined opens a conversation session and waits for its own join announcement.
func (e *env) joined(user *domain.User, conversationID string) *client {
	e.t.Helper()
	c := e.joinConversation(user.Identity(), conversationID)
	for {
		frame := c.expect(events.EventUserJoin)
		if frame["user"] == user.Username {
			return c
		}
	}
}

func (e *env) online(username string) bool {
	e.t.Helper()
	ok, err := e.presence.Exists(e.ctx, username)
	require.NoError(e.t, err)
	return ok
}
