// Package realtime runs the per-connection sessions behind the chat,
// supervisor and agent websocket endpoints.
package realtime

import "errors"

// Close codes sent to clients. The 44xx range mirrors the HTTP status a
// REST endpoint would have answered with.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
	CloseUnauthenticated = 4401
	CloseForbidden       = 4403
	CloseNotFound        = 4404
)

// Join rejections.
var (
	ErrUnauthenticated = errors.New("connection has no identity")
	ErrForbidden       = errors.New("identity may not join this channel")
	ErrNotFound        = errors.New("channel target not found")
	ErrShuttingDown    = errors.New("hub is shutting down")
)

// Conn is one client transport. Implementations apply their own read
// limits and write deadlines. Only ReadMessage is called from a goroutine
// other than the session loop.
type Conn interface {
	// ReadMessage blocks for the next text frame.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Ping() error
	// Close sends a close frame with code and reason, then releases the
	// transport. A pending ReadMessage must return once Close has been called.
	Close(code int, reason string) error
}
