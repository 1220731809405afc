// Package presence tracks which identities currently hold a live connection.
package presence

import (
	"context"

	"github.com/spec-kit/support-chat/internal/domain"
)

// Entry is one online identity.
type Entry struct {
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

// Registry is shared presence state. Implementations must be safe for
// concurrent use from independent connections and processes; every
// operation is atomic with respect to the others.
//
// An identity stays present while at least one of its connections is live:
// Set is called once per joined connection and Remove once per departing one.
type Registry interface {
	Set(ctx context.Context, username string, role domain.Role) error
	// Remove releases one connection and reports whether the identity went offline.
	Remove(ctx context.Context, username string) (bool, error)
	Exists(ctx context.Context, username string) (bool, error)
	// Snapshot lists online identities ordered by username.
	Snapshot(ctx context.Context) ([]Entry, error)
}
