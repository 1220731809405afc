package domain

import "time"

// Identity is the authenticated principal bound to a connection.
type Identity struct {
	ID       string
	Username string
	Role     Role
}

// User is the stored account behind an Identity.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity returns the connection-scoped view of the user.
func (u *User) Identity() *Identity {
	return &Identity{ID: u.ID, Username: u.Username, Role: u.Role}
}
