package domain

import (
	"fmt"
	"strings"
)

// Role enumerates the kinds of principals that can hold a connection.
type Role string

const (
	RoleCustomer   Role = "CUSTOMER"
	RoleAgent      Role = "AGENT"
	RoleSupervisor Role = "SUPERVISOR"
)

// ParseRole converts a stored or wire role string into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAgent, RoleSupervisor:
		return true
	}
	return false
}

// Normalized returns the lower-case form used on the wire.
func (r Role) Normalized() string {
	return strings.ToLower(string(r))
}
