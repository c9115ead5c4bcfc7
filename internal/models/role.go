package models

import "strings"

// Role is the coarse authorization level carried by every user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
	RoleViewer  Role = "viewer"
)

// Roles lists the recognised roles in descending privilege.
func Roles() []Role {
	return []Role{RoleAdmin, RoleAnalyst, RoleViewer}
}

// RoleNames returns Roles as plain strings.
func RoleNames() []string {
	roles := Roles()
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return names
}

// ParseRole normalises value into a Role. ok is false for unknown roles.
func ParseRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range Roles() {
		if role == known {
			return role, true
		}
	}
	return "", false
}

// Valid reports whether r is a recognised role.
func (r Role) Valid() bool {
	parsed, ok := ParseRole(string(r))
	return ok && parsed == r
}
