package models

import "strings"

// Role is the closed set of account roles, ordered by privilege.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ParseRole maps the wire value to a Role. Empty input defaults to RoleUser.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.TrimSpace(s)) {
	case "", RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleSuperAdmin:
		return RoleSuperAdmin, true
	}
	return "", false
}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Privileged reports whether the role may manage events and records.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}
