package domain

import "strings"

// Role is the caller's role as reported by the identity provider.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleSales   Role = "sales"
	RoleNone    Role = "none"
)

func (r Role) String() string { return string(r) }

// ParseRole maps unknown or empty values to RoleNone.
func ParseRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleManager, RoleSales:
		return r
	}
	return RoleNone
}

// CanValidate reports whether the role may record a batch verdict.
func (r Role) CanValidate() bool {
	return r == RoleAdmin || r == RoleManager
}
