package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the closed set of laboratory roles. Roles are not ordered.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleTechnician    Role = "technician"
	RoleCustomer      Role = "customer"
)

// AllRoles lists every recognized role.
func AllRoles() []Role {
	return []Role{RoleAdministrator, RoleTechnician, RoleCustomer}
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdministrator, RoleTechnician, RoleCustomer:
		return true
	}
	return false
}

// ParseRole normalizes and validates a role name.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return role, nil
}

// RoleSet is the allowed-role metadata declared by a protected operation.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from explicit roles.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports membership.
func (s RoleSet) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}

// Roles returns the members in a stable order.
func (s RoleSet) Roles() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Decision is the result of an authorization check.
type Decision int

const (
	Denied Decision = iota
	Allowed
)

func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "denied"
}

// Authorize is a pure membership test: identity.Role must be listed in allowed.
// Administrator is not implicitly granted anything.
func Authorize(identity Identity, allowed RoleSet) Decision {
	if allowed.Contains(identity.Role) {
		return Allowed
	}
	return Denied
}
