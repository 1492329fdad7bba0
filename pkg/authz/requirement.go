package authz

import (
	"slices"

	"github.com/StricklySoft/tokengate/pkg/token"
)

// Requirement is what an operation demands from a token. Permissions and
// roles are checked separately under the same Logical; an empty list means
// that kind is not checked.
type Requirement struct {
	Permissions []string
	Roles       []string
	Logical     Logical
}

// AllOf requires every listed permission.
func AllOf(permissions ...string) *Requirement {
	return &Requirement{Permissions: permissions, Logical: AND}
}

// AnyOf requires at least one listed permission.
func AnyOf(permissions ...string) *Requirement {
	return &Requirement{Permissions: permissions, Logical: OR}
}

// WithRoles returns a copy of r that also requires roles.
func (r *Requirement) WithRoles(roles ...string) *Requirement {
	cp := *r
	cp.Roles = slices.Clone(roles)
	return &cp
}

// Allows reports whether t satisfies r. A nil requirement allows every
// token, including nil.
func (r *Requirement) Allows(t *token.Token) bool {
	if r == nil {
		return true
	}
	if len(r.Permissions) > 0 && !HasPermission(t, r.Permissions, r.Logical) {
		return false
	}
	if len(r.Roles) > 0 && !HasRole(t, r.Roles, r.Logical) {
		return false
	}
	return true
}

// Resolve picks the requirement that governs an operation: its own when
// declared, else its group's, else nil.
func Resolve(operation, group *Requirement) *Requirement {
	if operation != nil {
		return operation
	}
	return group
}
