// Package fixtures provides shared principals, attributes and secrets for
// tokengate tests.
package fixtures

import "strings"

// Principals.
const (
	Principal      = "u1"
	AltPrincipal   = "u2"
	AdminPrincipal = "admin-7"
)

// Attributes.
const (
	PermOrderRead  = "order:read"
	PermOrderWrite = "order:write"
	PermOrderAdmin = "order:admin"
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleIDUser     = "10"
)

// ExpireSeconds is the lifetime used by issuance tests.
const ExpireSeconds int64 = 3600

// Secret is a 32-byte secret accepted by the ephemeral backend.
var Secret = strings.Repeat("s", 32)

// SigningKey is a valid 32-byte hex key.
var SigningKey = strings.Repeat("0f", 32)

// Permissions returns the default permission set for Principal.
func Permissions() []string { return []string{PermOrderRead} }

// Roles returns the default role set for Principal.
func Roles() []string { return []string{RoleUser} }
