// Package token defines the bearer token record, the HS256 codec that signs
// and verifies access tokens, and the signing key authority that creates the
// deployment-wide key exactly once.
package token

import "time"

// Attributes are the authorization attributes attached to a token.
// RoleIDs are optional and only kept by backends that support them.
type Attributes struct {
	Permissions []string `json:"permissions"`
	Roles       []string `json:"roles"`
	RoleIDs     []string `json:"roleIds,omitempty"`
}

// Token is an issued access token together with its attributes. A token is
// addressed by (PrincipalID, AccessToken). Its signature and expiry never
// change after issuance; its attributes may be updated in place.
type Token struct {
	Attributes

	PrincipalID string `json:"userId"`
	AccessToken string `json:"accessToken"`

	// Key is the hex signing key the token was issued with.
	Key string `json:"-"`

	// RefreshToken is reserved and never populated by this module.
	RefreshToken string `json:"refreshToken,omitempty"`

	// Epoch milliseconds.
	ExpireTime int64 `json:"expireTime"`
	CreateTime int64 `json:"createTime"`
	UpdateTime int64 `json:"updateTime"`
}

// Expired reports whether the token's expiry lies before now.
func (t *Token) Expired(now time.Time) bool {
	return t.ExpireTime < now.UnixMilli()
}
