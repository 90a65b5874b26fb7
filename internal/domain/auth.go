package domain

import "time"

// Identity is the authenticated caller resolved from a bearer token.
type Identity struct {
	UserID string
	Name   string
	Email  string
	Role   Role
}

// IsAdmin reports whether the caller holds the Admin role.
func (i Identity) IsAdmin() bool {
	return i.Role.IsAdmin()
}

// Token is an issued access token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}
