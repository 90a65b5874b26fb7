package domain

import (
	"strings"
	"time"
)

// Role is the access level of a staff account.
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

// IsAdmin compares case-insensitively; stored roles are not normalized.
func (r Role) IsAdmin() bool {
	return strings.EqualFold(string(r), string(RoleAdmin))
}

// User is a staff account that operates the queue.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}
