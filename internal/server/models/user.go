// Package models defines server-side data models persisted in the database.
package models

import "time"

// DefaultRole is assigned to every newly registered user.
const DefaultRole = "user"

// User is an account record. PasswordHash never leaves the server.
type User struct {
	ID                        int64
	Login                     string
	Email                     string
	PasswordHash              string
	Age                       int
	Description               *string
	Role                      string
	IsVerified                bool
	VerificationCode          *string
	VerificationCodeExpiresAt *time.Time
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
	DeletedAt                 *time.Time
}

// UserFilter selects a page of users.
type UserFilter struct {
	Page        int
	Limit       int
	LoginFilter string
}

// Offset is the number of rows to skip for the filter's page.
func (f UserFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// Availability reports whether a login and an email are already in use.
type Availability struct {
	LoginExists bool
	EmailExists bool
}
