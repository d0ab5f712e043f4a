// Package models holds the client-side view of the auth server resources.
package models

import "time"

// User is the public profile returned by the server.
type User struct {
	ID          int64     `json:"id"`
	Login       string    `json:"login"`
	Email       string    `json:"email"`
	Age         int       `json:"age"`
	Description *string   `json:"description,omitempty"`
	Role        string    `json:"role"`
	IsVerified  bool      `json:"isVerified"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Tokens is the credential set of one signed-in session.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	SessionID    int64  `json:"sessionId"`
	User         *User  `json:"user,omitempty"`
}

// Empty reports whether no session is held.
func (t Tokens) Empty() bool {
	return t.RefreshToken == ""
}

// Session describes one active server-side session.
type Session struct {
	ID        int64     `json:"id"`
	IPAddress *string   `json:"ipAddress,omitempty"`
	UserAgent *string   `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Registration is the payload of a sign-up request.
type Registration struct {
	Login       string  `json:"login"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	Age         int     `json:"age"`
	Description *string `json:"description,omitempty"`
}

// ProfileUpdate carries the fields to change; nil means unchanged.
type ProfileUpdate struct {
	Email       *string `json:"email,omitempty"`
	Age         *int    `json:"age,omitempty"`
	Description *string `json:"description,omitempty"`
}

type UsersPage struct {
	Data       []User `json:"data"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalPages int    `json:"totalPages"`
}

type Availability struct {
	LoginExists bool `json:"loginExists"`
	EmailExists bool `json:"emailExists"`
}
