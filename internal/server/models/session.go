package models

import "time"

// Session is one issued refresh token. Only the hash of the token secret is
// stored; the raw secret is handed to the client once and forgotten.
type Session struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	IPAddress *string
	UserAgent *string
	CreatedAt time.Time
}

// IsActiveAt reports whether the session is usable at now.
func (s *Session) IsActiveAt(now time.Time) bool {
	return !s.Revoked && !s.ExpiresAt.Before(now)
}

// ClientContext is request metadata recorded with a new session.
type ClientContext struct {
	IPAddress string
	UserAgent string
}

// TokenPair is what a successful login or refresh hands back.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	SessionID    int64
	User         *User
}
