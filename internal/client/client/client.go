package client

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/client/models"
)

// Client is the contract the CLI needs from the auth server API.
type Client interface {
	Close() error
	Ping(ctx context.Context) error

	Register(ctx context.Context, r models.Registration) (*models.User, error)
	Login(ctx context.Context, login, password string) (*models.Tokens, error)
	Logout(ctx context.Context, sessionID int64) error
	VerifyEmail(ctx context.Context, email, code string) error
	ResendVerification(ctx context.Context, email string) error

	Sessions(ctx context.Context) ([]models.Session, error)
	RevokeSession(ctx context.Context, sessionID int64) error
	RevokeOtherSessions(ctx context.Context, currentSessionID int64) (int64, error)

	Profile(ctx context.Context) (*models.User, error)
	UpdateProfile(ctx context.Context, u models.ProfileUpdate) (*models.User, error)
	DeleteProfile(ctx context.Context) error
	ListUsers(ctx context.Context, page, limit int, loginFilter string) (*models.UsersPage, error)
	CheckAvailability(ctx context.Context, login, email string) (*models.Availability, error)

	// Tokens returns the credentials currently held by the client.
	Tokens() models.Tokens
	// SetTokens replaces the held credentials, e.g. with a saved session.
	SetTokens(t models.Tokens)
	// OnTokensRefreshed registers fn to be called after a transparent refresh.
	OnTokensRefreshed(fn func(models.Tokens))
}
