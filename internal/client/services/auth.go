// Package services contains application services for the authctl client.
// This file defines the authentication service: login and registration,
// email verification, session management, and the locally saved session
// that lets the CLI resume without asking for the password again.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/authkeeper/internal/client/client"
	"github.com/dmitrijs2005/authkeeper/internal/client/models"
	"github.com/dmitrijs2005/authkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keySessionID    = "session_id"
	keyLogin        = "login"
)

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Login: authenticate against the server and save the session locally.
//   - Restore: resume the saved session, if any.
//   - Logout: end the current session (or all of them) and forget it locally.
//   - ClearLocalData: wipe the saved session without contacting the server.
//
// All methods must honor context cancellation/timeouts.
type AuthService interface {
	Register(ctx context.Context, r models.Registration) (*models.User, error)
	Login(ctx context.Context, login string, password []byte) (*models.User, error)
	Restore(ctx context.Context) (string, error)
	Logout(ctx context.Context, everywhere bool) error
	VerifyEmail(ctx context.Context, email, code string) error
	ResendVerification(ctx context.Context, email string) error
	CheckAvailability(ctx context.Context, login, email string) (*models.Availability, error)

	Sessions(ctx context.Context) ([]models.Session, error)
	CurrentSessionID() int64
	RevokeSession(ctx context.Context, sessionID int64) error
	RevokeOtherSessions(ctx context.Context) (int64, error)

	Profile(ctx context.Context) (*models.User, error)
	UpdateProfile(ctx context.Context, u models.ProfileUpdate) (*models.User, error)
	DeleteAccount(ctx context.Context) error
	ListUsers(ctx context.Context, page, limit int, loginFilter string) (*models.UsersPage, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	ClearLocalData(ctx context.Context) error
}

// authService is the concrete AuthService backed by a remote Client
// and a local SQL database holding the saved session.
type authService struct {
	client client.Client
	db     *sql.DB
	logger logging.Logger
}

// NewAuthService constructs an AuthService bound to the given API client and
// DB. Tokens rotated by the client in the background are saved as well.
func NewAuthService(c client.Client, db *sql.DB, l logging.Logger) AuthService {
	s := &authService{client: c, db: db, logger: l.With("module", "auth")}
	c.OnTokensRefreshed(func(t models.Tokens) {
		ctx := context.Background()
		if err := s.saveTokens(ctx, t, ""); err != nil {
			s.logger.Error(ctx, "saving refreshed tokens failed", "error", err)
		}
	})
	return s
}

func (a *authService) getMetadataRepo() metadata.Repository {
	return metadata.NewSQLiteRepository(a.db)
}

// saveTokens stores t in one transaction. An empty login keeps the stored one.
func (a *authService) saveTokens(ctx context.Context, t models.Tokens, login string) error {
	values := map[string][]byte{
		keyAccessToken:  []byte(t.AccessToken),
		keyRefreshToken: []byte(t.RefreshToken),
		keySessionID:    []byte(strconv.FormatInt(t.SessionID, 10)),
	}
	if login != "" {
		values[keyLogin] = []byte(login)
	}

	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.NewSQLiteRepository(tx).SetMany(ctx, values)
	})
}

func (a *authService) Register(ctx context.Context, r models.Registration) (*models.User, error) {
	u, err := a.client.Register(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("register error: %w", err)
	}
	return u, nil
}

// Login authenticates against the server and saves the issued tokens.
func (a *authService) Login(ctx context.Context, login string, password []byte) (*models.User, error) {
	t, err := a.client.Login(ctx, login, string(password))
	if err != nil {
		return nil, fmt.Errorf("login error: %w", err)
	}

	if err := a.saveTokens(ctx, *t, login); err != nil {
		return nil, fmt.Errorf("session saving error: %w", err)
	}
	return t.User, nil
}

// Restore loads the saved session into the client and checks it with the
// server. It returns the saved login, or "" when there is nothing to resume.
// A session the server no longer accepts is forgotten and reported as
// client.ErrUnauthorized. When the server is unreachable the session is kept
// and client.ErrUnavailable is returned together with the login.
func (a *authService) Restore(ctx context.Context) (string, error) {
	saved, err := a.getMetadataRepo().List(ctx)
	if err != nil {
		return "", err
	}

	refresh := string(saved[keyRefreshToken])
	if refresh == "" {
		return "", nil
	}
	sessionID, _ := strconv.ParseInt(string(saved[keySessionID]), 10, 64)
	login := string(saved[keyLogin])

	a.client.SetTokens(models.Tokens{
		AccessToken:  string(saved[keyAccessToken]),
		RefreshToken: refresh,
		SessionID:    sessionID,
	})

	if _, err := a.client.Profile(ctx); err != nil {
		if errors.Is(err, client.ErrUnavailable) {
			return login, err
		}
		a.client.SetTokens(models.Tokens{})
		if cerr := a.ClearLocalData(ctx); cerr != nil {
			return "", cerr
		}
		if errors.Is(err, client.ErrUnauthorized) {
			return "", client.ErrUnauthorized
		}
		return "", err
	}
	return login, nil
}

// Logout ends the current session, or every session when everywhere is set.
// The saved session is removed even if the server already dropped it.
func (a *authService) Logout(ctx context.Context, everywhere bool) error {
	var sessionID int64
	if !everywhere {
		sessionID = a.CurrentSessionID()
	}

	err := a.client.Logout(ctx, sessionID)
	if err != nil && !errors.Is(err, client.ErrUnauthorized) && !errors.Is(err, client.ErrNotLoggedIn) {
		return err
	}

	a.client.SetTokens(models.Tokens{})
	return a.ClearLocalData(ctx)
}

func (a *authService) VerifyEmail(ctx context.Context, email, code string) error {
	return a.client.VerifyEmail(ctx, email, code)
}

func (a *authService) ResendVerification(ctx context.Context, email string) error {
	return a.client.ResendVerification(ctx, email)
}

func (a *authService) CheckAvailability(ctx context.Context, login, email string) (*models.Availability, error) {
	return a.client.CheckAvailability(ctx, login, email)
}

func (a *authService) Sessions(ctx context.Context) ([]models.Session, error) {
	return a.client.Sessions(ctx)
}

func (a *authService) CurrentSessionID() int64 {
	return a.client.Tokens().SessionID
}

func (a *authService) RevokeSession(ctx context.Context, sessionID int64) error {
	return a.client.RevokeSession(ctx, sessionID)
}

// RevokeOtherSessions keeps only the session this CLI is signed in with.
func (a *authService) RevokeOtherSessions(ctx context.Context) (int64, error) {
	current := a.CurrentSessionID()
	if current == 0 {
		return 0, client.ErrNotLoggedIn
	}
	return a.client.RevokeOtherSessions(ctx, current)
}

func (a *authService) Profile(ctx context.Context) (*models.User, error) {
	return a.client.Profile(ctx)
}

func (a *authService) UpdateProfile(ctx context.Context, u models.ProfileUpdate) (*models.User, error) {
	return a.client.UpdateProfile(ctx, u)
}

// DeleteAccount deletes the signed-in user and forgets the saved session.
func (a *authService) DeleteAccount(ctx context.Context) error {
	if err := a.client.DeleteProfile(ctx); err != nil {
		return err
	}
	return a.ClearLocalData(ctx)
}

func (a *authService) ListUsers(ctx context.Context, page, limit int, loginFilter string) (*models.UsersPage, error) {
	return a.client.ListUsers(ctx, page, limit, loginFilter)
}

// Ping proxies a liveness check to the underlying client.
func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

// Close releases resources held by the underlying client.
func (a *authService) Close(ctx context.Context) error {
	return a.client.Close()
}

// ClearLocalData wipes the saved session.
func (a *authService) ClearLocalData(ctx context.Context) error {
	return a.getMetadataRepo().Delete(ctx, keyAccessToken, keyRefreshToken, keySessionID, keyLogin)
}
