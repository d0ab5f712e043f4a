// Package services contains server-side business logic. This file implements
// AuthService: login, refresh-token rotation, session management and email
// verification.
package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/mail"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokens"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

const (
	maxIPAddressLen = 45
	maxUserAgentLen = 500

	// fallbackDummyHash is a cost-10 bcrypt hash used when hashing the dummy
	// password fails at start-up.
	fallbackDummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
)

// PasswordHasher is the one-way password hash primitive.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
}

// SecretHasher hashes refresh-token secrets for storage and lookup.
type SecretHasher interface {
	Hash(secret string) string
	Matches(hash, secret string) bool
}

// AccessTokenSigner signs and verifies access tokens.
type AccessTokenSigner interface {
	Sign(claims auth.Claims) (string, error)
	Parse(token string) (*auth.Claims, error)
}

// Mailer delivers an email.
type Mailer interface {
	Send(ctx context.Context, m mail.Message) error
}

// Limiter returns common.ErrRateLimited when key has been hit too often.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// Identity is the minimal view of an authenticated caller.
type Identity struct {
	UserID int64
	Login  string
	Email  string
	Role   string
}

// AuthConfig holds the token and verification lifetimes.
type AuthConfig struct {
	RefreshTokenTTL        time.Duration
	VerificationCodeTTL    time.Duration
	VerificationCodeDigits int
	RequireVerification    bool
}

// AuthDeps are the collaborators of AuthService. Limiters, Metrics, Logger
// and Clock are optional.
type AuthDeps struct {
	Tx            dbx.Transactor
	Repos         repomanager.RepositoryManager
	Passwords     PasswordHasher
	Secrets       SecretHasher
	Signer        AccessTokenSigner
	Mailer        Mailer
	ResendLimiter Limiter
	VerifyLimiter Limiter
	Metrics       *metrics.Metrics
	Logger        logging.Logger
	Clock         timex.Clock
}

// AuthService holds only immutable collaborators; every call is an
// independent unit of work.
type AuthService struct {
	tx            dbx.Transactor
	repos         repomanager.RepositoryManager
	passwords     PasswordHasher
	secrets       SecretHasher
	signer        AccessTokenSigner
	mailer        Mailer
	resendLimiter Limiter
	verifyLimiter Limiter
	metrics       *metrics.Metrics
	log           logging.Logger
	now           timex.Clock
	codec         *tokens.Codec
	cfg           AuthConfig
	dummyHash     string
}

type allowAll struct{}

func (allowAll) Allow(context.Context, string) error { return nil }

func NewAuthService(d AuthDeps, cfg AuthConfig) *AuthService {
	s := &AuthService{
		tx:            d.Tx,
		repos:         d.Repos,
		passwords:     d.Passwords,
		secrets:       d.Secrets,
		signer:        d.Signer,
		mailer:        d.Mailer,
		resendLimiter: d.ResendLimiter,
		verifyLimiter: d.VerifyLimiter,
		metrics:       d.Metrics,
		log:           d.Logger,
		now:           d.Clock,
		cfg:           cfg,
	}
	if s.secrets == nil {
		s.secrets = auth.SHA256Hasher{}
	}
	if s.resendLimiter == nil {
		s.resendLimiter = allowAll{}
	}
	if s.verifyLimiter == nil {
		s.verifyLimiter = allowAll{}
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	s.log = s.log.With("module", "auth")
	if s.now == nil {
		s.now = timex.SystemClock
	}
	if s.cfg.VerificationCodeDigits <= 0 {
		s.cfg.VerificationCodeDigits = 6
	}
	s.codec = tokens.NewCodec(s.now)

	// Compared against when the login is unknown, so both failure paths
	// cost one hash comparison.
	s.dummyHash = fallbackDummyHash
	if h, err := s.passwords.Hash("not-a-real-password"); err == nil {
		s.dummyHash = h
	} else {
		s.log.Warn(context.Background(), "dummy password hash failed, using built-in one", "error", err)
	}
	return s
}

// Login checks credentials and issues a token pair bound to a new session.
// Unknown login and wrong password both yield common.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, login, password string, cc models.ClientContext) (*models.TokenPair, error) {
	user, err := s.repos.Users(s.tx.Conn()).FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_, _ = s.passwords.Compare(s.dummyHash, password)
			s.metrics.RecordAuthEvent("login", metrics.OutcomeInvalidCredentials)
			return nil, common.ErrInvalidCredentials
		}
		return nil, s.internal(ctx, "login", "find user", err)
	}

	ok, err := s.passwords.Compare(user.PasswordHash, password)
	if err != nil {
		return nil, s.internal(ctx, "login", "compare password", err)
	}
	if !ok {
		s.metrics.RecordAuthEvent("login", metrics.OutcomeInvalidCredentials)
		return nil, common.ErrInvalidCredentials
	}

	if s.cfg.RequireVerification && !user.IsVerified {
		s.metrics.RecordAuthEvent("login", metrics.OutcomeNotVerified)
		return nil, common.ErrNotVerified
	}

	pair, err := s.issueTokenPair(ctx, s.tx.Conn(), user, cc)
	if err != nil {
		return nil, s.internal(ctx, "login", "issue token pair", err)
	}

	s.metrics.RecordAuthEvent("login", metrics.OutcomeSuccess)
	s.log.Info(ctx, "user logged in", "user_id", user.ID, "session_id", pair.SessionID)
	return pair, nil
}

// Refresh consumes a refresh token and issues a new pair. A token is usable
// once: its session is revoked by a conditional update inside the same
// transaction that creates the replacement, so of two concurrent refreshes
// with the same token only one succeeds.
func (s *AuthService) Refresh(ctx context.Context, wireToken string, cc models.ClientContext) (*models.TokenPair, error) {
	parsed, err := tokens.Parse(wireToken)
	if err != nil {
		s.metrics.RecordAuthEvent("refresh", metrics.OutcomeInvalidToken)
		return nil, common.ErrInvalidRefreshToken
	}

	conn := s.tx.Conn()

	user, err := s.repos.Users(conn).FindByID(ctx, parsed.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.metrics.RecordAuthEvent("refresh", metrics.OutcomeInvalidToken)
			return nil, common.ErrInvalidRefreshToken
		}
		return nil, s.internal(ctx, "refresh", "find user", err)
	}

	sessions, err := s.repos.RefreshTokens(conn).FindAllActiveByUser(ctx, user.ID)
	if err != nil {
		return nil, s.internal(ctx, "refresh", "list sessions", err)
	}

	var matched *models.Session
	for i := range sessions {
		if s.secrets.Matches(sessions[i].TokenHash, parsed.Secret) {
			matched = &sessions[i]
			break
		}
	}
	if matched == nil {
		s.metrics.RecordAuthEvent("refresh", metrics.OutcomeInvalidToken)
		return nil, common.ErrInvalidRefreshToken
	}

	if tokens.IsExpiredAt(matched.ExpiresAt, s.now()) {
		if _, err := s.repos.RefreshTokens(conn).Revoke(ctx, matched.ID); err != nil {
			s.log.Warn(ctx, "failed to revoke expired session", "session_id", matched.ID, "error", err)
		}
		s.metrics.RecordAuthEvent("refresh", metrics.OutcomeExpired)
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *models.TokenPair
	err = s.tx.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		won, err := s.repos.RefreshTokens(tx).Revoke(ctx, matched.ID)
		if err != nil {
			return fmt.Errorf("revoke consumed session: %w", err)
		}
		if !won {
			return common.ErrInvalidRefreshToken
		}
		pair, err = s.issueTokenPair(ctx, tx, user, cc)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidRefreshToken) {
			s.metrics.RecordAuthEvent("refresh", metrics.OutcomeInvalidToken)
			return nil, common.ErrInvalidRefreshToken
		}
		return nil, s.internal(ctx, "refresh", "rotate session", err)
	}

	s.metrics.RecordAuthEvent("refresh", metrics.OutcomeSuccess)
	s.log.Info(ctx, "session rotated", "user_id", user.ID, "old_session_id", matched.ID, "session_id", pair.SessionID)
	return pair, nil
}

// ListSessions returns the user's active sessions newest first, without
// their hashes.
func (s *AuthService) ListSessions(ctx context.Context, userID int64) ([]models.Session, error) {
	sessions, err := s.repos.RefreshTokens(s.tx.Conn()).FindAllActiveByUser(ctx, userID)
	if err != nil {
		return nil, s.internal(ctx, "list_sessions", "list sessions", err)
	}

	now := s.now()
	result := make([]models.Session, 0, len(sessions))
	for _, session := range sessions {
		if !session.IsActiveAt(now) {
			continue
		}
		session.TokenHash = ""
		result = append(result, session)
	}
	return result, nil
}

// RevokeSession revokes one of the user's sessions. A missing session and
// someone else's session both yield common.ErrForbidden.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID int64) error {
	repo := s.repos.RefreshTokens(s.tx.Conn())

	session, err := repo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrForbidden
		}
		return s.internal(ctx, "revoke_session", "find session", err)
	}
	if session.UserID != userID {
		return common.ErrForbidden
	}

	if _, err := repo.Revoke(ctx, sessionID); err != nil {
		return s.internal(ctx, "revoke_session", "revoke", err)
	}

	s.log.Info(ctx, "session revoked", "user_id", userID, "session_id", sessionID)
	return nil
}

// RevokeAllSessionsExceptCurrent logs the user out everywhere but in
// currentSessionID and returns how many sessions were revoked.
func (s *AuthService) RevokeAllSessionsExceptCurrent(ctx context.Context, userID, currentSessionID int64) (int64, error) {
	n, err := s.repos.RefreshTokens(s.tx.Conn()).RevokeAllExcept(ctx, userID, currentSessionID)
	if err != nil {
		return 0, s.internal(ctx, "revoke_other_sessions", "revoke", err)
	}
	s.log.Info(ctx, "other sessions revoked", "user_id", userID, "kept_session_id", currentSessionID, "count", n)
	return n, nil
}

// Logout ends sessionID, or every session of the user when sessionID is 0.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID int64) error {
	if sessionID != 0 {
		return s.RevokeSession(ctx, userID, sessionID)
	}
	if _, err := s.repos.RefreshTokens(s.tx.Conn()).RevokeAll(ctx, userID); err != nil {
		return s.internal(ctx, "logout", "revoke all", err)
	}
	s.log.Info(ctx, "user logged out everywhere", "user_id", userID)
	return nil
}

// CountActiveSessions counts sessions that are neither revoked nor expired.
func (s *AuthService) CountActiveSessions(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repos.RefreshTokens(s.tx.Conn()).CountActive(ctx, userID, s.now())
	if err != nil {
		return 0, s.internal(ctx, "count_sessions", "count", err)
	}
	return n, nil
}

// CleanupExpiredSessions deletes sessions that expired more than retention
// ago.
func (s *AuthService) CleanupExpiredSessions(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.repos.RefreshTokens(s.tx.Conn()).DeleteExpired(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, s.internal(ctx, "cleanup", "delete expired", err)
	}
	s.metrics.RecordSwept(n)
	return n, nil
}

// SendVerificationEmail stores a fresh code on the user and mails it.
func (s *AuthService) SendVerificationEmail(ctx context.Context, user *models.User) error {
	code, err := common.MakeRandDigits(s.cfg.VerificationCodeDigits)
	if err != nil {
		return s.internal(ctx, "send_verification", "generate code", err)
	}
	expiresAt := s.now().Add(s.cfg.VerificationCodeTTL)

	if err := s.repos.Users(s.tx.Conn()).SetVerificationCode(ctx, user.ID, code, expiresAt); err != nil {
		return s.internal(ctx, "send_verification", "store code", err)
	}

	msg, err := mail.VerificationMessage(user.Email, code, s.cfg.VerificationCodeTTL)
	if err != nil {
		return s.internal(ctx, "send_verification", "render email", err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return s.internal(ctx, "send_verification", "send email", err)
	}

	s.log.Info(ctx, "verification email sent", "user_id", user.ID)
	return nil
}

// ResendVerification mails a new code to an unverified user.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.repos.Users(s.tx.Conn()).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return s.internal(ctx, "resend_verification", "find user", err)
	}
	if user.IsVerified {
		return common.ErrAlreadyVerified
	}

	if err := s.limit(ctx, s.resendLimiter, "resend_verification", email); err != nil {
		return err
	}

	return s.SendVerificationEmail(ctx, user)
}

// VerifyEmail confirms the user's email with code.
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) error {
	users := s.repos.Users(s.tx.Conn())

	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return s.internal(ctx, "verify_email", "find user", err)
	}
	if user.IsVerified {
		return common.ErrAlreadyVerified
	}

	if err := s.limit(ctx, s.verifyLimiter, "verify_email", email); err != nil {
		return err
	}

	if user.VerificationCode == nil ||
		subtle.ConstantTimeCompare([]byte(*user.VerificationCode), []byte(code)) != 1 {
		s.metrics.RecordAuthEvent("verify_email", metrics.OutcomeInvalidToken)
		return common.ErrInvalidCode
	}
	if user.VerificationCodeExpiresAt == nil || user.VerificationCodeExpiresAt.Before(s.now()) {
		s.metrics.RecordAuthEvent("verify_email", metrics.OutcomeExpired)
		return common.ErrCodeExpired
	}

	if err := users.MarkVerified(ctx, user.ID); err != nil {
		return s.internal(ctx, "verify_email", "mark verified", err)
	}

	s.metrics.RecordAuthEvent("verify_email", metrics.OutcomeSuccess)
	s.log.Info(ctx, "email verified", "user_id", user.ID)
	return nil
}

// ValidateAccessToken resolves the user behind verified claims. It returns
// nil, nil when the user no longer exists; callers must reject the request.
func (s *AuthService) ValidateAccessToken(ctx context.Context, claims *auth.Claims) (*Identity, error) {
	user, err := s.repos.Users(s.tx.Conn()).FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, s.internal(ctx, "validate_access_token", "find user", err)
	}
	return &Identity{UserID: user.ID, Login: user.Login, Email: user.Email, Role: user.Role}, nil
}

// Authenticate verifies a raw access token and resolves its user. Signature
// and expiry failures come back as common.ErrInvalidToken and
// common.ErrTokenExpired; a vanished user is common.ErrorUnauthorized.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := s.signer.Parse(accessToken)
	if err != nil {
		// common.ErrTokenExpired tells clients to refresh; keep it intact.
		return nil, err
	}
	id, err := s.ValidateAccessToken(ctx, claims)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, common.ErrorUnauthorized
	}
	return id, nil
}

func (s *AuthService) issueTokenPair(ctx context.Context, db dbx.DBTX, user *models.User, cc models.ClientContext) (*models.TokenPair, error) {
	access, err := s.signer.Sign(auth.Claims{
		UserID: user.ID,
		Login:  user.Login,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := s.codec.Generate(user.ID, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	session, err := s.repos.RefreshTokens(db).Create(ctx, &models.Session{
		UserID:    user.ID,
		TokenHash: s.secrets.Hash(refresh.Secret),
		ExpiresAt: refresh.ExpiresAt,
		IPAddress: optional(cc.IPAddress, maxIPAddressLen),
		UserAgent: optional(cc.UserAgent, maxUserAgentLen),
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		SessionID:    session.ID,
		User:         user,
	}, nil
}

func (s *AuthService) limit(ctx context.Context, l Limiter, event, key string) error {
	err := l.Allow(ctx, key)
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrRateLimited) {
		s.metrics.RecordAuthEvent(event, metrics.OutcomeRateLimited)
		return common.ErrRateLimited
	}
	// A broken limiter must not lock users out.
	s.log.Warn(ctx, "rate limiter failed, allowing request", "event", event, "error", err)
	return nil
}

func (s *AuthService) internal(ctx context.Context, event, op string, err error) error {
	s.metrics.RecordAuthEvent(event, metrics.OutcomeError)
	s.log.Error(ctx, op+" failed", "event", event, "error", err)
	return common.ErrorInternal
}

// optional returns nil for "" and cuts v to at most max characters. The
// columns count characters and reject invalid UTF-8.
func optional(v string, max int) *string {
	if v == "" {
		return nil
	}
	v = strings.ToValidUTF8(v, "\uFFFD")
	if utf8.RuneCountInString(v) > max {
		n := 0
		for i := range v {
			if n == max {
				v = v[:i]
				break
			}
			n++
		}
	}
	return &v
}
