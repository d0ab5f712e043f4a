package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Verifier sends verification codes. AuthService implements it.
type Verifier interface {
	SendVerificationEmail(ctx context.Context, user *models.User) error
}

// RegisterInput is a new account request. Fields are already validated.
type RegisterInput struct {
	Login       string
	Email       string
	Password    string
	Age         int
	Description *string
}

// ProfileUpdate carries the fields a user may change; nil means unchanged.
type ProfileUpdate struct {
	Email       *string
	Age         *int
	Description *string
}

// Page is one page of users.
type Page struct {
	Data       []models.User
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// UserService manages the user directory: registration, listing, profile
// edits and account deletion.
type UserService struct {
	tx        dbx.Transactor
	repos     repomanager.RepositoryManager
	passwords PasswordHasher
	verifier  Verifier
	log       logging.Logger
}

// NewUserService constructs a UserService. verifier may be nil, in which case
// no verification email is sent.
func NewUserService(tx dbx.Transactor, repos repomanager.RepositoryManager, passwords PasswordHasher, verifier Verifier, log logging.Logger) *UserService {
	if log == nil {
		log = logging.Discard()
	}
	return &UserService{
		tx:        tx,
		repos:     repos,
		passwords: passwords,
		verifier:  verifier,
		log:       log.With("module", "users"),
	}
}

// Register creates an unverified user and sends the verification code. A
// failed email is logged; the account exists and a code can be resent.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	repo := s.repos.Users(s.tx.Conn())

	avail, err := repo.Availability(ctx, in.Login, in.Email)
	if err != nil {
		return nil, s.internal(ctx, "check availability", err)
	}
	if avail.LoginExists {
		return nil, common.ErrLoginTaken
	}
	if avail.EmailExists {
		return nil, common.ErrEmailTaken
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, s.internal(ctx, "hash password", err)
	}

	user, err := repo.Create(ctx, &models.User{
		Login:        in.Login,
		Email:        in.Email,
		PasswordHash: hash,
		Age:          in.Age,
		Description:  in.Description,
		Role:         models.DefaultRole,
	})
	if err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, common.ErrConflict) {
			return nil, conflictFor(err)
		}
		return nil, s.internal(ctx, "create user", err)
	}

	s.log.Info(ctx, "user registered", "user_id", user.ID)

	if s.verifier != nil {
		if err := s.verifier.SendVerificationEmail(ctx, user); err != nil {
			s.log.Warn(ctx, "verification email not sent", "user_id", user.ID, "error", err)
		}
	}
	return user, nil
}

// List returns a page of users, newest first. Page is clamped to at least 1
// and limit to [1, MaxPageLimit].
func (s *UserService) List(ctx context.Context, page, limit int, loginFilter string) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	filter := models.UserFilter{Page: page, Limit: limit, LoginFilter: strings.TrimSpace(loginFilter)}
	data, total, err := s.repos.Users(s.tx.Conn()).List(ctx, filter)
	if err != nil {
		return nil, s.internal(ctx, "list users", err)
	}

	return &Page{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

// Profile returns the user's own record.
func (s *UserService) Profile(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.repos.Users(s.tx.Conn()).FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, s.internal(ctx, "find user", err)
	}
	return user, nil
}

// UpdateProfile applies upd. Changing the email clears the verified flag and
// sends a code to the new address.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, upd ProfileUpdate) (*models.User, error) {
	repo := s.repos.Users(s.tx.Conn())

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	emailChanged := false
	if upd.Email != nil && *upd.Email != user.Email {
		avail, err := repo.Availability(ctx, "", *upd.Email)
		if err != nil {
			return nil, s.internal(ctx, "check availability", err)
		}
		if avail.EmailExists {
			return nil, common.ErrEmailTaken
		}
		user.Email = *upd.Email
		user.IsVerified = false
		emailChanged = true
	}
	if upd.Age != nil {
		user.Age = *upd.Age
	}
	if upd.Description != nil {
		user.Description = upd.Description
	}

	if err := repo.Update(ctx, user); err != nil {
		if errors.Is(err, common.ErrConflict) {
			return nil, common.ErrEmailTaken
		}
		return nil, s.internal(ctx, "update user", err)
	}

	s.log.Info(ctx, "profile updated", "user_id", userID, "email_changed", emailChanged)

	if emailChanged && s.verifier != nil {
		if err := s.verifier.SendVerificationEmail(ctx, user); err != nil {
			s.log.Warn(ctx, "verification email not sent", "user_id", user.ID, "error", err)
		}
	}
	return user, nil
}

// Delete soft-deletes the user and revokes all of their sessions atomically.
func (s *UserService) Delete(ctx context.Context, userID int64) error {
	err := s.tx.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Users(tx).SoftDelete(ctx, userID); err != nil {
			return err
		}
		if _, err := s.repos.RefreshTokens(tx).RevokeAll(ctx, userID); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return s.internal(ctx, "delete user", err)
	}

	s.log.Info(ctx, "user deleted", "user_id", userID)
	return nil
}

// CheckAvailability reports whether login and email are free to register.
// Empty values are reported as available.
func (s *UserService) CheckAvailability(ctx context.Context, login, email string) (*models.Availability, error) {
	avail, err := s.repos.Users(s.tx.Conn()).Availability(ctx, login, email)
	if err != nil {
		return nil, s.internal(ctx, "check availability", err)
	}
	return avail, nil
}

func (s *UserService) internal(ctx context.Context, op string, err error) error {
	s.log.Error(ctx, op+" failed", "error", err)
	return common.ErrorInternal
}

func conflictFor(err error) error {
	if strings.Contains(err.Error(), "email") {
		return common.ErrEmailTaken
	}
	return common.ErrLoginTaken
}
