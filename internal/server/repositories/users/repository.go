// Package users declares the user directory contract and its PostgreSQL
// implementation. Soft-deleted users are invisible to every method.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type Repository interface {
	// Create inserts user and fills in ID and timestamps. A taken login or
	// email yields common.ErrConflict.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// FindByID, FindByLogin and FindByEmail return common.ErrorNotFound when
	// no live user matches.
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByLogin(ctx context.Context, login string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	// List returns one page of users newest first and the total number of
	// matches.
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int64, error)

	// Update writes the mutable profile fields (email, age, description,
	// verification flag).
	Update(ctx context.Context, user *models.User) error

	SetVerificationCode(ctx context.Context, id int64, code string, expiresAt time.Time) error
	MarkVerified(ctx context.Context, id int64) error
	SoftDelete(ctx context.Context, id int64) error

	Availability(ctx context.Context, login, email string) (*models.Availability, error)
}
