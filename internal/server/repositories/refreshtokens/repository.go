// Package refreshtokens declares the session store: one row per issued
// refresh token, holding the hash of its secret, never the secret itself.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository defines operations for recording, listing and revoking sessions.
type Repository interface {
	// Create stores a new session and fills in its ID and CreatedAt.
	Create(ctx context.Context, session *models.Session) (*models.Session, error)

	// FindByID returns the session including revoked ones, or
	// common.ErrorNotFound.
	FindByID(ctx context.Context, id int64) (*models.Session, error)

	// FindAllActiveByUser returns the user's non-revoked sessions, newest
	// first. Expired rows are included; callers decide with their own clock.
	FindAllActiveByUser(ctx context.Context, userID int64) ([]models.Session, error)

	// Revoke flips the revoked flag only if it is still unset and reports
	// whether this call did it. Of two concurrent calls exactly one wins.
	Revoke(ctx context.Context, id int64) (bool, error)

	// RevokeAll and RevokeAllExcept return the number of sessions revoked.
	RevokeAll(ctx context.Context, userID int64) (int64, error)
	RevokeAllExcept(ctx context.Context, userID, keepID int64) (int64, error)

	// CountActive counts non-revoked sessions that expire at or after now.
	CountActive(ctx context.Context, userID int64, now time.Time) (int64, error)

	// DeleteExpired hard-deletes rows that expired before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
