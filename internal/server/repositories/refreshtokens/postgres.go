package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	query := `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		session.UserID, session.TokenHash, session.ExpiresAt, session.IPAddress, session.UserAgent,
	).Scan(&session.ID, &session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return session, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (*models.Session, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked, ip_address, user_agent, created_at
		FROM refresh_tokens
		WHERE id = $1
	`
	s := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.Revoked, &s.IPAddress, &s.UserAgent, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) FindAllActiveByUser(ctx context.Context, userID int64) ([]models.Session, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked, ip_address, user_agent, created_at
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked = FALSE
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.Revoked, &s.IPAddress, &s.UserAgent, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE id = $1 AND revoked = FALSE
	`
	n, err := r.execCount(ctx, query, id)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) RevokeAll(ctx context.Context, userID int64) (int64, error) {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE user_id = $1 AND revoked = FALSE
	`
	return r.execCount(ctx, query, userID)
}

func (r *PostgresRepository) RevokeAllExcept(ctx context.Context, userID, keepID int64) (int64, error) {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE user_id = $1 AND id <> $2 AND revoked = FALSE
	`
	return r.execCount(ctx, query, userID, keepID)
}

func (r *PostgresRepository) CountActive(ctx context.Context, userID int64, now time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM refresh_tokens
		WHERE user_id = $1 AND revoked = FALSE AND expires_at >= $2
	`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, userID, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1
	`
	return r.execCount(ctx, query, before)
}

func (r *PostgresRepository) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
