package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

const userColumns = `id, login, email, password_hash, age, description, role, is_verified,
		verification_code, verification_code_expires_at, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Login, &u.Email, &u.PasswordHash, &u.Age, &u.Description, &u.Role, &u.IsVerified,
		&u.VerificationCode, &u.VerificationCodeExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func wrapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%w: %s", common.ErrConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.Role == "" {
		user.Role = models.DefaultRole
	}

	query :=
		`INSERT INTO users (login, email, password_hash, age, description, role, is_verified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.Login, user.Email, user.PasswordHash, user.Age, user.Description, user.Role, user.IsVerified,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, wrapErr(err)
	}

	return user, nil
}

func (r *PostgresRepository) findOne(ctx context.Context, column string, arg any) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE ` + column + ` = $1 AND deleted_at IS NULL
		 `

	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, wrapErr(err)
	}
	return user, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return r.findOne(ctx, "id", id)
}

func (r *PostgresRepository) FindByLogin(ctx context.Context, login string) (*models.User, error) {
	return r.findOne(ctx, "login", login)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email", email)
}

func (r *PostgresRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int64, error) {
	pattern := "%" + filter.LoginFilter + "%"

	var total int64
	countQuery :=
		`SELECT COUNT(*) FROM users
		 WHERE deleted_at IS NULL AND ($1::text = '' OR login ILIKE $2)
		 `
	if err := r.db.QueryRowContext(ctx, countQuery, filter.LoginFilter, pattern).Scan(&total); err != nil {
		return nil, 0, wrapErr(err)
	}

	query := `SELECT ` + userColumns + ` FROM users
		 WHERE deleted_at IS NULL AND ($1::text = '' OR login ILIKE $2)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3 OFFSET $4
		 `

	rows, err := r.db.QueryContext(ctx, query, filter.LoginFilter, pattern, filter.Limit, filter.Offset())
	if err != nil {
		return nil, 0, wrapErr(err)
	}
	defer rows.Close()

	result := make([]models.User, 0, filter.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, wrapErr(err)
		}
		result = append(result, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapErr(err)
	}

	return result, total, nil
}

// exec runs a single-row update and maps "no row touched" to ErrorNotFound.
func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, user *models.User) error {
	query :=
		`UPDATE users SET email = $2, age = $3, description = $4, is_verified = $5, updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL
		 `
	return r.exec(ctx, query, user.ID, user.Email, user.Age, user.Description, user.IsVerified)
}

func (r *PostgresRepository) SetVerificationCode(ctx context.Context, id int64, code string, expiresAt time.Time) error {
	query :=
		`UPDATE users SET verification_code = $2, verification_code_expires_at = $3, updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL
		 `
	return r.exec(ctx, query, id, code, expiresAt)
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, id int64) error {
	query :=
		`UPDATE users SET is_verified = TRUE, verification_code = NULL, verification_code_expires_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL
		 `
	return r.exec(ctx, query, id)
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id int64) error {
	query :=
		`UPDATE users SET deleted_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL
		 `
	return r.exec(ctx, query, id)
}

func (r *PostgresRepository) Availability(ctx context.Context, login, email string) (*models.Availability, error) {
	query :=
		`SELECT
		   EXISTS (SELECT 1 FROM users WHERE login = $1 AND deleted_at IS NULL),
		   EXISTS (SELECT 1 FROM users WHERE email = $2 AND deleted_at IS NULL)
		 `

	a := &models.Availability{}
	if err := r.db.QueryRowContext(ctx, query, login, email).Scan(&a.LoginExists, &a.EmailExists); err != nil {
		return nil, wrapErr(err)
	}
	return a, nil
}
