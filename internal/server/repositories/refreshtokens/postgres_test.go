package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

var sessionCols = []string{"id", "user_id", "token_hash", "expires_at", "revoked", "ip_address", "user_agent", "created_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return NewPostgresRepository(db), mock
}

func strptr(s string) *string { return &s }

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	exp := time.Now().Add(time.Hour)
	created := time.Now()

	q := `(?s)^INSERT INTO refresh_tokens \(user_id, token_hash, expires_at, ip_address, user_agent\) VALUES \(\$1, \$2, \$3, \$4, \$5\) RETURNING id, created_at$`
	mock.ExpectQuery(q).
		WithArgs(int64(1), "hash", exp, "10.0.0.1", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), created))

	s, err := repo.Create(context.Background(), &models.Session{
		UserID: 1, TokenHash: "hash", ExpiresAt: exp, IPAddress: strptr("10.0.0.1"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), s.ID)
	assert.Equal(t, created, s.CreatedAt)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT INTO refresh_tokens`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.Session{UserID: 1})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindByID(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`FROM refresh_tokens WHERE id = \$1$`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(sessionCols).AddRow(int64(5), int64(1), "hash", now, true, nil, "curl/8", now))

	s, err := repo.FindByID(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, s.Revoked, "history lookups include revoked rows")
	assert.Nil(t, s.IPAddress)
	require.NotNil(t, s.UserAgent)
	assert.Equal(t, "curl/8", *s.UserAgent)
}

func TestFindByID_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM refresh_tokens WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), 404)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestFindAllActiveByUser_NewestFirst(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`WHERE user_id = \$1 AND revoked = FALSE ORDER BY created_at DESC, id DESC`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow(int64(9), int64(1), "h9", now.Add(time.Hour), false, nil, nil, now).
			AddRow(int64(3), int64(1), "h3", now.Add(time.Hour), false, nil, nil, now.Add(-time.Hour)))

	got, err := repo.FindAllActiveByUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(9), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
}

func TestFindAllActiveByUser_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM refresh_tokens`).WillReturnError(errors.New("db err"))

	_, err := repo.FindAllActiveByUser(context.Background(), 1)
	require.Error(t, err)
}

func TestRevoke_ConditionalUpdate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `UPDATE refresh_tokens SET revoked = TRUE WHERE id = \$1 AND revoked = FALSE`

	mock.ExpectExec(q).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.Revoke(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.Revoke(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, won, "second revoke of the same row must lose")
}

func TestRevoke_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`UPDATE refresh_tokens`).WillReturnError(errors.New("db err"))

	_, err := repo.Revoke(context.Background(), 5)
	require.Error(t, err)
}

func TestRevokeAll(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = \$1 AND revoked = FALSE`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.RevokeAll(context.Background(), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestRevokeAllExcept(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`WHERE user_id = \$1 AND id <> \$2 AND revoked = FALSE`).
		WithArgs(int64(1), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.RevokeAllExcept(context.Background(), 1, 9)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestCountActive(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM refresh_tokens WHERE user_id = \$1 AND revoked = FALSE AND expires_at >= \$2`).
		WithArgs(int64(1), now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	n, err := repo.CountActive(context.Background(), 1, now)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestDeleteExpired(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	cutoff := time.Now().Add(-24 * time.Hour)

	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := repo.DeleteExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 12, n)
}

func TestDeleteExpired_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`DELETE FROM refresh_tokens`).WillReturnError(errors.New("db down"))

	_, err := repo.DeleteExpired(context.Background(), time.Now())
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
