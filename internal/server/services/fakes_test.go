package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/mail"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	refreshtokensrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	usersrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// memUsers is an in-memory users.Repository.
type memUsers struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.User

	findErr error
	listErr error
}

func newMemUsers() *memUsers {
	return &memUsers{rows: map[int64]*models.User{}}
}

func (m *memUsers) live(match func(*models.User) bool) *models.User {
	for _, u := range m.rows {
		if u.DeletedAt == nil && match(u) {
			c := *u
			return &c
		}
	}
	return nil
}

func (m *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live(func(x *models.User) bool { return x.Login == u.Login }) != nil {
		return nil, errors.Join(common.ErrConflict, errors.New("users_login_live_key"))
	}
	if m.live(func(x *models.User) bool { return x.Email == u.Email }) != nil {
		return nil, errors.Join(common.ErrConflict, errors.New("users_email_live_key"))
	}
	m.nextID++
	c := *u
	c.ID = m.nextID
	c.CreatedAt = time.Now()
	m.rows[c.ID] = &c
	out := c
	return &out, nil
}

func (m *memUsers) find(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if u := m.live(match); u != nil {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) FindByID(_ context.Context, id int64) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.ID == id })
}

func (m *memUsers) FindByLogin(_ context.Context, login string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Login == login })
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *memUsers) List(_ context.Context, f models.UserFilter) ([]models.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var all []models.User
	for _, u := range m.rows {
		if u.DeletedAt != nil {
			continue
		}
		if f.LoginFilter != "" && !strings.Contains(strings.ToLower(u.Login), strings.ToLower(f.LoginFilter)) {
			continue
		}
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	start := f.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (m *memUsers) Update(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[u.ID]
	if !ok || row.DeletedAt != nil {
		return common.ErrorNotFound
	}
	row.Email = u.Email
	row.Age = u.Age
	row.Description = u.Description
	row.IsVerified = u.IsVerified
	return nil
}

func (m *memUsers) SetVerificationCode(_ context.Context, id int64, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	row.VerificationCode = &code
	row.VerificationCodeExpiresAt = &expiresAt
	return nil
}

func (m *memUsers) MarkVerified(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	row.IsVerified = true
	row.VerificationCode = nil
	row.VerificationCodeExpiresAt = nil
	return nil
}

func (m *memUsers) SoftDelete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.DeletedAt != nil {
		return common.ErrorNotFound
	}
	now := time.Now()
	row.DeletedAt = &now
	return nil
}

func (m *memUsers) Availability(_ context.Context, login, email string) (*models.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &models.Availability{
		LoginExists: login != "" && m.live(func(u *models.User) bool { return u.Login == login }) != nil,
		EmailExists: email != "" && m.live(func(u *models.User) bool { return u.Email == email }) != nil,
	}, nil
}

// memSessions is an in-memory refreshtokens.Repository.
type memSessions struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.Session

	createErr error
	revokeErr error
}

func newMemSessions() *memSessions {
	return &memSessions{rows: map[int64]*models.Session{}}
}

func (m *memSessions) Create(_ context.Context, s *models.Session) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.nextID++
	c := *s
	c.ID = m.nextID
	c.CreatedAt = time.Now()
	m.rows[c.ID] = &c
	out := c
	return &out, nil
}

func (m *memSessions) FindByID(_ context.Context, id int64) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *row
	return &c, nil
}

func (m *memSessions) FindAllActiveByUser(_ context.Context, userID int64) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, s := range m.rows {
		if s.UserID == userID && !s.Revoked {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memSessions) Revoke(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revokeErr != nil {
		return false, m.revokeErr
	}
	row, ok := m.rows[id]
	if !ok || row.Revoked {
		return false, nil
	}
	row.Revoked = true
	return true, nil
}

func (m *memSessions) revokeWhere(match func(*models.Session) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.rows {
		if !s.Revoked && match(s) {
			s.Revoked = true
			n++
		}
	}
	return n
}

func (m *memSessions) RevokeAll(_ context.Context, userID int64) (int64, error) {
	return m.revokeWhere(func(s *models.Session) bool { return s.UserID == userID }), nil
}

func (m *memSessions) RevokeAllExcept(_ context.Context, userID, keepID int64) (int64, error) {
	return m.revokeWhere(func(s *models.Session) bool { return s.UserID == userID && s.ID != keepID }), nil
}

func (m *memSessions) CountActive(_ context.Context, userID int64, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.rows {
		if s.UserID == userID && s.IsActiveAt(now) {
			n++
		}
	}
	return n, nil
}

func (m *memSessions) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.rows {
		if s.ExpiresAt.Before(before) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) get(id int64) models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

type fakeRepoManager struct {
	u *memUsers
	r *memSessions
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error        { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokensrepo.Repository { return m.r }

// fakeTx runs units of work without a database. It does not roll back the
// in-memory fakes.
type fakeTx struct {
	mu    sync.Mutex
	calls int
}

func (t *fakeTx) Conn() dbx.DBTX { return nil }

func (t *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	return fn(ctx, nil)
}

// plainHasher stands in for bcrypt, which is too slow for table tests.
type plainHasher struct{ hashErr error }

func (h plainHasher) Hash(pw string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "h:" + pw, nil
}

func (plainHasher) Compare(hash, pw string) (bool, error) { return hash == "h:"+pw, nil }

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type stubLimiter struct{ err error }

func (l stubLimiter) Allow(context.Context, string) error { return l.err }

// fixed is a settable clock.
type fixed struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixed) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixed) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type env struct {
	users    *memUsers
	sessions *memSessions
	tx       *fakeTx
	mailer   *recordingMailer
	clock    *fixed
	signer   *auth.JWTSigner
	auth     *AuthService
	svc      *UserService
}

func newEnv(mut ...func(*AuthDeps, *AuthConfig)) *env {
	e := &env{
		users:    newMemUsers(),
		sessions: newMemSessions(),
		tx:       &fakeTx{},
		mailer:   &recordingMailer{},
		clock:    &fixed{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	e.signer = auth.NewJWTSigner([]byte("k"), 15*time.Minute, e.clock.now)
	rm := &fakeRepoManager{u: e.users, r: e.sessions}

	deps := AuthDeps{
		Tx:        e.tx,
		Repos:     rm,
		Passwords: plainHasher{},
		Secrets:   auth.SHA256Hasher{},
		Signer:    e.signer,
		Mailer:    e.mailer,
		Clock:     e.clock.now,
	}
	cfg := AuthConfig{
		RefreshTokenTTL:     24 * time.Hour,
		VerificationCodeTTL: 15 * time.Minute,
		RequireVerification: true,
	}
	for _, f := range mut {
		f(&deps, &cfg)
	}
	e.auth = NewAuthService(deps, cfg)
	e.svc = NewUserService(e.tx, rm, deps.Passwords, e.auth, nil)
	return e
}

// seedUser stores a user with password "secret123".
func (e *env) seedUser(login string, verified bool) *models.User {
	u, err := e.users.Create(context.Background(), &models.User{
		Login:        login,
		Email:        login + "@example.com",
		PasswordHash: "h:secret123",
		Age:          30,
		Role:         models.DefaultRole,
		IsVerified:   verified,
	})
	if err != nil {
		panic(err)
	}
	return u
}
