package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

func TestRegister_ThenLoginAfterVerification(t *testing.T) {
	e := newEnv()

	u, err := e.svc.Register(ctx, RegisterInput{Login: "john", Email: "john@example.com", Password: "secret123", Age: 30})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.False(t, u.IsVerified)
	assert.Equal(t, models.DefaultRole, u.Role)
	assert.NotEqual(t, "secret123", u.PasswordHash)

	_, err = e.auth.Login(ctx, "john", "secret123", models.ClientContext{})
	require.ErrorIs(t, err, common.ErrNotVerified)

	require.NoError(t, e.auth.VerifyEmail(ctx, "john@example.com", *e.users.rows[u.ID].VerificationCode))

	pair, err := e.auth.Login(ctx, "john", "secret123", models.ClientContext{})
	require.NoError(t, err)
	assert.Equal(t, "john", pair.User.Login)
}

func TestRegister_Conflicts(t *testing.T) {
	e := newEnv()
	e.seedUser("john", true)

	_, err := e.svc.Register(ctx, RegisterInput{Login: "john", Email: "other@example.com", Password: "secret123"})
	require.ErrorIs(t, err, common.ErrLoginTaken)
	require.ErrorIs(t, err, common.ErrConflict)

	_, err = e.svc.Register(ctx, RegisterInput{Login: "johnny", Email: "john@example.com", Password: "secret123"})
	require.ErrorIs(t, err, common.ErrEmailTaken)
}

func TestRegister_MailFailureStillCreatesUser(t *testing.T) {
	e := newEnv()
	e.mailer.err = errBoom{}

	u, err := e.svc.Register(ctx, RegisterInput{Login: "john", Email: "john@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotNil(t, e.users.rows[u.ID])
}

func TestRegister_HashFailure(t *testing.T) {
	e := newEnv()
	svc := NewUserService(e.tx, &fakeRepoManager{u: e.users, r: e.sessions}, plainHasher{hashErr: errBoom{}}, nil, nil)

	_, err := svc.Register(ctx, RegisterInput{Login: "john", Email: "john@example.com", Password: "secret123"})
	require.ErrorIs(t, err, common.ErrorInternal)
}

func TestList_Pagination(t *testing.T) {
	e := newEnv()
	for _, login := range []string{"alice", "bob", "carol", "dave", "erin"} {
		e.seedUser(login, true)
	}

	p, err := e.svc.List(ctx, 2, 2, "")
	require.NoError(t, err)
	assert.EqualValues(t, 5, p.Total)
	assert.Equal(t, 3, p.TotalPages)
	require.Len(t, p.Data, 2)
	assert.Equal(t, "carol", p.Data[0].Login)
	assert.Equal(t, "bob", p.Data[1].Login)

	p, err = e.svc.List(ctx, 0, 0, "")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultPageLimit, p.Limit)

	p, err = e.svc.List(ctx, 1, 1000, "  AL ")
	require.NoError(t, err)
	assert.Equal(t, MaxPageLimit, p.Limit)
	require.Len(t, p.Data, 1)
	assert.Equal(t, "alice", p.Data[0].Login)

	e.users.listErr = errBoom{}
	_, err = e.svc.List(ctx, 1, 10, "")
	require.ErrorIs(t, err, common.ErrorInternal)
}

func TestUpdateProfile(t *testing.T) {
	e := newEnv()
	u := e.seedUser("john", true)
	e.seedUser("jane", true)

	age := 41
	desc := "hello"
	out, err := e.svc.UpdateProfile(ctx, u.ID, ProfileUpdate{Age: &age, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, 41, out.Age)
	assert.True(t, out.IsVerified)
	assert.Zero(t, e.mailer.count())

	taken := "jane@example.com"
	_, err = e.svc.UpdateProfile(ctx, u.ID, ProfileUpdate{Email: &taken})
	require.ErrorIs(t, err, common.ErrEmailTaken)

	fresh := "john.new@example.com"
	out, err = e.svc.UpdateProfile(ctx, u.ID, ProfileUpdate{Email: &fresh})
	require.NoError(t, err)
	assert.Equal(t, fresh, out.Email)
	assert.False(t, out.IsVerified)
	assert.Equal(t, 1, e.mailer.count())
	assert.Equal(t, fresh, e.mailer.sent[0].To)

	_, err = e.svc.UpdateProfile(ctx, 999, ProfileUpdate{Age: &age})
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdateProfile_EmailCaseChange(t *testing.T) {
	e := newEnv()
	u := e.seedUser("john", true)

	same := u.Email
	out, err := e.svc.UpdateProfile(ctx, u.ID, ProfileUpdate{Email: &same})
	require.NoError(t, err)
	assert.True(t, out.IsVerified)
	assert.Zero(t, e.mailer.count())

	upper := "John@Example.com"
	out, err = e.svc.UpdateProfile(ctx, u.ID, ProfileUpdate{Email: &upper})
	require.NoError(t, err)
	assert.Equal(t, upper, out.Email)
	assert.False(t, out.IsVerified)

	stored, err := e.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, upper, stored.Email)
}

func TestDelete_RevokesSessions(t *testing.T) {
	e := newEnv()
	u := e.seedUser("john", true)
	pair, err := e.auth.Login(ctx, "john", "secret123", models.ClientContext{})
	require.NoError(t, err)

	require.NoError(t, e.svc.Delete(ctx, u.ID))
	assert.True(t, e.sessions.get(pair.SessionID).Revoked)
	assert.Equal(t, 1, e.tx.calls)

	_, err = e.svc.Profile(ctx, u.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = e.auth.Refresh(ctx, pair.RefreshToken, models.ClientContext{})
	require.ErrorIs(t, err, common.ErrInvalidRefreshToken)

	id, err := e.auth.Authenticate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Nil(t, id)

	require.ErrorIs(t, e.svc.Delete(ctx, u.ID), common.ErrorNotFound)

	// The login is free again.
	e.clock.advance(time.Second)
	_, err = e.svc.Register(ctx, RegisterInput{Login: "john", Email: "john@example.com", Password: "x"})
	require.NoError(t, err)
}

func TestCheckAvailability(t *testing.T) {
	e := newEnv()
	e.seedUser("john", true)

	a, err := e.svc.CheckAvailability(ctx, "john", "free@example.com")
	require.NoError(t, err)
	assert.True(t, a.LoginExists)
	assert.False(t, a.EmailExists)
}
