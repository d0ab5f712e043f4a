package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

func TestSignAndParse_Success(t *testing.T) {
	t.Parallel()

	s := NewJWTSigner([]byte("super-secret"), time.Hour, nil)

	tok, err := s.Sign(Claims{UserID: 123, Login: "john", Email: "john@x.com", Role: "user"})
	require.NoError(t, err)

	c, err := s.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(123), c.UserID)
	assert.Equal(t, "john", c.Login)
	assert.Equal(t, "john@x.com", c.Email)
	assert.Equal(t, "user", c.Role)
	assert.Equal(t, "123", c.Subject)
}

func TestSign_PayloadHasNoPassword(t *testing.T) {
	t.Parallel()

	s := NewJWTSigner([]byte("k"), time.Minute, nil)
	tok, err := s.Sign(Claims{UserID: 1, Login: "a", Email: "a@b.c"})
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Contains(t, payload, "userId")
	assert.Contains(t, payload, "login")
	assert.Contains(t, payload, "email")
	assert.NotContains(t, payload, "password")
}

func TestParse_Expired(t *testing.T) {
	t.Parallel()

	issued := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	signer := NewJWTSigner([]byte("secret"), 15*time.Minute, func() time.Time { return issued })
	tok, err := signer.Sign(Claims{UserID: 1})
	require.NoError(t, err)

	later := NewJWTSigner([]byte("secret"), 15*time.Minute, func() time.Time { return issued.Add(time.Hour) })
	_, err = later.Parse(tok)
	require.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestParse_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewJWTSigner([]byte("right-secret"), time.Hour, nil).Sign(Claims{UserID: 2})
	require.NoError(t, err)

	_, err = NewJWTSigner([]byte("wrong-secret"), time.Hour, nil).Parse(tok)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParse_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: 3}).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = NewJWTSigner([]byte("k"), time.Hour, nil).Parse(tok)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParse_MalformedString(t *testing.T) {
	t.Parallel()

	_, err := NewJWTSigner([]byte("k"), time.Hour, nil).Parse("not.a.jwt")
	require.ErrorIs(t, err, common.ErrInvalidToken)
}
