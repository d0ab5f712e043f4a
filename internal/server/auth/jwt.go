// Package auth contains the credential primitives of the server: access
// token signing, password hashing and refresh-secret hashing.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// Claims is the access token payload. It never carries the password or
// any other sensitive field.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"userId"`
	Login  string `json:"login"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
}

// JWTSigner signs and verifies HS256 access tokens.
type JWTSigner struct {
	secret []byte
	ttl    time.Duration
	now    timex.Clock
}

func NewJWTSigner(secret []byte, ttl time.Duration, now timex.Clock) *JWTSigner {
	if now == nil {
		now = timex.SystemClock
	}
	return &JWTSigner{secret: secret, ttl: ttl, now: now}
}

// Sign issues a token for claims. Registered claims are filled in here.
func (s *JWTSigner) Sign(claims Claims) (string, error) {
	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(claims.UserID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Parse verifies signature and expiry and returns the claims.
// An expired token yields common.ErrTokenExpired, anything else that fails
// yields common.ErrInvalidToken.
func (s *JWTSigner) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
