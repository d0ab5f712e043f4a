// Package common defines shared constants, helpers and sentinel errors used
// across the server and the command-line client. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrValidation     = errors.New("validation error")
	ErrRateLimited    = errors.New("too many requests")

	// Credential errors. ErrInvalidCredentials intentionally covers both
	// "no such user" and "wrong password".
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("email is not verified")

	// Registration conflicts.
	ErrLoginTaken = errors.Join(ErrConflict, errors.New("login already exists"))
	ErrEmailTaken = errors.Join(ErrConflict, errors.New("email already exists"))

	// Token lifecycle errors.
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Email verification errors.
	ErrInvalidCode     = errors.New("invalid verification code")
	ErrCodeExpired     = errors.New("verification code has expired")
	ErrAlreadyVerified = errors.New("email is already verified")
)
