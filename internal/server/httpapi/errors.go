package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: ErrLoginTaken and ErrEmailTaken also match ErrConflict.
var errorMappings = []errorMapping{
	{common.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{common.ErrNotVerified, http.StatusUnauthorized, "email_not_verified"},
	{common.ErrRefreshTokenExpired, http.StatusUnauthorized, "refresh_token_expired"},
	{common.ErrInvalidRefreshToken, http.StatusUnauthorized, "invalid_refresh_token"},
	{common.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
	{common.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{common.ErrorUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{common.ErrForbidden, http.StatusForbidden, "forbidden"},
	{common.ErrorNotFound, http.StatusNotFound, "not_found"},
	{common.ErrLoginTaken, http.StatusConflict, "login_taken"},
	{common.ErrEmailTaken, http.StatusConflict, "email_taken"},
	{common.ErrConflict, http.StatusConflict, "conflict"},
	{common.ErrInvalidCode, http.StatusBadRequest, "invalid_code"},
	{common.ErrCodeExpired, http.StatusBadRequest, "code_expired"},
	{common.ErrAlreadyVerified, http.StatusBadRequest, "already_verified"},
	{common.ErrValidation, http.StatusBadRequest, "validation_error"},
	{common.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
}

// statusFor maps a service error to its HTTP status and error code. Anything
// unknown is a 500 whose cause is not exposed.
func statusFor(err error) (int, string, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code, m.err.Error()
		}
	}
	return http.StatusInternalServerError, "internal_error", common.ErrorInternal.Error()
}

func writeError(c *gin.Context, err error) {
	status, code, message := statusFor(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: message})
}

// writeValidationError reports a request that failed binding.
func writeValidationError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: "validation_error", Message: err.Error()})
}
