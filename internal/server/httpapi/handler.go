package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

func clientContext(c *gin.Context) models.ClientContext {
	return models.ClientContext{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

func (s *HTTPServer) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	pair, err := s.auth.Login(c.Request.Context(), req.Login, req.Password, clientContext(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTokenPairResponse(pair))
}

func (s *HTTPServer) refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	pair, err := s.auth.Refresh(c.Request.Context(), req.RefreshToken, clientContext(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toTokenPairResponse(pair))
}

// logout ends the session named by X-Session-ID, or all of the caller's
// sessions when the header is absent.
func (s *HTTPServer) logout(c *gin.Context) {
	id := identityFrom(c)

	var sessionID int64
	if raw := c.GetHeader(common.SessionIDHeaderName); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			writeValidationError(c, fmt.Errorf("invalid %s header", common.SessionIDHeaderName))
			return
		}
		sessionID = v
	}

	if err := s.auth.Logout(c.Request.Context(), id.UserID, sessionID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

func (s *HTTPServer) listSessions(c *gin.Context) {
	id := identityFrom(c)

	sessions, err := s.auth.ListSessions(c.Request.Context(), id.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSessionViews(sessions))
}

func (s *HTTPServer) revokeSession(c *gin.Context) {
	id := identityFrom(c)

	sessionID, err := strconv.ParseInt(c.Param("sessionId"), 10, 64)
	if err != nil {
		writeValidationError(c, errors.New("invalid session id"))
		return
	}

	if err := s.auth.RevokeSession(c.Request.Context(), id.UserID, sessionID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Session revoked successfully"})
}

func (s *HTTPServer) revokeOtherSessions(c *gin.Context) {
	id := identityFrom(c)

	var req RevokeOthersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	n, err := s.auth.RevokeAllSessionsExceptCurrent(c.Request.Context(), id.UserID, req.CurrentTokenID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, RevokedResponse{Message: "All other sessions revoked successfully", Revoked: n})
}

func (s *HTTPServer) verifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	if err := s.auth.VerifyEmail(c.Request.Context(), req.Email, req.Code); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Email verified successfully"})
}

func (s *HTTPServer) resendVerification(c *gin.Context) {
	var req ResendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	if err := s.auth.ResendVerification(c.Request.Context(), req.Email); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Verification email sent"})
}

func (s *HTTPServer) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	user, err := s.users.Register(c.Request.Context(), services.RegisterInput{
		Login:       req.Login,
		Email:       req.Email,
		Password:    req.Password,
		Age:         req.Age,
		Description: req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toUserView(user))
}

func (s *HTTPServer) listUsers(c *gin.Context) {
	var q ListUsersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeValidationError(c, err)
		return
	}

	page, err := s.users.List(c.Request.Context(), q.Page, q.Limit, q.LoginFilter)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toUsersPage(page))
}

func (s *HTTPServer) profile(c *gin.Context) {
	id := identityFrom(c)

	user, err := s.users.Profile(c.Request.Context(), id.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toUserView(user))
}

func (s *HTTPServer) updateProfile(c *gin.Context) {
	id := identityFrom(c)

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeValidationError(c, err)
		return
	}

	user, err := s.users.UpdateProfile(c.Request.Context(), id.UserID, services.ProfileUpdate{
		Email:       req.Email,
		Age:         req.Age,
		Description: req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toUserView(user))
}

func (s *HTTPServer) deleteProfile(c *gin.Context) {
	id := identityFrom(c)

	if err := s.users.Delete(c.Request.Context(), id.UserID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "User deleted successfully"})
}

func (s *HTTPServer) checkAvailability(c *gin.Context) {
	var q AvailabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeValidationError(c, err)
		return
	}

	a, err := s.users.CheckAvailability(c.Request.Context(), q.Login, q.Email)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, AvailabilityResponse{LoginExists: a.LoginExists, EmailExists: a.EmailExists})
}
