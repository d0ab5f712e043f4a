// Package httpapi is the HTTP transport of the server: gin routes, request
// binding, authentication middleware and error mapping.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

// AuthService is the part of services.AuthService the transport uses.
type AuthService interface {
	Login(ctx context.Context, login, password string, cc models.ClientContext) (*models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string, cc models.ClientContext) (*models.TokenPair, error)
	Logout(ctx context.Context, userID, sessionID int64) error
	ListSessions(ctx context.Context, userID int64) ([]models.Session, error)
	RevokeSession(ctx context.Context, userID, sessionID int64) error
	RevokeAllSessionsExceptCurrent(ctx context.Context, userID, currentSessionID int64) (int64, error)
	VerifyEmail(ctx context.Context, email, code string) error
	ResendVerification(ctx context.Context, email string) error
	Authenticate(ctx context.Context, accessToken string) (*services.Identity, error)
}

// UserService is the part of services.UserService the transport uses.
type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	List(ctx context.Context, page, limit int, loginFilter string) (*services.Page, error)
	Profile(ctx context.Context, userID int64) (*models.User, error)
	UpdateProfile(ctx context.Context, userID int64, upd services.ProfileUpdate) (*models.User, error)
	Delete(ctx context.Context, userID int64) error
	CheckAvailability(ctx context.Context, login, email string) (*models.Availability, error)
}

type HTTPServer struct {
	address  string
	auth     AuthService
	users    UserService
	logger   logging.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	ping     func(context.Context) error
}

// Option customises an HTTPServer.
type Option func(*HTTPServer)

// WithMetrics records request metrics in m and serves gatherer on /metrics.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *HTTPServer) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithHealthCheck makes /healthz report ping failures as 503.
func WithHealthCheck(ping func(context.Context) error) Option {
	return func(s *HTTPServer) { s.ping = ping }
}

func NewHTTPServer(address string, l logging.Logger, as AuthService, us UserService, opts ...Option) *HTTPServer {
	s := &HTTPServer{
		address: address,
		auth:    as,
		users:   us,
		logger:  l.With("module", "http_server"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the router.
func (s *HTTPServer) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.requestLogger(), s.requestMetrics())

	r.GET("/healthz", s.healthz)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	a := r.Group("/auth")
	a.POST("/login", s.login)
	a.POST("/refresh", s.refresh)
	a.POST("/verify-email", s.verifyEmail)
	a.POST("/resend-verification", s.resendVerification)

	protected := a.Group("", s.authenticate())
	protected.POST("/logout", s.logout)
	protected.GET("/sessions", s.listSessions)
	protected.DELETE("/sessions/:sessionId", s.revokeSession)
	protected.DELETE("/sessions", s.revokeOtherSessions)

	u := r.Group("/users")
	u.POST("/register", s.register)
	u.GET("/check-availability", s.checkAvailability)

	me := u.Group("", s.authenticate())
	me.GET("", s.listUsers)
	me.GET("/profile/my", s.profile)
	me.PATCH("/profile/my", s.updateProfile)
	me.DELETE("/profile/my", s.deleteProfile)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) healthz(c *gin.Context) {
	if s.ping != nil {
		if err := s.ping(c.Request.Context()); err != nil {
			s.logger.Warn(c.Request.Context(), "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
