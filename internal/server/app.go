// Package server wires the auth server together: storage, migrations,
// mail, rate limiting, metrics, the HTTP API and the session sweeper.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/authkeeper/internal/server/mail"
	"github.com/dmitrijs2005/authkeeper/internal/server/maintenance"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	redis       *redis.Client
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	authService *services.AuthService
	userService *services.UserService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	app := &App{config: c, logger: logger, db: db, registry: registry, metrics: m}

	var resendLimiter, verifyLimiter services.Limiter = ratelimit.Noop{}, ratelimit.Noop{}
	if c.RedisAddr != "" {
		app.redis = ratelimit.NewClient(c.RedisAddr, c.RedisPassword, c.RedisDB)
		resendLimiter = ratelimit.NewFixedWindow(app.redis, "resend_verification", c.ResendLimit, c.ResendWindow)
		verifyLimiter = ratelimit.NewFixedWindow(app.redis, "verify_email", c.VerifyAttemptLimit, c.ResendWindow)
	} else {
		logger.Warn(ctx, "redis address not configured, verification rate limiting disabled")
	}

	mailer, err := newMailer(ctx, c, logger)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("mailer init error: %w", err)
	}

	tx := dbx.NewSQLTransactor(db, nil)
	passwords := auth.NewBcryptHasher(c.BcryptCost)

	app.authService = services.NewAuthService(services.AuthDeps{
		Tx:            tx,
		Repos:         rm,
		Passwords:     passwords,
		Secrets:       auth.SHA256Hasher{},
		Signer:        auth.NewJWTSigner([]byte(c.SecretKey), c.AccessTokenValidityDuration, nil),
		Mailer:        mailer,
		ResendLimiter: resendLimiter,
		VerifyLimiter: verifyLimiter,
		Metrics:       m,
		Logger:        logger,
	}, services.AuthConfig{
		RefreshTokenTTL:     c.RefreshTokenValidityDuration,
		VerificationCodeTTL: c.VerificationCodeValidityDuration,
		RequireVerification: c.RequireEmailVerification,
	})
	app.userService = services.NewUserService(tx, rm, passwords, app.authService, logger)

	return app, nil
}

// newMailer prefers SES, then SMTP, and falls back to logging.
func newMailer(ctx context.Context, c *config.Config, logger logging.Logger) (services.Mailer, error) {
	switch {
	case c.SESRegion != "":
		return mail.NewSESSender(ctx, mail.SESConfig{
			Region:       c.SESRegion,
			AccessKey:    c.SESAccessKey,
			SecretKey:    c.SESSecretKey,
			BaseEndpoint: c.SESBaseEndpoint,
			From:         c.MailFrom,
		})
	case c.SMTPAddr != "":
		return mail.NewSMTPSender(c.SMTPAddr, c.SMTPUser, c.SMTPPassword, c.MailFrom), nil
	default:
		logger.Warn(ctx, "no mail transport configured, emails will only be logged")
		return mail.NewLogSender(logger), nil
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.config.HTTPAddr, app.logger, app.authService, app.userService,
		httpapi.WithMetrics(app.metrics, app.registry),
		httpapi.WithHealthCheck(app.db.PingContext),
	)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) close(ctx context.Context) {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error(ctx, "redis close failed", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close failed", "error", err)
	}
}

// Run serves until SIGINT/SIGTERM or a fatal server error.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		maintenance.NewSweeper(app.authService, app.config.CleanupInterval, app.config.CleanupRetention, app.logger).Run(ctx)
	}()

	wg.Wait()

	app.close(context.Background())
	app.logger.Info(context.Background(), "App stopped")
}
