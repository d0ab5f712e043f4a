// Package maintenance runs periodic housekeeping for the auth server.
package maintenance

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// SessionCleaner deletes sessions that expired more than retention ago.
type SessionCleaner interface {
	CleanupExpiredSessions(ctx context.Context, retention time.Duration) (int64, error)
}

// Sweeper periodically removes expired sessions.
type Sweeper struct {
	cleaner   SessionCleaner
	interval  time.Duration
	retention time.Duration
	logger    logging.Logger
}

func NewSweeper(c SessionCleaner, interval, retention time.Duration, l logging.Logger) *Sweeper {
	return &Sweeper{
		cleaner:   c,
		interval:  interval,
		retention: retention,
		logger:    l.With("module", "sweeper"),
	}
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.cleaner.CleanupExpiredSessions(ctx, s.retention)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info(ctx, "expired sessions deleted", "count", n)
	}
	return n, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
// A non-positive interval disables the sweeper.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info(ctx, "sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error(ctx, "session sweep failed", "error", err)
	}
}
