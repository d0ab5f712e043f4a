// Package ratelimit throttles email-verification traffic with Redis backed
// fixed windows.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// ErrUnavailable is returned when Redis cannot be reached.
var ErrUnavailable = errors.New("rate limiter unavailable")

// FixedWindow allows at most Max hits per key within Window. The window
// starts on the first hit.
type FixedWindow struct {
	redis  redis.UniversalClient
	prefix string
	max    int
	window time.Duration
}

func NewFixedWindow(client redis.UniversalClient, prefix string, max int, window time.Duration) *FixedWindow {
	return &FixedWindow{redis: client, prefix: prefix, max: max, window: window}
}

// Allow records a hit for key. It returns common.ErrRateLimited once the
// window is exhausted.
func (l *FixedWindow) Allow(ctx context.Context, key string) error {
	k := l.prefix + ":" + strings.ToLower(strings.TrimSpace(key))

	// The key is created with its TTL and incremented in one MULTI, so a
	// counter never outlives its window.
	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SetNX(ctx, k, 0, l.window)
		incr = p.Incr(ctx, k)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if incr.Val() > int64(l.max) {
		return common.ErrRateLimited
	}
	return nil
}

// Noop never limits. Used when no Redis address is configured.
type Noop struct{}

func (Noop) Allow(context.Context, string) error { return nil }

// NewClient builds a go-redis client for addr.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}
