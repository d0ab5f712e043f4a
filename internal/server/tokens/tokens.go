// Package tokens encodes and decodes opaque refresh tokens.
//
// The wire value is "<userID>.<secret>" where secret is SecretSize random
// bytes in hex. Only the first '.' separates the parts; any further dots are
// part of the secret.
package tokens

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// SecretSize is the number of random bytes behind each secret.
const SecretSize = 32

const separator = "."

// ErrInvalidFormat is returned by Parse for malformed tokens. It matches
// common.ErrInvalidRefreshToken with errors.Is.
var ErrInvalidFormat = fmt.Errorf("%w: invalid format", common.ErrInvalidRefreshToken)

// Generated is a freshly minted refresh token.
type Generated struct {
	Token     string
	Secret    string
	ExpiresAt time.Time
}

// Parsed is a decoded refresh token.
type Parsed struct {
	UserID int64
	Secret string
}

// Codec mints refresh tokens against a clock.
type Codec struct {
	now  timex.Clock
	rand func(size int) (string, error)
}

func NewCodec(now timex.Clock) *Codec {
	if now == nil {
		now = timex.SystemClock
	}
	return &Codec{now: now, rand: common.MakeRandHexString}
}

// Generate returns a new token for userID valid for ttl.
func (c *Codec) Generate(userID int64, ttl time.Duration) (*Generated, error) {
	secret, err := c.rand(SecretSize)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	return &Generated{
		Token:     strconv.FormatInt(userID, 10) + separator + secret,
		Secret:    secret,
		ExpiresAt: c.now().Add(ttl),
	}, nil
}

// IsExpired reports whether expiresAt is strictly before the codec's now.
func (c *Codec) IsExpired(expiresAt time.Time) bool {
	return IsExpiredAt(expiresAt, c.now())
}

// Parse splits token on the first separator.
func Parse(token string) (*Parsed, error) {
	userPart, secret, ok := strings.Cut(token, separator)
	if !ok || userPart == "" || secret == "" {
		return nil, ErrInvalidFormat
	}

	userID, err := strconv.ParseInt(userPart, 10, 64)
	if err != nil {
		return nil, errors.Join(ErrInvalidFormat, err)
	}

	return &Parsed{UserID: userID, Secret: secret}, nil
}

// IsExpiredAt is the strict comparison expiresAt < now. An expiry equal to
// now is still valid.
func IsExpiredAt(expiresAt, now time.Time) bool {
	return expiresAt.Before(now)
}
