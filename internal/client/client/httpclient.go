package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/authkeeper/internal/client/models"
	"github.com/dmitrijs2005/authkeeper/internal/common"
)

const maxErrorBody = 1 << 20

// HTTPClient talks to the auth server's JSON API.
type HTTPClient struct {
	baseURL    string
	http       *http.Client
	maxRetries uint64
	baseDelay  time.Duration

	mu        sync.Mutex
	tokens    models.Tokens
	onRefresh func(models.Tokens)

	// refreshMu serialises token refreshes so a rotated refresh token is
	// never presented twice.
	refreshMu sync.Mutex
}

type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *HTTPClient) { c.http = h }
}

// WithRetry sets how many times a failed network call is retried and the
// base delay of the exponential backoff between attempts.
func WithRetry(maxRetries uint64, baseDelay time.Duration) Option {
	return func(c *HTTPClient) {
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
	}
}

func NewHTTPClient(baseURL string, timeout time.Duration, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: timeout},
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *HTTPClient) Tokens() models.Tokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

func (c *HTTPClient) SetTokens(t models.Tokens) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = t
}

func (c *HTTPClient) OnTokensRefreshed(fn func(models.Tokens)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRefresh = fn
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

type request struct {
	method string
	path   string
	body   any
	header http.Header
	auth   bool
}

// do sends r and decodes a 2xx answer into out. An authenticated request
// rejected with "token_expired" is retried once after a token refresh.
func (c *HTTPClient) do(ctx context.Context, r request, out any) error {
	var body []byte
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = b
	}

	if !r.auth {
		return c.send(ctx, r, body, "", out)
	}

	token := c.Tokens().AccessToken
	if token == "" {
		return ErrNotLoggedIn
	}

	err := c.send(ctx, r, body, token, out)
	if !IsCode(err, "token_expired") {
		return err
	}

	if err := c.refresh(ctx, token); err != nil {
		return err
	}

	return c.send(ctx, r, body, c.Tokens().AccessToken, out)
}

func (c *HTTPClient) refresh(ctx context.Context, staleAccess string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	current := c.Tokens()
	if current.AccessToken != staleAccess {
		// refreshed concurrently
		return nil
	}
	if current.RefreshToken == "" {
		return ErrNotLoggedIn
	}

	var fresh models.Tokens
	r := request{method: http.MethodPost, path: "/auth/refresh", body: map[string]string{"refreshToken": current.RefreshToken}}
	body, _ := json.Marshal(r.body)
	if err := c.send(ctx, r, body, "", &fresh); err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	if fresh.User == nil {
		fresh.User = current.User
	}

	c.mu.Lock()
	c.tokens = fresh
	fn := c.onRefresh
	c.mu.Unlock()

	if fn != nil {
		fn(fresh)
	}
	return nil
}

func (c *HTTPClient) send(ctx context.Context, r request, body []byte, token string, out any) error {
	var resp *http.Response

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, rd)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, vs := range r.header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if token != "" {
			req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
		}

		res, err := c.http.Do(req)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrUnavailable, err)
			if retryable(r.method, err) {
				return retry.RetryableError(err)
			}
			return err
		}
		resp = res
		return nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// retryable reports whether a failed attempt may be repeated. Requests that
// never reached the server are always safe to repeat.
func retryable(method string, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
	}
	return apiErr
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, request{method: http.MethodGet, path: "/healthz"}, nil)
}

func (c *HTTPClient) Register(ctx context.Context, reg models.Registration) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, request{method: http.MethodPost, path: "/users/register", body: reg}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) Login(ctx context.Context, login, password string) (*models.Tokens, error) {
	var t models.Tokens
	body := map[string]string{"login": login, "password": password}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/login", body: body}, &t); err != nil {
		return nil, err
	}
	c.SetTokens(t)
	return &t, nil
}

// Logout ends sessionID, or every session of the user when it is 0. The
// held tokens are dropped on success.
func (c *HTTPClient) Logout(ctx context.Context, sessionID int64) error {
	r := request{method: http.MethodPost, path: "/auth/logout", auth: true}
	if sessionID > 0 {
		r.header = http.Header{common.SessionIDHeaderName: []string{strconv.FormatInt(sessionID, 10)}}
	}
	if err := c.do(ctx, r, nil); err != nil {
		return err
	}
	c.SetTokens(models.Tokens{})
	return nil
}

func (c *HTTPClient) VerifyEmail(ctx context.Context, email, code string) error {
	body := map[string]string{"email": email, "code": code}
	return c.do(ctx, request{method: http.MethodPost, path: "/auth/verify-email", body: body}, nil)
}

func (c *HTTPClient) ResendVerification(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return c.do(ctx, request{method: http.MethodPost, path: "/auth/resend-verification", body: body}, nil)
}

func (c *HTTPClient) Sessions(ctx context.Context) ([]models.Session, error) {
	var out []models.Session
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/sessions", auth: true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) RevokeSession(ctx context.Context, sessionID int64) error {
	path := "/auth/sessions/" + strconv.FormatInt(sessionID, 10)
	return c.do(ctx, request{method: http.MethodDelete, path: path, auth: true}, nil)
}

func (c *HTTPClient) RevokeOtherSessions(ctx context.Context, currentSessionID int64) (int64, error) {
	var out struct {
		Revoked int64 `json:"revoked"`
	}
	r := request{
		method: http.MethodDelete,
		path:   "/auth/sessions",
		body:   map[string]int64{"currentTokenId": currentSessionID},
		auth:   true,
	}
	if err := c.do(ctx, r, &out); err != nil {
		return 0, err
	}
	return out.Revoked, nil
}

func (c *HTTPClient) Profile(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/users/profile/my", auth: true}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, request{method: http.MethodPatch, path: "/users/profile/my", body: upd, auth: true}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) DeleteProfile(ctx context.Context) error {
	if err := c.do(ctx, request{method: http.MethodDelete, path: "/users/profile/my", auth: true}, nil); err != nil {
		return err
	}
	c.SetTokens(models.Tokens{})
	return nil
}

func (c *HTTPClient) ListUsers(ctx context.Context, page, limit int, loginFilter string) (*models.UsersPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if loginFilter != "" {
		q.Set("loginFilter", loginFilter)
	}
	path := "/users"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var p models.UsersPage
	if err := c.do(ctx, request{method: http.MethodGet, path: path, auth: true}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) CheckAvailability(ctx context.Context, login, email string) (*models.Availability, error) {
	q := url.Values{}
	if login != "" {
		q.Set("login", login)
	}
	if email != "" {
		q.Set("email", email)
	}

	var a models.Availability
	if err := c.do(ctx, request{method: http.MethodGet, path: "/users/check-availability?" + q.Encode()}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
