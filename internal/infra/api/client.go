// internal/infra/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lesson_planner_bot/internal/domain/auth"
	"lesson_planner_bot/internal/infra/metrics"
)

const (
	DefaultBaseURL = "http://localhost:3000/api/v1"
	defaultTimeout = 30 * time.Second

	loginPath   = "/auth/email/login"
	refreshPath = "/auth/refresh"

	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 64 << 10
)

// Credentials holds the tokens of one logged-in user. Implementations must be
// safe for concurrent use.
type Credentials interface {
	AccessToken(ctx context.Context) string
	RefreshToken(ctx context.Context) string
	// Refreshed stores the result of a successful token refresh that was
	// requested with sentRefreshToken. It returns ErrCredentialsChanged and
	// stores nothing when that token is no longer the current one.
	Refreshed(ctx context.Context, sentRefreshToken string, resp auth.RefreshResponse) error
	// Clear forgets all credentials (logout).
	Clear(ctx context.Context) error
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the transport used for regular calls. Streams always
	// use a client without an overall timeout built on the same transport.
	HTTPClient *http.Client
	// OnSessionExpired is called once after credentials have been cleared
	// because the session could not be renewed.
	OnSessionExpired func(ctx context.Context)
	Logger           *logrus.Entry
}

// Client is an authenticated client of the lesson-planning backend. It adds
// the bearer token to every request and renews it on 401 responses, making
// sure that concurrent failures share a single refresh call.
type Client struct {
	baseURL    string
	http       *http.Client
	streamHTTP *http.Client
	creds      Credentials
	onExpired  func(ctx context.Context)
	logger     *logrus.Entry
	validate   *validator.Validate

	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
}

type refreshResult struct {
	token string
	err   error
}

// NewClient creates a client bound to one user's credentials.
func NewClient(cfg Config, creds Credentials) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	streamClient := &http.Client{Transport: httpClient.Transport}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Client{
		baseURL:    baseURL,
		http:       httpClient,
		streamHTTP: streamClient,
		creds:      creds,
		onExpired:  cfg.OnSessionExpired,
		logger:     logger.WithField("component", "api_client"),
		validate:   newValidator(),
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// stream requests are sent without an overall timeout and carry the
	// access token in the query string as well.
	stream  bool
	retried bool
}

// isAuthEndpoint reports whether a 401 from path must be returned as is.
func isAuthEndpoint(path string) bool {
	return strings.Contains(path, loginPath) || strings.Contains(path, refreshPath)
}

// send performs r and handles the refresh-and-retry path. The caller owns
// the returned response body.
func (c *Client) send(ctx context.Context, r *request) (*http.Response, error) {
	token := c.creds.AccessToken(ctx)
	resp, err := c.roundTrip(ctx, r, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || r.retried || isAuthEndpoint(r.path) {
		return resp, nil
	}
	drain(resp)

	newToken, err := c.renewToken(ctx, token)
	if err != nil {
		return nil, err
	}
	r.retried = true
	return c.roundTrip(ctx, r, newToken)
}

func (c *Client) roundTrip(ctx context.Context, r *request, token string) (*http.Response, error) {
	var body io.Reader
	if r.body != nil {
		buf, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", r.method, r.path, err)
		}
		body = bytes.NewReader(buf)
	}

	query := url.Values{}
	for k, v := range r.query {
		query[k] = v
	}
	if r.stream && token != "" {
		query.Set("token", token)
	}
	target := c.baseURL + r.path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", r.method, r.path, err)
	}
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Content-Type", "application/json")
	if r.stream {
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpClient := c.http
	if r.stream {
		httpClient = c.streamHTTP
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		metrics.ObserveAPIRequest(r.method, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	metrics.ObserveAPIRequest(r.method, resp.StatusCode, time.Since(start))

	c.logger.WithFields(logrus.Fields{
		"method":     r.method,
		"path":       r.path,
		"status":     resp.StatusCode,
		"request_id": requestID,
		"retried":    r.retried,
	}).Debug("API request completed")
	return resp, nil
}

// renewToken returns a fresh access token after staleToken was rejected.
// Only one refresh call is in flight at a time; callers arriving while it
// runs wait for its result.
func (c *Client) renewToken(ctx context.Context, staleToken string) (string, error) {
	c.mu.Lock()
	if current := c.creds.AccessToken(ctx); current != staleToken {
		c.mu.Unlock()
		if current == "" {
			// The session ended while this request was in flight.
			return "", fmt.Errorf("%w: credentials cleared", ErrSessionExpired)
		}
		// Another caller already refreshed after this request was sent.
		return current, nil
	}
	if c.refreshing {
		ch := make(chan refreshResult, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()
		metrics.TokenRefreshWaiters.Inc()

		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	token, err := c.refresh(ctx)

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- refreshResult{token: token, err: err}
	}
	return token, err
}

// Refresh renews the access token now, joining an in-flight refresh if there
// is one.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.renewToken(ctx, c.creds.AccessToken(ctx))
	return err
}

// refresh calls POST /auth/refresh with the stored refresh token. On any
// failure the credentials are cleared and the expiry hook runs.
func (c *Client) refresh(ctx context.Context) (string, error) {
	refreshToken := c.creds.RefreshToken(ctx)
	if refreshToken == "" {
		metrics.TokenRefreshesTotal.WithLabelValues("missing_token").Inc()
		c.logger.Info("No refresh token available, ending session")
		c.expire(ctx)
		return "", fmt.Errorf("%w: no refresh token", ErrSessionExpired)
	}

	// The refresh outlives the caller that triggered it: other requests are
	// waiting on the result.
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout())
	defer cancel()

	resp, err := c.doRefresh(refreshCtx, refreshToken)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
		c.logger.WithError(err).Warn("Token refresh failed, ending session")
		c.expire(ctx)
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	if err := c.creds.Refreshed(ctx, refreshToken, *resp); err != nil {
		if errors.Is(err, ErrCredentialsChanged) {
			metrics.TokenRefreshesTotal.WithLabelValues("discarded").Inc()
			c.logger.Info("Session changed during token refresh, discarding new tokens")
			return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		c.logger.WithError(err).Error("Failed to store refreshed tokens")
	}
	metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()
	c.logger.Debug("Access token refreshed")
	return resp.Token, nil
}

func (c *Client) doRefresh(ctx context.Context, refreshToken string) (*auth.RefreshResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshPath, strings.NewReader("{}"))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+refreshToken)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveAPIRequest(http.MethodPost, 0, time.Since(start))
		return nil, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()
	metrics.ObserveAPIRequest(http.MethodPost, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, readError(resp, requestID)
	}
	var out auth.RefreshResponse
	if err := decodeEnvelope(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	if out.Token == "" {
		return nil, fmt.Errorf("refresh response carries no token")
	}
	return &out, nil
}

func (c *Client) refreshTimeout() time.Duration {
	if c.http.Timeout > 0 {
		return c.http.Timeout
	}
	return defaultTimeout
}

func (c *Client) expire(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := c.creds.Clear(ctx); err != nil {
		c.logger.WithError(err).Error("Failed to clear credentials")
	}
	if c.onExpired != nil {
		c.onExpired(ctx)
	}
}

// do sends a JSON request and decodes the "data" member of the response
// envelope into out (unless out is nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if body != nil {
		if err := c.validateRequest(body); err != nil {
			return err
		}
	}

	resp, err := c.send(ctx, &request{method: method, path: path, query: query, body: body})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return readError(resp, resp.Request.Header.Get(requestIDHeader))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := decodeEnvelope(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) validateRequest(body any) error {
	if err := c.validate.Struct(body); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			return nil
		}
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// envelope is the wrapper every backend response comes in.
type envelope struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Timestamp  string          `json:"timestamp"`
}

func decodeEnvelope(r io.Reader, out any) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func readError(resp *http.Response, requestID string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return parseError(resp.StatusCode, body, requestID)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}

func pathf(format string, ids ...string) string {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = url.PathEscape(id)
	}
	return fmt.Sprintf(format, args...)
}
