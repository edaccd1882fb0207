package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Endpoint paths.
const (
	PathRegister       = "/register"
	PathLogin          = "/login"
	PathChangePassword = "/change-password"
	PathCounter        = "/counter"
)

const (
	// DefaultMaxResponseBytes caps how much of a response body is read.
	DefaultMaxResponseBytes int64 = 64 << 10
	// DefaultUserAgent is sent when Config.UserAgent is empty.
	DefaultUserAgent = "gocounter-client/1"
	// HeaderRequestID carries the per-call correlation ID.
	HeaderRequestID = "X-Request-ID"
)

// Op names one endpoint call. It is reported to observers and log lines.
type Op string

const (
	OpRegister       Op = "register"
	OpLogin          Op = "login"
	OpChangePassword Op = "change_password"
	OpGetCounter     Op = "get_counter"
	OpIncrement      Op = "increment_counter"
	OpReset          Op = "reset_counter"
)

// Config configures a [Client].
type Config struct {
	BaseURL string
	// Timeout bounds each request when the caller's context has no deadline.
	// Zero means no client-side bound.
	Timeout          time.Duration
	MaxResponseBytes int64
	UserAgent        string
}

// Call describes one finished request for observers.
type Call struct {
	Op       Op
	Duration time.Duration
	Outcome  Outcome
}

// Observer is notified after every call, including short-circuited ones.
type Observer func(Call)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the logger used for per-request debug lines.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers a hook called after every request.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observe = o }
}

// Client talks to the counter service. It is safe for concurrent use.
type Client struct {
	base    *url.URL
	cfg     Config
	http    *http.Client
	logger  *slog.Logger
	observe Observer
}

// New validates cfg and returns a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("api: base URL is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("api: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api: base URL scheme must be http or https, got %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, errors.New("api: base URL has no host")
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("api: timeout must be >= 0")
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	c := &Client{
		base:   base,
		cfg:    cfg,
		http:   &http.Client{},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the service root the client was built with.
func (c *Client) BaseURL() string { return c.base.String() }

type credentialsBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordBody struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// Register creates an account. Any 2xx is success; on failure the returned
// [*Error] carries the raw server body as its message.
func (c *Client) Register(ctx context.Context, username, password string) error {
	res := c.do(ctx, OpRegister, http.MethodPost, PathRegister, "", credentialsBody{username, password}, false)
	return res.outcome.Err()
}

// Login exchanges username and password for a credential. A 2xx whose body
// lacks a token or role is a failure wrapping ErrMalformedResponse.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	res := c.doRaw(ctx, OpLogin, http.MethodPost, PathLogin, "", credentialsBody{username, password}, false)
	if !res.outcome.OK() {
		c.finish(res)
		return LoginResult{}, res.outcome.Err()
	}

	var out LoginResult
	if err := json.Unmarshal(res.body, &out); err != nil || out.Token == "" || out.Role == "" {
		res.outcome = failure(res.outcome.Status, "malformed login response", res.outcome.RequestID, ErrMalformedResponse)
		c.finish(res)
		return LoginResult{}, res.outcome.Err()
	}
	c.finish(res)
	return out, nil
}

// ChangePassword replaces the password of the account token belongs to.
func (c *Client) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) Outcome {
	res := c.do(ctx, OpChangePassword, http.MethodPost, PathChangePassword, token, changePasswordBody{oldPassword, newPassword}, true)
	return res.outcome
}

// GetCounter reads the current value.
func (c *Client) GetCounter(ctx context.Context, token string) CounterOutcome {
	return c.counterCall(ctx, OpGetCounter, http.MethodGet, token)
}

// IncrementCounter adds one and returns the new value.
func (c *Client) IncrementCounter(ctx context.Context, token string) CounterOutcome {
	return c.counterCall(ctx, OpIncrement, http.MethodPost, token)
}

// ResetCounter sets the value to zero. The request is sent whatever the
// caller's role; server-side denial comes back as a failure.
func (c *Client) ResetCounter(ctx context.Context, token string) CounterOutcome {
	return c.counterCall(ctx, OpReset, http.MethodDelete, token)
}

func (c *Client) counterCall(ctx context.Context, op Op, method, token string) CounterOutcome {
	res := c.doRaw(ctx, op, method, PathCounter, token, nil, true)
	if !res.outcome.OK() {
		c.finish(res)
		return CounterOutcome{Outcome: res.outcome}
	}

	var body struct {
		Value *int64 `json:"value"`
	}
	if err := json.Unmarshal(res.body, &body); err != nil || body.Value == nil {
		res.outcome = failure(res.outcome.Status, "malformed counter response", res.outcome.RequestID, ErrMalformedResponse)
		c.finish(res)
		return CounterOutcome{Outcome: res.outcome}
	}
	c.finish(res)
	return CounterOutcome{Outcome: res.outcome, Value: *body.Value}
}

type result struct {
	op      Op
	method  string
	path    string
	started time.Time
	outcome Outcome
	body    []byte
}

// do performs the request and reports it immediately.
func (c *Client) do(ctx context.Context, op Op, method, path, token string, payload any, authenticated bool) result {
	res := c.doRaw(ctx, op, method, path, token, payload, authenticated)
	c.finish(res)
	return res
}

// doRaw performs the request and classifies the status code; body decoding
// and reporting are left to the caller.
func (c *Client) doRaw(ctx context.Context, op Op, method, path, token string, payload any, authenticated bool) result {
	res := result{op: op, method: method, path: path, started: time.Now()}
	requestID := uuid.NewString()

	if authenticated && strings.TrimSpace(token) == "" {
		res.outcome = failure(0, ErrNoCredential.Error(), "", ErrNoCredential)
		return res
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	var reader io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			res.outcome = failure(0, "encode request body", requestID, err)
			return res
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), reader)
	if err != nil {
		res.outcome = failure(0, "build request", requestID, err)
		return res
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set(HeaderRequestID, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		res.outcome = transportFailure(err, requestID)
		return res
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseBytes+1))
	if err != nil {
		res.outcome = transportFailure(err, requestID)
		return res
	}
	if int64(len(body)) > c.cfg.MaxResponseBytes {
		res.outcome = failure(resp.StatusCode, "response body too large", requestID, ErrMalformedResponse)
		return res
	}
	res.body = body

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		res.outcome = success(resp.StatusCode, requestID)
	case resp.StatusCode == http.StatusUnauthorized && authenticated:
		res.outcome = Outcome{
			Kind:      KindUnauthorized,
			Status:    resp.StatusCode,
			Message:   bodyMessage(resp.StatusCode, body),
			RequestID: requestID,
		}
	default:
		res.outcome = failure(resp.StatusCode, bodyMessage(resp.StatusCode, body), requestID, nil)
	}
	return res
}

func (c *Client) finish(res result) {
	elapsed := time.Since(res.started)
	c.logger.Debug("counter api call",
		"op", string(res.op),
		"method", res.method,
		"path", res.path,
		"request_id", res.outcome.RequestID,
		"status", res.outcome.Status,
		"kind", res.outcome.Kind.String(),
		"duration_ms", elapsed.Milliseconds(),
	)
	if c.observe != nil {
		c.observe(Call{Op: res.op, Duration: elapsed, Outcome: res.outcome})
	}
}

// bodyMessage extracts the diagnostic text of an error response. Plain text
// is returned trimmed; a JSON object with an "error" string yields that
// string. An empty body falls back to the status text.
func bodyMessage(status int, body []byte) string {
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "{") {
		var obj struct {
			Error string `json:"error"`
		}
		if json.Unmarshal([]byte(text), &obj) == nil && obj.Error != "" {
			return obj.Error
		}
	}
	if text == "" {
		return http.StatusText(status)
	}
	return text
}
