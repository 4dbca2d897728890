package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"scingest/internal/config"
	"scingest/internal/logging"
	"scingest/internal/metrics"
	"scingest/internal/services"
)

const (
	component    = "catalog"
	loginPath    = "Users/login"
	requestIDKey = "X-Request-ID"
)

// ResponseError carries a non-2xx catalog response.
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, body)
}

// Retryable reports whether the catalog may accept the same request later.
func (e *ResponseError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// Client is a catalog API client.
type Client struct {
	http          *resty.Client
	baseURL       string
	maxTries      int
	retryInterval time.Duration
	logger        *slog.Logger
	metrics       *metrics.Recorder
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records request latency and retries.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Client) { c.metrics = r }
}

// WithHeaders replaces the request headers sent with every call.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		if len(headers) > 0 {
			c.http.SetHeaders(headers)
		}
	}
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithRetry sets the attempt ceiling and the fixed pause between attempts
// used by SubmitWithRetry.
func WithRetry(maxTries int, interval time.Duration) Option {
	return func(c *Client) {
		if maxTries > 0 {
			c.maxTries = maxTries
		}
		if interval >= 0 {
			c.retryInterval = interval
		}
	}
}

// New returns a client for the catalog rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	c := &Client{
		baseURL:       base,
		maxTries:      1,
		retryInterval: time.Second,
		logger:        logging.NewNop(),
	}
	c.http = resty.New().
		SetBaseURL(base).
		SetTimeout(30 * time.Second).
		SetHeaders(config.DefaultRequestHeaders())
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, component)
	return c
}

// NewFromConfig builds a client from the [catalog] section.
func NewFromConfig(cfg *config.Config, opts ...Option) *Client {
	base := []Option{
		WithHeaders(cfg.Headers()),
		WithTimeout(cfg.RequestTimeout()),
		WithRetry(cfg.Catalog.MaxRequestTriesNumber, cfg.RetryInterval()),
	}
	return New(cfg.Catalog.URL, append(base, opts...)...)
}

// BaseURL returns the catalog root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// AcquireToken logs in and returns the session token from the response's
// "id" field. Every failure is an authentication error; connection failures
// are additionally transport errors.
func (c *Client) AcquireToken(ctx context.Context, username, password string) (string, error) {
	ctx, requestID := withRequestID(ctx)
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(requestIDKey, requestID).
		SetBody(map[string]string{"username": username, "password": password}).
		Post(loginPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", services.ErrAuthentication,
			services.Wrap(services.ErrTransport, component, "login", c.baseURL+"/"+loginPath, err))
	}
	if !resp.IsSuccess() {
		return "", services.Wrap(services.ErrAuthentication, component, "login", "login rejected",
			&ResponseError{StatusCode: resp.StatusCode(), Body: resp.String()})
	}
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return "", services.Wrap(services.ErrAuthentication, component, "login", "decode login response", err)
	}
	if strings.TrimSpace(payload.ID) == "" {
		return "", services.Wrap(services.ErrAuthentication, component, "login", "login response has no token id", nil)
	}
	logging.WithContext(ctx, c.logger).Debug("catalog token acquired",
		logging.String(logging.FieldEventType, "token_acquired"),
		logging.String("username", username),
	)
	return payload.ID, nil
}

// Submit posts body to the model endpoint once.
func (c *Client) Submit(ctx context.Context, model, token string, body []byte) error {
	model = strings.Trim(strings.TrimSpace(model), "/")
	if model == "" {
		return services.Wrap(services.ErrSubmission, component, "submit", "model name is empty", nil)
	}
	ctx, requestID := withRequestID(ctx)
	started := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(requestIDKey, requestID).
		SetQueryParam("access_token", token).
		SetBody(body).
		Post(model)
	c.metrics.ObserveRequest(model, time.Since(started).Seconds())
	if err != nil {
		return services.Wrap(services.ErrTransport, component, "submit", model, err)
	}
	if !resp.IsSuccess() {
		return services.Wrap(services.ErrSubmission, component, "submit", model,
			&ResponseError{StatusCode: resp.StatusCode(), Body: resp.String()})
	}
	return nil
}

// SubmitWithRetry calls Submit until it succeeds, fails permanently, the
// context ends, or the attempt ceiling is reached. The pause between attempts
// is constant.
func (c *Client) SubmitWithRetry(ctx context.Context, model, token string, body []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}
	attempt := 0
	op := func() error {
		attempt++
		err := c.Submit(ctx, model, token, body)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.metrics.ObserveRetry(model)
		logging.WithContext(ctx, c.logger).Info("catalog submission retry",
			logging.String(logging.FieldEventType, "submission_retry"),
			logging.String(logging.FieldModel, model),
			logging.Int("attempt", attempt),
			logging.Int("max_tries", c.maxTries),
			logging.Duration("wait", wait),
			logging.Error(err),
		)
	}

	var policy backoff.BackOff = backoff.NewConstantBackOff(c.retryInterval)
	policy = backoff.WithMaxRetries(policy, uint64(max(c.maxTries-1, 0)))
	policy = backoff.WithContext(policy, ctx)

	err := backoff.RetryNotify(op, policy, notify)
	if err != nil && errors.Is(err, ctx.Err()) {
		return services.Wrap(services.ErrTransport, component, "submit", fmt.Sprintf("%s interrupted after %d attempts", model, attempt), err)
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, services.ErrTransport) {
		return true
	}
	var resp *ResponseError
	if errors.As(err, &resp) {
		return resp.Retryable()
	}
	return false
}

func withRequestID(ctx context.Context) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if id, ok := services.RequestIDFromContext(ctx); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return services.WithRequestID(ctx, id), id
}
