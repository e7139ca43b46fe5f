package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL       = "https://160.191.175.172:8443"
	DefaultTimeout       = 12 * time.Second
	DefaultHealthTimeout = 5 * time.Second
	defaultUserAgent     = "ticket-wallet"
	defaultMaxAttempts   = 1
	defaultRetryBase     = 200 * time.Millisecond
	defaultRetryCap      = 1200 * time.Millisecond
)

// Client wraps HTTP access to the ticketing API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	userAgent     string
	maxAttempts   int
	retryBase     time.Duration
	retryCap      time.Duration
	healthTimeout time.Duration
	logger        *slog.Logger
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithMaxAttempts enables retries of GET requests on 429, 5xx and
// transport errors. Non-idempotent requests are never retried.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithHealthTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.healthTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new API client. If httpClient is nil, a default client is used.
func NewClient(httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout, false)
	}
	c := &Client{
		httpClient:    httpClient,
		baseURL:       DefaultBaseURL,
		userAgent:     defaultUserAgent,
		maxAttempts:   defaultMaxAttempts,
		retryBase:     defaultRetryBase,
		retryCap:      defaultRetryCap,
		healthTimeout: DefaultHealthTimeout,
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTPClient builds the API transport, optionally skipping TLS
// certificate verification.
func NewHTTPClient(timeout time.Duration, insecureSkipVerify bool) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	method   string
	endpoint string
	token    string
	body     any
}

func (c *Client) doJSON(ctx context.Context, r request, out any) error {
	maxAttempts := c.maxAttempts
	if maxAttempts < 1 || r.method != http.MethodGet {
		maxAttempts = 1
	}

	var payload []byte
	if r.body != nil {
		var err error
		payload, err = json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, r.endpoint, body)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if r.token != "" {
			req.Header.Set("Authorization", "Bearer "+r.token)
		}

		started := time.Now()
		res, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Debug("api request failed",
				"method", r.method,
				"endpoint", r.endpoint,
				"attempt", attempt,
				"error", err,
			)
			if c.shouldRetryNetworkError(err) && attempt < maxAttempts {
				if waitErr := c.waitRetry(ctx, attempt); waitErr != nil {
					return &NetworkError{Endpoint: r.endpoint, Err: waitErr}
				}
				continue
			}
			return &NetworkError{Endpoint: r.endpoint, Err: err}
		}
		c.logger.Debug("api request",
			"method", r.method,
			"endpoint", r.endpoint,
			"status", res.StatusCode,
			"attempt", attempt,
			"duration", time.Since(started),
		)

		if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
			snippet, _ := io.ReadAll(io.LimitReader(res.Body, 8<<10))
			_ = res.Body.Close()

			serverErr := &ServerError{
				StatusCode: res.StatusCode,
				Status:     res.Status,
				Endpoint:   r.endpoint,
				Body:       strings.TrimSpace(string(snippet)),
			}
			serverErr.Code, serverErr.Message = parseErrorBody(snippet)
			if c.shouldRetryStatus(res.StatusCode) && attempt < maxAttempts {
				if waitErr := c.waitRetry(ctx, attempt); waitErr != nil {
					return &NetworkError{Endpoint: r.endpoint, Err: waitErr}
				}
				continue
			}
			return serverErr
		}

		if out == nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 8<<10))
			_ = res.Body.Close()
			return nil
		}

		dec := json.NewDecoder(res.Body)
		err = dec.Decode(out)
		_ = res.Body.Close()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return &ServerError{
				StatusCode: res.StatusCode,
				Status:     res.Status,
				Endpoint:   r.endpoint,
				Message:    "unexpected response from server",
				Err:        fmt.Errorf("decode response from %s: %w", r.endpoint, err),
			}
		}
		return nil
	}

	return errors.New("request failed after retries")
}

func parseErrorBody(body []byte) (int, string) {
	var parsed struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, ""
	}
	if parsed.Message == "" {
		parsed.Message = parsed.Error
	}
	return parsed.Code, strings.TrimSpace(parsed.Message)
}

func (c *Client) shouldRetryStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func (c *Client) shouldRetryNetworkError(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) waitRetry(ctx context.Context, attempt int) error {
	delay := c.retryDelay(attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := c.retryBase
	if base <= 0 {
		base = defaultRetryBase
	}
	limit := c.retryCap
	if limit <= 0 {
		limit = defaultRetryCap
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= limit/2 {
			return limit
		}
		delay *= 2
	}
	if delay > limit {
		return limit
	}
	return delay
}
