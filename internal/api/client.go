package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Backoff constants.
const (
	baseBackoff      = 1 * time.Second
	maxBackoff       = 30 * time.Second
	backoffFactor    = 2.0
	jitterFraction   = 0.25
	defaultUserAgent = "screener-go/0.1"
)

// Header names sent on every request.
const (
	headerUserID    = "X-User-Id"
	headerRequestID = "X-Request-Id"
)

// envelopeSuccess is the status value of a successful envelope.
const envelopeSuccess = "success"

// HeaderSource yields the identity headers for one request. It is called
// once per attempt, just before dispatch, so credentials are never cached by
// the client. An empty authorization means "send no Authorization header";
// userID is always sent.
type HeaderSource interface {
	Headers(ctx context.Context) (authorization, userID string)
}

// HeaderFunc adapts a plain function to HeaderSource.
type HeaderFunc func(ctx context.Context) (authorization, userID string)

// Headers calls f(ctx).
func (f HeaderFunc) Headers(ctx context.Context) (string, string) { return f(ctx) }

// Client is an HTTP client for the screening service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    HeaderSource
	logger     *slog.Logger
	userAgent  string
	maxRetries int

	// sleepFunc is called to wait between retries. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithMaxRetries sets how many times a failed request is retried. Zero, the
// default, disables retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient creates a client. baseURL includes the "/api" prefix, for example
// "http://127.0.0.1:8000/api".
func NewClient(baseURL string, httpClient *http.Client, headers HeaderSource, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		headers:    headers,
		logger:     logger,
		userAgent:  defaultUserAgent,
		sleepFunc:  timeSleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one logical call. The body is buffered so that retries
// resend identical bytes.
type request struct {
	method      string
	path        string
	body        []byte
	contentType string
}

// do executes a request and returns the response of the final attempt.
// Non-2xx responses are converted to *APIError. The caller closes the body.
func (c *Client) do(ctx context.Context, r request) (*http.Response, error) {
	var attempt int

	for {
		reqID := uuid.NewString()

		resp, err := c.doOnce(ctx, r, reqID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("api: request canceled: %w", ctx.Err())
			}

			if attempt < c.maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", r.method),
					slog.String("path", r.path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("api: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("api: %s %s failed: %w", r.method, r.path, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", r.method),
				slog.String("path", r.path),
				slog.Int("status", resp.StatusCode),
				slog.String("request_id", reqID),
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < c.maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", r.method),
				slog.String("path", r.path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("api: request canceled: %w", err)
			}

			attempt++

			continue
		}

		if id := resp.Header.Get(headerRequestID); id != "" {
			reqID = id
		}

		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			RequestID:  reqID,
			Message:    errorMessage(errBody),
			Err:        classifyStatus(resp.StatusCode),
		}

		c.logger.Debug("request failed",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.Int("status", resp.StatusCode),
			slog.Int("attempts", attempt+1),
			slog.String("request_id", reqID),
		)

		return nil, apiErr
	}
}

// doOnce executes a single HTTP request. Identity headers are resolved here,
// per attempt.
func (c *Client) doOnce(ctx context.Context, r request, reqID string) (*http.Response, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	authz, userID := "", ""
	if c.headers != nil {
		authz, userID = c.headers.Headers(ctx)
	}

	if authz != "" {
		req.Header.Set("Authorization", authz)
	}

	req.Header.Set(headerUserID, userID)
	req.Header.Set(headerRequestID, reqID)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	return c.httpClient.Do(req)
}

// envelope is the status wrapper the service puts around most responses.
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// call sends in (JSON-encoded when non-nil) and decodes the response into
// out. When strict is set the response must carry status "success".
func (c *Client) call(ctx context.Context, method, path string, in, out any, strict bool) error {
	r := request{method: method, path: path}

	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encoding %s %s: %w", method, path, err)
		}

		r.body = data
		r.contentType = "application/json"
	}

	return c.roundTrip(ctx, r, out, strict)
}

func (c *Client) roundTrip(ctx context.Context, r request, out any, strict bool) error {
	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: reading %s %s response: %w", r.method, r.path, err)
	}

	if err := checkEnvelope(resp, data, strict); err != nil {
		return err
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: decoding %s %s response: %w", r.method, r.path, err)
	}

	return nil
}

// checkEnvelope rejects a 2xx body whose envelope status is not "success".
// A body without a status field passes unless strict is set.
func checkEnvelope(resp *http.Response, data []byte, strict bool) error {
	var env envelope
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &env); err != nil {
			return &APIError{
				StatusCode: resp.StatusCode,
				RequestID:  resp.Request.Header.Get(headerRequestID),
				Message:    "malformed response body",
				Err:        fmt.Errorf("%w: %w", ErrUnexpected, err),
			}
		}
	}

	if env.Status == envelopeSuccess || (env.Status == "" && !strict) {
		return nil
	}

	msg := env.Message
	if msg == "" {
		msg = fmt.Sprintf("response status %q", env.Status)
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Request.Header.Get(headerRequestID),
		Status:     env.Status,
		Message:    msg,
		Err:        ErrEnvelope,
	}
}

// errorMessage extracts a human-readable message from an error body. FastAPI
// puts it in "detail", which is a string or a list of validation errors.
func errorMessage(body []byte) string {
	var fastapi struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}

	if err := json.Unmarshal(body, &fastapi); err != nil {
		return strings.TrimSpace(string(body))
	}

	if len(fastapi.Detail) > 0 {
		var s string
		if json.Unmarshal(fastapi.Detail, &s) == nil {
			return s
		}

		var items []struct {
			Msg string `json:"msg"`
		}

		if json.Unmarshal(fastapi.Detail, &items) == nil && len(items) > 0 {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				msgs = append(msgs, it.Msg)
			}

			return strings.Join(msgs, "; ")
		}
	}

	if fastapi.Message != "" {
		return fastapi.Message
	}

	return strings.TrimSpace(string(body))
}

// retryBackoff honors Retry-After on 429 and 503.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
