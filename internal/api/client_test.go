package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticHeaders returns fixed identity headers and counts lookups.
type staticHeaders struct {
	authz  string
	userID string
	calls  atomic.Int32
}

func (h *staticHeaders) Headers(context.Context) (string, string) {
	h.calls.Add(1)
	return h.authz, h.userID
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(t *testing.T, handler http.HandlerFunc, headers HeaderSource, opts ...Option) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, srv.Client(), headers, nil, opts...)
	c.sleepFunc = noSleep

	return c
}

func TestClient_SendsIdentityHeaders(t *testing.T) {
	t.Parallel()

	var got http.Header

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}, &staticHeaders{authz: "Bearer abc", userID: "alex@example.com"}, WithUserAgent("test-agent/1"))

	require.NoError(t, c.call(context.Background(), http.MethodGet, "/x", nil, nil, true))

	assert.Equal(t, "Bearer abc", got.Get("Authorization"))
	assert.Equal(t, "alex@example.com", got.Get("X-User-Id"))
	assert.Equal(t, "test-agent/1", got.Get("User-Agent"))
	assert.Len(t, got.Get("X-Request-Id"), 36)
}

func TestClient_OmitsEmptyAuthorization(t *testing.T) {
	t.Parallel()

	var got http.Header

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}, &staticHeaders{userID: "guest"})

	require.NoError(t, c.call(context.Background(), http.MethodGet, "/x", nil, nil, true))

	_, present := got["Authorization"]
	assert.False(t, present)
	assert.Equal(t, "guest", got.Get("X-User-Id"))
	assert.Equal(t, defaultUserAgent, got.Get("User-Agent"))
}

func TestClient_NoRetryByDefault(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail":"down for maintenance"}`))
	}, &staticHeaders{userID: "u"})

	err := c.call(context.Background(), http.MethodGet, "/x", nil, nil, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(1), hits.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "down for maintenance", apiErr.Message)
	assert.NotEmpty(t, apiErr.RequestID)
}

func TestClient_RetriesWhenEnabled(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	headers := &staticHeaders{userID: "u"}
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		_, _ = w.Write([]byte(`{"status":"success"}`))
	}, headers, WithMaxRetries(3))

	require.NoError(t, c.call(context.Background(), http.MethodPost, "/x", map[string]string{"a": "b"}, nil, true))
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, int32(3), headers.calls.Load(), "headers are resolved per attempt")
}

func TestClient_RetryResendsBody(t *testing.T) {
	t.Parallel()

	var (
		mu     gosync.Mutex
		bodies []string
	)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)

		mu.Lock()
		bodies = append(bodies, buf.String())
		n := len(bodies)
		mu.Unlock()

		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		_, _ = w.Write([]byte(`{"status":"success"}`))
	}, &staticHeaders{}, WithMaxRetries(1))

	require.NoError(t, c.call(context.Background(), http.MethodPost, "/x", map[string]string{"name": "A"}, nil, true))

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1])
	assert.JSONEq(t, `{"name":"A"}`, bodies[1])
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Not Found"}`))
	}, &staticHeaders{}, WithMaxRetries(3))

	err := c.call(context.Background(), http.MethodGet, "/x", nil, nil, true)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_EnvelopeFailureOn200(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"quota exceeded"}`))
	}, &staticHeaders{})

	err := c.call(context.Background(), http.MethodGet, "/x", nil, nil, false)
	require.ErrorIs(t, err, ErrEnvelope)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "error", apiErr.Status)
	assert.Equal(t, "quota exceeded", apiErr.Message)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
}

func TestClient_StrictRequiresEnvelope(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"session_id":"s"}`))
	}, &staticHeaders{})

	require.ErrorIs(t, c.call(context.Background(), http.MethodGet, "/x", nil, nil, true), ErrEnvelope)
	require.NoError(t, c.call(context.Background(), http.MethodGet, "/x", nil, nil, false))
}

func TestClient_MalformedBody(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}, &staticHeaders{})

	err := c.call(context.Background(), http.MethodGet, "/x", nil, nil, true)
	require.ErrorIs(t, err, ErrUnexpected)
}

func TestClient_ContextCanceled(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}, &staticHeaders{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.call(ctx, http.MethodGet, "/x", nil, nil, true)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClient_NetworkErrorNotRetriedByDefault(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, nil, &staticHeaders{}, nil)
	c.sleepFunc = func(context.Context, time.Duration) error {
		return errors.New("must not sleep")
	}

	err := c.call(context.Background(), http.MethodGet, "/x", nil, nil, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GET /x failed")
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail string", `{"detail":"Token expired"}`, "Token expired"},
		{"detail list", `{"detail":[{"msg":"field required"},{"msg":"too long"}]}`, "field required; too long"},
		{"message", `{"message":"nope"}`, "nope"},
		{"plain text", "Internal Server Error\n", "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, errorMessage([]byte(tt.body)))
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	assert.NoError(t, classifyStatus(http.StatusOK))
	assert.ErrorIs(t, classifyStatus(http.StatusUnauthorized), ErrUnauthorized)
	assert.ErrorIs(t, classifyStatus(http.StatusUnprocessableEntity), ErrUnprocessable)
	assert.ErrorIs(t, classifyStatus(http.StatusBadGateway), ErrServerError)
	assert.ErrorIs(t, classifyStatus(http.StatusTeapot), ErrUnexpected)
}

func TestRetryBackoff_HonorsRetryAfter(t *testing.T) {
	t.Parallel()

	c := NewClient("http://example.invalid", nil, nil, nil)

	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": {"7"}}}
	assert.Equal(t, 7*time.Second, c.retryBackoff(resp, 0))

	b := c.calcBackoff(10)
	assert.LessOrEqual(t, b, time.Duration(float64(maxBackoff)*(1+jitterFraction)))
}
