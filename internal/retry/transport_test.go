package retry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastTransport(opts ...Option) *Transport {
	return NewTransport(append([]Option{
		WithInitialRetryDelay(time.Millisecond),
		WithMaxRetryDelay(2 * time.Millisecond),
	}, opts...)...)
}

func TestNewTransport_Defaults(t *testing.T) {
	tr := NewTransport()
	assert.Equal(t, defaultMaxRetries, tr.maxRetries)
	assert.Equal(t, defaultInitialRetryDelay, tr.initialRetryDelay)
	assert.Equal(t, defaultMaxRetryDelay, tr.maxRetryDelay)
	assert.Equal(t, defaultRetryDelayMultiple, tr.retryDelayMultiple)
	assert.NotNil(t, tr.base)
}

func TestNewTransport_InvalidOptionsIgnored(t *testing.T) {
	tr := NewTransport(
		WithMaxRetries(-1),
		WithInitialRetryDelay(-time.Second),
		WithMaxRetryDelay(0),
		WithRetryDelayMultiple(0.5),
		WithBase(nil),
		WithRetryableChecker(nil),
	)
	assert.Equal(t, defaultMaxRetries, tr.maxRetries)
	assert.Equal(t, defaultInitialRetryDelay, tr.initialRetryDelay)
	assert.Equal(t, defaultMaxRetryDelay, tr.maxRetryDelay)
	assert.Equal(t, defaultRetryDelayMultiple, tr.retryDelayMultiple)
	assert.NotNil(t, tr.retryableChecker)
}

func TestDefaultRetryableChecker(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		want bool
	}{
		{"network error", errors.New("connection refused"), 0, true},
		{"ok", nil, http.StatusOK, false},
		{"bad request", nil, http.StatusBadRequest, false},
		{"too many requests", nil, http.StatusTooManyRequests, true},
		{"server error", nil, http.StatusInternalServerError, true},
		{"unavailable", nil, http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.err == nil {
				resp = &http.Response{StatusCode: tt.code}
			}
			assert.Equal(t, tt.want, DefaultRetryableChecker(tt.err, resp))
		})
	}
	assert.False(t, DefaultRetryableChecker(nil, nil))
}

func TestTransport_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	var retries []int
	client := &http.Client{Transport: fastTransport(WithOnRetry(
		func(attempt int, _ error, _ *http.Response) { retries = append(retries, attempt) },
	))}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []int{1, 2}, retries)
}

func TestTransport_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := &http.Client{Transport: fastTransport()}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTransport_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := &http.Client{Transport: fastTransport(WithMaxRetries(2))}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTransport_ReplaysBody(t *testing.T) {
	var calls atomic.Int32
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: fastTransport()}
	resp, err := client.Post(srv.URL, "application/x-www-form-urlencoded", strings.NewReader("code=abc"))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"code=abc", "code=abc"}, bodies)
}

type failingRoundTripper struct{ calls atomic.Int32 }

func (f *failingRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	f.calls.Add(1)
	return nil, errors.New("dial tcp: connection refused")
}

func TestTransport_NetworkErrorExhaustsRetries(t *testing.T) {
	base := &failingRoundTripper{}
	tr := fastTransport(WithBase(base), WithMaxRetries(2))

	req, err := http.NewRequest(http.MethodGet, "http://keys.invalid/certs", nil)
	require.NoError(t, err)

	_, err = tr.RoundTrip(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed after 2 retries")
	assert.Equal(t, int32(3), base.calls.Load())
}

func TestTransport_ContextCancelStopsRetries(t *testing.T) {
	base := &failingRoundTripper{}
	tr := NewTransport(WithBase(base), WithInitialRetryDelay(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://keys.invalid/certs", nil)
	require.NoError(t, err)

	_, err = tr.RoundTrip(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled after 1 attempts")
	assert.Equal(t, int32(1), base.calls.Load())
}
