package retry

import (
	"fmt"
	"net/http"
	"time"
)

// Default retry configuration
const (
	defaultMaxRetries         = 3
	defaultInitialRetryDelay  = 500 * time.Millisecond
	defaultMaxRetryDelay      = 5 * time.Second
	defaultRetryDelayMultiple = 2.0
)

// RetryableChecker determines if an error or response should trigger a retry
type RetryableChecker func(err error, resp *http.Response) bool

// Transport is an http.RoundTripper that retries transient failures with
// exponential backoff. Requests whose body cannot be replayed are sent once.
type Transport struct {
	base               http.RoundTripper
	maxRetries         int
	initialRetryDelay  time.Duration
	maxRetryDelay      time.Duration
	retryDelayMultiple float64
	retryableChecker   RetryableChecker
	onRetry            func(attempt int, err error, resp *http.Response)
}

// Option configures a Transport
type Option func(*Transport)

// WithMaxRetries sets the maximum number of retry attempts
func WithMaxRetries(n int) Option {
	return func(t *Transport) {
		if n >= 0 {
			t.maxRetries = n
		}
	}
}

// WithInitialRetryDelay sets the initial delay before the first retry
func WithInitialRetryDelay(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.initialRetryDelay = d
		}
	}
}

// WithMaxRetryDelay sets the maximum delay between retries
func WithMaxRetryDelay(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.maxRetryDelay = d
		}
	}
}

// WithRetryDelayMultiple sets the exponential backoff multiplier
func WithRetryDelayMultiple(multiplier float64) Option {
	return func(t *Transport) {
		if multiplier > 1.0 {
			t.retryDelayMultiple = multiplier
		}
	}
}

// WithBase sets the underlying RoundTripper
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		if base != nil {
			t.base = base
		}
	}
}

// WithRetryableChecker sets a custom function to determine retryable errors
func WithRetryableChecker(checker RetryableChecker) Option {
	return func(t *Transport) {
		if checker != nil {
			t.retryableChecker = checker
		}
	}
}

// WithOnRetry registers a hook called before each retry, e.g. for logging.
func WithOnRetry(fn func(attempt int, err error, resp *http.Response)) Option {
	return func(t *Transport) {
		t.onRetry = fn
	}
}

// NewTransport creates a retrying RoundTripper with the given options
func NewTransport(opts ...Option) *Transport {
	t := &Transport{
		base:               http.DefaultTransport,
		maxRetries:         defaultMaxRetries,
		initialRetryDelay:  defaultInitialRetryDelay,
		maxRetryDelay:      defaultMaxRetryDelay,
		retryDelayMultiple: defaultRetryDelayMultiple,
		retryableChecker:   DefaultRetryableChecker,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// DefaultRetryableChecker retries on network errors and 5xx/429 status codes
func DefaultRetryableChecker(err error, resp *http.Response) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	var (
		resp    *http.Response
		lastErr error
	)
	delay := t.initialRetryDelay

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			if t.onRetry != nil {
				t.onRetry(attempt, lastErr, resp)
			}
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				if lastErr != nil {
					return nil, fmt.Errorf("context cancelled after %d attempts: %w", attempt, lastErr)
				}
				return nil, ctx.Err()
			case <-timer.C:
			}

			delay = time.Duration(float64(delay) * t.retryDelayMultiple)
			if delay > t.maxRetryDelay {
				delay = t.maxRetryDelay
			}
		}

		attemptReq := req
		if attempt > 0 {
			attemptReq = req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				attemptReq.Body = body
			}
		}

		resp, lastErr = t.base.RoundTrip(attemptReq)
		if !replayable || !t.retryableChecker(lastErr, resp) {
			return resp, lastErr
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("request failed after %d retries: %w", t.maxRetries, lastErr)
	}
	return resp, nil
}
