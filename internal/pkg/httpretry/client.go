// Package httpretry downloads remote files with automatic retry,
// exponential backoff and jitter.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/ignite/shipment-analytics/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient wraps an HTTPDoer with retry logic using exponential backoff and jitter.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxBytes   int64
}

// Option customizes a RetryClient.
type Option func(*RetryClient)

// WithDelays overrides the backoff bounds.
func WithDelays(base, maxDelay time.Duration) Option {
	return func(rc *RetryClient) {
		rc.baseDelay = base
		rc.maxDelay = maxDelay
	}
}

// WithMaxBytes limits how much of a response body Fetch reads.
func WithMaxBytes(n int64) Option {
	return func(rc *RetryClient) { rc.maxBytes = n }
}

// NewRetryClient creates a RetryClient. A nil client gets a default
// http.Client with a 60s timeout; maxRetries <= 0 means 3.
func NewRetryClient(client HTTPDoer, maxRetries int, opts ...Option) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	rc := &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  500 * time.Millisecond,
		maxDelay:   10 * time.Second,
		maxBytes:   64 << 20,
	}
	for _, o := range opts {
		o(rc)
	}
	return rc
}

// Fetch GETs url and returns its body. Non-2xx final responses are errors.
func (rc *RetryClient) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("httpretry: build request: %w", err)
	}
	resp, err := rc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("httpretry: GET %s: status %d", req.URL.Redacted(), resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, rc.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("httpretry: read body: %w", err)
	}
	if int64(len(body)) > rc.maxBytes {
		return nil, fmt.Errorf("httpretry: body exceeds %d bytes", rc.maxBytes)
	}
	return body, nil
}

// Do executes the request, retrying 429/5xx responses and transport
// errors. Client errors and context cancellation are not retried. The
// final retryable response is returned as-is.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if req.Context().Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, req.Context().Err()
		}

		if attempt > 0 {
			delay := rc.calculateDelay(attempt)
			logger.Warn("retrying download", "attempt", attempt, "max_retries", rc.maxRetries,
				"host", req.URL.Host, "wait", delay.String())

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}
		if !isRetryableStatus(resp.StatusCode) || attempt == rc.maxRetries {
			return resp, nil
		}

		// drain for connection reuse
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// calculateDelay is full jitter over min(maxDelay, baseDelay * 2^(attempt-1)),
// never below 10ms.
func (rc *RetryClient) calculateDelay(attempt int) time.Duration {
	expDelay := float64(rc.baseDelay) * math.Pow(2, float64(attempt-1))
	if expDelay > float64(rc.maxDelay) {
		expDelay = float64(rc.maxDelay)
	}
	jittered := time.Duration(rand.Float64() * expDelay)
	if jittered < 10*time.Millisecond {
		jittered = 10 * time.Millisecond
	}
	return jittered
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
