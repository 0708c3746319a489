package httpretry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("order_id,status\n1,Delivered\n"))
	}))
	defer srv.Close()

	rc := NewRetryClient(srv.Client(), 3, WithDelays(time.Millisecond, 5*time.Millisecond))
	body, err := rc.Fetch(context.Background(), srv.URL+"/orders.csv")
	require.NoError(t, err)
	assert.Equal(t, "order_id,status\n1,Delivered\n", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	rc := NewRetryClient(srv.Client(), 3, WithDelays(time.Millisecond, time.Millisecond))
	_, err := rc.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rc := NewRetryClient(srv.Client(), 2, WithDelays(time.Millisecond, time.Millisecond))
	_, err := rc.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	rc := NewRetryClient(srv.Client(), 1, WithMaxBytes(10))
	_, err := rc.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestCalculateDelayBounds(t *testing.T) {
	rc := NewRetryClient(nil, 3, WithDelays(100*time.Millisecond, 300*time.Millisecond))
	for attempt := 1; attempt <= 6; attempt++ {
		d := rc.calculateDelay(attempt)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}
