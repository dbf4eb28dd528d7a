package httpx

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 599} {
		require.True(t, IsRetryableHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		require.False(t, IsRetryableHTTPStatus(code), code)
	}
}

type statusErr int

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatusCode() int { return int(e) }

func TestIsRetryableError(t *testing.T) {
	require.False(t, IsRetryableError(nil))
	require.False(t, IsRetryableError(context.Canceled))
	require.False(t, IsRetryableError(context.DeadlineExceeded))
	require.True(t, IsRetryableError(statusErr(503)))
	require.False(t, IsRetryableError(statusErr(400)))
	require.True(t, IsRetryableError(fmt.Errorf("call upstream: %w", statusErr(429))))
	require.False(t, IsRetryableError(fmt.Errorf("bad api key")))
}

func TestRetryAfterDuration(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "3")
	require.Equal(t, 3*time.Second, RetryAfterDuration(resp, time.Second, time.Minute))

	// header wins but is capped
	require.Equal(t, 2*time.Second, RetryAfterDuration(resp, time.Second, 2*time.Second))

	resp.Header.Del("Retry-After")
	require.Equal(t, time.Second, RetryAfterDuration(resp, time.Second, time.Minute))
	require.Equal(t, time.Second, RetryAfterDuration(nil, time.Second, time.Minute))
}

func TestJitterSleepBounds(t *testing.T) {
	require.Zero(t, JitterSleep(0))
	base := time.Second
	for i := 0; i < 50; i++ {
		got := JitterSleep(base)
		require.GreaterOrEqual(t, got, 800*time.Millisecond)
		require.LessOrEqual(t, got, 1200*time.Millisecond)
	}
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, SleepContext(ctx, time.Minute))
}
