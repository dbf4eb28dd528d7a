package embed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flockhq/flock/internal/model"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
)

type fakeUpstream struct {
	dim      int
	calls    int
	batches  [][]string
	tokens   int
	failures int
	err      error
}

func (f *fakeUpstream) EmbedBatch(_ context.Context, texts []string) ([][]float32, int, error) {
	f.calls++
	f.batches = append(f.batches, append([]string(nil), texts...))
	if f.failures > 0 {
		f.failures--
		return nil, 0, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dim)
		vec[0] = float32(len(texts[i]))
		out[i] = vec
	}
	return out, f.tokens, nil
}

func (f *fakeUpstream) ModelName() string { return "fake-embed-1" }

type fakeUsage struct {
	tokens    int64
	calls     int64
	monthUsed int64
	monthErr  error
}

func (f *fakeUsage) Increment(_ context.Context, _, _ string, tokens, calls int64, _ float64) error {
	f.tokens += tokens
	f.calls += calls
	return nil
}

func (f *fakeUsage) MonthTotals(_ context.Context, orgID, _ string) (*model.UsageCounter, error) {
	if f.monthErr != nil {
		return nil, f.monthErr
	}
	return &model.UsageCounter{OrgID: orgID, TokensUsed: f.monthUsed}, nil
}

func newTestService(t *testing.T, up *fakeUpstream, usage *fakeUsage, cfg Config) *Service {
	t.Helper()
	if cfg.Dimension == 0 {
		cfg.Dimension = up.dim
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = time.Millisecond
	}
	var store usageStore
	if usage != nil {
		store = usage
	}
	svc, err := NewService(up, store, cfg)
	require.NoError(t, err)
	return svc
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(nil, nil, Config{Dimension: 8})
	require.Error(t, err)
	_, err = NewService(&fakeUpstream{dim: 8}, nil, Config{})
	require.Error(t, err)
}

func TestEmbedTextsOrderAndBatching(t *testing.T) {
	up := &fakeUpstream{dim: 4, tokens: 10}
	svc := newTestService(t, up, nil, Config{BatchSize: 2})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := svc.EmbedTexts(context.Background(), "org1", texts)
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	for i, vec := range vectors {
		require.Len(t, vec, 4)
		require.Equal(t, float32(len(texts[i])), vec[0])
	}
	require.Equal(t, 3, up.calls)
	require.Equal(t, []string{"a", "bb"}, up.batches[0])
	require.Equal(t, []string{"eeeee"}, up.batches[2])
}

func TestEmbedTextsEmptyInput(t *testing.T) {
	up := &fakeUpstream{dim: 4}
	svc := newTestService(t, up, nil, Config{})
	vectors, err := svc.EmbedTexts(context.Background(), "org1", nil)
	require.NoError(t, err)
	require.Nil(t, vectors)
	require.Zero(t, up.calls)
}

func TestEmbedTextsBudgetExceeded(t *testing.T) {
	up := &fakeUpstream{dim: 4}
	usage := &fakeUsage{monthUsed: 1000}
	svc := newTestService(t, up, usage, Config{MonthlyTokenBudget: 1000})

	_, err := svc.EmbedTexts(context.Background(), "org1", []string{"hello"})
	require.ErrorIs(t, err, appErr.ErrBudgetExceeded)
	require.Zero(t, up.calls)
}

func TestEmbedTextsUnderBudget(t *testing.T) {
	up := &fakeUpstream{dim: 4, tokens: 7}
	usage := &fakeUsage{monthUsed: 999}
	svc := newTestService(t, up, usage, Config{MonthlyTokenBudget: 1000})

	_, err := svc.EmbedTexts(context.Background(), "org1", []string{"hello"})
	require.NoError(t, err)
	require.Equal(t, int64(7), usage.tokens)
	require.Equal(t, int64(1), usage.calls)
}

func TestEmbedTextsDimensionMismatch(t *testing.T) {
	up := &fakeUpstream{dim: 4}
	svc := newTestService(t, up, nil, Config{Dimension: 8})

	_, err := svc.EmbedTexts(context.Background(), "org1", []string{"hello"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "dimension")
	// bad output is not retried
	require.Equal(t, 1, up.calls)
}

type retryableErr struct{ msg string }

func (e retryableErr) Error() string       { return e.msg }
func (e retryableErr) HTTPStatusCode() int { return 503 }

func TestEmbedTextsRetriesTransientFailure(t *testing.T) {
	up := &fakeUpstream{dim: 4, failures: 2, err: retryableErr{msg: "upstream busy"}}
	svc := newTestService(t, up, nil, Config{MaxAttempts: 5})

	vectors, err := svc.EmbedTexts(context.Background(), "org1", []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	require.Equal(t, 3, up.calls)
}

func TestEmbedTextsPermanentFailureNotRetried(t *testing.T) {
	up := &fakeUpstream{dim: 4, failures: 10, err: fmt.Errorf("invalid api key")}
	svc := newTestService(t, up, nil, Config{MaxAttempts: 5})

	_, err := svc.EmbedTexts(context.Background(), "org1", []string{"hello"})
	require.ErrorIs(t, err, appErr.ErrUpstream)
	require.Equal(t, 1, up.calls)
}

func TestEmbedTextsRetriesExhausted(t *testing.T) {
	up := &fakeUpstream{dim: 4, failures: 10, err: retryableErr{msg: "still busy"}}
	svc := newTestService(t, up, nil, Config{MaxAttempts: 3})

	_, err := svc.EmbedTexts(context.Background(), "org1", []string{"hello"})
	require.ErrorIs(t, err, appErr.ErrUpstream)
	require.Equal(t, 3, up.calls)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := newBreaker(3, time.Hour)
	require.True(t, b.Allow())
	b.Failure()
	b.Failure()
	require.True(t, b.Allow())
	b.Failure()
	require.False(t, b.Allow())
}

func TestBreakerResetsOnSuccess(t *testing.T) {
	b := newBreaker(3, time.Hour)
	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()
	require.True(t, b.Allow())
}

func TestTokenBucketAllowsBurst(t *testing.T) {
	bucket := newTokenBucket(6000) // 100/s, burst 100
	for i := 0; i < 10; i++ {
		require.NoError(t, bucket.Wait(context.Background()))
	}
}

func TestTokenBucketHonorsContext(t *testing.T) {
	bucket := newTokenBucket(1) // one call a minute
	require.NoError(t, bucket.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := bucket.Wait(ctx)
	require.Error(t, err)
}
