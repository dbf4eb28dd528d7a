package embed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	dim     int
	calls   int
	batches [][]string
}

func (c *countingEmbedder) EmbedTexts(_ context.Context, _ string, texts []string) ([][]float32, error) {
	c.calls++
	c.batches = append(c.batches, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, c.dim)
		vec[0] = float32(len(texts[i]))
		out[i] = vec
	}
	return out, nil
}

func (c *countingEmbedder) Dimension() int    { return c.dim }
func (c *countingEmbedder) ModelName() string { return "fake-embed-1" }

func TestLRUCacheSecondCallHits(t *testing.T) {
	inner := &countingEmbedder{dim: 4}
	cached := WrapLRUCache(inner, 128, time.Minute)

	first, err := cached.EmbedTexts(context.Background(), "org1", []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	second, err := cached.EmbedTexts(context.Background(), "org1", []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
	require.Equal(t, first, second)
}

func TestLRUCachePartialMissOnlyFetchesMissing(t *testing.T) {
	inner := &countingEmbedder{dim: 4}
	cached := WrapLRUCache(inner, 128, time.Minute)

	_, err := cached.EmbedTexts(context.Background(), "org1", []string{"alpha"})
	require.NoError(t, err)

	out, err := cached.EmbedTexts(context.Background(), "org1", []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, 2, inner.calls)
	require.Equal(t, []string{"beta", "gamma"}, inner.batches[1])
	require.Equal(t, float32(len("alpha")), out[0][0])
	require.Equal(t, float32(len("beta")), out[1][0])
	require.Equal(t, float32(len("gamma")), out[2][0])
}

func TestLRUCacheSharedAcrossTenants(t *testing.T) {
	inner := &countingEmbedder{dim: 4}
	cached := WrapLRUCache(inner, 128, time.Minute)

	_, err := cached.EmbedTexts(context.Background(), "org1", []string{"alpha"})
	require.NoError(t, err)
	_, err = cached.EmbedTexts(context.Background(), "org2", []string{"alpha"})
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
}

func TestLRUCacheReturnsCopies(t *testing.T) {
	inner := &countingEmbedder{dim: 4}
	cached := WrapLRUCache(inner, 128, time.Minute)

	first, err := cached.EmbedTexts(context.Background(), "org1", []string{"alpha"})
	require.NoError(t, err)
	first[0][0] = -1

	second, err := cached.EmbedTexts(context.Background(), "org1", []string{"alpha"})
	require.NoError(t, err)
	require.Equal(t, float32(len("alpha")), second[0][0])
}

func TestWrapLRUCacheDisabled(t *testing.T) {
	inner := &countingEmbedder{dim: 4}
	require.Equal(t, Embedder(inner), WrapLRUCache(inner, 0, time.Minute))
	require.Equal(t, Embedder(inner), WrapLRUCache(inner, 128, 0))
	require.Nil(t, WrapLRUCache(nil, 128, time.Minute))
}

func TestWrapDBCacheDisabledWithoutRepo(t *testing.T) {
	inner := &countingEmbedder{dim: 4}
	require.Equal(t, Embedder(inner), WrapDBCache(inner, nil))
}

func TestCacheKeyStableAndModelScoped(t *testing.T) {
	require.Equal(t, cacheKey("m1", "text"), cacheKey("m1", "text"))
	require.NotEqual(t, cacheKey("m1", "text"), cacheKey("m2", "text"))
	require.NotEqual(t, cacheKey("m1", "text"), cacheKey("m1", "other"))
}
