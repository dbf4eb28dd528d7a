package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/flockhq/flock/internal/model"
	"github.com/flockhq/flock/internal/repo"
)

// WrapLRUCache adds an in-process tier in front of next. Entries are keyed
// by model and content hash, so tenants share cached vectors for identical
// text; embeddings carry no tenant data.
func WrapLRUCache(next Embedder, size int, ttl time.Duration) Embedder {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &lruEmbedder{
		next:  next,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  Embedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Dimension() int {
	return l.next.Dimension()
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func (l *lruEmbedder) EmbedTexts(ctx context.Context, orgID string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		key := cacheKey(l.next.ModelName(), text)
		if cached, ok := l.cache.Get(key); ok {
			out[i] = cloneVector(cached)
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	if len(missing) < len(texts) {
		logutil.GetLogger(ctx).Debug("embedding cache hits (lru)",
			zap.Int("hits", len(texts)-len(missing)), zap.Int("total", len(texts)))
	}
	vectors, err := l.next.EmbedTexts(ctx, orgID, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range vectors {
		out[missingIdx[j]] = vec
		l.cache.Add(cacheKey(l.next.ModelName(), missing[j]), cloneVector(vec))
	}
	return out, nil
}

// WrapDBCache adds the durable tier backed by the embedding_cache table.
// Sits under the LRU tier so process restarts do not re-spend tokens.
func WrapDBCache(next Embedder, cacheRepo *repo.EmbeddingCacheRepo) Embedder {
	if next == nil || cacheRepo == nil {
		return next
	}
	return &dbEmbedder{next: next, repo: cacheRepo}
}

type dbEmbedder struct {
	next Embedder
	repo *repo.EmbeddingCacheRepo
}

func (d *dbEmbedder) Dimension() int {
	return d.next.Dimension()
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}

func (d *dbEmbedder) EmbedTexts(ctx context.Context, orgID string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		hash := contentHash(text)
		values, ok, err := d.repo.Get(ctx, d.next.ModelName(), hash)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = values
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	if len(missing) < len(texts) {
		logutil.GetLogger(ctx).Debug("embedding cache hits (db)",
			zap.Int("hits", len(texts)-len(missing)), zap.Int("total", len(texts)))
	}
	vectors, err := d.next.EmbedTexts(ctx, orgID, missing)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	for j, vec := range vectors {
		out[missingIdx[j]] = vec
		entry := &model.EmbeddingCache{
			ModelName:   d.next.ModelName(),
			ContentHash: contentHash(missing[j]),
			Embedding:   vec,
			Ctime:       now,
		}
		if err := d.repo.Save(ctx, entry); err != nil {
			logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
		}
	}
	return out, nil
}

func cacheKey(modelName, text string) string {
	return "embed:" + modelName + ":" + contentHash(text)
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
