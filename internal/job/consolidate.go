package job

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/flockhq/flock/internal/blobstore"
	"github.com/flockhq/flock/internal/config"
	"github.com/flockhq/flock/internal/model"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
	"github.com/flockhq/flock/internal/vector"
)

const purgeBatchSize = 200

type purgeDocumentStore interface {
	ListSoftDeletedBefore(ctx context.Context, cutoff int64, limit uint) ([]*model.Document, error)
	HardDelete(ctx context.Context, docID int64) error
}

type documentScopedDeleter interface {
	DeleteByDocument(ctx context.Context, docID int64) error
}

type terminalJobStore interface {
	DeleteTerminalBefore(ctx context.Context, cutoff int64) (int64, error)
}

type embeddingCacheStore interface {
	DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error)
}

type consolidateResult struct {
	DocumentsPurged int   `json:"documents_purged"`
	JobsPurged      int64 `json:"jobs_purged"`
	CachePurged     int64 `json:"cache_entries_purged"`
}

// ConsolidateHandler is the nightly administrative sweep: hard-delete
// documents whose soft-delete grace period expired (vectors first, then
// the stored blob, then relational rows), prune terminal job rows, and
// age out the durable embedding cache.
type ConsolidateHandler struct {
	docs            purgeDocumentStore
	chunks          documentScopedDeleter
	classifications documentScopedDeleter
	jobs            terminalJobStore
	cache           embeddingCacheStore
	index           vector.Index
	blobs           blobstore.Store
	retention       config.RetentionConfig
}

func NewConsolidateHandler(
	docs purgeDocumentStore,
	chunks documentScopedDeleter,
	classifications documentScopedDeleter,
	jobs terminalJobStore,
	cache embeddingCacheStore,
	index vector.Index,
	blobs blobstore.Store,
	retention config.RetentionConfig,
) *ConsolidateHandler {
	return &ConsolidateHandler{
		docs:            docs,
		chunks:          chunks,
		classifications: classifications,
		jobs:            jobs,
		cache:           cache,
		index:           index,
		blobs:           blobs,
		retention:       retention,
	}
}

func (h *ConsolidateHandler) Handle(ctx context.Context, task *Task, progress ProgressFunc) (string, error) {
	logger := logutil.GetLogger(ctx)
	now := time.Now()
	var out consolidateResult

	docCutoff := now.AddDate(0, 0, -h.retention.DeletedDocumentDays).Unix()
	purged, err := h.purgeDocuments(ctx, docCutoff, logger)
	if err != nil {
		return "", err
	}
	out.DocumentsPurged = purged
	progress(50)

	jobCutoff := now.AddDate(0, 0, -h.retention.JobDays).Unix()
	jobsPurged, err := h.jobs.DeleteTerminalBefore(ctx, jobCutoff)
	if err != nil {
		return "", err
	}
	out.JobsPurged = jobsPurged
	progress(75)

	cacheCutoff := now.AddDate(0, 0, -h.retention.EmbeddingCacheDays).Unix()
	cachePurged, err := h.cache.DeleteOlderThan(ctx, cacheCutoff)
	if err != nil {
		return "", err
	}
	out.CachePurged = cachePurged

	result, _ := json.Marshal(out)
	return string(result), nil
}

// purgeDocuments deletes vectors, then the blob, then relational rows: a
// document whose row is gone but whose vectors or object linger would
// resurface as an orphan.
func (h *ConsolidateHandler) purgeDocuments(ctx context.Context, cutoff int64, logger *zap.Logger) (int, error) {
	total := 0
	for {
		docs, err := h.docs.ListSoftDeletedBefore(ctx, cutoff, purgeBatchSize)
		if err != nil {
			return total, err
		}
		if len(docs) == 0 {
			return total, nil
		}
		batchPurged := 0
		for _, doc := range docs {
			if err := h.index.DeleteDocument(ctx, vector.Namespace(doc.OrgID), doc.ID); err != nil {
				logger.Warn("purge vectors failed, keeping row for next sweep",
					zap.Int64("doc_id", doc.ID), zap.Error(err))
				continue
			}
			if doc.StorageKey != "" {
				if err := h.blobs.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, appErr.ErrNotFound) {
					logger.Warn("purge blob failed, keeping row for next sweep",
						zap.Int64("doc_id", doc.ID), zap.String("key", doc.StorageKey), zap.Error(err))
					continue
				}
			}
			if err := h.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
				return total, err
			}
			if err := h.classifications.DeleteByDocument(ctx, doc.ID); err != nil {
				return total, err
			}
			if err := h.docs.HardDelete(ctx, doc.ID); err != nil {
				return total, err
			}
			total++
			batchPurged++
		}
		// a full batch of vector-purge failures would otherwise spin here
		if len(docs) < purgeBatchSize || batchPurged == 0 {
			return total, nil
		}
	}
}
