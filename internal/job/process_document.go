package job

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/flockhq/flock/internal/blobstore"
	"github.com/flockhq/flock/internal/chunk"
	"github.com/flockhq/flock/internal/classify"
	"github.com/flockhq/flock/internal/embed"
	"github.com/flockhq/flock/internal/extract"
	"github.com/flockhq/flock/internal/model"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
	"github.com/flockhq/flock/internal/vector"
)

// Pipeline progress at state boundaries.
const (
	progressDownload = 10
	progressExtract  = 30
	progressChunk    = 50
	progressEmbed    = 70
	progressUpsert   = 85
	progressClassify = 95
)

type ProcessDocumentArgs struct {
	DocID int64 `json:"doc_id"`
}

type documentStore interface {
	GetByID(ctx context.Context, docID int64) (*model.Document, error)
	UpdateStatus(ctx context.Context, docID int64, status string) error
	UpdateMeta(ctx context.Context, docID int64, meta *model.DocumentMeta) error
}

type chunkStore interface {
	DeleteByDocument(ctx context.Context, docID int64) error
	InsertBatchAndComplete(ctx context.Context, docID int64, chunks []*model.Chunk) error
}

type classificationStore interface {
	Upsert(ctx context.Context, c *model.Classification) error
}

type processDocumentResult struct {
	DocID      int64  `json:"doc_id"`
	ChunkCount int    `json:"chunk_count"`
	Status     string `json:"status"`
}

// ProcessDocumentHandler runs the full ingestion pipeline for one
// document: download, extract, chunk, embed, upsert, classify. The task is
// idempotent: any chunks and vectors from a prior partial run are removed
// before the pipeline starts.
type ProcessDocumentHandler struct {
	blobs           blobstore.Store
	docs            documentStore
	chunks          chunkStore
	classifications classificationStore
	embedder        embed.Embedder
	index           vector.Index
	chunker         *chunk.Chunker
	classifier      *classify.Classifier
	orgCtx          *classify.OrgContextProvider
	extractTimeout  time.Duration
}

func NewProcessDocumentHandler(
	blobs blobstore.Store,
	docs documentStore,
	chunks chunkStore,
	classifications classificationStore,
	embedder embed.Embedder,
	index vector.Index,
	chunker *chunk.Chunker,
	classifier *classify.Classifier,
	orgCtx *classify.OrgContextProvider,
	extractTimeout time.Duration,
) *ProcessDocumentHandler {
	if extractTimeout <= 0 {
		extractTimeout = 120 * time.Second
	}
	return &ProcessDocumentHandler{
		blobs:           blobs,
		docs:            docs,
		chunks:          chunks,
		classifications: classifications,
		embedder:        embedder,
		index:           index,
		chunker:         chunker,
		classifier:      classifier,
		orgCtx:          orgCtx,
		extractTimeout:  extractTimeout,
	}
}

func (h *ProcessDocumentHandler) Handle(ctx context.Context, task *Task, progress ProgressFunc) (string, error) {
	var args ProcessDocumentArgs
	if err := json.Unmarshal(task.Args, &args); err != nil {
		return "", fmt.Errorf("%w: %v", appErr.ErrInvalid, err)
	}
	doc, err := h.docs.GetByID(ctx, args.DocID)
	if err != nil {
		return "", err
	}
	if doc.OrgID != task.OrgID {
		return "", fmt.Errorf("%w: document belongs to another org", appErr.ErrForbidden)
	}
	logger := logutil.GetLogger(ctx).With(zap.Int64("doc_id", doc.ID), zap.String("filename", doc.Filename))
	namespace := vector.Namespace(doc.OrgID)

	if err := h.docs.UpdateStatus(ctx, doc.ID, model.DocumentStatusProcessing); err != nil {
		return "", err
	}
	// reset any partial state from a prior delivery
	if err := h.index.DeleteDocument(ctx, namespace, doc.ID); err != nil {
		return "", h.fail(ctx, task, doc.ID, err)
	}
	if err := h.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
		return "", h.fail(ctx, task, doc.ID, err)
	}

	chunks, err := h.pipeline(ctx, doc, namespace, progress)
	if err != nil {
		// anything through upsert rolls back, so retries start clean
		h.rollback(ctx, doc.ID, namespace, logger)
		return "", h.fail(ctx, task, doc.ID, err)
	}
	progress(progressClassify)
	h.classify(ctx, doc, chunks, logger)

	result, _ := json.Marshal(processDocumentResult{
		DocID:      doc.ID,
		ChunkCount: len(chunks),
		Status:     model.DocumentStatusCompleted,
	})
	return string(result), nil
}

// pipeline runs download through chunk persistence. On success the
// document row is already flipped to completed.
func (h *ProcessDocumentHandler) pipeline(ctx context.Context, doc *model.Document, namespace string, progress ProgressFunc) ([]*model.Chunk, error) {
	progress(progressDownload)
	data, err := h.download(ctx, doc.StorageKey)
	if err != nil {
		return nil, err
	}

	progress(progressExtract)
	extracted, err := h.extract(ctx, doc, data)
	if err != nil {
		return nil, err
	}

	progress(progressChunk)
	pieces := h.chunker.Split(extracted.Text)
	if len(pieces) == 0 {
		return nil, appErr.ErrEmptyDocument
	}
	texts := make([]string, 0, len(pieces))
	for _, p := range pieces {
		texts = append(texts, p.Text)
	}

	progress(progressEmbed)
	vectors, err := h.embedder.EmbedTexts(ctx, doc.OrgID, texts)
	if err != nil {
		return nil, err
	}

	progress(progressUpsert)
	items := make([]vector.Item, 0, len(pieces))
	for i, p := range pieces {
		items = append(items, vector.Item{
			ID:     vector.ChunkVectorID(doc.ID, p.Index),
			Values: vectors[i],
			Metadata: vector.SanitizeMetadata(map[string]interface{}{
				"doc_id":      doc.ID,
				"chunk_index": p.Index,
				"text":        p.Text,
				"filename":    doc.Filename,
				"doc_type":    doc.FileType,
				"page":        p.Paragraph + 1,
			}),
		})
	}
	if err := h.index.Upsert(ctx, namespace, items); err != nil {
		return nil, err
	}

	rows := make([]*model.Chunk, 0, len(pieces))
	for _, p := range pieces {
		rows = append(rows, &model.Chunk{
			DocumentID: doc.ID,
			Index:      p.Index,
			Text:       p.Text,
			TokenCount: p.TokenCount,
		})
	}
	if err := h.chunks.InsertBatchAndComplete(ctx, doc.ID, rows); err != nil {
		return nil, err
	}

	meta := extracted.Meta
	meta.ChunkCount = len(rows)
	if err := h.docs.UpdateMeta(ctx, doc.ID, &meta); err != nil {
		logutil.GetLogger(ctx).Warn("save document meta failed", zap.Int64("doc_id", doc.ID), zap.Error(err))
	}
	return rows, nil
}

func (h *ProcessDocumentHandler) download(ctx context.Context, key string) ([]byte, error) {
	rc, err := h.blobs.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read blob: %v", appErr.ErrUpstream, err)
	}
	return data, nil
}

// extract enforces the per-document wall-clock cap; a stuck parse fails
// the job instead of wedging a worker forever.
func (h *ProcessDocumentHandler) extract(ctx context.Context, doc *model.Document, data []byte) (*extract.Result, error) {
	type outcome struct {
		result *extract.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := extract.Extract(doc.Filename, doc.FileType, data)
		done <- outcome{result: result, err: err}
	}()
	timer := time.NewTimer(h.extractTimeout)
	defer timer.Stop()
	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: extraction timeout after %s", appErr.ErrExtraction, h.extractTimeout)
	}
}

// classify is non-fatal: the document is already completed, and the
// classifier itself degrades to a filename heuristic before giving up.
func (h *ProcessDocumentHandler) classify(ctx context.Context, doc *model.Document, chunks []*model.Chunk, logger *zap.Logger) {
	var sample string
	if len(chunks) > 0 {
		sample = chunks[0].Text
		for _, c := range chunks[1:] {
			if len(sample) >= classify.MaxSampleChars {
				break
			}
			sample += "\n\n" + c.Text
		}
	}
	classification := h.classifier.Classify(ctx, doc.OrgID, doc.ID, doc.Filename, sample)
	if err := h.classifications.Upsert(ctx, classification); err != nil {
		logger.Warn("save classification failed", zap.Error(err))
		return
	}
	h.orgCtx.Invalidate(doc.OrgID)
}

func (h *ProcessDocumentHandler) rollback(ctx context.Context, docID int64, namespace string, logger *zap.Logger) {
	if err := h.index.DeleteDocument(ctx, namespace, docID); err != nil {
		logger.Warn("rollback vectors failed", zap.Error(err))
	}
	if err := h.chunks.DeleteByDocument(ctx, docID); err != nil {
		logger.Warn("rollback chunks failed", zap.Error(err))
	}
}

func (h *ProcessDocumentHandler) fail(ctx context.Context, task *Task, docID int64, err error) error {
	// a transient error on a non-final attempt requeues, so the document
	// stays in processing; anything else is terminal for the document too
	if !appErr.IsTransient(err) || task.Attempt+1 >= maxAttempts {
		if updErr := h.docs.UpdateStatus(ctx, docID, model.DocumentStatusFailed); updErr != nil {
			logutil.GetLogger(ctx).Error("mark document failed", zap.Int64("doc_id", docID), zap.Error(updErr))
		}
	}
	return err
}
