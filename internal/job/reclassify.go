package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flockhq/flock/internal/classify"
	"github.com/flockhq/flock/internal/repo"

	appErr "github.com/flockhq/flock/internal/pkg/errors"
)

type ReclassifyArgs struct {
	DocID int64 `json:"doc_id"`
}

// ReclassifyHandler re-runs classification over stored chunk text without
// touching the rest of the pipeline.
type ReclassifyHandler struct {
	docs            *repo.DocumentRepo
	chunks          *repo.ChunkRepo
	classifications *repo.ClassificationRepo
	classifier      *classify.Classifier
	orgCtx          *classify.OrgContextProvider
}

func NewReclassifyHandler(
	docs *repo.DocumentRepo,
	chunks *repo.ChunkRepo,
	classifications *repo.ClassificationRepo,
	classifier *classify.Classifier,
	orgCtx *classify.OrgContextProvider,
) *ReclassifyHandler {
	return &ReclassifyHandler{
		docs:            docs,
		chunks:          chunks,
		classifications: classifications,
		classifier:      classifier,
		orgCtx:          orgCtx,
	}
}

func (h *ReclassifyHandler) Handle(ctx context.Context, task *Task, progress ProgressFunc) (string, error) {
	var args ReclassifyArgs
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
	progress(20)
	chunks, err := h.chunks.ListByDocument(ctx, doc.ID)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: document has no extracted text", appErr.ErrEmptyDocument)
	}
	var sample string
	for i, c := range chunks {
		if i > 0 {
			sample += "\n\n"
		}
		sample += c.Text
		if len(sample) >= classify.MaxSampleChars {
			break
		}
	}
	progress(50)
	classification := h.classifier.Classify(ctx, doc.OrgID, doc.ID, doc.Filename, sample)
	if err := h.classifications.Upsert(ctx, classification); err != nil {
		return "", err
	}
	h.orgCtx.Invalidate(doc.OrgID)
	result, _ := json.Marshal(map[string]interface{}{
		"doc_id":   doc.ID,
		"doc_type": classification.DocType,
		"team":     classification.Team,
	})
	return string(result), nil
}
