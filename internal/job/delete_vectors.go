package job

import (
	"context"
	"encoding/json"
	"fmt"

	appErr "github.com/flockhq/flock/internal/pkg/errors"
	"github.com/flockhq/flock/internal/vector"
)

type DeleteDocVectorsArgs struct {
	DocID int64 `json:"doc_id"`
}

// DeleteDocVectorsHandler removes a soft-deleted document's vectors so
// they stop surfacing in searches immediately; the relational rows wait
// for the nightly consolidation sweep.
type DeleteDocVectorsHandler struct {
	index vector.Index
}

func NewDeleteDocVectorsHandler(index vector.Index) *DeleteDocVectorsHandler {
	return &DeleteDocVectorsHandler{index: index}
}

func (h *DeleteDocVectorsHandler) Handle(ctx context.Context, task *Task, progress ProgressFunc) (string, error) {
	var args DeleteDocVectorsArgs
	if err := json.Unmarshal(task.Args, &args); err != nil {
		return "", fmt.Errorf("%w: %v", appErr.ErrInvalid, err)
	}
	if err := h.index.DeleteDocument(ctx, vector.Namespace(task.OrgID), args.DocID); err != nil {
		return "", err
	}
	result, _ := json.Marshal(map[string]int64{"doc_id": args.DocID})
	return string(result), nil
}
