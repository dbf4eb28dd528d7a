package job

import "github.com/flockhq/flock/internal/model"

// Handlers groups every task handler for one-shot registration. A nil
// entry is skipped, which keeps partial wiring (tests, tooling) usable.
type Handlers struct {
	ProcessDocument   *ProcessDocumentHandler
	Reclassify        *ReclassifyHandler
	EmployeeEmbedding *EmployeeEmbeddingHandler
	SyncSource        *SyncSourceHandler
	DeleteDocVectors  *DeleteDocVectorsHandler
	Consolidate       *ConsolidateHandler
}

func RegisterHandlers(e *Executor, h Handlers) {
	if h.ProcessDocument != nil {
		e.Register(model.JobTypeProcessDocument, h.ProcessDocument)
	}
	if h.Reclassify != nil {
		e.Register(model.JobTypeReclassifyDocument, h.Reclassify)
	}
	if h.EmployeeEmbedding != nil {
		e.Register(model.JobTypeEmployeeEmbedding, h.EmployeeEmbedding)
	}
	if h.SyncSource != nil {
		e.Register(model.JobTypeSyncExternalSource, h.SyncSource)
	}
	if h.DeleteDocVectors != nil {
		e.Register(model.JobTypeDeleteDocVectors, h.DeleteDocVectors)
	}
	if h.Consolidate != nil {
		e.Register(model.JobTypeConsolidateMemories, h.Consolidate)
	}
}
