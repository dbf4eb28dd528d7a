package model

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

const (
	JobTypeProcessDocument     = "process_document"
	JobTypeReclassifyDocument  = "reclassify_document"
	JobTypeEmployeeEmbedding   = "generate_employee_embedding"
	JobTypeSyncExternalSource  = "sync_external_source"
	JobTypeConsolidateMemories = "consolidate_memories"
	JobTypeDeleteDocVectors    = "delete_document_vectors"
)

// Job tracks a background task. StartedAt and CompletedAt are zero until
// the corresponding transition happens.
type Job struct {
	ID          int64  `json:"-"`
	JobID       string `json:"job_id"`
	OrgID       string `json:"org_id"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Result      string `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
	Ctime       int64  `json:"created_at"`
	StartedAt   int64  `json:"started_at,omitempty"`
	CompletedAt int64  `json:"completed_at,omitempty"`
}

func IsTerminalJobStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}
