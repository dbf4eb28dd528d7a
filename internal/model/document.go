package model

const (
	DocumentStatusPending    = "pending"
	DocumentStatusProcessing = "processing"
	DocumentStatusCompleted  = "completed"
	DocumentStatusFailed     = "failed"
)

type Document struct {
	ID         int64         `json:"id"`
	OrgID      string        `json:"org_id"`
	Filename   string        `json:"filename"`
	FileType   string        `json:"file_type"`
	StorageKey string        `json:"storage_key"`
	SizeBytes  int64         `json:"size_bytes"`
	Status     string        `json:"status"`
	Meta       *DocumentMeta `json:"meta,omitempty"`
	UploadedBy string        `json:"uploaded_by"`
	IsDeleted  int           `json:"-"`
	Ctime      int64         `json:"ctime"`
	Mtime      int64         `json:"mtime"`
	DeletedAt  int64         `json:"-"`
}

// DocumentMeta carries extraction byproducts. Fields are best effort and
// depend on what the source format exposes.
type DocumentMeta struct {
	Author     string   `json:"author,omitempty"`
	CreatedAt  string   `json:"created_at,omitempty"`
	ModifiedAt string   `json:"modified_at,omitempty"`
	PageCount  int      `json:"page_count,omitempty"`
	WordCount  int      `json:"word_count,omitempty"`
	CharCount  int      `json:"char_count,omitempty"`
	Structure  []string `json:"structure,omitempty"`
	Columns    []string `json:"columns,omitempty"`
	RowCount   int      `json:"row_count,omitempty"`
	ChunkCount int      `json:"chunk_count,omitempty"`
}
