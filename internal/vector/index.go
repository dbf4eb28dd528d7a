package vector

import (
	"context"
	"fmt"
)

// Item is one vector to store with its metadata payload.
type Item struct {
	ID       string
	Values   []float32
	Metadata map[string]interface{}
}

// Match is one search hit, sorted by descending similarity.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]interface{}
}

// Index is the tenant-partitioned similarity index. Implementations batch
// writes internally; callers pass full item sets.
type Index interface {
	Dimension() int
	Upsert(ctx context.Context, namespace string, items []Item) error
	Search(ctx context.Context, namespace string, queryVector []float32, topK int, filter map[string]interface{}) ([]Match, error)
	// DeleteDocument removes every chunk vector belonging to the document.
	DeleteDocument(ctx context.Context, namespace string, documentID int64) error
	DeleteNamespace(ctx context.Context, namespace string) error
	Healthy(ctx context.Context) error
}

// Namespace partitions the index per tenant.
func Namespace(orgID string) string {
	return "tenant:" + orgID
}

func ChunkVectorID(documentID int64, chunkIndex int) string {
	return fmt.Sprintf("doc_%d_chunk_%d", documentID, chunkIndex)
}

// ChunkVectorPrefix matches every chunk vector of one document.
func ChunkVectorPrefix(documentID int64) string {
	return fmt.Sprintf("doc_%d_chunk_", documentID)
}

func EmployeeVectorID(userID string) string {
	return "employee_" + userID
}
