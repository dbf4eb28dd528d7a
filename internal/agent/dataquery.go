package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/flockhq/flock/internal/embed"
	"github.com/flockhq/flock/internal/model"
	"github.com/flockhq/flock/internal/rag"
	"github.com/flockhq/flock/internal/vector"
)

// DataQueryAgent answers from internal state: document chunks through the
// retrieval pipeline and employee profiles through their vectors.
type DataQueryAgent struct {
	engine   *rag.Engine
	embedder embed.Embedder
	index    vector.Index
}

func NewDataQueryAgent(engine *rag.Engine, embedder embed.Embedder, index vector.Index) *DataQueryAgent {
	return &DataQueryAgent{engine: engine, embedder: embedder, index: index}
}

func (a *DataQueryAgent) SearchDocuments(ctx context.Context, orgID, query string, topK int) ([]model.DocumentSource, error) {
	return a.engine.Retrieve(ctx, orgID, query, rag.Options{TopK: topK})
}

// SearchEmployees queries the tenant namespace restricted to employee
// vectors. Profiles live entirely in vector metadata.
func (a *DataQueryAgent) SearchEmployees(ctx context.Context, orgID, query string, topK int) ([]model.EmployeeSource, error) {
	if topK <= 0 {
		topK = 5
	}
	vectors, err := a.embedder.EmbedTexts(ctx, orgID, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	filter := map[string]interface{}{"type": map[string]interface{}{"$eq": "employee"}}
	matches, err := a.index.Search(ctx, vector.Namespace(orgID), vectors[0], topK, filter)
	if err != nil {
		return nil, fmt.Errorf("search employees: %w", err)
	}
	employees := make([]model.EmployeeSource, 0, len(matches))
	for _, m := range matches {
		if !strings.HasPrefix(m.ID, "employee_") {
			continue
		}
		employees = append(employees, model.EmployeeSource{
			UserID:      metaString(m.Metadata, "user_id"),
			Name:        metaString(m.Metadata, "name"),
			Title:       metaString(m.Metadata, "title"),
			Specialties: metaString(m.Metadata, "specialties"),
			Relevance:   m.Score,
		})
	}
	return employees, nil
}

func metaString(meta map[string]interface{}, key string) string {
	if meta == nil {
		return ""
	}
	if s, ok := meta[key].(string); ok {
		return s
	}
	return ""
}
