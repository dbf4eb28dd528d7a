package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/flockhq/flock/internal/agent"
	"github.com/flockhq/flock/internal/model"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
	"github.com/flockhq/flock/internal/rag"
	"github.com/flockhq/flock/internal/repo"
)

const (
	maxDocumentTopK = 100
	maxEmployeeTopK = 50
	snippetChars    = 300
)

type DocumentSearchResult struct {
	DocID      int64   `json:"doc_id"`
	Filename   string  `json:"filename"`
	FileType   string  `json:"file_type"`
	UploadDate int64   `json:"upload_date"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
	ChunkIndex int     `json:"chunk_index"`
}

type SearchService struct {
	engine *rag.Engine
	data   *agent.DataQueryAgent
	docs   *repo.DocumentRepo
}

func NewSearchService(engine *rag.Engine, data *agent.DataQueryAgent, docs *repo.DocumentRepo) *SearchService {
	return &SearchService{engine: engine, data: data, docs: docs}
}

// SearchDocuments runs retrieval only (no generation) and decorates hits
// with document-level fields the vector metadata does not carry.
func (s *SearchService) SearchDocuments(ctx context.Context, orgID, query string, topK int, docType string, minScore float64) ([]DocumentSearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", appErr.ErrInvalid)
	}
	topK, err := clampTopK(topK, maxDocumentTopK)
	if err != nil {
		return nil, err
	}
	opts := rag.Options{TopK: topK, MinScore: minScore}
	if docType != "" {
		opts.Filter = map[string]interface{}{"doc_type": map[string]interface{}{"$eq": docType}}
	}
	sources, err := s.engine.Retrieve(ctx, orgID, query, opts)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(sources))
	for _, src := range sources {
		ids = append(ids, src.DocID)
	}
	docsByID, err := s.docs.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	results := make([]DocumentSearchResult, 0, len(sources))
	for _, src := range sources {
		item := DocumentSearchResult{
			DocID:      src.DocID,
			Filename:   src.Filename,
			Snippet:    snippet(src.ChunkText),
			Score:      src.Score,
			ChunkIndex: src.ChunkIndex,
		}
		if doc := docsByID[src.DocID]; doc != nil {
			item.FileType = doc.FileType
			item.UploadDate = doc.Ctime
		}
		results = append(results, item)
	}
	return results, nil
}

func (s *SearchService) SearchEmployees(ctx context.Context, orgID, query string, topK int) ([]model.EmployeeSource, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", appErr.ErrInvalid)
	}
	topK, err := clampTopK(topK, maxEmployeeTopK)
	if err != nil {
		return nil, err
	}
	return s.data.SearchEmployees(ctx, orgID, query, topK)
}

// clampTopK rejects negatives, defaults zero, and caps the rest.
func clampTopK(topK, max int) (int, error) {
	if topK < 0 {
		return 0, fmt.Errorf("%w: top_k must not be negative", appErr.ErrInvalid)
	}
	if topK == 0 {
		return 10, nil
	}
	if topK > max {
		return max, nil
	}
	return topK, nil
}

func snippet(text string) string {
	if utf8.RuneCountInString(text) <= snippetChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:snippetChars]) + "..."
}
