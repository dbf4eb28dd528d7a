package rag

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/flockhq/flock/internal/ai"
	"github.com/flockhq/flock/internal/embed"
	"github.com/flockhq/flock/internal/model"
	"github.com/flockhq/flock/internal/vector"
)

// NoEvidenceAnswer is returned verbatim when retrieval produces nothing
// above the score floor.
const NoEvidenceAnswer = "I don't know based on the available documents."

const (
	generateTemperature = 0.3
	generateMaxTokens   = 1500
)

const systemPreamble = `You are a helpful AI assistant for an organization's knowledge platform.
Your role is to answer questions based on internal company documents.

Guidelines:
- Answer only from the provided context
- Cite sources inline using their citation tokens, e.g. [1], [2]
- Distinguish between facts from documents and your own reasoning
- If information is uncertain or missing, acknowledge it
- Be professional, clear, and concise
- Maintain confidentiality - only use provided internal documents`

type documentStore interface {
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Document, error)
}

type chunkStore interface {
	ListByDocument(ctx context.Context, docID int64) ([]*model.Chunk, error)
}

type Options struct {
	TopK     int
	MinScore float64
	Filter   map[string]interface{}
	History  string
}

type Result struct {
	Answer     string
	Sources    []model.DocumentSource
	TokenUsage int
}

type Engine struct {
	embedder embed.Embedder
	index    vector.Index
	docs     documentStore
	chunks   chunkStore

	defaultTopK     int
	defaultMinScore float64
}

func NewEngine(embedder embed.Embedder, index vector.Index, docs documentStore, chunks chunkStore, topK int, minScore float64) *Engine {
	if topK <= 0 {
		topK = 10
	}
	if minScore <= 0 {
		minScore = 0.7
	}
	return &Engine{
		embedder:        embedder,
		index:           index,
		docs:            docs,
		chunks:          chunks,
		defaultTopK:     topK,
		defaultMinScore: minScore,
	}
}

// Retrieve embeds the query and returns hydrated sources above the score
// floor, best first.
func (e *Engine) Retrieve(ctx context.Context, orgID, query string, opts Options) ([]model.DocumentSource, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = e.defaultTopK
	}
	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = e.defaultMinScore
	}
	vectors, err := e.embedder.EmbedTexts(ctx, orgID, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := e.index.Search(ctx, vector.Namespace(orgID), vectors[0], topK, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	var hits []vector.Match
	for _, m := range matches {
		if m.Score >= minScore {
			hits = append(hits, m)
		}
	}
	return e.hydrate(ctx, orgID, hits)
}

var chunkIDPattern = regexp.MustCompile(`^doc_(\d+)_chunk_(\d+)$`)

// hydrate resolves vector hits back to full chunk text and filenames from
// the relational store; the index metadata only carries a truncated preview.
func (e *Engine) hydrate(ctx context.Context, orgID string, hits []vector.Match) ([]model.DocumentSource, error) {
	type ref struct {
		docID      int64
		chunkIndex int
		score      float64
		metadata   map[string]interface{}
	}
	var refs []ref
	docIDSet := map[int64]bool{}
	for _, hit := range hits {
		parts := chunkIDPattern.FindStringSubmatch(hit.ID)
		if parts == nil {
			continue
		}
		docID, _ := strconv.ParseInt(parts[1], 10, 64)
		chunkIndex, _ := strconv.Atoi(parts[2])
		refs = append(refs, ref{docID: docID, chunkIndex: chunkIndex, score: hit.Score, metadata: hit.Metadata})
		docIDSet[docID] = true
	}
	if len(refs) == 0 {
		return nil, nil
	}
	docIDs := make([]int64, 0, len(docIDSet))
	for id := range docIDSet {
		docIDs = append(docIDs, id)
	}
	docs, err := e.docs.GetByIDs(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	chunkText := map[int64]map[int]*model.Chunk{}
	for docID := range docIDSet {
		doc := docs[docID]
		// stale vectors for deleted documents are skipped, not fatal
		if doc == nil || doc.OrgID != orgID || doc.IsDeleted != 0 {
			continue
		}
		chunks, err := e.chunks.ListByDocument(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("load chunks for document %d: %w", docID, err)
		}
		byIndex := make(map[int]*model.Chunk, len(chunks))
		for _, c := range chunks {
			byIndex[c.Index] = c
		}
		chunkText[docID] = byIndex
	}
	var sources []model.DocumentSource
	for _, r := range refs {
		byIndex, ok := chunkText[r.docID]
		if !ok {
			continue
		}
		c := byIndex[r.chunkIndex]
		if c == nil {
			logutil.GetLogger(ctx).Warn("vector hit without relational chunk",
				zap.Int64("doc_id", r.docID), zap.Int("chunk_index", r.chunkIndex))
			continue
		}
		source := model.DocumentSource{
			DocID:      r.docID,
			Filename:   docs[r.docID].Filename,
			ChunkIndex: r.chunkIndex,
			ChunkText:  c.Text,
			Score:      r.score,
		}
		if page, ok := r.metadata["page"].(float64); ok {
			source.Page = int(page)
		}
		sources = append(sources, source)
	}
	return sources, nil
}

// Answer runs the full retrieve, augment, generate pipeline.
func (e *Engine) Answer(ctx context.Context, orgID, query string, generator ai.IGenerator, opts Options) (*Result, error) {
	sources, err := e.Retrieve(ctx, orgID, query, opts)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return &Result{Answer: NoEvidenceAnswer, Sources: []model.DocumentSource{}}, nil
	}
	prompt := buildPrompt(query, sources, opts.History)
	res, err := generator.Generate(ctx, prompt, ai.GenerateOptions{
		Temperature: generateTemperature,
		MaxTokens:   generateMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &Result{
		Answer:     res.Text,
		Sources:    sources,
		TokenUsage: res.TotalTokens,
	}, nil
}

func buildPrompt(query string, sources []model.DocumentSource, history string) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\n")
	if history != "" {
		b.WriteString("=== CONVERSATION HISTORY ===\n")
		b.WriteString(history)
		b.WriteString("\n\n")
	}
	b.WriteString("=== RELEVANT DOCUMENTS ===\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, src.Filename)
		if src.Page > 0 {
			fmt.Fprintf(&b, ", page %d", src.Page)
		}
		fmt.Fprintf(&b, " (relevance: %.2f)\n", src.Score)
		b.WriteString(src.ChunkText)
		b.WriteString("\n")
	}
	b.WriteString("\n=== USER QUESTION ===\n")
	b.WriteString(query)
	b.WriteString("\n\n=== INSTRUCTIONS ===\n")
	b.WriteString(`Please answer the question based on the documents provided above.
- Cite sources inline by their citation token (e.g., "According to [1]...")
- If the answer isn't in the documents, say so
- Provide specific quotes when relevant
- Be concise but comprehensive`)
	return b.String()
}
