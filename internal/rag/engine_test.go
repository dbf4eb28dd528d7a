package rag

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flockhq/flock/internal/ai"
	"github.com/flockhq/flock/internal/model"
	"github.com/flockhq/flock/internal/vector"
)

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, _ string, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int    { return 3 }
func (s *stubEmbedder) ModelName() string { return "stub" }

type stubIndex struct {
	matches   []vector.Match
	namespace string
	topK      int
	filter    map[string]interface{}
}

func (s *stubIndex) Dimension() int { return 3 }

func (s *stubIndex) Upsert(context.Context, string, []vector.Item) error { return nil }

func (s *stubIndex) Search(_ context.Context, namespace string, _ []float32, topK int, filter map[string]interface{}) ([]vector.Match, error) {
	s.namespace = namespace
	s.topK = topK
	s.filter = filter
	return s.matches, nil
}

func (s *stubIndex) DeleteDocument(context.Context, string, int64) error { return nil }
func (s *stubIndex) DeleteNamespace(context.Context, string) error       { return nil }
func (s *stubIndex) Healthy(context.Context) error                       { return nil }

type stubDocs struct {
	docs map[int64]*model.Document
}

func (s *stubDocs) GetByIDs(_ context.Context, ids []int64) (map[int64]*model.Document, error) {
	out := map[int64]*model.Document{}
	for _, id := range ids {
		if d, ok := s.docs[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

type stubChunks struct {
	chunks map[int64][]*model.Chunk
}

func (s *stubChunks) ListByDocument(_ context.Context, docID int64) ([]*model.Chunk, error) {
	return s.chunks[docID], nil
}

type stubGenerator struct {
	prompt string
	text   string
	err    error
}

func (s *stubGenerator) Generate(_ context.Context, prompt string, _ ai.GenerateOptions) (*ai.GenerateResult, error) {
	s.prompt = prompt
	if s.err != nil {
		return nil, s.err
	}
	return &ai.GenerateResult{Text: s.text, TotalTokens: 42}, nil
}

func (s *stubGenerator) ModelName() string { return "stub-gen" }

func newTestEngine(index *stubIndex, docs *stubDocs, chunks *stubChunks) *Engine {
	return NewEngine(&stubEmbedder{}, index, docs, chunks, 10, 0.7)
}

func fixtureStores() (*stubDocs, *stubChunks) {
	docs := &stubDocs{docs: map[int64]*model.Document{
		1: {ID: 1, OrgID: "org1", Filename: "handbook.pdf"},
		2: {ID: 2, OrgID: "org2", Filename: "other-tenant.pdf"},
		3: {ID: 3, OrgID: "org1", Filename: "deleted.pdf", IsDeleted: 1},
	}}
	chunks := &stubChunks{chunks: map[int64][]*model.Chunk{
		1: {
			{DocumentID: 1, Index: 0, Text: "Vacation policy is 25 days."},
			{DocumentID: 1, Index: 1, Text: "Sick leave is unlimited."},
		},
	}}
	return docs, chunks
}

func TestRetrieveFiltersByScoreFloor(t *testing.T) {
	docs, chunks := fixtureStores()
	index := &stubIndex{matches: []vector.Match{
		{ID: "doc_1_chunk_0", Score: 0.92},
		{ID: "doc_1_chunk_1", Score: 0.55},
	}}
	e := newTestEngine(index, docs, chunks)

	sources, err := e.Retrieve(context.Background(), "org1", "vacation days", Options{})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Equal(t, int64(1), sources[0].DocID)
	require.Equal(t, 0, sources[0].ChunkIndex)
	require.Equal(t, "Vacation policy is 25 days.", sources[0].ChunkText)
	require.Equal(t, "handbook.pdf", sources[0].Filename)
	require.Equal(t, "tenant:org1", index.namespace)
	require.Equal(t, 10, index.topK)
}

func TestRetrieveSkipsForeignAndDeletedDocs(t *testing.T) {
	docs, chunks := fixtureStores()
	index := &stubIndex{matches: []vector.Match{
		{ID: "doc_2_chunk_0", Score: 0.95},
		{ID: "doc_3_chunk_0", Score: 0.95},
		{ID: "doc_1_chunk_0", Score: 0.9},
	}}
	e := newTestEngine(index, docs, chunks)

	sources, err := e.Retrieve(context.Background(), "org1", "anything", Options{})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Equal(t, int64(1), sources[0].DocID)
}

func TestRetrieveSkipsMalformedVectorIDs(t *testing.T) {
	docs, chunks := fixtureStores()
	index := &stubIndex{matches: []vector.Match{
		{ID: "employee_u1", Score: 0.95},
		{ID: "garbage", Score: 0.95},
	}}
	e := newTestEngine(index, docs, chunks)

	sources, err := e.Retrieve(context.Background(), "org1", "anything", Options{})
	require.NoError(t, err)
	require.Empty(t, sources)
}

func TestRetrieveCarriesPageMetadata(t *testing.T) {
	docs, chunks := fixtureStores()
	index := &stubIndex{matches: []vector.Match{
		{ID: "doc_1_chunk_0", Score: 0.9, Metadata: map[string]interface{}{"page": float64(4)}},
	}}
	e := newTestEngine(index, docs, chunks)

	sources, err := e.Retrieve(context.Background(), "org1", "anything", Options{})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Equal(t, 4, sources[0].Page)
}

func TestRetrievePassesFilterAndTopK(t *testing.T) {
	docs, chunks := fixtureStores()
	index := &stubIndex{}
	e := newTestEngine(index, docs, chunks)

	filter := map[string]interface{}{"doc_type": map[string]interface{}{"$eq": "report"}}
	_, err := e.Retrieve(context.Background(), "org1", "q", Options{TopK: 3, Filter: filter})
	require.NoError(t, err)
	require.Equal(t, 3, index.topK)
	require.Equal(t, filter, index.filter)
}

func TestRetrieveEmbedFailure(t *testing.T) {
	docs, chunks := fixtureStores()
	e := NewEngine(&stubEmbedder{err: fmt.Errorf("budget gone")}, &stubIndex{}, docs, chunks, 10, 0.7)

	_, err := e.Retrieve(context.Background(), "org1", "q", Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "embed query")
}

func TestAnswerNoEvidence(t *testing.T) {
	docs, chunks := fixtureStores()
	e := newTestEngine(&stubIndex{}, docs, chunks)
	gen := &stubGenerator{text: "should not be called"}

	res, err := e.Answer(context.Background(), "org1", "unknown topic", gen, Options{})
	require.NoError(t, err)
	require.Equal(t, NoEvidenceAnswer, res.Answer)
	require.Empty(t, res.Sources)
	require.Empty(t, gen.prompt)
}

func TestAnswerGeneratesFromSources(t *testing.T) {
	docs, chunks := fixtureStores()
	index := &stubIndex{matches: []vector.Match{{ID: "doc_1_chunk_0", Score: 0.9}}}
	e := newTestEngine(index, docs, chunks)
	gen := &stubGenerator{text: "You get 25 days [1]."}

	res, err := e.Answer(context.Background(), "org1", "how many vacation days?", gen, Options{History: "user: hi"})
	require.NoError(t, err)
	require.Equal(t, "You get 25 days [1].", res.Answer)
	require.Equal(t, 42, res.TokenUsage)
	require.Len(t, res.Sources, 1)
	require.Contains(t, gen.prompt, "handbook.pdf")
	require.Contains(t, gen.prompt, "Vacation policy is 25 days.")
	require.Contains(t, gen.prompt, "=== CONVERSATION HISTORY ===")
	require.Contains(t, gen.prompt, "how many vacation days?")
}

func TestAnswerGeneratorFailure(t *testing.T) {
	docs, chunks := fixtureStores()
	index := &stubIndex{matches: []vector.Match{{ID: "doc_1_chunk_0", Score: 0.9}}}
	e := newTestEngine(index, docs, chunks)
	gen := &stubGenerator{err: fmt.Errorf("model down")}

	_, err := e.Answer(context.Background(), "org1", "q", gen, Options{})
	require.Error(t, err)
}
