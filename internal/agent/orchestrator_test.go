package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flockhq/flock/internal/model"
	"github.com/flockhq/flock/internal/rag"
	"github.com/flockhq/flock/internal/vector"
)

type stubEmbedder struct{}

func (stubEmbedder) EmbedTexts(_ context.Context, _ string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (stubEmbedder) Dimension() int    { return 3 }
func (stubEmbedder) ModelName() string { return "stub" }

type stubIndex struct {
	matches map[string][]vector.Match // keyed by filter "type" when present
}

func (stubIndex) Dimension() int                                      { return 3 }
func (stubIndex) Upsert(context.Context, string, []vector.Item) error { return nil }

func (s stubIndex) Search(_ context.Context, _ string, _ []float32, _ int, filter map[string]interface{}) ([]vector.Match, error) {
	if filter != nil {
		return s.matches["employee"], nil
	}
	return s.matches["chunk"], nil
}

func (stubIndex) DeleteDocument(context.Context, string, int64) error { return nil }
func (stubIndex) DeleteNamespace(context.Context, string) error       { return nil }
func (stubIndex) Healthy(context.Context) error                       { return nil }

type stubDocs struct{ docs map[int64]*model.Document }

func (s stubDocs) GetByIDs(_ context.Context, ids []int64) (map[int64]*model.Document, error) {
	out := map[int64]*model.Document{}
	for _, id := range ids {
		if d, ok := s.docs[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

type stubChunks struct{ chunks map[int64][]*model.Chunk }

func (s stubChunks) ListByDocument(_ context.Context, docID int64) ([]*model.Chunk, error) {
	return s.chunks[docID], nil
}

func newTestDataAgent() *DataQueryAgent {
	index := stubIndex{matches: map[string][]vector.Match{
		"chunk": {{ID: "doc_1_chunk_0", Score: 0.9}},
		"employee": {{ID: "employee_u1", Score: 0.88, Metadata: map[string]interface{}{
			"user_id": "u1", "name": "Alice Wei", "title": "HR Lead", "specialties": "benefits",
		}}},
	}}
	docs := stubDocs{docs: map[int64]*model.Document{
		1: {ID: 1, OrgID: "org1", Filename: "handbook.pdf"},
	}}
	chunks := stubChunks{chunks: map[int64][]*model.Chunk{
		1: {{DocumentID: 1, Index: 0, Text: "Vacation is 25 days."}},
	}}
	engine := rag.NewEngine(stubEmbedder{}, index, docs, chunks, 10, 0.7)
	return NewDataQueryAgent(engine, stubEmbedder{}, index)
}

func TestSearchEmployeesMapsMetadata(t *testing.T) {
	a := newTestDataAgent()
	employees, err := a.SearchEmployees(context.Background(), "org1", "who knows benefits?", 5)
	require.NoError(t, err)
	require.Len(t, employees, 1)
	require.Equal(t, "u1", employees[0].UserID)
	require.Equal(t, "Alice Wei", employees[0].Name)
	require.Equal(t, "HR Lead", employees[0].Title)
	require.Equal(t, "benefits", employees[0].Specialties)
	require.InDelta(t, 0.88, employees[0].Relevance, 0.001)
}

func TestProcessQueryFansOutAndSynthesizes(t *testing.T) {
	gen := &stubGenerator{text: "Ask Alice Wei, see handbook.pdf."}
	o := NewOrchestrator(
		NewPlanner(nil), // heuristic: "who" triggers people search
		newTestDataAgent(),
		NewResearchAgent("", ""),
		NewSynthesisAgent(gen),
	)

	ans, err := o.ProcessQuery(context.Background(), "org1", "who handles vacation requests?", "")
	require.NoError(t, err)
	require.Equal(t, "Ask Alice Wei, see handbook.pdf.", ans.Text)
	require.Len(t, ans.Sources.Documents, 1)
	require.Len(t, ans.Sources.Employees, 1)
	require.Empty(t, ans.Sources.External)
	require.NotEmpty(t, ans.Reasoning)
	require.Equal(t, "Analyzing query to determine information needs", ans.Reasoning[0])
	require.Contains(t, ans.Reasoning, "Synthesizing answer from all sources")
	require.Positive(t, ans.Confidence)
}

func TestProcessQueryDocumentsOnly(t *testing.T) {
	gen := &stubGenerator{text: "25 days."}
	o := NewOrchestrator(NewPlanner(nil), newTestDataAgent(), NewResearchAgent("", ""), NewSynthesisAgent(gen))

	ans, err := o.ProcessQuery(context.Background(), "org1", "how many vacation days do we get?", "")
	require.NoError(t, err)
	require.Len(t, ans.Sources.Documents, 1)
	require.Empty(t, ans.Sources.Employees)
}

type blockingIndex struct{ stubIndex }

func (blockingIndex) Search(ctx context.Context, _ string, _ []float32, _ int, _ map[string]interface{}) ([]vector.Match, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestProcessQuerySynthesizesAfterFanoutTimeout(t *testing.T) {
	index := blockingIndex{}
	engine := rag.NewEngine(stubEmbedder{}, index, stubDocs{}, stubChunks{}, 10, 0.7)
	data := NewDataQueryAgent(engine, stubEmbedder{}, index)
	gen := &stubGenerator{text: "Nothing in the archive yet."}
	o := NewOrchestrator(NewPlanner(nil), data, NewResearchAgent("", ""), NewSynthesisAgent(gen))
	o.deadline = 100 * time.Millisecond

	// the sub-agent never returns; the fan-out budget cuts it off and
	// synthesis still runs on the remaining turn budget
	ans, err := o.ProcessQuery(context.Background(), "org1", "summarize the quarterly report", "")
	require.NoError(t, err)
	require.Equal(t, "Nothing in the archive yet.", ans.Text)
	require.Empty(t, ans.Sources.Documents)
}

func TestResearchAgentDisabledWithoutKey(t *testing.T) {
	a := NewResearchAgent("", "")
	require.False(t, a.Enabled())
	sources, err := a.QueryExternal(context.Background(), "anything")
	require.NoError(t, err)
	require.Nil(t, sources)
}

func TestResearchAgentParsesCitations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "Go 1.25 was released in August."}}],
			"citations": ["https://go.dev/blog/go1.25", "https://example.com/mirror"]
		}`))
	}))
	defer srv.Close()

	a := NewResearchAgent("test-key", srv.URL)
	require.True(t, a.Enabled())
	sources, err := a.QueryExternal(context.Background(), "latest go release")
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.Equal(t, "https://go.dev/blog/go1.25", sources[0].URL)
	require.Equal(t, "Source 1", sources[0].Title)
	require.Contains(t, sources[0].Snippet, "Go 1.25")
	require.Greater(t, sources[0].Relevance, sources[1].Relevance)
}

func TestResearchAgentUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewResearchAgent("test-key", srv.URL)
	_, err := a.QueryExternal(context.Background(), "q")
	require.Error(t, err)
}
