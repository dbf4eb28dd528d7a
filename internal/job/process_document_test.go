package job

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flockhq/flock/internal/chunk"
	"github.com/flockhq/flock/internal/classify"
	"github.com/flockhq/flock/internal/model"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
	"github.com/flockhq/flock/internal/vector"
)

type fakeBlobStore struct {
	objects  map[string][]byte
	failKeys map[string]error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}, failKeys: map[string]error{}}
}

func (f *fakeBlobStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeBlobStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", appErr.ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "http://blobs.test/" + key, nil
}

func (f *fakeBlobStore) Delete(_ context.Context, key string) error {
	if err := f.failKeys[key]; err != nil {
		return err
	}
	if _, ok := f.objects[key]; !ok {
		return fmt.Errorf("%w: %s", appErr.ErrNotFound, key)
	}
	delete(f.objects, key)
	return nil
}

type fakeDocStore struct {
	docs     map[int64]*model.Document
	statuses []string
}

func (f *fakeDocStore) GetByID(_ context.Context, docID int64) (*model.Document, error) {
	doc, ok := f.docs[docID]
	if !ok {
		return nil, fmt.Errorf("%w: document %d", appErr.ErrNotFound, docID)
	}
	return doc, nil
}

func (f *fakeDocStore) UpdateStatus(_ context.Context, docID int64, status string) error {
	if doc, ok := f.docs[docID]; ok {
		doc.Status = status
	}
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeDocStore) UpdateMeta(_ context.Context, docID int64, meta *model.DocumentMeta) error {
	if doc, ok := f.docs[docID]; ok {
		doc.Meta = meta
	}
	return nil
}

type fakeChunkStore struct {
	docs   *fakeDocStore
	chunks map[int64][]*model.Chunk
}

func (f *fakeChunkStore) DeleteByDocument(_ context.Context, docID int64) error {
	delete(f.chunks, docID)
	return nil
}

func (f *fakeChunkStore) InsertBatchAndComplete(ctx context.Context, docID int64, chunks []*model.Chunk) error {
	f.chunks[docID] = chunks
	return f.docs.UpdateStatus(ctx, docID, model.DocumentStatusCompleted)
}

type fakeClassificationStore struct {
	saved []*model.Classification
}

func (f *fakeClassificationStore) Upsert(_ context.Context, c *model.Classification) error {
	f.saved = append(f.saved, c)
	return nil
}

type fakeVectorIndex struct {
	items map[string]map[string]vector.Item
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{items: map[string]map[string]vector.Item{}}
}

func (f *fakeVectorIndex) Dimension() int { return 4 }

func (f *fakeVectorIndex) Upsert(_ context.Context, namespace string, items []vector.Item) error {
	ns, ok := f.items[namespace]
	if !ok {
		ns = map[string]vector.Item{}
		f.items[namespace] = ns
	}
	for _, item := range items {
		ns[item.ID] = item
	}
	return nil
}

func (f *fakeVectorIndex) Search(_ context.Context, namespace string, _ []float32, topK int, filter map[string]interface{}) ([]vector.Match, error) {
	var matches []vector.Match
	for id, item := range f.items[namespace] {
		if !metadataMatches(item.Metadata, filter) {
			continue
		}
		matches = append(matches, vector.Match{ID: id, Score: 0.9, Metadata: item.Metadata})
		if len(matches) == topK {
			break
		}
	}
	return matches, nil
}

func metadataMatches(metadata, filter map[string]interface{}) bool {
	for key, cond := range filter {
		eq, ok := cond.(map[string]interface{})["$eq"]
		if !ok {
			return false
		}
		if fmt.Sprint(metadata[key]) != fmt.Sprint(eq) {
			return false
		}
	}
	return true
}

func (f *fakeVectorIndex) DeleteDocument(_ context.Context, namespace string, documentID int64) error {
	prefix := vector.ChunkVectorPrefix(documentID)
	for id := range f.items[namespace] {
		if strings.HasPrefix(id, prefix) {
			delete(f.items[namespace], id)
		}
	}
	return nil
}

func (f *fakeVectorIndex) DeleteNamespace(_ context.Context, namespace string) error {
	delete(f.items, namespace)
	return nil
}

func (f *fakeVectorIndex) Healthy(context.Context) error { return nil }

type fakeDocEmbedder struct {
	calls int
	err   error
}

func (f *fakeDocEmbedder) EmbedTexts(_ context.Context, _ string, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i])), 0, 0, 1}
	}
	return vectors, nil
}

func (f *fakeDocEmbedder) Dimension() int    { return 4 }
func (f *fakeDocEmbedder) ModelName() string { return "fake-embed" }

type noVocabStore struct{}

func (noVocabStore) DistinctValues(context.Context, string, string, string) ([]string, error) {
	return nil, nil
}

type processFixture struct {
	handler *ProcessDocumentHandler
	blobs   *fakeBlobStore
	docs    *fakeDocStore
	chunks  *fakeChunkStore
	class   *fakeClassificationStore
	index   *fakeVectorIndex
	embed   *fakeDocEmbedder
}

const processTestText = "The roadmap covers three quarters. Billing ships the invoicing revamp first. " +
	"Platform follows with the ingestion rework. Support tooling lands last, after the freeze."

func newProcessFixture(t *testing.T) *processFixture {
	blobs := newFakeBlobStore()
	blobs.objects["org1/abc/roadmap.txt"] = []byte(processTestText)
	docs := &fakeDocStore{docs: map[int64]*model.Document{
		7: {
			ID:         7,
			OrgID:      "org1",
			Filename:   "roadmap.txt",
			FileType:   "txt",
			StorageKey: "org1/abc/roadmap.txt",
			Status:     model.DocumentStatusPending,
		},
	}}
	chunks := &fakeChunkStore{docs: docs, chunks: map[int64][]*model.Chunk{}}
	class := &fakeClassificationStore{}
	index := newFakeVectorIndex()
	embedder := &fakeDocEmbedder{}
	chunker, err := chunk.NewChunker(40, 0)
	require.NoError(t, err)
	orgCtx := classify.NewOrgContextProvider(noVocabStore{}, 8, time.Minute)
	handler := NewProcessDocumentHandler(
		blobs, docs, chunks, class, embedder, index, chunker,
		classify.NewClassifier(nil, orgCtx), orgCtx, time.Second,
	)
	return &processFixture{
		handler: handler, blobs: blobs, docs: docs, chunks: chunks,
		class: class, index: index, embed: embedder,
	}
}

func processTask(t *testing.T, docID int64, orgID string, attempt int) *Task {
	args, err := json.Marshal(ProcessDocumentArgs{DocID: docID})
	require.NoError(t, err)
	return &Task{JobID: "job-1", OrgID: orgID, Type: "process_document", Args: args, Attempt: attempt}
}

func TestProcessDocumentCompletes(t *testing.T) {
	fx := newProcessFixture(t)
	var milestones []int
	record := func(p int) { milestones = append(milestones, p) }

	result, err := fx.handler.Handle(context.Background(), processTask(t, 7, "org1", 0), record)
	require.NoError(t, err)

	var out processDocumentResult
	require.NoError(t, json.Unmarshal([]byte(result), &out))
	require.Equal(t, model.DocumentStatusCompleted, out.Status)
	require.NotZero(t, out.ChunkCount)

	require.Equal(t, model.DocumentStatusCompleted, fx.docs.docs[7].Status)
	require.Len(t, fx.chunks.chunks[7], out.ChunkCount)
	require.Len(t, fx.index.items[vector.Namespace("org1")], out.ChunkCount)
	require.Len(t, fx.class.saved, 1)
	require.Equal(t, []int{10, 30, 50, 70, 85, 95}, milestones)
}

func TestProcessDocumentMetadataMatchesTypeFilter(t *testing.T) {
	fx := newProcessFixture(t)
	_, err := fx.handler.Handle(context.Background(), processTask(t, 7, "org1", 0), noProgress)
	require.NoError(t, err)

	// same filter shape the document search builds
	filter := map[string]interface{}{"doc_type": map[string]interface{}{"$eq": "txt"}}
	matches, err := fx.index.Search(context.Background(), vector.Namespace("org1"), []float32{1, 0, 0, 0}, 10, filter)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	filter = map[string]interface{}{"doc_type": map[string]interface{}{"$eq": "pdf"}}
	matches, err = fx.index.Search(context.Background(), vector.Namespace("org1"), []float32{1, 0, 0, 0}, 10, filter)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestProcessDocumentRerunLeavesNoDuplicates(t *testing.T) {
	fx := newProcessFixture(t)
	_, err := fx.handler.Handle(context.Background(), processTask(t, 7, "org1", 0), noProgress)
	require.NoError(t, err)
	firstCount := len(fx.chunks.chunks[7])

	// redelivery of the same task starts from a clean slate
	_, err = fx.handler.Handle(context.Background(), processTask(t, 7, "org1", 1), noProgress)
	require.NoError(t, err)
	require.Len(t, fx.chunks.chunks[7], firstCount)
	require.Len(t, fx.index.items[vector.Namespace("org1")], firstCount)
}

func TestProcessDocumentTransientFailureKeepsProcessing(t *testing.T) {
	fx := newProcessFixture(t)
	fx.embed.err = fmt.Errorf("%w: embedding upstream 503", appErr.ErrUpstream)

	_, err := fx.handler.Handle(context.Background(), processTask(t, 7, "org1", 0), noProgress)
	require.Error(t, err)
	// the executor requeues transient failures, so the row stays processing
	require.Equal(t, model.DocumentStatusProcessing, fx.docs.docs[7].Status)
	require.Empty(t, fx.chunks.chunks[7])
}

func TestProcessDocumentFinalAttemptMarksFailed(t *testing.T) {
	fx := newProcessFixture(t)
	fx.embed.err = fmt.Errorf("%w: embedding upstream 503", appErr.ErrUpstream)

	_, err := fx.handler.Handle(context.Background(), processTask(t, 7, "org1", maxAttempts-1), noProgress)
	require.Error(t, err)
	require.Equal(t, model.DocumentStatusFailed, fx.docs.docs[7].Status)
}

func TestProcessDocumentBudgetExceededFailsCleanly(t *testing.T) {
	fx := newProcessFixture(t)
	fx.embed.err = fmt.Errorf("%w: monthly token budget", appErr.ErrBudgetExceeded)

	_, err := fx.handler.Handle(context.Background(), processTask(t, 7, "org1", 0), noProgress)
	require.ErrorIs(t, err, appErr.ErrBudgetExceeded)
	require.Equal(t, model.DocumentStatusFailed, fx.docs.docs[7].Status)
	require.Empty(t, fx.chunks.chunks[7])
	require.Empty(t, fx.index.items[vector.Namespace("org1")])
}

func TestProcessDocumentEmptyDocumentFails(t *testing.T) {
	fx := newProcessFixture(t)
	fx.blobs.objects["org1/abc/roadmap.txt"] = []byte("   \n\t  ")

	_, err := fx.handler.Handle(context.Background(), processTask(t, 7, "org1", 0), noProgress)
	require.ErrorIs(t, err, appErr.ErrEmptyDocument)
	require.Equal(t, model.DocumentStatusFailed, fx.docs.docs[7].Status)
}

func TestProcessDocumentWrongOrg(t *testing.T) {
	fx := newProcessFixture(t)
	_, err := fx.handler.Handle(context.Background(), processTask(t, 7, "org2", 0), noProgress)
	require.ErrorIs(t, err, appErr.ErrForbidden)
	require.Equal(t, model.DocumentStatusPending, fx.docs.docs[7].Status)
}
