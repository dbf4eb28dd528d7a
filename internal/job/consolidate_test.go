package job

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flockhq/flock/internal/config"
	"github.com/flockhq/flock/internal/model"
	"github.com/flockhq/flock/internal/vector"
)

type fakePurgeDocStore struct {
	docs        map[int64]*model.Document
	hardDeleted []int64
}

func (f *fakePurgeDocStore) ListSoftDeletedBefore(_ context.Context, _ int64, limit uint) ([]*model.Document, error) {
	var out []*model.Document
	for _, doc := range f.docs {
		out = append(out, doc)
		if uint(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePurgeDocStore) HardDelete(_ context.Context, docID int64) error {
	delete(f.docs, docID)
	f.hardDeleted = append(f.hardDeleted, docID)
	return nil
}

type fakeScopedDeleter struct {
	deleted []int64
}

func (f *fakeScopedDeleter) DeleteByDocument(_ context.Context, docID int64) error {
	f.deleted = append(f.deleted, docID)
	return nil
}

type fakeJobPruner struct{ pruned int64 }

func (f *fakeJobPruner) DeleteTerminalBefore(context.Context, int64) (int64, error) {
	return f.pruned, nil
}

type fakeCachePruner struct{ pruned int64 }

func (f *fakeCachePruner) DeleteOlderThan(context.Context, int64) (int64, error) {
	return f.pruned, nil
}

type consolidateFixture struct {
	handler *ConsolidateHandler
	docs    *fakePurgeDocStore
	chunks  *fakeScopedDeleter
	class   *fakeScopedDeleter
	index   *fakeVectorIndex
	blobs   *fakeBlobStore
}

func newConsolidateFixture(t *testing.T) *consolidateFixture {
	t.Helper()
	docs := &fakePurgeDocStore{docs: map[int64]*model.Document{
		1: {ID: 1, OrgID: "org1", StorageKey: "org1/k1/a.pdf", IsDeleted: 1},
		2: {ID: 2, OrgID: "org1", StorageKey: "org1/k2/b.txt", IsDeleted: 1},
	}}
	index := newFakeVectorIndex()
	namespace := vector.Namespace("org1")
	require.NoError(t, index.Upsert(context.Background(), namespace, []vector.Item{
		{ID: vector.ChunkVectorID(1, 0), Values: []float32{1, 0, 0, 0}},
		{ID: vector.ChunkVectorID(2, 0), Values: []float32{0, 1, 0, 0}},
	}))
	blobs := newFakeBlobStore()
	blobs.objects["org1/k1/a.pdf"] = []byte("a")
	blobs.objects["org1/k2/b.txt"] = []byte("b")
	chunks := &fakeScopedDeleter{}
	class := &fakeScopedDeleter{}
	handler := NewConsolidateHandler(
		docs, chunks, class, &fakeJobPruner{pruned: 3}, &fakeCachePruner{pruned: 5}, index, blobs,
		config.RetentionConfig{DeletedDocumentDays: 30, JobDays: 30, EmbeddingCacheDays: 90},
	)
	return &consolidateFixture{handler: handler, docs: docs, chunks: chunks, class: class, index: index, blobs: blobs}
}

func consolidateTask() *Task {
	return &Task{JobID: "job-c", Type: "consolidate", Args: json.RawMessage(`{}`)}
}

func TestConsolidatePurgesExpiredDocuments(t *testing.T) {
	fx := newConsolidateFixture(t)

	result, err := fx.handler.Handle(context.Background(), consolidateTask(), noProgress)
	require.NoError(t, err)

	var out consolidateResult
	require.NoError(t, json.Unmarshal([]byte(result), &out))
	require.Equal(t, 2, out.DocumentsPurged)
	require.Equal(t, int64(3), out.JobsPurged)
	require.Equal(t, int64(5), out.CachePurged)

	require.Empty(t, fx.blobs.objects)
	require.Empty(t, fx.index.items[vector.Namespace("org1")])
	require.ElementsMatch(t, []int64{1, 2}, fx.docs.hardDeleted)
	require.ElementsMatch(t, []int64{1, 2}, fx.chunks.deleted)
	require.ElementsMatch(t, []int64{1, 2}, fx.class.deleted)
}

func TestConsolidateBlobFailureKeepsRow(t *testing.T) {
	fx := newConsolidateFixture(t)
	fx.blobs.failKeys["org1/k1/a.pdf"] = fmt.Errorf("object store unavailable")

	result, err := fx.handler.Handle(context.Background(), consolidateTask(), noProgress)
	require.NoError(t, err)

	var out consolidateResult
	require.NoError(t, json.Unmarshal([]byte(result), &out))
	require.Equal(t, 1, out.DocumentsPurged)
	require.NotContains(t, fx.docs.hardDeleted, int64(1))
	require.Contains(t, fx.docs.docs, int64(1))
	require.Contains(t, fx.blobs.objects, "org1/k1/a.pdf")
}

func TestConsolidateMissingBlobTolerated(t *testing.T) {
	fx := newConsolidateFixture(t)
	delete(fx.blobs.objects, "org1/k2/b.txt")

	result, err := fx.handler.Handle(context.Background(), consolidateTask(), noProgress)
	require.NoError(t, err)

	var out consolidateResult
	require.NoError(t, json.Unmarshal([]byte(result), &out))
	require.Equal(t, 2, out.DocumentsPurged)
	require.Empty(t, fx.docs.docs)
}

func TestConsolidateNothingExpired(t *testing.T) {
	fx := newConsolidateFixture(t)
	fx.docs.docs = map[int64]*model.Document{}

	result, err := fx.handler.Handle(context.Background(), consolidateTask(), noProgress)
	require.NoError(t, err)

	var out consolidateResult
	require.NoError(t, json.Unmarshal([]byte(result), &out))
	require.Equal(t, 0, out.DocumentsPurged)
	require.Equal(t, int64(3), out.JobsPurged)
}
