package job

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConnector struct {
	files []SourceFile
	err   error
}

func (f *fakeConnector) ListFiles(context.Context, string) ([]SourceFile, error) {
	return f.files, f.err
}

type fakeIngestor struct {
	names  []string
	org    string
	by     string
	failOn string
}

func (f *fakeIngestor) IngestFile(_ context.Context, orgID, uploadedBy, filename, _ string, r io.Reader, _ int64) (int64, string, error) {
	if filename == f.failOn {
		return 0, "", fmt.Errorf("unsupported content")
	}
	_, _ = io.ReadAll(r)
	f.names = append(f.names, filename)
	f.org = orgID
	f.by = uploadedBy
	return int64(len(f.names)), "job-1", nil
}

func sourceFile(name string) SourceFile {
	return SourceFile{
		Name:     name,
		FileType: "txt",
		Open: func(context.Context) (io.ReadCloser, int64, error) {
			return io.NopCloser(strings.NewReader("content of " + name)), 10, nil
		},
	}
}

func syncTask(t *testing.T, source string) *Task {
	t.Helper()
	args, err := json.Marshal(SyncSourceArgs{Source: source})
	require.NoError(t, err)
	return &Task{JobID: "j1", OrgID: "org1", Type: "sync_source", Args: args}
}

func noProgress(int) {}

func TestSyncSourceNoConnector(t *testing.T) {
	h := NewSyncSourceHandler(&fakeIngestor{})
	result, err := h.Handle(context.Background(), syncTask(t, "never-registered"), noProgress)
	require.NoError(t, err)

	var out struct {
		Synced  int `json:"synced"`
		Skipped int `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal([]byte(result), &out))
	require.Zero(t, out.Synced)
	require.Zero(t, out.Skipped)
}

func TestSyncSourceIngestsFiles(t *testing.T) {
	RegisterConnector("test-drive", &fakeConnector{files: []SourceFile{
		sourceFile("a.txt"),
		sourceFile("b.txt"),
	}})

	ing := &fakeIngestor{}
	h := NewSyncSourceHandler(ing)
	result, err := h.Handle(context.Background(), syncTask(t, "test-drive"), noProgress)
	require.NoError(t, err)
	require.JSONEq(t, `{"synced": 2, "skipped": 0}`, result)
	require.Equal(t, []string{"a.txt", "b.txt"}, ing.names)
	require.Equal(t, "org1", ing.org)
	require.Equal(t, "sync:test-drive", ing.by)
}

func TestSyncSourceSkipsFailedFiles(t *testing.T) {
	RegisterConnector("test-flaky", &fakeConnector{files: []SourceFile{
		sourceFile("good.txt"),
		sourceFile("bad.txt"),
	}})

	h := NewSyncSourceHandler(&fakeIngestor{failOn: "bad.txt"})
	result, err := h.Handle(context.Background(), syncTask(t, "test-flaky"), noProgress)
	require.NoError(t, err)
	require.JSONEq(t, `{"synced": 1, "skipped": 1}`, result)
}

func TestSyncSourceListFailure(t *testing.T) {
	RegisterConnector("test-broken", &fakeConnector{err: fmt.Errorf("api quota")})

	h := NewSyncSourceHandler(&fakeIngestor{})
	_, err := h.Handle(context.Background(), syncTask(t, "test-broken"), noProgress)
	require.Error(t, err)
}

func TestSyncSourceBadArgs(t *testing.T) {
	h := NewSyncSourceHandler(&fakeIngestor{})
	task := &Task{JobID: "j1", OrgID: "org1", Type: "sync_source", Args: json.RawMessage(`not json`)}
	_, err := h.Handle(context.Background(), task, noProgress)
	require.Error(t, err)
}
