package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/flockhq/flock/internal/pkg/errors"
)

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "report.pdf", SanitizeFilename(" report.pdf "))
	require.Equal(t, "_etc_passwd", SanitizeFilename("/etc/passwd"))
	require.Equal(t, "a_b.txt", SanitizeFilename("a\\b.txt"))
	require.Equal(t, "notes.txt", SanitizeFilename("no\x01tes.txt"))
	require.Equal(t, "unnamed", SanitizeFilename("..."))
	require.Equal(t, "unnamed", SanitizeFilename(""))
}

func TestBuildKeyScopedToOrg(t *testing.T) {
	key := BuildKey("org1", "../secret.pdf")
	require.True(t, strings.HasPrefix(key, "org1/"))
	require.True(t, strings.HasSuffix(key, "/.._secret.pdf") || !strings.Contains(key, ".."))
	require.NotEqual(t, BuildKey("org1", "a.pdf"), BuildKey("org1", "a.pdf"))
}

func newLocalStore(t *testing.T) Store {
	t.Helper()
	store, err := New("local", map[string]interface{}{
		"dir":        t.TempDir(),
		"public_url": "https://files.example.com",
	})
	require.NoError(t, err)
	return store
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	body := "the document body"
	err := store.Put(ctx, "org1/abc/report.txt", strings.NewReader(body), int64(len(body)), "text/plain")
	require.NoError(t, err)

	rc, err := store.Open(ctx, "org1/abc/report.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, body, string(got))

	require.NoError(t, store.Delete(ctx, "org1/abc/report.txt"))
	_, err = store.Open(ctx, "org1/abc/report.txt")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	err := store.Put(ctx, "org1/../escape.txt", strings.NewReader("x"), 1, "text/plain")
	require.Error(t, err)
	_, err = store.Open(ctx, "org1/../../etc/passwd")
	require.Error(t, err)
	_, err = store.Open(ctx, "")
	require.Error(t, err)
}

func TestLocalStorePresign(t *testing.T) {
	store := newLocalStore(t)
	url, err := store.PresignGet(context.Background(), "org1/abc/report.txt", time.Hour)
	require.NoError(t, err)
	require.Equal(t, "https://files.example.com/org1/abc/report.txt", url)
}

func TestLocalStoreDeleteMissingIsNoop(t *testing.T) {
	store := newLocalStore(t)
	require.NoError(t, store.Delete(context.Background(), "org1/nope/gone.txt"))
}

func TestNewUnknownStoreType(t *testing.T) {
	_, err := New("ftp", nil)
	require.Error(t, err)
}
