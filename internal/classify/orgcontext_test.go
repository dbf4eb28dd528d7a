package classify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeDistinctStore struct {
	calls int
	fail  bool
}

func (f *fakeDistinctStore) DistinctValues(_ context.Context, _, column, _ string) ([]string, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("db down")
	}
	if column == "team" {
		return []string{"Engineering"}, nil
	}
	return []string{"Atlas"}, nil
}

func TestOrgContextProviderCaches(t *testing.T) {
	store := &fakeDistinctStore{}
	p := NewOrgContextProvider(store, 16, time.Minute)

	octx := p.Get(context.Background(), "org1")
	require.Equal(t, []string{"Engineering"}, octx.Teams)
	require.Equal(t, []string{"Atlas"}, octx.Projects)
	require.Equal(t, 2, store.calls)

	p.Get(context.Background(), "org1")
	require.Equal(t, 2, store.calls)

	p.Invalidate("org1")
	p.Get(context.Background(), "org1")
	require.Equal(t, 4, store.calls)
}

func TestOrgContextProviderLoadFailure(t *testing.T) {
	store := &fakeDistinctStore{fail: true}
	p := NewOrgContextProvider(store, 16, time.Minute)

	octx := p.Get(context.Background(), "org1")
	require.Empty(t, octx.Teams)
	require.Empty(t, octx.Projects)

	// failures are not cached
	p.Get(context.Background(), "org1")
	require.Equal(t, 2, store.calls)
}
