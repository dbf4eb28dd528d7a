package classify

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// OrgContext is what the tenant has already accumulated: feeding known
// values back into the prompt keeps new classifications consistent with
// prior ones.
type OrgContext struct {
	Teams    []string
	Projects []string
}

type distinctStore interface {
	DistinctValues(ctx context.Context, orgID, column string, exclude string) ([]string, error)
}

// OrgContextProvider caches per-tenant vocabulary so every upload does not
// re-run two DISTINCT scans. Writes invalidate the tenant's entry.
type OrgContextProvider struct {
	store distinctStore
	cache *expirable.LRU[string, *OrgContext]
}

func NewOrgContextProvider(store distinctStore, size int, ttl time.Duration) *OrgContextProvider {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &OrgContextProvider{
		store: store,
		cache: expirable.NewLRU[string, *OrgContext](size, nil, ttl),
	}
}

func (p *OrgContextProvider) Get(ctx context.Context, orgID string) *OrgContext {
	if cached, ok := p.cache.Get(orgID); ok {
		return cached
	}
	octx := &OrgContext{}
	teams, err := p.store.DistinctValues(ctx, orgID, "team", "General")
	if err != nil {
		logutil.GetLogger(ctx).Warn("failed to load org teams", zap.String("org_id", orgID), zap.Error(err))
		return octx
	}
	projects, err := p.store.DistinctValues(ctx, orgID, "project", "none")
	if err != nil {
		logutil.GetLogger(ctx).Warn("failed to load org projects", zap.String("org_id", orgID), zap.Error(err))
		return octx
	}
	octx.Teams = teams
	octx.Projects = projects
	p.cache.Add(orgID, octx)
	return octx
}

// Invalidate drops the cached vocabulary after a classification write.
func (p *OrgContextProvider) Invalidate(orgID string) {
	p.cache.Remove(orgID)
}
