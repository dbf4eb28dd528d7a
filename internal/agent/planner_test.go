package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeUsesModelPlan(t *testing.T) {
	gen := &stubGenerator{text: `{"needs_employee_search": true, "needs_external_search": false, "query_type": "person-related"}`}
	p := NewPlanner(gen)

	plan := p.Analyze(context.Background(), "who knows kubernetes?")
	require.True(t, plan.Documents)
	require.True(t, plan.People)
	require.False(t, plan.External)
	require.Equal(t, "person-related", plan.QueryType)
}

func TestAnalyzeDefaultsQueryType(t *testing.T) {
	gen := &stubGenerator{text: `{"needs_employee_search": false, "needs_external_search": false}`}
	p := NewPlanner(gen)

	plan := p.Analyze(context.Background(), "what is the refund policy?")
	require.Equal(t, "general", plan.QueryType)
	require.True(t, plan.Documents)
}

func TestAnalyzeHeuristicOnModelFailure(t *testing.T) {
	gen := &stubGenerator{err: fmt.Errorf("model down")}
	p := NewPlanner(gen)

	plan := p.Analyze(context.Background(), "Who is on the billing team?")
	require.True(t, plan.Documents)
	require.True(t, plan.People)
	require.False(t, plan.External)
	require.Equal(t, "general", plan.QueryType)

	plan = p.Analyze(context.Background(), "summarize the latest financial report")
	require.True(t, plan.Documents)
	require.False(t, plan.People)
}

func TestAnalyzeHeuristicOnBadJSON(t *testing.T) {
	gen := &stubGenerator{text: "I think you should search employees"}
	p := NewPlanner(gen)

	plan := p.Analyze(context.Background(), "what changed last quarter?")
	require.True(t, plan.Documents)
	require.False(t, plan.People)
}

func TestAnalyzeWithoutGenerator(t *testing.T) {
	p := NewPlanner(nil)
	plan := p.Analyze(context.Background(), "who owns deployments?")
	require.True(t, plan.Documents)
	require.True(t, plan.People)
}
