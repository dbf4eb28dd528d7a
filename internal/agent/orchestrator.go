package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flockhq/flock/internal/model"
)

const (
	defaultTurnDeadline = 60 * time.Second
	// slice of the turn budget held back so synthesis can still run after
	// slow sub-agents are cut off
	synthesisReserve = 10 * time.Second
)

// Answer is one orchestrated chat turn: the synthesized text plus the
// reasoning trail and every source set that fed it.
type Answer struct {
	Text       string
	Reasoning  []string
	Sources    model.MessageSources
	Confidence float64
	TokenUsage int
}

type Orchestrator struct {
	planner   *Planner
	data      *DataQueryAgent
	research  *ResearchAgent
	synthesis *SynthesisAgent
	deadline  time.Duration
}

func NewOrchestrator(planner *Planner, data *DataQueryAgent, research *ResearchAgent, synthesis *SynthesisAgent) *Orchestrator {
	return &Orchestrator{
		planner:   planner,
		data:      data,
		research:  research,
		synthesis: synthesis,
		deadline:  defaultTurnDeadline,
	}
}

// ProcessQuery plans, fans the selected sub-agents out concurrently, then
// synthesizes from whatever completed before the fan-out budget ran out. A
// sub-agent failure or timeout degrades the answer instead of failing the
// turn.
func (o *Orchestrator) ProcessQuery(ctx context.Context, orgID, query, history string) (*Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()
	fanoutBudget := o.deadline - synthesisReserve
	if fanoutBudget <= 0 {
		fanoutBudget = o.deadline / 2
	}
	fanoutCtx, fanoutCancel := context.WithTimeout(ctx, fanoutBudget)
	defer fanoutCancel()

	var mu sync.Mutex
	var reasoning []string
	step := func(format string, args ...interface{}) {
		mu.Lock()
		reasoning = append(reasoning, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	step("Analyzing query to determine information needs")
	plan := o.planner.Analyze(ctx, query)
	step("Query type: %s", plan.QueryType)

	var docs []model.DocumentSource
	var employees []model.EmployeeSource
	var external []model.ExternalSource

	g, gctx := errgroup.WithContext(fanoutCtx)
	if plan.Documents {
		g.Go(func() error {
			results, err := o.data.SearchDocuments(gctx, orgID, query, 10)
			if err != nil {
				step("Document search failed: %v", err)
				logutil.GetLogger(gctx).Warn("document search failed", zap.Error(err))
				return nil
			}
			mu.Lock()
			docs = results
			mu.Unlock()
			step("Found %d relevant document chunks", len(results))
			return nil
		})
	}
	if plan.People {
		g.Go(func() error {
			results, err := o.data.SearchEmployees(gctx, orgID, query, 5)
			if err != nil {
				step("Employee search failed: %v", err)
				logutil.GetLogger(gctx).Warn("employee search failed", zap.Error(err))
				return nil
			}
			mu.Lock()
			employees = results
			mu.Unlock()
			step("Found %d relevant team members", len(results))
			return nil
		})
	}
	if plan.External {
		g.Go(func() error {
			if !o.research.Enabled() {
				step("External research requested but not configured, skipping")
				return nil
			}
			results, err := o.research.QueryExternal(gctx, query)
			if err != nil {
				step("External research failed: %v", err)
				logutil.GetLogger(gctx).Warn("external research failed", zap.Error(err))
				return nil
			}
			mu.Lock()
			external = results
			mu.Unlock()
			step("Found %d external sources", len(results))
			return nil
		})
	}
	// sub-agents swallow their own errors; Wait only orders completion
	_ = g.Wait()

	step("Synthesizing answer from all sources")
	result, err := o.synthesis.Synthesize(ctx, query, docs, employees, external, history)
	if err != nil {
		return nil, err
	}
	if len(docs) > 5 {
		docs = docs[:5]
	}
	if employees == nil {
		employees = []model.EmployeeSource{}
	}
	if external == nil {
		external = []model.ExternalSource{}
	}
	if docs == nil {
		docs = []model.DocumentSource{}
	}
	return &Answer{
		Text:      result.Answer,
		Reasoning: reasoning,
		Sources: model.MessageSources{
			Documents: docs,
			Employees: employees,
			External:  external,
		},
		Confidence: result.Confidence,
		TokenUsage: result.TokenUsage,
	}, nil
}
