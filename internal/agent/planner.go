package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/flockhq/flock/internal/ai"
)

// Plan is which sources a query should consult. Documents are always
// searched; people and external are opt-in per query.
type Plan struct {
	Documents bool   `json:"-"`
	People    bool   `json:"needs_employee_search"`
	External  bool   `json:"needs_external_search"`
	QueryType string `json:"query_type"`
}

type Planner struct {
	generator ai.IGenerator
}

func NewPlanner(generator ai.IGenerator) *Planner {
	return &Planner{generator: generator}
}

const plannerPrompt = `Analyze the user's query and determine:
1. Does it ask about people, team members, or who has certain skills? (needs_employee_search)
2. Does it require external/current information not likely in company docs? (needs_external_search)
3. What type of query is it?

Respond in JSON format:
{
  "needs_employee_search": true/false,
  "needs_external_search": true/false,
  "query_type": "factual|analytical|person-related|procedural|general"
}

Query: `

// Analyze classifies the query. When the model is unavailable a keyword
// heuristic decides instead; planning must never block answering.
func (p *Planner) Analyze(ctx context.Context, query string) Plan {
	if p.generator != nil {
		res, err := p.generator.Generate(ctx, plannerPrompt+query, ai.GenerateOptions{
			Temperature: 0.2,
			MaxTokens:   100,
			JSONMode:    true,
		})
		if err == nil {
			var plan Plan
			if jerr := json.Unmarshal([]byte(ai.StripJSONFence(res.Text)), &plan); jerr == nil {
				plan.Documents = true
				if plan.QueryType == "" {
					plan.QueryType = "general"
				}
				return plan
			}
		} else {
			logutil.GetLogger(ctx).Warn("query analysis failed, using heuristic", zap.Error(err))
		}
	}
	lower := strings.ToLower(query)
	return Plan{
		Documents: true,
		People:    strings.Contains(lower, "who") || strings.Contains(lower, "team"),
		External:  false,
		QueryType: "general",
	}
}
