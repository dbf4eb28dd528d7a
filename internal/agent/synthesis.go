package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/flockhq/flock/internal/ai"
	"github.com/flockhq/flock/internal/model"
)

const synthesisSystem = `You are a helpful AI assistant that synthesizes information from multiple sources.

Your job is to:
1. Answer the user's question accurately based on the provided sources
2. Cite sources explicitly (e.g., "According to [document.pdf]...")
3. Acknowledge when information is incomplete or uncertain
4. Distinguish between internal company knowledge and external sources
5. Provide a structured, clear answer

If multiple sources conflict, acknowledge the conflict and provide both perspectives.
If no relevant information is found, say so honestly.`

// SynthesisResult is the combined answer with a heuristic confidence score.
type SynthesisResult struct {
	Answer      string
	Confidence  float64
	SourcesUsed []string
	TokenUsage  int
}

type SynthesisAgent struct {
	generator ai.IGenerator
}

func NewSynthesisAgent(generator ai.IGenerator) *SynthesisAgent {
	return &SynthesisAgent{generator: generator}
}

func (a *SynthesisAgent) Synthesize(
	ctx context.Context,
	query string,
	docs []model.DocumentSource,
	employees []model.EmployeeSource,
	external []model.ExternalSource,
	history string,
) (*SynthesisResult, error) {
	prompt := buildSynthesisPrompt(query, docs, employees, external, history)
	res, err := a.generator.Generate(ctx, prompt, ai.GenerateOptions{
		Temperature: 0.3,
		MaxTokens:   1500,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize answer: %w", err)
	}
	return &SynthesisResult{
		Answer:      res.Text,
		Confidence:  calculateConfidence(docs, employees, external),
		SourcesUsed: extractSourcesUsed(res.Text, docs, employees, external),
		TokenUsage:  res.TotalTokens,
	}, nil
}

func buildSynthesisPrompt(
	query string,
	docs []model.DocumentSource,
	employees []model.EmployeeSource,
	external []model.ExternalSource,
	history string,
) string {
	var b strings.Builder
	b.WriteString(synthesisSystem)
	b.WriteString("\n\nUser Question: ")
	b.WriteString(query)
	b.WriteString("\n")
	if len(docs) > 0 {
		b.WriteString("\n=== INTERNAL DOCUMENTS ===\n")
		for i, doc := range docs {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "\n[%s] (relevance: %.2f)\n%s\n", doc.Filename, doc.Score, doc.ChunkText)
		}
	}
	if len(employees) > 0 {
		b.WriteString("\n=== TEAM MEMBERS ===\n")
		for i, emp := range employees {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "\n%s - %s\nSkills/Specialties: %s\n", emp.Name, emp.Title, emp.Specialties)
		}
	}
	if len(external) > 0 {
		b.WriteString("\n=== EXTERNAL SOURCES ===\n")
		for i, ext := range external {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "\n[%s] %s\n%s\n", ext.Title, ext.URL, ext.Snippet)
		}
	}
	if history != "" {
		b.WriteString("\n=== CONVERSATION CONTEXT ===\n")
		b.WriteString(history)
		b.WriteString("\n")
	}
	b.WriteString("\nPlease provide a comprehensive answer based on the sources above.")
	return b.String()
}

// calculateConfidence weighs source quality: document relevance dominates,
// having corroborating people or external hits adds a fixed bonus each.
func calculateConfidence(docs []model.DocumentSource, employees []model.EmployeeSource, external []model.ExternalSource) float64 {
	confidence := 0.0
	if len(docs) > 0 {
		n := len(docs)
		if n > 3 {
			n = 3
		}
		sum := 0.0
		for _, doc := range docs[:n] {
			sum += doc.Score
		}
		confidence += sum / float64(n) * 0.5
	}
	if len(employees) > 0 {
		confidence += 0.3
	}
	if len(external) > 0 {
		confidence += 0.2
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func extractSourcesUsed(
	answer string,
	docs []model.DocumentSource,
	employees []model.EmployeeSource,
	external []model.ExternalSource,
) []string {
	var used []string
	seen := map[string]bool{}
	add := func(label string) {
		if label != "" && !seen[label] {
			seen[label] = true
			used = append(used, label)
		}
	}
	for _, doc := range docs {
		if strings.Contains(answer, doc.Filename) {
			add(doc.Filename)
		}
	}
	for _, emp := range employees {
		if strings.Contains(answer, emp.Name) {
			add(emp.Name)
		}
	}
	for _, ext := range external {
		if strings.Contains(answer, ext.URL) || strings.Contains(answer, ext.Title) {
			add(ext.URL)
		}
	}
	return used
}
