package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flockhq/flock/internal/model"
)

const (
	defaultResearchBaseURL = "https://api.perplexity.ai"
	researchModel          = "llama-3.1-sonar-small-128k-online"
	maxExternalResults     = 5
)

// ResearchAgent consults a web-research API for information that cannot be
// in internal documents. Without credentials it is disabled, which callers
// treat as an empty result.
type ResearchAgent struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewResearchAgent(apiKey, baseURL string) *ResearchAgent {
	if baseURL == "" {
		baseURL = defaultResearchBaseURL
	}
	return &ResearchAgent{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *ResearchAgent) Enabled() bool {
	return a.apiKey != ""
}

type researchRequest struct {
	Model           string        `json:"model"`
	Messages        []researchMsg `json:"messages"`
	ReturnCitations bool          `json:"return_citations"`
}

type researchMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type researchResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

func (a *ResearchAgent) QueryExternal(ctx context.Context, query string) ([]model.ExternalSource, error) {
	if !a.Enabled() {
		return nil, nil
	}
	reqBody := researchRequest{
		Model:           researchModel,
		Messages:        []researchMsg{{Role: "user", Content: query}},
		ReturnCitations: true,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("research api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out researchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	content := ""
	if len(out.Choices) > 0 {
		content = out.Choices[0].Message.Content
	}
	snippet := content
	if len(snippet) > 200 {
		snippet = snippet[:200] + "..."
	}
	var sources []model.ExternalSource
	for i, url := range out.Citations {
		if i >= maxExternalResults {
			break
		}
		sources = append(sources, model.ExternalSource{
			URL:       url,
			Title:     fmt.Sprintf("Source %d", i+1),
			Snippet:   snippet,
			Relevance: 1.0 - float64(i)*0.1,
		})
	}
	return sources, nil
}
