package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type geminiConfig struct {
	APIKey string `json:"api_key"`
}

type geminiProvider struct {
	apiKey string
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) newClient(ctx context.Context) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func (p *geminiProvider) Generate(ctx context.Context, model string, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	client, err := p.newClient(ctx)
	if err != nil {
		return nil, err
	}
	var config *genai.GenerateContentConfig
	if opts.Temperature > 0 || opts.MaxTokens > 0 || opts.JSONMode {
		config = &genai.GenerateContentConfig{}
		if opts.Temperature > 0 {
			t := float32(opts.Temperature)
			config.Temperature = &t
		}
		if opts.MaxTokens > 0 {
			config.MaxOutputTokens = int32(opts.MaxTokens)
		}
		if opts.JSONMode {
			config.ResponseMIMEType = "application/json"
		}
	}
	resp, err := client.Models.GenerateContent(
		ctx,
		model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		config,
	)
	if err != nil {
		return nil, err
	}
	result := &GenerateResult{Text: strings.TrimSpace(resp.Text())}
	if resp.UsageMetadata != nil {
		result.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return result, nil
}

// EmbedBatch reports zero tokens. The gemini API does not return usage for
// embeddings, so callers fall back to their own token estimate.
func (p *geminiProvider) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, int, error) {
	if p.apiKey == "" {
		return nil, 0, ErrUnavailable
	}
	if len(texts) == 0 {
		return nil, 0, nil
	}
	client, err := p.newClient(ctx)
	if err != nil {
		return nil, 0, err
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
	}
	resp, err := client.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return nil, 0, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, 0, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, emb := range resp.Embeddings {
		vectors = append(vectors, emb.Values)
	}
	return vectors, 0, nil
}

func createGeminiFactory(args interface{}) (IProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &geminiProvider{apiKey: strings.TrimSpace(cfg.APIKey)}, nil
}

func init() {
	Register("gemini", createGeminiFactory)
}
