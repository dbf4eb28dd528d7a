package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openrouterConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	HTTPReferer    string `json:"http_referer"`
	XTitle         string `json:"x_title"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type headerTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.referer != "" {
		req.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		req.Header.Set("X-Title", t.title)
	}
	return t.base.RoundTrip(req)
}

// openrouterProvider speaks the openai wire format against the openrouter
// endpoint. Chat only.
type openrouterProvider struct {
	inner *openAIProvider
}

func (p *openrouterProvider) Name() string {
	return "openrouter"
}

func (p *openrouterProvider) Generate(ctx context.Context, model string, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	return p.inner.Generate(ctx, model, prompt, opts)
}

func (p *openrouterProvider) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, int, error) {
	return nil, 0, fmt.Errorf("openrouter does not serve embeddings")
}

func createOpenRouterFactory(args interface{}) (IProvider, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	timeout := 60 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &http.Client{
		Timeout: timeout,
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			referer: strings.TrimSpace(cfg.HTTPReferer),
			title:   strings.TrimSpace(cfg.XTitle),
		},
	}
	return &openrouterProvider{
		inner: &openAIProvider{
			apiKey:  strings.TrimSpace(cfg.APIKey),
			baseURL: baseURL,
			client:  client,
		},
	}, nil
}

func init() {
	Register("openrouter", createOpenRouterFactory)
}
