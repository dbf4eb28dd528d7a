package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	pineconeAPIVersion  = "2025-04"
	pineconeControlBase = "https://api.pinecone.io"
	upsertBatchSize     = 100
	listPageSize        = 100
)

type PineconeConfig struct {
	APIKey    string
	IndexName string
	Cloud     string
	Region    string
	Dimension int
	Timeout   time.Duration
}

// pineconeIndex talks to the serverless REST API directly. The control plane
// resolves (and lazily creates) the index; the data plane lives on the host
// the control plane returns.
type pineconeIndex struct {
	cfg  PineconeConfig
	http *http.Client

	mu   sync.Mutex
	host string
}

func NewPinecone(cfg PineconeConfig) (Index, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("pinecone api key is required")
	}
	if strings.TrimSpace(cfg.IndexName) == "" {
		return nil, fmt.Errorf("pinecone index name is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("pinecone dimension must be positive")
	}
	if cfg.Cloud == "" {
		cfg.Cloud = "aws"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &pineconeIndex{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (p *pineconeIndex) Dimension() int {
	return p.cfg.Dimension
}

type indexDescription struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

type createIndexRequest struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Spec      struct {
		Serverless struct {
			Cloud  string `json:"cloud"`
			Region string `json:"region"`
		} `json:"serverless"`
	} `json:"spec"`
}

type pineconeVector struct {
	ID       string                 `json:"id"`
	Values   []float32              `json:"values"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type upsertResponse struct {
	UpsertedCount int64 `json:"upsertedCount"`
}

type queryRequest struct {
	Namespace       string                 `json:"namespace,omitempty"`
	Vector          []float32              `json:"vector"`
	TopK            int                    `json:"topK"`
	Filter          map[string]interface{} `json:"filter,omitempty"`
	IncludeMetadata bool                   `json:"includeMetadata"`
}

type queryResponse struct {
	Matches []struct {
		ID       string                 `json:"id"`
		Score    float64                `json:"score"`
		Metadata map[string]interface{} `json:"metadata,omitempty"`
	} `json:"matches"`
}

type listResponse struct {
	Vectors []struct {
		ID string `json:"id"`
	} `json:"vectors"`
	Pagination struct {
		Next string `json:"next"`
	} `json:"pagination"`
}

type deleteRequest struct {
	IDs       []string `json:"ids,omitempty"`
	DeleteAll bool     `json:"deleteAll,omitempty"`
	Namespace string   `json:"namespace,omitempty"`
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("pinecone http %d: %s", e.status, e.body)
}

func (e *apiError) HTTPStatusCode() int {
	return e.status
}

func (p *pineconeIndex) do(ctx context.Context, method, rawURL string, body interface{}, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", p.cfg.APIKey)
	req.Header.Set("X-Pinecone-Api-Version", pineconeAPIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{status: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("pinecone decode: %w", err)
	}
	return nil
}

func (p *pineconeIndex) describeIndex(ctx context.Context) (*indexDescription, error) {
	var out indexDescription
	u := pineconeControlBase + "/indexes/" + url.PathEscape(p.cfg.IndexName)
	if err := p.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *pineconeIndex) createIndex(ctx context.Context) error {
	req := createIndexRequest{
		Name:      p.cfg.IndexName,
		Dimension: p.cfg.Dimension,
		Metric:    "cosine",
	}
	req.Spec.Serverless.Cloud = p.cfg.Cloud
	req.Spec.Serverless.Region = p.cfg.Region
	err := p.do(ctx, http.MethodPost, pineconeControlBase+"/indexes", req, nil)
	var ae *apiError
	if err != nil {
		// another worker may have raced us
		if asAPIError(err, &ae) && ae.status == http.StatusConflict {
			return nil
		}
		return err
	}
	return nil
}

func asAPIError(err error, target **apiError) bool {
	ae, ok := err.(*apiError)
	if ok {
		*target = ae
	}
	return ok
}

// resolveHost finds the data-plane host, creating the index on first use.
func (p *pineconeIndex) resolveHost(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.host != "" {
		return p.host, nil
	}
	desc, err := p.describeIndex(ctx)
	var ae *apiError
	if err != nil && asAPIError(err, &ae) && ae.status == http.StatusNotFound {
		logutil.GetLogger(ctx).Info("vector index absent, creating",
			zap.String("index", p.cfg.IndexName), zap.Int("dimension", p.cfg.Dimension))
		if err := p.createIndex(ctx); err != nil {
			return "", fmt.Errorf("create index: %w", err)
		}
		desc, err = p.waitIndexReady(ctx)
	}
	if err != nil {
		return "", err
	}
	if desc.Dimension != 0 && desc.Dimension != p.cfg.Dimension {
		return "", fmt.Errorf("index %s has dimension %d, expected %d",
			p.cfg.IndexName, desc.Dimension, p.cfg.Dimension)
	}
	p.host = desc.Host
	return p.host, nil
}

func (p *pineconeIndex) waitIndexReady(ctx context.Context) (*indexDescription, error) {
	for attempt := 0; attempt < 30; attempt++ {
		desc, err := p.describeIndex(ctx)
		if err == nil && desc.Status.Ready && desc.Host != "" {
			return desc, nil
		}
		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("index %s did not become ready", p.cfg.IndexName)
}

func (p *pineconeIndex) dataURL(host, path string) string {
	return "https://" + host + path
}

func (p *pineconeIndex) Upsert(ctx context.Context, namespace string, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	host, err := p.resolveHost(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(items); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(items) {
			end = len(items)
		}
		vectors := make([]pineconeVector, 0, end-start)
		for _, item := range items[start:end] {
			if len(item.Values) != p.cfg.Dimension {
				return fmt.Errorf("vector %s has dimension %d, expected %d",
					item.ID, len(item.Values), p.cfg.Dimension)
			}
			vectors = append(vectors, pineconeVector{
				ID:       item.ID,
				Values:   item.Values,
				Metadata: SanitizeMetadata(item.Metadata),
			})
		}
		var out upsertResponse
		req := upsertRequest{Vectors: vectors, Namespace: namespace}
		if err := p.do(ctx, http.MethodPost, p.dataURL(host, "/vectors/upsert"), req, &out); err != nil {
			return fmt.Errorf("upsert batch [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

func (p *pineconeIndex) Search(ctx context.Context, namespace string, queryVector []float32, topK int, filter map[string]interface{}) ([]Match, error) {
	if len(queryVector) != p.cfg.Dimension {
		return nil, fmt.Errorf("query vector has dimension %d, expected %d", len(queryVector), p.cfg.Dimension)
	}
	if topK <= 0 {
		topK = 10
	}
	host, err := p.resolveHost(ctx)
	if err != nil {
		return nil, err
	}
	req := queryRequest{
		Namespace:       namespace,
		Vector:          queryVector,
		TopK:            topK,
		Filter:          filter,
		IncludeMetadata: true,
	}
	var out queryResponse
	if err := p.do(ctx, http.MethodPost, p.dataURL(host, "/query"), req, &out); err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(out.Matches))
	for _, m := range out.Matches {
		matches = append(matches, Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return matches, nil
}

// listIDs pages through every id in the namespace matching prefix.
func (p *pineconeIndex) listIDs(ctx context.Context, host, namespace, prefix string) ([]string, error) {
	var ids []string
	token := ""
	for {
		q := url.Values{}
		q.Set("namespace", namespace)
		q.Set("prefix", prefix)
		q.Set("limit", fmt.Sprintf("%d", listPageSize))
		if token != "" {
			q.Set("paginationToken", token)
		}
		var out listResponse
		if err := p.do(ctx, http.MethodGet, p.dataURL(host, "/vectors/list?"+q.Encode()), nil, &out); err != nil {
			return nil, err
		}
		for _, v := range out.Vectors {
			ids = append(ids, v.ID)
		}
		token = out.Pagination.Next
		if token == "" {
			return ids, nil
		}
	}
}

func (p *pineconeIndex) DeleteDocument(ctx context.Context, namespace string, documentID int64) error {
	host, err := p.resolveHost(ctx)
	if err != nil {
		return err
	}
	ids, err := p.listIDs(ctx, host, namespace, ChunkVectorPrefix(documentID))
	if err != nil {
		// an untouched namespace has nothing to delete
		var ae *apiError
		if asAPIError(err, &ae) && ae.status == http.StatusNotFound {
			return nil
		}
		return err
	}
	for start := 0; start < len(ids); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		req := deleteRequest{IDs: ids[start:end], Namespace: namespace}
		if err := p.do(ctx, http.MethodPost, p.dataURL(host, "/vectors/delete"), req, nil); err != nil {
			return err
		}
	}
	return nil
}

func (p *pineconeIndex) DeleteNamespace(ctx context.Context, namespace string) error {
	host, err := p.resolveHost(ctx)
	if err != nil {
		return err
	}
	req := deleteRequest{DeleteAll: true, Namespace: namespace}
	err = p.do(ctx, http.MethodPost, p.dataURL(host, "/vectors/delete"), req, nil)
	var ae *apiError
	if err != nil && asAPIError(err, &ae) && ae.status == http.StatusNotFound {
		return nil
	}
	return err
}

func (p *pineconeIndex) Healthy(ctx context.Context) error {
	desc, err := p.describeIndex(ctx)
	if err != nil {
		var ae *apiError
		// absent index is created on first write, not an outage
		if asAPIError(err, &ae) && ae.status == http.StatusNotFound {
			return nil
		}
		return err
	}
	if !desc.Status.Ready {
		return fmt.Errorf("index %s not ready: %s", p.cfg.IndexName, desc.Status.State)
	}
	return nil
}
