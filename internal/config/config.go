package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port          int              `json:"port"`
	SessionSecret string           `json:"session_secret"`
	CORSOrigins   []string         `json:"cors_origins"`
	LogConfig     logger.LogConfig `json:"log_config"`
	Database      DatabaseConfig   `json:"database"`
	Queue         QueueConfig      `json:"queue"`
	BlobStore     BlobStoreConfig  `json:"blob_store"`
	Vector        VectorConfig     `json:"vector"`
	AI            AIConfig         `json:"ai"`
	Ingest        IngestConfig     `json:"ingest"`
	Retrieval     RetrievalConfig  `json:"retrieval"`
	Budget        BudgetConfig     `json:"budget"`
	Research      ResearchConfig   `json:"research"`
	Retention     RetentionConfig  `json:"retention"`
}

type DatabaseConfig struct {
	URL string `json:"url"`
}

type QueueConfig struct {
	URL     string `json:"url"`
	Workers int    `json:"workers"`
}

type BlobStoreConfig struct {
	Type string   `json:"type"`
	Dir  string   `json:"dir"`
	S3   S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	UseSSL    bool   `json:"use_ssl"`
}

type VectorConfig struct {
	APIKey string `json:"api_key"`
	Index  string `json:"index"`
	Cloud  string `json:"cloud"`
	Region string `json:"region"`
}

type AIConfig struct {
	Providers      []AIProviderConfig `json:"providers"`
	Chat           []ModelRef         `json:"chat"`
	Embed          []ModelRef         `json:"embed"`
	EmbedDimension int                `json:"embed_dimension"`
	TimeoutSeconds int                `json:"timeout_seconds"`
}

type AIProviderConfig struct {
	Name string                 `json:"name"`
	Type string                 `json:"type"`
	Args map[string]interface{} `json:"args"`
}

// ModelRef binds a model name to a named provider. Chains are tried in
// order until one succeeds.
type ModelRef struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type IngestConfig struct {
	MaxUploadBytes        int64 `json:"max_upload_bytes"`
	ChunkSize             int   `json:"chunk_size"`
	ChunkOverlap          int   `json:"chunk_overlap"`
	EmbedBatch            int   `json:"embed_batch"`
	ExtractTimeoutSeconds int   `json:"extract_timeout_seconds"`
}

// RetentionConfig drives the nightly consolidation sweep.
type RetentionConfig struct {
	DeletedDocumentDays int `json:"deleted_document_days"`
	JobDays             int `json:"job_days"`
	EmbeddingCacheDays  int `json:"embedding_cache_days"`
}

type RetrievalConfig struct {
	TopK     int     `json:"top_k"`
	MinScore float64 `json:"min_score"`
}

type BudgetConfig struct {
	MonthlyTokens int64 `json:"monthly_tokens"`
	EmbedRPM      int   `json:"embed_rpm"`
}

type ResearchConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	applyEnv(&cfg)
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is required")
	}
	if cfg.Queue.URL == "" {
		return nil, fmt.Errorf("queue.url is required")
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("session_secret is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Queue.Workers <= 0 {
		cfg.Queue.Workers = 4
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.BlobStore.Type == "" {
		cfg.BlobStore.Type = "local"
	}
	switch cfg.BlobStore.Type {
	case "local":
		if cfg.BlobStore.Dir == "" {
			return nil, fmt.Errorf("blob_store.dir is required for local store")
		}
	case "s3":
		if cfg.BlobStore.S3.Bucket == "" || cfg.BlobStore.S3.AccessKey == "" || cfg.BlobStore.S3.SecretKey == "" {
			return nil, fmt.Errorf("blob_store.s3 bucket/access_key/secret_key are required for s3 store")
		}
		if cfg.BlobStore.S3.Region == "" {
			cfg.BlobStore.S3.Region = "us-east-1"
		}
	default:
		return nil, fmt.Errorf("blob_store.type must be local or s3")
	}
	if cfg.Vector.Index == "" {
		cfg.Vector.Index = "flock-knowledge-base"
	}
	if cfg.Vector.Cloud == "" {
		cfg.Vector.Cloud = "aws"
	}
	if cfg.Vector.Region == "" {
		cfg.Vector.Region = "us-east-1"
	}
	// must match the vector(N) width of the embedding_cache migration
	if cfg.AI.EmbedDimension == 0 {
		cfg.AI.EmbedDimension = 3072
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 60
	}
	if cfg.Ingest.MaxUploadBytes == 0 {
		cfg.Ingest.MaxUploadBytes = 50 << 20
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1000
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 200
	}
	if cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkSize {
		return nil, fmt.Errorf("ingest.chunk_overlap must be smaller than ingest.chunk_size")
	}
	if cfg.Ingest.EmbedBatch == 0 {
		cfg.Ingest.EmbedBatch = 100
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 10
	}
	if cfg.Retrieval.MinScore == 0 {
		cfg.Retrieval.MinScore = 0.7
	}
	if cfg.Budget.EmbedRPM == 0 {
		cfg.Budget.EmbedRPM = 3000
	}
	if cfg.Ingest.ExtractTimeoutSeconds == 0 {
		cfg.Ingest.ExtractTimeoutSeconds = 120
	}
	if cfg.Retention.DeletedDocumentDays == 0 {
		cfg.Retention.DeletedDocumentDays = 30
	}
	if cfg.Retention.JobDays == 0 {
		cfg.Retention.JobDays = 30
	}
	if cfg.Retention.EmbeddingCacheDays == 0 {
		cfg.Retention.EmbeddingCacheDays = 90
	}
	return &cfg, nil
}

// applyEnv lets deployment environments override file values without
// rewriting the config file. Environment always wins.
func applyEnv(cfg *Config) {
	setInt(&cfg.Port, "PORT")
	setString(&cfg.SessionSecret, "SESSION_SECRET")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Queue.URL, "QUEUE_URL")
	setString(&cfg.BlobStore.Type, "BLOB_TYPE")
	setString(&cfg.BlobStore.Dir, "BLOB_DIR")
	setString(&cfg.BlobStore.S3.Endpoint, "BLOB_ENDPOINT")
	setString(&cfg.BlobStore.S3.Region, "BLOB_REGION")
	setString(&cfg.BlobStore.S3.Bucket, "BLOB_BUCKET")
	setString(&cfg.BlobStore.S3.AccessKey, "BLOB_ACCESS_KEY")
	setString(&cfg.BlobStore.S3.SecretKey, "BLOB_SECRET_KEY")
	setString(&cfg.Vector.APIKey, "VECTOR_API_KEY")
	setString(&cfg.Vector.Region, "VECTOR_ENVIRONMENT")
	setString(&cfg.Vector.Index, "VECTOR_INDEX_NAME")
	setString(&cfg.Research.APIKey, "RESEARCH_API_KEY")
	setInt64(&cfg.Ingest.MaxUploadBytes, "MAX_UPLOAD_BYTES")
	setInt(&cfg.Ingest.ChunkSize, "CHUNK_SIZE")
	setInt(&cfg.Ingest.ChunkOverlap, "CHUNK_OVERLAP")
	setInt(&cfg.Ingest.EmbedBatch, "EMBED_BATCH")
	setInt(&cfg.Retrieval.TopK, "RETRIEVAL_TOP_K")
	setFloat(&cfg.Retrieval.MinScore, "MIN_SCORE")
	setInt64(&cfg.Budget.MonthlyTokens, "MONTHLY_TOKEN_BUDGET")

	if key := os.Getenv("LLM_API_KEY"); key != "" {
		if len(cfg.AI.Providers) == 0 {
			cfg.AI.Providers = append(cfg.AI.Providers, AIProviderConfig{
				Name: "openai",
				Type: "openai",
			})
		}
		for i := range cfg.AI.Providers {
			if cfg.AI.Providers[i].Args == nil {
				cfg.AI.Providers[i].Args = map[string]interface{}{}
			}
			cfg.AI.Providers[i].Args["api_key"] = key
		}
	}
	if model := os.Getenv("CHAT_MODEL"); model != "" {
		cfg.AI.Chat = overrideChain(cfg.AI.Chat, model)
	}
	if model := os.Getenv("EMBED_MODEL"); model != "" {
		cfg.AI.Embed = overrideChain(cfg.AI.Embed, model)
	}
}

func overrideChain(chain []ModelRef, model string) []ModelRef {
	if len(chain) == 0 {
		return []ModelRef{{Provider: "openai", Model: model}}
	}
	chain[0].Model = model
	return chain
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
