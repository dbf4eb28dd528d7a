package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/flockhq/flock/internal/agent"
	"github.com/flockhq/flock/internal/ai"
	"github.com/flockhq/flock/internal/blobstore"
	"github.com/flockhq/flock/internal/chunk"
	"github.com/flockhq/flock/internal/classify"
	"github.com/flockhq/flock/internal/config"
	"github.com/flockhq/flock/internal/db"
	"github.com/flockhq/flock/internal/embed"
	"github.com/flockhq/flock/internal/handler"
	"github.com/flockhq/flock/internal/job"
	"github.com/flockhq/flock/internal/middleware"
	"github.com/flockhq/flock/internal/rag"
	"github.com/flockhq/flock/internal/repo"
	"github.com/flockhq/flock/internal/schedule"
	"github.com/flockhq/flock/internal/service"
	"github.com/flockhq/flock/internal/vector"
)

const (
	embedCacheLRUSize = 4096
	embedCacheLRUTTL  = time.Hour
	orgContextSize    = 256
	orgContextTTL     = 10 * time.Minute
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "flockd",
		Short: "flock knowledge engine server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run flock server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			database, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(database); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, database)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, database *sql.DB) error {
	rootLogger := logutil.GetLogger(context.Background())
	rootLogger.Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("blob_store", cfg.BlobStore.Type),
		zap.String("vector_index", cfg.Vector.Index),
	)

	docRepo := repo.NewDocumentRepo(database)
	chunkRepo := repo.NewChunkRepo(database)
	classificationRepo := repo.NewClassificationRepo(database)
	folderRepo := repo.NewFolderRepo(database)
	conversationRepo := repo.NewConversationRepo(database)
	messageRepo := repo.NewMessageRepo(database)
	jobRepo := repo.NewJobRepo(database)
	usageRepo := repo.NewUsageRepo(database)
	employeeRepo := repo.NewEmployeeRepo(database)
	embedCacheRepo := repo.NewEmbeddingCacheRepo(database)

	blobs, err := blobstore.New(cfg.BlobStore.Type, blobStoreArgs(cfg.BlobStore))
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	stack, err := ai.BuildStack(cfg.AI)
	if err != nil {
		return fmt.Errorf("init ai stack: %w", err)
	}
	embedService, err := embed.NewService(stack.Embedder, usageRepo, embed.Config{
		BatchSize:          cfg.Ingest.EmbedBatch,
		Dimension:          cfg.AI.EmbedDimension,
		MonthlyTokenBudget: cfg.Budget.MonthlyTokens,
		RPM:                cfg.Budget.EmbedRPM,
	})
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	// LRU in front, durable cache behind it, upstream accounting inside
	embedder := embed.WrapLRUCache(embed.WrapDBCache(embedService, embedCacheRepo), embedCacheLRUSize, embedCacheLRUTTL)

	index, err := vector.NewPinecone(vector.PineconeConfig{
		APIKey:    cfg.Vector.APIKey,
		IndexName: cfg.Vector.Index,
		Cloud:     cfg.Vector.Cloud,
		Region:    cfg.Vector.Region,
		Dimension: cfg.AI.EmbedDimension,
	})
	if err != nil {
		return fmt.Errorf("init vector index: %w", err)
	}

	chunker, err := chunk.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("init chunker: %w", err)
	}
	orgCtx := classify.NewOrgContextProvider(classificationRepo, orgContextSize, orgContextTTL)
	classifier := classify.NewClassifier(stack.Generator, orgCtx)

	engine := rag.NewEngine(embedder, index, docRepo, chunkRepo, cfg.Retrieval.TopK, cfg.Retrieval.MinScore)
	dataAgent := agent.NewDataQueryAgent(engine, embedder, index)
	researchAgent := agent.NewResearchAgent(cfg.Research.APIKey, cfg.Research.BaseURL)
	orchestrator := agent.NewOrchestrator(
		agent.NewPlanner(stack.Generator),
		dataAgent,
		researchAgent,
		agent.NewSynthesisAgent(stack.Generator),
	)

	broker, err := job.NewRedisBroker(cfg.Queue.URL)
	if err != nil {
		return fmt.Errorf("init broker: %w", err)
	}
	defer broker.Close()
	executor := job.NewExecutor(broker, jobRepo, cfg.Queue.Workers)

	documentService := service.NewDocumentService(docRepo, classificationRepo, blobs, executor, cfg.Ingest.MaxUploadBytes)
	searchService := service.NewSearchService(engine, dataAgent, docRepo)
	folderService := service.NewFolderService(folderRepo)
	chatService := service.NewChatService(conversationRepo, messageRepo, engine, orchestrator, stack.Generator)
	employeeService := service.NewEmployeeService(employeeRepo, executor)
	jobService := service.NewJobService(jobRepo)
	systemService := service.NewSystemService(database, broker, index, stack.Generator, docRepo, jobRepo, usageRepo)

	extractTimeout := time.Duration(cfg.Ingest.ExtractTimeoutSeconds) * time.Second
	job.RegisterHandlers(executor, job.Handlers{
		ProcessDocument:   job.NewProcessDocumentHandler(blobs, docRepo, chunkRepo, classificationRepo, embedder, index, chunker, classifier, orgCtx, extractTimeout),
		Reclassify:        job.NewReclassifyHandler(docRepo, chunkRepo, classificationRepo, classifier, orgCtx),
		EmployeeEmbedding: job.NewEmployeeEmbeddingHandler(employeeRepo, embedder, index),
		SyncSource:        job.NewSyncSourceHandler(documentService),
		DeleteDocVectors:  job.NewDeleteDocVectorsHandler(index),
		Consolidate:       job.NewConsolidateHandler(docRepo, chunkRepo, classificationRepo, jobRepo, embedCacheRepo, index, blobs, cfg.Retention),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	executor.Start(ctx)

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(schedule.NewConsolidateJob(executor), schedule.ConsolidateSpec); err != nil {
		return fmt.Errorf("schedule consolidation: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Documents:      handler.NewDocumentHandler(documentService),
		Jobs:           handler.NewJobHandler(jobService),
		Search:         handler.NewSearchHandler(searchService),
		Folders:        handler.NewFolderHandler(folderService),
		Chat:           handler.NewChatHandler(chatService),
		Employees:      handler.NewEmployeeHandler(employeeService),
		System:         handler.NewSystemHandler(systemService),
		SessionSecret:  []byte(cfg.SessionSecret),
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
	}

	engineAPI, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	rootLogger.Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	go func() {
		if err := engineAPI.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	rootLogger.Info("server stopping, draining workers...")
	executor.Wait()
	return nil
}

func blobStoreArgs(cfg config.BlobStoreConfig) map[string]interface{} {
	if cfg.Type == "s3" {
		return map[string]interface{}{
			"endpoint":   cfg.S3.Endpoint,
			"access_key": cfg.S3.AccessKey,
			"secret_key": cfg.S3.SecretKey,
			"bucket":     cfg.S3.Bucket,
			"region":     cfg.S3.Region,
			"prefix":     cfg.S3.Prefix,
			"use_ssl":    cfg.S3.UseSSL,
		}
	}
	return map[string]interface{}{
		"dir": cfg.Dir,
	}
}
