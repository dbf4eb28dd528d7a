package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/flockhq/flock/internal/ai"
	"github.com/flockhq/flock/internal/job"
	"github.com/flockhq/flock/internal/model"
	"github.com/flockhq/flock/internal/repo"
	"github.com/flockhq/flock/internal/vector"
)

const healthCheckTimeout = 5 * time.Second

const (
	HealthStatusHealthy   = "healthy"
	HealthStatusDegraded  = "degraded"
	HealthStatusUnhealthy = "unhealthy"
)

type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type SystemStatus struct {
	Documents map[string]int64    `json:"documents"`
	Jobs      map[string]int64    `json:"jobs"`
	Usage     *model.UsageCounter `json:"usage_this_month"`
}

type SystemService struct {
	db        *sql.DB
	broker    job.Broker
	index     vector.Index
	generator ai.IGenerator
	docs      *repo.DocumentRepo
	jobs      *repo.JobRepo
	usage     *repo.UsageRepo
}

func NewSystemService(db *sql.DB, broker job.Broker, index vector.Index, generator ai.IGenerator, docs *repo.DocumentRepo, jobs *repo.JobRepo, usage *repo.UsageRepo) *SystemService {
	return &SystemService{
		db:        db,
		broker:    broker,
		index:     index,
		generator: generator,
		docs:      docs,
		jobs:      jobs,
		usage:     usage,
	}
}

// Health probes each dependency with a short deadline. Database or queue
// failure makes the process unhealthy; a degraded vector index or missing
// LLM still serves most of the API.
func (s *SystemService) Health(ctx context.Context) *HealthReport {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	report := &HealthReport{Status: HealthStatusHealthy, Checks: map[string]string{}}
	core := true
	if err := s.db.PingContext(ctx); err != nil {
		report.Checks["database"] = "error: " + err.Error()
		core = false
	} else {
		report.Checks["database"] = "ok"
	}
	if err := s.broker.Healthy(ctx); err != nil {
		report.Checks["queue"] = "error: " + err.Error()
		core = false
	} else {
		report.Checks["queue"] = "ok"
	}
	degraded := false
	if err := s.index.Healthy(ctx); err != nil {
		report.Checks["vector_index"] = "error: " + err.Error()
		degraded = true
	} else {
		report.Checks["vector_index"] = "ok"
	}
	if s.generator == nil {
		report.Checks["llm"] = "not configured"
		degraded = true
	} else {
		report.Checks["llm"] = "ok"
	}

	if !core {
		report.Status = HealthStatusUnhealthy
	} else if degraded {
		report.Status = HealthStatusDegraded
	}
	return report
}

func (s *SystemService) Status(ctx context.Context, orgID string) (*SystemStatus, error) {
	docCounts, err := s.docs.CountByStatus(ctx, orgID)
	if err != nil {
		return nil, err
	}
	jobCounts, err := s.jobs.CountByStatus(ctx, orgID)
	if err != nil {
		return nil, err
	}
	usage, err := s.usage.MonthTotals(ctx, orgID, time.Now().UTC().Format("2006-01"))
	if err != nil {
		return nil, err
	}
	return &SystemStatus{
		Documents: docCounts,
		Jobs:      jobCounts,
		Usage:     usage,
	}, nil
}
