package schedule

import (
	"context"

	"github.com/flockhq/flock/internal/job"
	"github.com/flockhq/flock/internal/model"
)

// ConsolidateSpec runs the sweep nightly at 02:00.
const ConsolidateSpec = "0 2 * * *"

// ConsolidateJob submits the nightly consolidation task through the
// regular executor so its run shows up as a job row like any other.
type ConsolidateJob struct {
	executor *job.Executor
}

func NewConsolidateJob(executor *job.Executor) *ConsolidateJob {
	return &ConsolidateJob{executor: executor}
}

func (j *ConsolidateJob) Name() string {
	return "consolidate_memories"
}

func (j *ConsolidateJob) Run(ctx context.Context) error {
	// the sweep is global; "system" keeps the job row out of tenant views
	_, err := j.executor.Submit(ctx, "system", model.JobTypeConsolidateMemories, map[string]interface{}{})
	return err
}
