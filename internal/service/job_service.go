package service

import (
	"context"

	"github.com/flockhq/flock/internal/model"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
	"github.com/flockhq/flock/internal/repo"
)

type JobService struct {
	jobs *repo.JobRepo
}

func NewJobService(jobs *repo.JobRepo) *JobService {
	return &JobService{jobs: jobs}
}

func (s *JobService) Status(ctx context.Context, orgID, jobID string) (*model.Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OrgID != orgID {
		return nil, appErr.ErrForbidden
	}
	return job, nil
}
