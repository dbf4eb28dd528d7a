package service

import (
	"context"
	"fmt"

	"github.com/flockhq/flock/internal/job"
	"github.com/flockhq/flock/internal/model"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
	"github.com/flockhq/flock/internal/repo"
)

type EmployeeService struct {
	employees *repo.EmployeeRepo
	executor  *job.Executor
}

func NewEmployeeService(employees *repo.EmployeeRepo, executor *job.Executor) *EmployeeService {
	return &EmployeeService{employees: employees, executor: executor}
}

// GenerateEmbedding queues profile embedding for userID. Only the user
// themselves or a tenant admin may trigger it. A caller that sends no
// profile reuses the stored snapshot from the previous run.
func (s *EmployeeService) GenerateEmbedding(ctx context.Context, orgID, callerID, userID string, isAdmin bool, profile *model.EmployeeProfile) (string, error) {
	if userID == "" {
		userID = callerID
	}
	if userID != callerID && !isAdmin {
		return "", appErr.ErrForbidden
	}
	if profile == nil || (profile.Name == "" && profile.Title == "" && profile.Specialties == "") {
		existing, err := s.employees.Get(ctx, orgID, userID)
		if err != nil {
			if appErr.IsNotFound(err) {
				return "", fmt.Errorf("%w: no profile provided and none stored", appErr.ErrInvalid)
			}
			return "", err
		}
		if existing.Profile == nil {
			return "", fmt.Errorf("%w: stored record has no profile snapshot", appErr.ErrInvalid)
		}
		profile = existing.Profile
	}
	return s.executor.Submit(ctx, orgID, model.JobTypeEmployeeEmbedding, job.EmployeeEmbeddingArgs{
		UserID:  userID,
		Profile: *profile,
	})
}
