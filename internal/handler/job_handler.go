package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/flockhq/flock/internal/model"
	"github.com/flockhq/flock/internal/pkg/response"
	"github.com/flockhq/flock/internal/service"
)

type JobHandler struct {
	jobs *service.JobService
}

func NewJobHandler(jobs *service.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

func (h *JobHandler) Status(c *gin.Context) {
	orgID := c.Query("org_id")
	if !requireOrg(c, orgID) {
		return
	}
	job, err := h.jobs.Status(c.Request.Context(), orgID, c.Param("job_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	payload := gin.H{
		"job_id":     job.JobID,
		"status":     job.Status,
		"progress":   job.Progress,
		"created_at": job.Ctime,
	}
	if job.Result != "" {
		payload["result"] = job.Result
	}
	if job.Error != "" {
		payload["error"] = job.Error
	}
	if job.StartedAt > 0 {
		payload["started_at"] = job.StartedAt
	}
	if job.Status == model.JobStatusCompleted || job.Status == model.JobStatusFailed {
		payload["completed_at"] = job.CompletedAt
	}
	response.Success(c, payload)
}
