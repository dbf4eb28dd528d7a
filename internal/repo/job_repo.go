package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/flockhq/flock/internal/model"
	"github.com/flockhq/flock/internal/pkg/dbutil"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
)

var jobFields = []string{
	"id", "job_id", "org_id", "job_type", "status", "progress",
	"result_json", "error_message", "ctime", "started_at", "completed_at",
}

type JobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db}
}

func (r *JobRepo) Create(ctx context.Context, job *model.Job) error {
	data := map[string]interface{}{
		"job_id":        job.JobID,
		"org_id":        job.OrgID,
		"job_type":      job.Type,
		"status":        model.JobStatusQueued,
		"progress":      0,
		"result_json":   "",
		"error_message": "",
		"ctime":         job.Ctime,
		"started_at":    0,
		"completed_at":  0,
	}
	sqlStr, args, err := builder.BuildInsert("processing_jobs", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if dbutil.IsConflict(err) {
		return appErr.ErrConflict
	}
	return err
}

func (r *JobRepo) Get(ctx context.Context, jobID string) (*model.Job, error) {
	where := map[string]interface{}{"job_id": jobID}
	sqlStr, args, err := builder.BuildSelect("processing_jobs", where, jobFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	var job model.Job
	if err := rows.Scan(
		&job.ID, &job.JobID, &job.OrgID, &job.Type, &job.Status, &job.Progress,
		&job.Result, &job.Error, &job.Ctime, &job.StartedAt, &job.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRepo) MarkRunning(ctx context.Context, jobID string) error {
	const query = `
		UPDATE processing_jobs
		SET status = $1, started_at = CASE WHEN started_at = 0 THEN $2 ELSE started_at END
		WHERE job_id = $3
	`
	_, err := r.db.ExecContext(ctx, query, model.JobStatusRunning, time.Now().Unix(), jobID)
	return err
}

// UpdateProgress never moves progress backwards, even when a retried task
// re-reports an earlier stage.
func (r *JobRepo) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	const query = `
		UPDATE processing_jobs
		SET progress = GREATEST(progress, $1)
		WHERE job_id = $2
	`
	_, err := r.db.ExecContext(ctx, query, progress, jobID)
	return err
}

func (r *JobRepo) Complete(ctx context.Context, jobID, resultJSON string) error {
	return r.finish(ctx, jobID, map[string]interface{}{
		"status":       model.JobStatusCompleted,
		"progress":     100,
		"result_json":  resultJSON,
		"completed_at": time.Now().Unix(),
	})
}

func (r *JobRepo) Fail(ctx context.Context, jobID, errMessage string) error {
	return r.finish(ctx, jobID, map[string]interface{}{
		"status":        model.JobStatusFailed,
		"error_message": errMessage,
		"completed_at":  time.Now().Unix(),
	})
}

// Requeue resets a job to queued for another delivery attempt after a
// transient failure.
func (r *JobRepo) Requeue(ctx context.Context, jobID string) error {
	return r.finish(ctx, jobID, map[string]interface{}{
		"status": model.JobStatusQueued,
	})
}

func (r *JobRepo) finish(ctx context.Context, jobID string, update map[string]interface{}) error {
	sqlStr, args, err := builder.BuildUpdate("processing_jobs", map[string]interface{}{"job_id": jobID}, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *JobRepo) CountByStatus(ctx context.Context, orgID string) (map[string]int64, error) {
	const query = `
		SELECT status, COUNT(*)
		FROM processing_jobs
		WHERE org_id = $1
		GROUP BY status
	`
	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int64{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// DeleteTerminalBefore prunes completed and failed job rows past the
// retention window.
func (r *JobRepo) DeleteTerminalBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `
		DELETE FROM processing_jobs
		WHERE status IN ($1, $2) AND completed_at > 0 AND completed_at < $3
	`
	result, err := r.db.ExecContext(ctx, query, model.JobStatusCompleted, model.JobStatusFailed, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
