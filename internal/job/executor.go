package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/flockhq/flock/internal/model"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
	"github.com/flockhq/flock/internal/pkg/httpx"
	"github.com/flockhq/flock/internal/repo"
)

const (
	maxAttempts    = 3
	requeueBackoff = 2 * time.Second
	dequeueWait    = 5 * time.Second
)

// Task is the unit of work carried by the broker. Args stays raw so each
// handler decodes its own shape.
type Task struct {
	JobID   string          `json:"job_id"`
	OrgID   string          `json:"org_id"`
	Type    string          `json:"type"`
	Args    json.RawMessage `json:"args"`
	Attempt int             `json:"attempt"`
}

// ProgressFunc reports pipeline progress; the backing update is monotonic
// so retries re-reporting an earlier stage are harmless.
type ProgressFunc func(progress int)

type Handler interface {
	Handle(ctx context.Context, task *Task, progress ProgressFunc) (result string, err error)
}

type HandlerFunc func(ctx context.Context, task *Task, progress ProgressFunc) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, task *Task, progress ProgressFunc) (string, error) {
	return f(ctx, task, progress)
}

// Executor persists job state, moves tasks through the broker, and drains
// them on a fixed worker pool. Delivery is at least once; handlers are
// idempotent per (doc, type).
type Executor struct {
	broker   Broker
	jobs     *repo.JobRepo
	workers  int
	handlers map[string]Handler
	wg       sync.WaitGroup
}

func NewExecutor(broker Broker, jobs *repo.JobRepo, workers int) *Executor {
	if workers <= 0 {
		workers = 4
	}
	return &Executor{
		broker:   broker,
		jobs:     jobs,
		workers:  workers,
		handlers: make(map[string]Handler),
	}
}

// Register must complete before Start; the handler map is read-only once
// workers run.
func (e *Executor) Register(jobType string, h Handler) {
	e.handlers[jobType] = h
}

// Submit persists the job row in queued before enqueueing, so a status
// poll never races an accepted task.
func (e *Executor) Submit(ctx context.Context, orgID, jobType string, args interface{}) (string, error) {
	blob, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	task := &Task{
		JobID: uuid.NewString(),
		OrgID: orgID,
		Type:  jobType,
		Args:  blob,
	}
	if err := e.jobs.Create(ctx, &model.Job{
		JobID: task.JobID,
		OrgID: orgID,
		Type:  jobType,
		Ctime: time.Now().Unix(),
	}); err != nil {
		return "", err
	}
	if err := e.enqueue(ctx, task); err != nil {
		_ = e.jobs.Fail(ctx, task.JobID, "enqueue failed: "+err.Error())
		return "", fmt.Errorf("%w: %v", appErr.ErrUpstream, err)
	}
	return task.JobID, nil
}

func (e *Executor) enqueue(ctx context.Context, task *Task) error {
	blob, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return e.broker.Enqueue(ctx, blob)
}

func (e *Executor) Start(ctx context.Context) {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func(worker int) {
			defer e.wg.Done()
			e.drain(ctx, worker)
		}(i)
	}
}

func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) drain(ctx context.Context, worker int) {
	logger := logutil.GetLogger(ctx).With(zap.Int("worker", worker))
	for {
		if ctx.Err() != nil {
			return
		}
		payload, err := e.broker.Dequeue(ctx, dequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("dequeue failed", zap.Error(err))
			_ = httpx.SleepContext(ctx, httpx.JitterSleep(time.Second))
			continue
		}
		if payload == nil {
			continue
		}
		var task Task
		if err := json.Unmarshal(payload, &task); err != nil {
			logger.Error("drop undecodable task", zap.Error(err))
			continue
		}
		e.process(ctx, &task)
	}
}

func (e *Executor) process(ctx context.Context, task *Task) {
	logger := logutil.GetLogger(ctx).With(
		zap.String("job_id", task.JobID),
		zap.String("type", task.Type),
		zap.Int("attempt", task.Attempt),
	)
	handler, ok := e.handlers[task.Type]
	if !ok {
		logger.Error("no handler for task type")
		_ = e.jobs.Fail(ctx, task.JobID, "unknown task type: "+task.Type)
		return
	}
	if err := e.jobs.MarkRunning(ctx, task.JobID); err != nil {
		logger.Error("mark running failed", zap.Error(err))
	}
	progress := func(p int) {
		if err := e.jobs.UpdateProgress(ctx, task.JobID, p); err != nil {
			logger.Warn("progress update failed", zap.Int("progress", p), zap.Error(err))
		}
	}

	result, err := e.run(ctx, handler, task, progress)
	if err == nil {
		if err := e.jobs.Complete(ctx, task.JobID, result); err != nil {
			logger.Error("mark completed failed", zap.Error(err))
		}
		logger.Info("task completed")
		return
	}
	if appErr.IsTransient(err) && task.Attempt+1 < maxAttempts {
		logger.Warn("transient failure, requeueing", zap.Error(err))
		e.requeue(ctx, task, logger)
		return
	}
	logger.Error("task failed", zap.Error(err))
	if err := e.jobs.Fail(ctx, task.JobID, err.Error()); err != nil {
		logger.Error("mark failed failed", zap.Error(err))
	}
}

// run pushes handler panics back into the error path so one bad task
// cannot take a worker down.
func (e *Executor) run(ctx context.Context, handler Handler, task *Task, progress ProgressFunc) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return handler.Handle(ctx, task, progress)
}

func (e *Executor) requeue(ctx context.Context, task *Task, logger *zap.Logger) {
	backoff := requeueBackoff << task.Attempt
	_ = httpx.SleepContext(ctx, httpx.JitterSleep(backoff))
	task.Attempt++
	if err := e.jobs.Requeue(ctx, task.JobID); err != nil {
		logger.Error("requeue status update failed", zap.Error(err))
	}
	if err := e.enqueue(ctx, task); err != nil {
		logger.Error("requeue enqueue failed", zap.Error(err))
		_ = e.jobs.Fail(ctx, task.JobID, "requeue failed: "+err.Error())
	}
}
