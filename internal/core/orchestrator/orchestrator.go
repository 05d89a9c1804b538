package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"planner/internal/core/consolidate"
	"planner/internal/core/extract"
	"planner/internal/core/job"
	"planner/internal/logger"
	"planner/internal/platform/tasks"

	"github.com/hibiken/asynq"
)

// Enqueuer hands tasks to the workflow engine.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error
}

type Executor interface {
	Execute(ctx context.Context, jobID, taskName, inputData string) (*job.TaskResult, error)
}

type Consolidator interface {
	Consolidate(ctx context.Context, jobID string, results map[string]job.TaskResult, originalInput string) (*consolidate.Synthesis, error)
}

// Notifier is told about every job that reaches a terminal stage.
type Notifier interface {
	Notify(ctx context.Context, j *job.Job) error
}

type Options struct {
	MaxRetry      int
	Notifier      Notifier
	NotifyTimeout time.Duration
}

// Orchestrator moves jobs through their stages. Work is carried by asynq
// tasks; every transition is a conditional store update, so duplicate and
// late deliveries are harmless.
type Orchestrator struct {
	store  job.Store
	queue  Enqueuer
	exec   Executor
	cons   Consolidator
	stages *StageMachine
	opts   Options
	log    *logger.Logger

	notifications sync.WaitGroup
}

func New(store job.Store, queue Enqueuer, exec Executor, cons Consolidator, opts Options) *Orchestrator {
	if opts.NotifyTimeout == 0 {
		opts.NotifyTimeout = 15 * time.Second
	}
	return &Orchestrator{
		store:  store,
		queue:  queue,
		exec:   exec,
		cons:   cons,
		stages: NewStageMachine(),
		opts:   opts,
		log:    logger.New("Orchestrator"),
	}
}

func taskID(jobID, taskName string) string { return jobID + ":" + taskName }

// Dispatch marks a new job dispatched and enqueues one task per task name.
// A job whose tasks cannot be enqueued is failed. When only the dispatched
// mark fails to persist, the tasks are still enqueued and the worker moves
// the job on from initiated.
func (o *Orchestrator) Dispatch(ctx context.Context, j *job.Job) error {
	log := o.log.ForJob(j.ID)
	if _, err := o.store.Update(ctx, j.ID, o.stages.Patch(job.StageDispatched)); err != nil {
		log.LogWarnf("Could not mark job dispatched, enqueueing anyway: %v",
			&job.PersistenceError{JobID: j.ID, Op: "dispatch", Err: err})
	}

	for _, name := range j.Type.TaskNames() {
		task, err := tasks.NewRunTask(tasks.RunTaskPayload{
			JobID:     j.ID,
			JobType:   string(j.Type),
			TaskName:  name,
			InputData: j.InputData,
		})
		if err == nil {
			err = o.enqueue(ctx, task, taskID(j.ID, name))
		}
		if err != nil {
			o.fail(ctx, j.ID, fmt.Sprintf("dispatch task %s: %v", name, err))
			return fmt.Errorf("dispatch task %s: %w", name, err)
		}
	}
	log.LogInfof("Dispatched %d task(s) for %s job", len(j.Type.TaskNames()), j.Type)
	return nil
}

func (o *Orchestrator) enqueue(ctx context.Context, task *asynq.Task, id string) error {
	err := o.queue.Enqueue(ctx, task,
		asynq.TaskID(id),
		asynq.MaxRetry(o.opts.MaxRetry),
		asynq.Queue(tasks.QueueDefault),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		o.log.LogDebugf("Task %s already enqueued", id)
		return nil
	}
	return err
}

// ReportTaskResult records a successful task and advances the job: single
// task jobs complete, fan-out jobs start consolidation once every sub-task
// has succeeded. Reports for terminal jobs and repeated reports are ignored.
func (o *Orchestrator) ReportTaskResult(ctx context.Context, jobID string, res job.TaskResult) error {
	j, err := o.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	log := o.log.ForJob(jobID)
	if !isTaskOf(j.Type, res.TaskName) {
		return &job.ValidationError{Field: "task_name", Message: fmt.Sprintf("%q is not a task of %s jobs", res.TaskName, j.Type)}
	}
	if j.IsTerminal() {
		log.LogInfof("Ignoring %s result, job already %s", res.TaskName, j.Status)
		return nil
	}
	if err := o.ensureWorking(ctx, j); err != nil {
		return err
	}

	applied, err := o.store.RecordTask(ctx, jobID, job.TaskRecord{
		TaskName:    res.TaskName,
		Succeeded:   true,
		Content:     res.Content,
		Metadata:    res.Metadata,
		ArtifactRef: res.ArtifactRef,
		ReportedAt:  time.Now().UTC(),
	})
	if err != nil {
		return &job.PersistenceError{JobID: jobID, Op: "record " + res.TaskName, Err: err}
	}
	if !applied {
		log.LogInfof("Duplicate report for task %s ignored", res.TaskName)
		return nil
	}

	if !j.Type.FanOut() {
		o.complete(ctx, jobID, singleOutput(j.Type, res.Content), res.ArtifactRef)
		return nil
	}
	return o.maybeConsolidate(ctx, j)
}

// ReportTaskFailure records a task that exhausted its attempts and fails the
// job. Sibling tasks keep running; their reports land on a terminal job.
func (o *Orchestrator) ReportTaskFailure(ctx context.Context, jobID, taskName string, cause error) error {
	applied, err := o.store.RecordTask(ctx, jobID, job.TaskRecord{
		TaskName:   taskName,
		Succeeded:  false,
		Error:      cause.Error(),
		ReportedAt: time.Now().UTC(),
	})
	if err != nil {
		return &job.PersistenceError{JobID: jobID, Op: "record " + taskName, Err: err}
	}
	if !applied {
		o.log.ForJob(jobID).LogInfof("Task %s already reported, failure ignored", taskName)
		return nil
	}
	o.fail(ctx, jobID, fmt.Sprintf("task %s failed: %v", taskName, cause))
	return nil
}

func singleOutput(t job.Type, content string) *job.Output {
	if job.OutputKindFor(t) == job.OutputPlain {
		return job.NewPlainOutput(content)
	}
	return job.NewDocumentOutput(content, extract.Extract(content))
}

// ensureWorking moves a job that has not started yet to its working stage,
// passing through dispatched when that mark was never persisted. Losing a
// race to another worker is fine.
func (o *Orchestrator) ensureWorking(ctx context.Context, j *job.Job) error {
	stage := j.Stage
	for _, to := range []job.Stage{job.StageDispatched, WorkingStage(j.Type)} {
		if o.stages.ValidateTransition(stage, to) != nil {
			continue
		}
		updated, err := o.store.Update(ctx, j.ID, o.stages.Patch(to))
		switch {
		case err == nil:
			stage = updated.Stage
		case errors.Is(err, job.ErrStageConflict), errors.Is(err, job.ErrTerminal):
			cur, gerr := o.store.Get(ctx, j.ID)
			if gerr != nil {
				return &job.PersistenceError{JobID: j.ID, Op: "start", Err: gerr}
			}
			stage = cur.Stage
		default:
			return &job.PersistenceError{JobID: j.ID, Op: "start", Err: err}
		}
	}
	return nil
}

// maybeConsolidate enqueues consolidation when all fan-out tasks succeeded.
// The fan_out -> consolidating transition has a single winner.
func (o *Orchestrator) maybeConsolidate(ctx context.Context, j *job.Job) error {
	recs, err := o.store.Tasks(ctx, j.ID)
	if err != nil {
		return &job.PersistenceError{JobID: j.ID, Op: "read tasks", Err: err}
	}
	for _, name := range job.FanOutTasks {
		if r, ok := recs[name]; !ok || !r.Succeeded {
			return nil
		}
	}

	_, err = o.store.Update(ctx, j.ID, o.stages.Patch(job.StageConsolidating))
	if errors.Is(err, job.ErrStageConflict) || errors.Is(err, job.ErrTerminal) {
		return nil
	}
	if err != nil {
		return &job.PersistenceError{JobID: j.ID, Op: "consolidating", Err: err}
	}

	task, err := tasks.NewConsolidateTask(tasks.ConsolidatePayload{JobID: j.ID})
	if err == nil {
		err = o.enqueue(ctx, task, taskID(j.ID, "consolidate"))
	}
	if err != nil {
		o.fail(ctx, j.ID, fmt.Sprintf("enqueue consolidation: %v", err))
		return nil
	}
	o.log.ForJob(j.ID).LogInfof("All %d sub-tasks succeeded, consolidation enqueued", len(job.FanOutTasks))
	return nil
}

func (o *Orchestrator) complete(ctx context.Context, jobID string, out *job.Output, artifactRef string) {
	p := o.stages.Patch(job.StageCompleted)
	p.Output = out
	if artifactRef != "" {
		p.ArtifactRef = &artifactRef
	}
	o.finish(ctx, jobID, p)
}

func (o *Orchestrator) fail(ctx context.Context, jobID, msg string) {
	p := o.stages.Patch(job.StageFailed)
	p.ErrorMessage = &msg
	o.finish(ctx, jobID, p)
}

// finish applies a terminal patch. Store failures are logged and swallowed.
func (o *Orchestrator) finish(ctx context.Context, jobID string, p job.Patch) {
	log := o.log.ForJob(jobID)
	j, err := o.store.Update(ctx, jobID, p)
	switch {
	case errors.Is(err, job.ErrTerminal), errors.Is(err, job.ErrStageConflict):
		log.LogInfof("Job already finished, %s dropped", p)
		return
	case err != nil:
		log.LogError("Failed to persist terminal stage", &job.PersistenceError{JobID: jobID, Op: p.String(), Err: err})
		return
	}

	if j.Status == job.StatusCompleted {
		log.LogSuccessf("Job completed in %dms", *j.ActualDurationMs)
	} else {
		log.LogWarnf("Job failed: %s", j.ErrorMessage)
	}
	o.notify(ctx, j)
}

func (o *Orchestrator) notify(ctx context.Context, j *job.Job) {
	if o.opts.Notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	o.notifications.Add(1)
	go func() {
		defer o.notifications.Done()
		ctx, cancel := context.WithTimeout(ctx, o.opts.NotifyTimeout)
		defer cancel()
		if err := o.opts.Notifier.Notify(ctx, j); err != nil {
			o.log.ForJob(j.ID).LogWarnf("Notification failed: %v", err)
		}
	}()
}

// Wait blocks until in-flight notifications are done.
func (o *Orchestrator) Wait() { o.notifications.Wait() }

func isTaskOf(t job.Type, taskName string) bool {
	for _, n := range t.TaskNames() {
		if n == taskName {
			return true
		}
	}
	return false
}
