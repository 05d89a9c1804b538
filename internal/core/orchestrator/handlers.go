package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"planner/internal/core/job"
	"planner/internal/platform/tasks"

	"github.com/hibiken/asynq"
)

// HandleTask runs one generation task. A failure is reported to the job only
// on the final attempt; earlier failures go back to asynq for a retry.
func (o *Orchestrator) HandleTask(ctx context.Context, t *asynq.Task) error {
	var p tasks.RunTaskPayload
	if err := tasks.Decode(t, &p); err != nil {
		return err
	}
	log := o.log.ForJob(p.JobID)

	j, err := o.store.Get(ctx, p.JobID)
	if errors.Is(err, job.ErrNotFound) {
		return fmt.Errorf("job %s: %v: %w", p.JobID, err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	if j.IsTerminal() {
		log.LogInfof("Skipping task %s, job already %s", p.TaskName, j.Status)
		return nil
	}
	if err := o.ensureWorking(ctx, j); err != nil {
		return err
	}

	res, err := o.exec.Execute(ctx, p.JobID, p.TaskName, p.InputData)
	if err != nil {
		if !isFinalAttempt(ctx) {
			log.LogWarnf("Task %s attempt failed, will retry: %v", p.TaskName, err)
			return err
		}
		return o.ReportTaskFailure(ctx, p.JobID, p.TaskName, err)
	}
	return o.ReportTaskResult(ctx, p.JobID, *res)
}

// HandleConsolidate merges the sub-task results of a fan-out job.
func (o *Orchestrator) HandleConsolidate(ctx context.Context, t *asynq.Task) error {
	var p tasks.ConsolidatePayload
	if err := tasks.Decode(t, &p); err != nil {
		return err
	}
	log := o.log.ForJob(p.JobID)

	j, err := o.store.Get(ctx, p.JobID)
	if errors.Is(err, job.ErrNotFound) {
		return fmt.Errorf("job %s: %v: %w", p.JobID, err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	if j.IsTerminal() {
		log.LogInfof("Skipping consolidation, job already %s", j.Status)
		return nil
	}
	if j.Stage != job.StageConsolidating {
		return fmt.Errorf("job %s is %s, not consolidating: %w", j.ID, j.Stage, asynq.SkipRetry)
	}

	recs, err := o.store.Tasks(ctx, j.ID)
	if err != nil {
		return err
	}
	results := make(map[string]job.TaskResult, len(recs))
	for name, r := range recs {
		if r.Succeeded {
			results[name] = r.Result()
		}
	}

	syn, err := o.cons.Consolidate(ctx, j.ID, results, j.InputData)
	if err != nil {
		var partial *job.PartialResultError
		if !errors.As(err, &partial) && !isFinalAttempt(ctx) {
			log.LogWarnf("Consolidation attempt failed, will retry: %v", err)
			return err
		}
		o.fail(ctx, j.ID, fmt.Sprintf("consolidation failed: %v", err))
		return nil
	}
	o.complete(ctx, j.ID, job.NewDocumentOutput(syn.Content, syn.Document), syn.ArtifactRef)
	return nil
}

// Mux is satisfied by asynq.ServeMux and worker.Mux.
type Mux interface {
	HandleFunc(pattern string, handler func(context.Context, *asynq.Task) error)
}

// Register installs the task handlers on a mux.
func (o *Orchestrator) Register(mux Mux) {
	mux.HandleFunc(tasks.TypeRunTask, o.HandleTask)
	mux.HandleFunc(tasks.TypeConsolidate, o.HandleConsolidate)
}

// isFinalAttempt is true when asynq will not retry the current task. Outside
// a worker there is no retry budget, so every attempt is final.
func isFinalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}
