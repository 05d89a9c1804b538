package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"planner/internal/logger"

	"github.com/google/uuid"
)

const maxInputBytes = 200_000

// Lifecycle drives a job after creation. The orchestrator implements it.
type Lifecycle interface {
	Dispatch(ctx context.Context, j *Job) error
	ReportTaskResult(ctx context.Context, jobID string, res TaskResult) error
}

// Manager is the public entry point used by the HTTP layer and the CLI.
type Manager struct {
	store     Store
	lifecycle Lifecycle
	log       *logger.Logger
	newID     func() string
	clock     func() time.Time
}

func NewManager(store Store, lifecycle Lifecycle) *Manager {
	return &Manager{
		store:     store,
		lifecycle: lifecycle,
		log:       logger.New("JobManager"),
		newID:     uuid.NewString,
		clock:     now,
	}
}

// CreateJob validates the request, persists a PENDING job and hands it to the
// lifecycle. It returns without waiting for generation.
func (m *Manager) CreateJob(ctx context.Context, userID, name string, jobType Type, inputData string) (*Job, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Field: "user_id", Message: "is required"}
	}
	if _, ok := ParseType(string(jobType)); !ok {
		return nil, &ValidationError{Field: "job_type", Message: fmt.Sprintf("%q is not one of %v", jobType, Types)}
	}
	if strings.TrimSpace(inputData) == "" {
		return nil, &ValidationError{Field: "input_data", Message: "is required"}
	}
	if len(inputData) > maxInputBytes {
		return nil, &ValidationError{Field: "input_data", Message: fmt.Sprintf("exceeds %d bytes", maxInputBytes)}
	}

	created := m.clock()
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("%s %s", jobType, created.Format("2006-01-02 15:04"))
	}
	j := &Job{
		ID:                  m.newID(),
		UserID:              userID,
		Name:                strings.TrimSpace(name),
		Type:                jobType,
		Status:              StatusPending,
		Stage:               StageInitiated,
		InputData:           inputData,
		EstimatedDurationMs: jobType.EstimatedDuration().Milliseconds(),
		CreatedAt:           created,
		UpdatedAt:           created,
	}
	if err := m.store.Put(ctx, j); err != nil {
		return nil, &PersistenceError{JobID: j.ID, Op: "create", Err: err}
	}
	m.log.ForJob(j.ID).LogInfof("Created %s job for user %s", j.Type, j.UserID)

	if err := m.lifecycle.Dispatch(ctx, j.Clone()); err != nil {
		// tasks that could not be enqueued have already failed the job
		m.log.ForJob(j.ID).LogErrorf("Dispatch failed: %v", err)
	}
	return j, nil
}

func (m *Manager) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return m.store.Get(ctx, jobID)
}

func (m *Manager) ListJobsForUser(ctx context.Context, userID string) ([]*Job, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Field: "user_id", Message: "is required"}
	}
	return m.store.ListByUser(ctx, userID)
}

// ReportTaskResult hands a finished task back to the lifecycle. Reporting the
// same task twice is harmless.
func (m *Manager) ReportTaskResult(ctx context.Context, jobID, taskName, content string, metadata map[string]any) error {
	if strings.TrimSpace(taskName) == "" {
		return &ValidationError{Field: "task_name", Message: "is required"}
	}
	if strings.TrimSpace(content) == "" {
		return &ValidationError{Field: "content", Message: "is required"}
	}
	if _, err := m.store.Get(ctx, jobID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return &PersistenceError{JobID: jobID, Op: "load", Err: err}
	}
	return m.lifecycle.ReportTaskResult(ctx, jobID, TaskResult{
		TaskName: taskName,
		Content:  content,
		Metadata: metadata,
	})
}
