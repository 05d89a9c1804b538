package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLifecycle struct {
	dispatched []*Job
	reports    []TaskResult
	dispatchFn func(ctx context.Context, j *Job) error
}

func (f *fakeLifecycle) Dispatch(ctx context.Context, j *Job) error {
	f.dispatched = append(f.dispatched, j)
	if f.dispatchFn != nil {
		return f.dispatchFn(ctx, j)
	}
	return nil
}

func (f *fakeLifecycle) ReportTaskResult(_ context.Context, _ string, res TaskResult) error {
	f.reports = append(f.reports, res)
	return nil
}

func newTestManager() (*Manager, *MemoryStore, *fakeLifecycle) {
	store := NewMemoryStore()
	lc := &fakeLifecycle{}
	m := NewManager(store, lc)
	return m, store, lc
}

func TestCreateJob(t *testing.T) {
	m, store, lc := newTestManager()
	ctx := context.Background()

	j, err := m.CreateJob(ctx, "user-1", "Payments", TypeIntegrationPlan, "integrate the ledger with billing")
	require.NoError(t, err)

	assert.NotEmpty(t, j.ID)
	assert.Equal(t, StatusPending, j.Status)
	assert.Equal(t, StageInitiated, j.Stage)
	assert.Equal(t, "Payments", j.Name)
	assert.Equal(t, int64(180_000), j.EstimatedDurationMs)
	assert.Nil(t, j.Output)
	assert.Empty(t, j.ErrorMessage)
	assert.NoError(t, CheckInvariants(j))

	require.Len(t, lc.dispatched, 1)
	assert.Equal(t, j.ID, lc.dispatched[0].ID)

	stored, err := store.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.InputData, stored.InputData)
}

func TestCreateJobDefaultsName(t *testing.T) {
	m, _, _ := newTestManager()
	m.clock = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }

	j, err := m.CreateJob(context.Background(), "user-1", "  ", TypeStories, "login stories")
	require.NoError(t, err)
	assert.Equal(t, "stories 2026-03-01 09:30", j.Name)
}

func TestCreateJobValidation(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		typ    Type
		input  string
		field  string
	}{
		{"unknown type", "user-1", Type("novel"), "x", "job_type"},
		{"missing user", "", TypeStories, "x", "user_id"},
		{"empty input", "user-1", TypeStories, "   ", "input_data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store, lc := newTestManager()
			_, err := m.CreateJob(context.Background(), tt.userID, "n", tt.typ, tt.input)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, lc.dispatched)
			assert.Empty(t, store.jobs)
		})
	}
}

func TestCreateJobSurvivesDispatchFailure(t *testing.T) {
	m, _, lc := newTestManager()
	lc.dispatchFn = func(context.Context, *Job) error { return errors.New("queue down") }

	j, err := m.CreateJob(context.Background(), "user-1", "n", TypeSpecification, "spec it")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, j.Status)
}

func TestListJobsForUser(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.clock = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	first, err := m.CreateJob(ctx, "user-1", "a", TypeStories, "one")
	require.NoError(t, err)
	second, err := m.CreateJob(ctx, "user-1", "b", TypeStories, "two")
	require.NoError(t, err)
	_, err = m.CreateJob(ctx, "user-2", "c", TypeStories, "three")
	require.NoError(t, err)

	jobs, err := m.ListJobsForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, first.ID, jobs[1].ID)

	_, err = m.ListJobsForUser(ctx, "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestGetJobNotFound(t *testing.T) {
	m, _, _ := newTestManager()
	_, err := m.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReportTaskResult(t *testing.T) {
	m, _, lc := newTestManager()
	ctx := context.Background()

	err := m.ReportTaskResult(ctx, "missing", TaskCode, "content", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	j, err := m.CreateJob(ctx, "user-1", "n", TypeIntegrationPlan, "plan it")
	require.NoError(t, err)

	err = m.ReportTaskResult(ctx, j.ID, TaskCode, "", nil)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	require.NoError(t, m.ReportTaskResult(ctx, j.ID, TaskCode, "```go\npackage x\n```", map[string]any{"model": "fake"}))
	require.Len(t, lc.reports, 1)
	assert.Equal(t, TaskCode, lc.reports[0].TaskName)
	assert.Equal(t, "fake", lc.reports[0].Metadata["model"])
}

func TestCheckTaskSet(t *testing.T) {
	results := map[string]TaskResult{TaskDiagrams: {}, TaskCode: {}}
	err := CheckTaskSet(results, FanOutTasks)

	var perr *PartialResultError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, []string{TaskStructure}, perr.Missing)
	assert.Empty(t, perr.Unexpected)

	results[TaskStructure] = TaskResult{}
	assert.NoError(t, CheckTaskSet(results, FanOutTasks))

	results["extra"] = TaskResult{}
	require.ErrorAs(t, CheckTaskSet(results, FanOutTasks), &perr)
	assert.Equal(t, []string{"extra"}, perr.Unexpected)
}
