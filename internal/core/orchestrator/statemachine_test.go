package orchestrator

import (
	"testing"

	"planner/internal/core/job"

	"github.com/stretchr/testify/assert"
)

func TestStageTransitions(t *testing.T) {
	sm := NewStageMachine()
	tests := []struct {
		from, to job.Stage
		want     bool
	}{
		{job.StageInitiated, job.StageDispatched, true},
		{job.StageDispatched, job.StageProcessing, true},
		{job.StageDispatched, job.StageFanOut, true},
		{job.StageFanOut, job.StageConsolidating, true},
		{job.StageConsolidating, job.StageCompleted, true},
		{job.StageProcessing, job.StageCompleted, true},
		{job.StageFanOut, job.StageFailed, true},
		{job.StageInitiated, job.StageFailed, true},

		{job.StageFanOut, job.StageCompleted, false},
		{job.StageProcessing, job.StageConsolidating, false},
		{job.StageInitiated, job.StageProcessing, false},
		{job.StageCompleted, job.StageFailed, false},
		{job.StageFailed, job.StageInitiated, false},
		{job.StageDispatched, job.StageDispatched, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sm.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
		err := sm.ValidateTransition(tt.from, tt.to)
		if tt.want {
			assert.NoError(t, err)
		} else {
			var invalid *InvalidStateTransitionError
			assert.ErrorAs(t, err, &invalid)
		}
	}
}

func TestStagePatchExpectsSources(t *testing.T) {
	sm := NewStageMachine()

	p := sm.Patch(job.StageCompleted)
	assert.Equal(t, job.StageCompleted, *p.Stage)
	assert.ElementsMatch(t, []job.Stage{job.StageProcessing, job.StageConsolidating}, p.ExpectStages)

	p = sm.Patch(job.StageFailed)
	assert.ElementsMatch(t, []job.Stage{
		job.StageInitiated, job.StageDispatched, job.StageProcessing, job.StageFanOut, job.StageConsolidating,
	}, p.ExpectStages)

	assert.Equal(t, []job.Stage{job.StageInitiated}, sm.Patch(job.StageDispatched).ExpectStages)
}

func TestWorkingStage(t *testing.T) {
	assert.Equal(t, job.StageFanOut, WorkingStage(job.TypeIntegrationPlan))
	assert.Equal(t, job.StageProcessing, WorkingStage(job.TypeSpecification))
	assert.Equal(t, job.StageProcessing, WorkingStage(job.TypeStories))
}
