package orchestrator

import (
	"fmt"

	"planner/internal/core/job"
)

type transition struct {
	From job.Stage
	To   job.Stage
}

// StageMachine holds the legal stage transitions of a job.
//
//	initiated -> dispatched -> processing -------------------> completed
//	                        -> fan_out -> consolidating -----> completed
//	any non-terminal stage ---------------------------------> failed
type StageMachine struct {
	allowed map[transition]bool
	sources map[job.Stage][]job.Stage
}

func NewStageMachine() *StageMachine {
	sm := &StageMachine{
		allowed: make(map[transition]bool),
		sources: make(map[job.Stage][]job.Stage),
	}
	transitions := []transition{
		{job.StageInitiated, job.StageDispatched},
		{job.StageDispatched, job.StageProcessing},
		{job.StageDispatched, job.StageFanOut},
		{job.StageFanOut, job.StageConsolidating},
		{job.StageProcessing, job.StageCompleted},
		{job.StageConsolidating, job.StageCompleted},
	}
	for _, from := range []job.Stage{
		job.StageInitiated, job.StageDispatched, job.StageProcessing, job.StageFanOut, job.StageConsolidating,
	} {
		transitions = append(transitions, transition{from, job.StageFailed})
	}
	for _, t := range transitions {
		sm.allowed[t] = true
		sm.sources[t.To] = append(sm.sources[t.To], t.From)
	}
	return sm
}

func (sm *StageMachine) CanTransition(from, to job.Stage) bool {
	if from == to {
		return false
	}
	return sm.allowed[transition{From: from, To: to}]
}

func (sm *StageMachine) ValidateTransition(from, to job.Stage) error {
	if !sm.CanTransition(from, to) {
		return &InvalidStateTransitionError{From: from, To: to}
	}
	return nil
}

// Patch builds a store update that only applies when the job currently sits
// in a stage that may move to the target.
func (sm *StageMachine) Patch(to job.Stage) job.Patch {
	target := to
	return job.Patch{
		Stage:        &target,
		ExpectStages: append([]job.Stage(nil), sm.sources[to]...),
	}
}

// WorkingStage is where a dispatched job of type t goes once a worker picks
// it up.
func WorkingStage(t job.Type) job.Stage {
	if t.FanOut() {
		return job.StageFanOut
	}
	return job.StageProcessing
}

type InvalidStateTransitionError struct {
	From job.Stage
	To   job.Stage
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid job stage transition: %s -> %s", e.From, e.To)
}
