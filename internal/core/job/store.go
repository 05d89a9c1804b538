package job

import (
	"context"
	"fmt"
	"time"
)

// Store is the durable record of jobs. Implementations must be safe for
// concurrent use by the HTTP layer and the task workers.
type Store interface {
	Get(ctx context.Context, id string) (*Job, error)
	// Put inserts or replaces a whole record.
	Put(ctx context.Context, j *Job) error
	// Update applies a conditional partial update and returns the new record.
	// It never clears status or createdAt, always bumps updatedAt and refuses
	// records that are already terminal.
	Update(ctx context.Context, id string, p Patch) (*Job, error)
	// ListByUser returns a user's jobs, most recent first.
	ListByUser(ctx context.Context, userID string) ([]*Job, error)
	// RecordTask stores the first report for (jobID, rec.TaskName). A later
	// report for the same task is dropped and applied is false.
	RecordTask(ctx context.Context, jobID string, rec TaskRecord) (applied bool, err error)
	Tasks(ctx context.Context, jobID string) (map[string]TaskRecord, error)
}

// Patch lists the fields an update may change. Nil fields are left alone.
type Patch struct {
	Stage        *Stage
	Output       *Output
	ErrorMessage *string
	ArtifactRef  *string
	// ExpectStages makes the update conditional on the current stage.
	ExpectStages []Stage
}

func (p Patch) String() string {
	s := "patch"
	if p.Stage != nil {
		s += " stage=" + string(*p.Stage)
	}
	if len(p.ExpectStages) > 0 {
		s += fmt.Sprintf(" expect=%v", p.ExpectStages)
	}
	return s
}

// apply mutates j in place. Callers pass a copy and persist it only when
// apply returns nil.
func apply(j *Job, p Patch, now time.Time) error {
	if j.IsTerminal() {
		return ErrTerminal
	}
	if len(p.ExpectStages) > 0 && !stageIn(j.Stage, p.ExpectStages) {
		return fmt.Errorf("%w: at %s, expected one of %v", ErrStageConflict, j.Stage, p.ExpectStages)
	}

	if p.Output != nil {
		j.Output = p.Output
	}
	if p.ErrorMessage != nil {
		j.ErrorMessage = *p.ErrorMessage
	}
	if p.ArtifactRef != nil && j.ArtifactRef == "" {
		j.ArtifactRef = *p.ArtifactRef
	}
	if p.Stage != nil {
		j.Stage = *p.Stage
		j.Status = j.Stage.Status()
		if j.Stage.IsTerminal() && j.CompletedAt == nil {
			done := now
			d := done.Sub(j.CreatedAt).Milliseconds()
			if d < 0 {
				d = 0
			}
			j.CompletedAt = &done
			j.ActualDurationMs = &d
		}
	}
	if now.After(j.UpdatedAt) {
		j.UpdatedAt = now
	}
	return CheckInvariants(j)
}

func stageIn(s Stage, set []Stage) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

// CheckInvariants verifies the status/output/error/completion relationships
// every stored record must satisfy.
func CheckInvariants(j *Job) error {
	if j.Status != j.Stage.Status() {
		return fmt.Errorf("job %s: status %s does not match stage %s", j.ID, j.Status, j.Stage)
	}
	completed := j.Status == StatusCompleted
	failed := j.Status == StatusFailed
	if completed != (j.Output != nil) {
		return fmt.Errorf("job %s: output must be present exactly when completed", j.ID)
	}
	if j.Output != nil {
		if err := j.Output.Validate(); err != nil {
			return fmt.Errorf("job %s: %w", j.ID, err)
		}
	}
	if failed != (j.ErrorMessage != "") {
		return fmt.Errorf("job %s: error message must be present exactly when failed", j.ID)
	}
	terminal := completed || failed
	if terminal != (j.CompletedAt != nil) || terminal != (j.ActualDurationMs != nil) {
		return fmt.Errorf("job %s: completion time must be set exactly when terminal", j.ID)
	}
	return nil
}

func now() time.Time { return time.Now().UTC() }
