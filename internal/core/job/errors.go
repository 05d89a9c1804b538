package job

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound = errors.New("job not found")
	// ErrTerminal is returned when a mutation targets a completed or failed job.
	ErrTerminal = errors.New("job is in a terminal state")
	// ErrStageConflict is returned when a conditional update finds the job in
	// a stage other than the expected ones.
	ErrStageConflict = errors.New("job stage changed concurrently")
)

// ValidationError rejects a request before any record is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// ExternalServiceError wraps a failed, timed out or empty generation call.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// PartialResultError means consolidation was asked to run on an incomplete
// task-result set.
type PartialResultError struct {
	Missing    []string
	Unexpected []string
}

func (e *PartialResultError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected "+strings.Join(e.Unexpected, ", "))
	}
	return "incomplete task results: " + strings.Join(parts, "; ")
}

// PersistenceError wraps a status store write failure.
type PersistenceError struct {
	JobID string
	Op    string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist job %s (%s): %v", e.JobID, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CheckTaskSet compares reported task names against the required set.
func CheckTaskSet[T any](results map[string]T, required []string) error {
	var missing, unexpected []string
	want := make(map[string]bool, len(required))
	for _, name := range required {
		want[name] = true
		if _, ok := results[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range results {
		if !want[name] {
			unexpected = append(unexpected, name)
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	sort.Strings(unexpected)
	return &PartialResultError{Missing: missing, Unexpected: unexpected}
}
