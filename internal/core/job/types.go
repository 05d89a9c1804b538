package job

import (
	"fmt"
	"time"

	"planner/internal/core/extract"
)

// Type classifies the document a job produces.
type Type string

const (
	TypeSpecification   Type = "specification"
	TypeStories         Type = "stories"
	TypeIntegrationPlan Type = "integration_plan"
)

// Types lists every accepted job type.
var Types = []Type{TypeSpecification, TypeStories, TypeIntegrationPlan}

func ParseType(s string) (Type, bool) {
	for _, t := range Types {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// FanOut reports whether jobs of this type split into parallel sub-tasks.
func (t Type) FanOut() bool { return t == TypeIntegrationPlan }

// Fan-out sub-task names.
const (
	TaskDiagrams  = "diagrams"
	TaskCode      = "code"
	TaskStructure = "structure"
)

// FanOutTasks are the sub-tasks every fan-out job must report before consolidation.
var FanOutTasks = []string{TaskDiagrams, TaskCode, TaskStructure}

// TaskNames returns the tasks a job of this type dispatches.
func (t Type) TaskNames() []string {
	if t.FanOut() {
		return append([]string(nil), FanOutTasks...)
	}
	return []string{string(t)}
}

// estimatedDurations is the static lookup used at creation time.
var estimatedDurations = map[Type]time.Duration{
	TypeSpecification:   60 * time.Second,
	TypeStories:         45 * time.Second,
	TypeIntegrationPlan: 180 * time.Second,
}

func (t Type) EstimatedDuration() time.Duration { return estimatedDurations[t] }

// Status is the coarse, public job state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Stage is the orchestrator's lifecycle position.
type Stage string

const (
	StageInitiated     Stage = "initiated"
	StageDispatched    Stage = "dispatched"
	StageProcessing    Stage = "processing"
	StageFanOut        Stage = "fan_out"
	StageConsolidating Stage = "consolidating"
	StageCompleted     Stage = "completed"
	StageFailed        Stage = "failed"
)

func (s Stage) IsTerminal() bool { return s == StageCompleted || s == StageFailed }

// Status maps a stage onto the public status.
func (s Stage) Status() Status {
	switch s {
	case StageCompleted:
		return StatusCompleted
	case StageFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

// OutputKind tags which variant of Output is populated.
type OutputKind string

const (
	OutputPlain    OutputKind = "plain"
	OutputDocument OutputKind = "document"
)

// PlainOutput is the result of a job whose text is returned as is.
type PlainOutput struct {
	Content string `json:"content"`
}

// DocumentOutput carries the structured form of the generated text together
// with the raw text it was extracted from.
type DocumentOutput struct {
	Content  string           `json:"content"`
	Document extract.Document `json:"document"`
}

// Output is a tagged union: exactly one of Plain or Document is set,
// matching Kind.
type Output struct {
	Kind     OutputKind      `json:"kind"`
	Plain    *PlainOutput    `json:"plain,omitempty"`
	Document *DocumentOutput `json:"document,omitempty"`
}

func NewPlainOutput(content string) *Output {
	return &Output{Kind: OutputPlain, Plain: &PlainOutput{Content: content}}
}

func NewDocumentOutput(content string, doc extract.Document) *Output {
	return &Output{Kind: OutputDocument, Document: &DocumentOutput{Content: content, Document: doc}}
}

// OutputKindFor returns the variant a job type completes with.
func OutputKindFor(t Type) OutputKind {
	if t == TypeStories {
		return OutputPlain
	}
	return OutputDocument
}

// Validate checks that the populated variant matches Kind.
func (o *Output) Validate() error {
	switch o.Kind {
	case OutputPlain:
		if o.Plain == nil || o.Document != nil {
			return fmt.Errorf("plain output must carry only the plain variant")
		}
	case OutputDocument:
		if o.Document == nil || o.Plain != nil {
			return fmt.Errorf("document output must carry only the document variant")
		}
	default:
		return fmt.Errorf("unknown output kind %q", o.Kind)
	}
	return nil
}

// Job is the persisted unit of work.
type Job struct {
	ID                  string     `json:"job_id"`
	UserID              string     `json:"user_id"`
	Name                string     `json:"name"`
	Type                Type       `json:"job_type"`
	Status              Status     `json:"status"`
	Stage               Stage      `json:"stage"`
	InputData           string     `json:"input_data"`
	Output              *Output    `json:"output,omitempty"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	ArtifactRef         string     `json:"artifact_ref,omitempty"`
	EstimatedDurationMs int64      `json:"estimated_duration_ms"`
	ActualDurationMs    *int64     `json:"actual_duration_ms,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

func (j *Job) IsTerminal() bool { return j.Stage.IsTerminal() }

// Clone copies the record and its pointer fields. Extracted documents are
// treated as immutable and stay shared.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Output != nil {
		out := *j.Output
		cp.Output = &out
	}
	if j.ActualDurationMs != nil {
		d := *j.ActualDurationMs
		cp.ActualDurationMs = &d
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// TaskResult is what an executor hands back for one named task.
type TaskResult struct {
	TaskName    string         `json:"task_name"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ArtifactRef string         `json:"artifact_ref,omitempty"`
}

// TaskRecord is the idempotency ledger entry kept per (job, task).
type TaskRecord struct {
	TaskName    string         `json:"task_name"`
	Succeeded   bool           `json:"succeeded"`
	Content     string         `json:"content,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ArtifactRef string         `json:"artifact_ref,omitempty"`
	Error       string         `json:"error,omitempty"`
	ReportedAt  time.Time      `json:"reported_at"`
}

// Result converts a successful record back into a TaskResult.
func (r TaskRecord) Result() TaskResult {
	return TaskResult{TaskName: r.TaskName, Content: r.Content, Metadata: r.Metadata, ArtifactRef: r.ArtifactRef}
}
