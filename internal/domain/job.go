package domain

import "time"

// JobStatus is the lifecycle state of a Job. The zero value is not a valid
// status; absence of a live job is the implicit "idle" state.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// IsActive reports whether the status occupies the entity's single-flight slot.
func (s JobStatus) IsActive() bool { return s == JobQueued || s == JobRunning }

// Rank orders statuses along the state machine. A job's rank never decreases.
func (s JobStatus) Rank() int {
	switch s {
	case JobQueued:
		return 1
	case JobRunning:
		return 2
	case JobCompleted, JobFailed, JobCancelled:
		return 3
	}
	return 0
}

// StepKind classifies a progress step.
type StepKind string

const (
	StepStatus   StepKind = "status"
	StepThinking StepKind = "thinking"
	StepTool     StepKind = "tool"
	StepOutput   StepKind = "output"
)

// Step is one progress notification emitted while a job runs. Steps are
// append-only and never mutated once emitted.
type Step struct {
	ID        string    `json:"id"`
	Seq       int       `json:"seq"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Kind      StepKind  `json:"kind"`
	ToolName  string    `json:"tool_name,omitempty"`
	FilePath  string    `json:"file_path,omitempty"`
}

// Error codes carried by ErrorInfo.
const (
	ErrCodeProviderFailure = "provider_failure"
	ErrCodeInternal        = "internal"
)

// ErrorInfo describes a failed execution.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ErrorInfo) Error() string { return e.Code + ": " + e.Message }

// JobSummary is the broadcastable view of one live job.
type JobSummary struct {
	Key             EntityKey  `json:"key"`
	Status          JobStatus  `json:"status"`
	QueuedAt        time.Time  `json:"queued_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CancelRequested bool       `json:"cancel_requested"`
	PreviousEntryID string     `json:"previous_entry_id,omitempty"`
	Steps           int        `json:"steps"`
}

// QueueSnapshot is the full set of live jobs at one point in time. Version
// increases with every snapshot the registry produces.
type QueueSnapshot struct {
	Version uint64       `json:"version"`
	Jobs    []JobSummary `json:"jobs"`
}
