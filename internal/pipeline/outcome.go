package pipeline

import (
	"time"

	"github.com/opsgate/triago/pkg/schema"
)

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// StepStatus is the terminal state of a single step within a run.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepRecord summarizes the outcome of a single step.
type StepRecord struct {
	Name       string              `json:"name"`
	Status     StepStatus          `json:"status"`
	Output     any                 `json:"output,omitempty"`
	Error      *schema.TriagoError `json:"error,omitempty"`
	DurationMs int64               `json:"duration_ms,omitempty"`
}

// Outcome is the result of a pipeline run. A failed run names the step that
// broke it and carries the structured error; steps after the failure are
// recorded as skipped.
type Outcome struct {
	RunID       string                 `json:"run_id"`
	Pipeline    string                 `json:"pipeline"`
	Status      RunStatus              `json:"status"`
	Output      any                    `json:"output,omitempty"`
	FailedStep  string                 `json:"failed_step,omitempty"`
	Error       *schema.TriagoError    `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
	Steps       map[string]*StepRecord `json:"steps,omitempty"`
}

// Succeeded reports whether the run reached its finalizer.
func (o *Outcome) Succeeded() bool { return o.Status == RunSucceeded }
