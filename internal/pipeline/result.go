package pipeline

import (
	"time"

	"github.com/deploymenttheory/go-pipeline-runner/internal/capture"
)

// StepOutcome is the terminal state of a single step
type StepOutcome string

const (
	// StepSkipped means the step's condition evaluated false; its command was never invoked
	StepSkipped StepOutcome = "skipped"

	// StepSucceeded means the command ran and exited zero
	StepSucceeded StepOutcome = "succeeded"

	// StepFailed means the command ran and exited non-zero, timed out, or could not start
	StepFailed StepOutcome = "failed"
)

// RunOutcome is the terminal state of a whole pipeline run
type RunOutcome string

const (
	// RunSucceeded means every step either succeeded or was skipped
	RunSucceeded RunOutcome = "succeeded"

	// RunFailed means at least one step failed
	RunFailed RunOutcome = "failed"

	// RunAborted means the run never meaningfully executed: validation failed
	// before the first step, or cancellation was observed between steps
	RunAborted RunOutcome = "aborted"
)

// StepResult records what happened to one step
type StepResult struct {
	Name     string        `json:"name" yaml:"name"`
	Outcome  StepOutcome   `json:"outcome" yaml:"outcome"`
	ExitCode int           `json:"exit_code" yaml:"exit_code"`
	TimedOut bool          `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
	Output   *capture.Ref  `json:"output,omitempty" yaml:"output,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Result is the complete record of a pipeline run. Callers always receive one,
// including for aborted and failed runs; partial step results up to the halting
// point are preserved for diagnostics.
type Result struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Pipeline  string        `json:"pipeline" yaml:"pipeline"`
	Outcome   RunOutcome    `json:"outcome" yaml:"outcome"`
	Steps     []StepResult  `json:"steps" yaml:"steps"`
	Errors    []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Exit codes reported to the invoking caller
const (
	ExitSucceeded = 0
	ExitFailed    = 1
	ExitAborted   = 2
)

// ExitCode maps the run outcome onto a process exit code
func (r *Result) ExitCode() int {
	switch r.Outcome {
	case RunSucceeded:
		return ExitSucceeded
	case RunAborted:
		return ExitAborted
	default:
		return ExitFailed
	}
}

// FailedSteps returns the names of steps that failed
func (r *Result) FailedSteps() []string {
	var failed []string
	for _, step := range r.Steps {
		if step.Outcome == StepFailed {
			failed = append(failed, step.Name)
		}
	}
	return failed
}
