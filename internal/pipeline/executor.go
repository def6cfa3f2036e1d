package pipeline

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"sort"
	"time"

	"github.com/deploymenttheory/go-pipeline-runner/internal/capture"
	"github.com/deploymenttheory/go-pipeline-runner/internal/common/osutil"
	"github.com/deploymenttheory/go-pipeline-runner/internal/logger"
	"github.com/google/uuid"
)

// CommandRunner invokes a single step command. The executor observes only the
// exit code, the combined output written to output, and elapsed time; it never
// interprets what the command does.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, env []string, output io.Writer) (int, error)
}

// execRunner runs commands as subprocesses
type execRunner struct{}

func (execRunner) Run(ctx context.Context, argv []string, env []string, output io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = env
	cmd.Stdout = output
	cmd.Stderr = output

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	// The command never started (not found, permission denied, canceled).
	return -1, err
}

// Executor runs pipeline definitions sequentially with fail-fast semantics
type Executor struct {
	store          *capture.Store
	runner         CommandRunner
	shell          []string
	defaultTimeout time.Duration
}

// Option configures executor behavior
type Option func(*Executor)

// WithCommandRunner substitutes the subprocess runner, mainly for tests
func WithCommandRunner(r CommandRunner) Option {
	return func(e *Executor) {
		e.runner = r
	}
}

// WithShell overrides the argv prefix used for script-form step commands
func WithShell(shell []string) Option {
	return func(e *Executor) {
		if len(shell) > 0 {
			e.shell = shell
		}
	}
}

// WithDefaultTimeout sets the timeout applied to steps that declare none.
// Zero means unlimited.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.defaultTimeout = d
	}
}

// NewExecutor creates an executor persisting output into the given store
func NewExecutor(store *capture.Store, options ...Option) *Executor {
	e := &Executor{
		store:  store,
		runner: execRunner{},
		shell:  osutil.DefaultShell(),
	}

	for _, opt := range options {
		opt(e)
	}

	return e
}

// Run executes the pipeline against the run context and always returns a
// complete result. Validation failures abort before any step executes. Steps
// run strictly in declared order; a failing step halts the run unless it is
// marked continue_on_error. Cancellation is observed between steps and yields
// an aborted run, distinct from a failed one.
func (e *Executor) Run(ctx context.Context, def *Definition, rc *RunContext) *Result {
	result := &Result{
		RunID:     uuid.NewString(),
		Pipeline:  def.Name,
		StartedAt: time.Now(),
	}
	defer func() {
		result.Duration = time.Since(result.StartedAt)
	}()

	if errs := Validate(def, rc); len(errs) > 0 {
		for _, err := range errs {
			logger.LogError("Pipeline validation error", err, map[string]interface{}{
				"pipeline": def.Name,
			})
			result.Errors = append(result.Errors, err.Error())
		}
		result.Outcome = RunAborted
		return result
	}

	logger.LogInfo("Starting pipeline run", map[string]interface{}{
		"pipeline": def.Name,
		"run_id":   result.RunID,
		"steps":    len(def.Steps),
		"event":    string(rc.Event()),
		"ref":      rc.Ref(),
	})

	aborted := false
	halted := false

	for i := range def.Steps {
		step := &def.Steps[i]

		// Cancellation is a request observed between steps.
		select {
		case <-ctx.Done():
			logger.LogWarn("Pipeline run canceled, abandoning remaining steps", map[string]interface{}{
				"run_id":    result.RunID,
				"next_step": step.Name,
			})
			aborted = true
		default:
		}
		if aborted {
			break
		}

		if step.Condition != "" {
			expr, err := ParseCondition(step.Condition)
			if err != nil {
				// Unreachable after validation; treated as a skip-nothing error.
				result.Errors = append(result.Errors, err.Error())
				aborted = true
				break
			}
			if !expr.Eval(rc) {
				logger.LogInfo("Skipping step, condition not met", map[string]interface{}{
					"run_id": result.RunID,
					"step":   step.Name,
				})
				result.Steps = append(result.Steps, StepResult{
					Name:    step.Name,
					Outcome: StepSkipped,
				})
				continue
			}
		}

		stepResult := e.runStep(ctx, result.RunID, step, rc)
		result.Steps = append(result.Steps, stepResult)

		if stepResult.Outcome == StepFailed {
			logger.LogError("Step failed", nil, map[string]interface{}{
				"run_id":    result.RunID,
				"step":      step.Name,
				"exit_code": stepResult.ExitCode,
				"timed_out": stepResult.TimedOut,
			})

			if ctx.Err() != nil {
				// The parent context was canceled while the step ran.
				aborted = true
				break
			}
			if !step.ContinueOnError {
				halted = true
				break
			}
		} else {
			logger.LogDebug("Step completed", map[string]interface{}{
				"run_id": result.RunID,
				"step":   step.Name,
			})
		}
	}

	switch {
	case aborted:
		result.Outcome = RunAborted
	case halted || len(result.FailedSteps()) > 0:
		result.Outcome = RunFailed
	default:
		result.Outcome = RunSucceeded
	}

	logger.LogInfo("Pipeline run finished", map[string]interface{}{
		"run_id":  result.RunID,
		"outcome": string(result.Outcome),
	})

	return result
}

// runStep executes one step whose condition already evaluated true
func (e *Executor) runStep(ctx context.Context, runID string, step *Step, rc *RunContext) StepResult {
	// Effective environment: context env overlaid with the step's env,
	// overlay wins on key collision. Overlay values and command strings may
	// carry ${NAME} and ${secrets.NAME} references.
	env := rc.EnvSnapshot()
	for k, v := range step.Env {
		env[k] = expandString(v, rc.env, rc.secrets)
	}

	argv := step.Argv(e.shell)
	expanded := make([]string, len(argv))
	for i, arg := range argv {
		expanded[i] = expandString(arg, env, rc.secrets)
	}

	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, k+"="+v)
	}
	sort.Strings(envList)

	stepCtx := ctx
	cancel := context.CancelFunc(func() {})
	timeout := step.Timeout
	if timeout == 0 {
		timeout = e.defaultTimeout
	}
	if timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	logger.LogInfo("Executing step", map[string]interface{}{
		"run_id": runID,
		"step":   step.Name,
	})

	sink := e.store.NewSink(runID, step.Name)
	start := time.Now()
	exitCode, runErr := e.runner.Run(stepCtx, expanded, envList, sink)
	elapsed := time.Since(start)

	timedOut := errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil

	ref, persistErr := sink.Persist()
	if persistErr != nil {
		logger.LogError("Failed to persist step output", persistErr, map[string]interface{}{
			"run_id": runID,
			"step":   step.Name,
		})
	}

	outcome := StepSucceeded
	if exitCode != 0 || runErr != nil || timedOut {
		outcome = StepFailed
	}
	if runErr != nil && !timedOut && ctx.Err() == nil {
		logger.LogError("Step command could not run", runErr, map[string]interface{}{
			"run_id": runID,
			"step":   step.Name,
		})
	}

	return StepResult{
		Name:     step.Name,
		Outcome:  outcome,
		ExitCode: exitCode,
		TimedOut: timedOut,
		Output:   ref,
		Duration: elapsed,
	}
}
