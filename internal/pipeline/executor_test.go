package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-pipeline-runner/internal/capture"
	"github.com/deploymenttheory/go-pipeline-runner/internal/logger"
)

func TestMain(m *testing.M) {
	if err := logger.InitLogger(logger.DefaultConfig()); err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// fakeCall records one invocation the executor made
type fakeCall struct {
	argv []string
	env  []string
}

// fakeBehavior scripts how the fake runner reacts to a command, keyed by argv[0]
type fakeBehavior struct {
	exitCode int
	err      error
	output   string

	// blockCtx waits for ctx cancellation instead of returning
	blockCtx bool

	// onRun is invoked while the step runs
	onRun func(ctx context.Context)
}

// fakeRunner stands in for subprocess execution
type fakeRunner struct {
	mu        sync.Mutex
	behaviors map[string]fakeBehavior
	calls     []fakeCall
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{behaviors: make(map[string]fakeBehavior)}
}

func (f *fakeRunner) on(command string, b fakeBehavior) *fakeRunner {
	f.behaviors[command] = b
	return f
}

func (f *fakeRunner) Run(ctx context.Context, argv []string, env []string, output io.Writer) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{argv: append([]string(nil), argv...), env: append([]string(nil), env...)})
	b := f.behaviors[argv[0]]
	f.mu.Unlock()

	if b.onRun != nil {
		b.onRun(ctx)
	}
	if b.blockCtx {
		<-ctx.Done()
		return -1, ctx.Err()
	}
	if b.output != "" {
		io.WriteString(output, b.output)
	}
	return b.exitCode, b.err
}

func (f *fakeRunner) commandsRun() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var names []string
	for _, c := range f.calls {
		names = append(names, c.argv[0])
	}
	return names
}

func testStore(t *testing.T, secrets ...string) *capture.Store {
	t.Helper()

	store, err := capture.NewStore(capture.Options{
		Dir:      t.TempDir(),
		Redactor: capture.NewRedactor(secrets),
	})
	require.NoError(t, err)
	return store
}

func TestRunAllStepsSucceed(t *testing.T) {
	runner := newFakeRunner().
		on("lint", fakeBehavior{output: "lint ok\n"}).
		on("test", fakeBehavior{output: "test ok\n"})

	def := &Definition{
		Name: "checks",
		Steps: []Step{
			{Name: "lint", Command: []string{"lint"}},
			{Name: "test", Command: []string{"test"}},
		},
	}
	rc := pushContext(t, "main", nil)

	exec := NewExecutor(testStore(t), WithCommandRunner(runner))
	result := exec.Run(context.Background(), def, rc)

	assert.Equal(t, RunSucceeded, result.Outcome)
	assert.Equal(t, ExitSucceeded, result.ExitCode())
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "checks", result.Pipeline)
	require.Len(t, result.Steps, 2)
	for _, step := range result.Steps {
		assert.Equal(t, StepSucceeded, step.Outcome)
		assert.Equal(t, 0, step.ExitCode)
		assert.NotNil(t, step.Output)
	}
	assert.Equal(t, []string{"lint", "test"}, runner.commandsRun())
}

func TestRunFailFastHalts(t *testing.T) {
	runner := newFakeRunner().
		on("build", fakeBehavior{exitCode: 1, output: "compile error\n"})

	def := &Definition{
		Name: "release",
		Steps: []Step{
			{Name: "lint", Command: []string{"lint"}},
			{Name: "build", Command: []string{"build"}},
			{Name: "publish", Command: []string{"publish"}},
		},
	}
	rc := pushContext(t, "main", nil)

	exec := NewExecutor(testStore(t), WithCommandRunner(runner))
	result := exec.Run(context.Background(), def, rc)

	assert.Equal(t, RunFailed, result.Outcome)
	assert.Equal(t, ExitFailed, result.ExitCode())

	// The halting step is the last recorded one; later steps never appear.
	require.Len(t, result.Steps, 2)
	assert.Equal(t, StepSucceeded, result.Steps[0].Outcome)
	assert.Equal(t, StepFailed, result.Steps[1].Outcome)
	assert.Equal(t, 1, result.Steps[1].ExitCode)
	assert.Equal(t, []string{"lint", "build"}, runner.commandsRun())
	assert.Equal(t, []string{"build"}, result.FailedSteps())
}

func TestRunContinueOnErrorKeepsGoing(t *testing.T) {
	runner := newFakeRunner().
		on("flaky", fakeBehavior{exitCode: 2})

	def := &Definition{
		Name: "nightly",
		Steps: []Step{
			{Name: "flaky", Command: []string{"flaky"}, ContinueOnError: true},
			{Name: "report", Command: []string{"report"}},
		},
	}
	rc := pushContext(t, "main", nil)

	exec := NewExecutor(testStore(t), WithCommandRunner(runner))
	result := exec.Run(context.Background(), def, rc)

	// Every step ran, but a failed step still fails the run.
	assert.Equal(t, RunFailed, result.Outcome)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, StepFailed, result.Steps[0].Outcome)
	assert.Equal(t, StepSucceeded, result.Steps[1].Outcome)
	assert.Equal(t, []string{"flaky", "report"}, runner.commandsRun())
}

func TestRunSkippedStepCommandNeverInvoked(t *testing.T) {
	runner := newFakeRunner()

	def := &Definition{
		Name: "docs",
		Steps: []Step{
			{Name: "build", Command: []string{"build"}},
			{Name: "deploy", Command: []string{"deploy"}, Condition: `branch == "main"`},
		},
	}
	rc := pushContext(t, "feature-x", nil)

	exec := NewExecutor(testStore(t), WithCommandRunner(runner))
	result := exec.Run(context.Background(), def, rc)

	assert.Equal(t, RunSucceeded, result.Outcome)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, StepSkipped, result.Steps[1].Outcome)
	assert.Nil(t, result.Steps[1].Output)
	assert.Equal(t, []string{"build"}, runner.commandsRun())
}

func TestRunValidationAbortsWithZeroSteps(t *testing.T) {
	runner := newFakeRunner()

	def := &Definition{
		Name: "broken",
		Steps: []Step{
			{Name: "dup", Command: []string{"a"}},
			{Name: "dup", Command: []string{"b"}},
			{Name: "bad", Command: []string{"c"}, Condition: `branch = "main"`},
		},
	}
	rc := pushContext(t, "main", nil)

	exec := NewExecutor(testStore(t), WithCommandRunner(runner))
	result := exec.Run(context.Background(), def, rc)

	assert.Equal(t, RunAborted, result.Outcome)
	assert.Equal(t, ExitAborted, result.ExitCode())
	assert.Empty(t, result.Steps)
	assert.Len(t, result.Errors, 2)
	assert.Empty(t, runner.commandsRun())
}

func TestRunEmptyPipelineAborts(t *testing.T) {
	def := &Definition{Name: "empty"}
	rc := pushContext(t, "main", nil)

	exec := NewExecutor(testStore(t), WithCommandRunner(newFakeRunner()))
	result := exec.Run(context.Background(), def, rc)

	assert.Equal(t, RunAborted, result.Outcome)
	assert.Empty(t, result.Steps)
	assert.NotEmpty(t, result.Errors)
}

func TestRunCancellationBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	runner := newFakeRunner().
		on("first", fakeBehavior{onRun: func(context.Context) { cancel() }})

	def := &Definition{
		Name: "long",
		Steps: []Step{
			{Name: "first", Command: []string{"first"}},
			{Name: "second", Command: []string{"second"}},
		},
	}
	rc := pushContext(t, "main", nil)

	exec := NewExecutor(testStore(t), WithCommandRunner(runner))
	result := exec.Run(ctx, def, rc)

	// The first step completed; cancellation is observed before the second.
	assert.Equal(t, RunAborted, result.Outcome)
	assert.Equal(t, ExitAborted, result.ExitCode())
	require.Len(t, result.Steps, 1)
	assert.Equal(t, StepSucceeded, result.Steps[0].Outcome)
	assert.Equal(t, []string{"first"}, runner.commandsRun())
}

func TestRunCancellationAlreadyCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := newFakeRunner()
	def := &Definition{
		Name:  "never",
		Steps: []Step{{Name: "only", Command: []string{"only"}}},
	}
	rc := pushContext(t, "main", nil)

	exec := NewExecutor(testStore(t), WithCommandRunner(runner))
	result := exec.Run(ctx, def, rc)

	assert.Equal(t, RunAborted, result.Outcome)
	assert.Empty(t, result.Steps)
	assert.Empty(t, runner.commandsRun())
}

func TestRunCancellationDuringStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	runner := newFakeRunner().
		on("hang", fakeBehavior{blockCtx: true, onRun: func(context.Context) {
			go func() {
				time.Sleep(10 * time.Millisecond)
				cancel()
			}()
		}})

	def := &Definition{
		Name: "interrupted",
		Steps: []Step{
			{Name: "hang", Command: []string{"hang"}},
			{Name: "after", Command: []string{"after"}},
		},
	}
	rc := pushContext(t, "main", nil)

	exec := NewExecutor(testStore(t), WithCommandRunner(runner))
	result := exec.Run(ctx, def, rc)

	// Cancellation mid-step fails the step and aborts the run. Takes
	// precedence over plain failure handling, so no later step runs.
	assert.Equal(t, RunAborted, result.Outcome)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, StepFailed, result.Steps[0].Outcome)
	assert.False(t, result.Steps[0].TimedOut)
	assert.Equal(t, []string{"hang"}, runner.commandsRun())
}

func TestRunStepTimeout(t *testing.T) {
	runner := newFakeRunner().
		on("slow", fakeBehavior{blockCtx: true})

	def := &Definition{
		Name: "timed",
		Steps: []Step{
			{Name: "slow", Command: []string{"slow"}, Timeout: 20 * time.Millisecond},
			{Name: "after", Command: []string{"after"}},
		},
	}
	rc := pushContext(t, "main", nil)

	exec := NewExecutor(testStore(t), WithCommandRunner(runner))
	result := exec.Run(context.Background(), def, rc)

	// A timeout is a step failure, not a run abort.
	assert.Equal(t, RunFailed, result.Outcome)
	assert.Equal(t, ExitFailed, result.ExitCode())
	require.Len(t, result.Steps, 1)
	assert.Equal(t, StepFailed, result.Steps[0].Outcome)
	assert.True(t, result.Steps[0].TimedOut)
}

func TestRunDefaultTimeoutApplies(t *testing.T) {
	runner := newFakeRunner().
		on("slow", fakeBehavior{blockCtx: true})

	def := &Definition{
		Name:  "timed",
		Steps: []Step{{Name: "slow", Command: []string{"slow"}}},
	}
	rc := pushContext(t, "main", nil)

	exec := NewExecutor(testStore(t),
		WithCommandRunner(runner),
		WithDefaultTimeout(20*time.Millisecond))
	result := exec.Run(context.Background(), def, rc)

	require.Len(t, result.Steps, 1)
	assert.True(t, result.Steps[0].TimedOut)
}

func TestRunEnvOverlayAndInterpolation(t *testing.T) {
	runner := newFakeRunner()

	def := &Definition{
		Name: "env",
		Steps: []Step{{
			Name:    "build",
			Command: []string{"build", "--target", "${TARGET}", "--token", "${secrets.TOKEN}"},
			Env: map[string]string{
				"TARGET": "${OS}-amd64",
				"CI":     "true",
			},
		}},
	}

	rc, err := NewRunContext(TriggerEvent{
		Kind:    EventPush,
		Ref:     "main",
		Env:     map[string]string{"OS": "linux", "CI": "false"},
		Secrets: map[string]string{"TOKEN": "hunter2"},
	})
	require.NoError(t, err)

	exec := NewExecutor(testStore(t), WithCommandRunner(runner))
	result := exec.Run(context.Background(), def, rc)
	require.Equal(t, RunSucceeded, result.Outcome)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]

	assert.Equal(t, []string{"build", "--target", "linux-amd64", "--token", "hunter2"}, call.argv)

	// Overlay wins on collision, and the overlay value itself was expanded.
	assert.Contains(t, call.env, "CI=true")
	assert.Contains(t, call.env, "TARGET=linux-amd64")
	assert.Contains(t, call.env, "OS=linux")
	assert.NotContains(t, call.env, "CI=false")

	// Secrets are passed by reference only, never exported wholesale.
	for _, kv := range call.env {
		assert.NotContains(t, kv, "TOKEN=")
	}
}

func TestRunScriptFormUsesShell(t *testing.T) {
	runner := newFakeRunner().on("sh", fakeBehavior{})

	def := &Definition{
		Name:  "script",
		Steps: []Step{{Name: "greet", Run: "echo hello ${NAME}"}},
	}
	rc := pushContext(t, "main", map[string]string{"NAME": "world"})

	exec := NewExecutor(testStore(t),
		WithCommandRunner(runner),
		WithShell([]string{"sh", "-c"}))
	result := exec.Run(context.Background(), def, rc)
	require.Equal(t, RunSucceeded, result.Outcome)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"sh", "-c", "echo hello world"}, runner.calls[0].argv)
}

func TestRunCommandStartFailure(t *testing.T) {
	runner := newFakeRunner().
		on("missing", fakeBehavior{exitCode: -1, err: fmt.Errorf("executable not found")})

	def := &Definition{
		Name:  "start",
		Steps: []Step{{Name: "missing", Command: []string{"missing"}}},
	}
	rc := pushContext(t, "main", nil)

	exec := NewExecutor(testStore(t), WithCommandRunner(runner))
	result := exec.Run(context.Background(), def, rc)

	assert.Equal(t, RunFailed, result.Outcome)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, StepFailed, result.Steps[0].Outcome)
}

func TestRunRedactsSecretsInPersistedOutput(t *testing.T) {
	runner := newFakeRunner().
		on("leaky", fakeBehavior{output: "authenticating with hunter2 done\n"})

	def := &Definition{
		Name:  "redact",
		Steps: []Step{{Name: "leaky", Command: []string{"leaky"}}},
	}
	rc, err := NewRunContext(TriggerEvent{
		Kind:    EventPush,
		Ref:     "main",
		Secrets: map[string]string{"TOKEN": "hunter2"},
	})
	require.NoError(t, err)

	store := testStore(t, rc.SecretValues()...)
	exec := NewExecutor(store, WithCommandRunner(runner))
	result := exec.Run(context.Background(), def, rc)

	require.Equal(t, RunSucceeded, result.Outcome)
	require.NotNil(t, result.Steps[0].Output)

	data, err := store.Read(result.Steps[0].Output)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
	assert.Contains(t, string(data), "authenticating with *** done")
}

// Tag pipelines distinguish release tags from candidate tags by prefix.
func TestRunTagPipelineScenario(t *testing.T) {
	def := &Definition{
		Name: "tag-release",
		Steps: []Step{
			{Name: "build", Command: []string{"build"}},
			{Name: "publish-release", Command: []string{"publish"}, Condition: `event == "tag" && !startswith(tag, "C_")`},
			{Name: "publish-candidate", Command: []string{"preview"}, Condition: `event == "tag" && startswith(tag, "C_")`},
		},
	}

	t.Run("release tag", func(t *testing.T) {
		runner := newFakeRunner()
		exec := NewExecutor(testStore(t), WithCommandRunner(runner))
		result := exec.Run(context.Background(), def, tagContext(t, "v1.2.3"))

		require.Equal(t, RunSucceeded, result.Outcome)
		assert.Equal(t, []string{"build", "publish"}, runner.commandsRun())
		assert.Equal(t, StepSkipped, result.Steps[2].Outcome)
	})

	t.Run("candidate tag", func(t *testing.T) {
		runner := newFakeRunner()
		exec := NewExecutor(testStore(t), WithCommandRunner(runner))
		result := exec.Run(context.Background(), def, tagContext(t, "C_20260831"))

		require.Equal(t, RunSucceeded, result.Outcome)
		assert.Equal(t, []string{"build", "preview"}, runner.commandsRun())
		assert.Equal(t, StepSkipped, result.Steps[1].Outcome)
	})
}
