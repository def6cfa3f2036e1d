package pipeline

import "time"

// Definition represents an entire pipeline definition
type Definition struct {
	// Name of the pipeline (required)
	Name string `mapstructure:"name"`

	// Optional description of the pipeline
	Description string `mapstructure:"description,omitempty"`

	// Version of the pipeline definition
	Version string `mapstructure:"version,omitempty"`

	// Ordered list of steps to execute
	Steps []Step `mapstructure:"steps"`
}

// Step represents a single step in the pipeline
type Step struct {
	// Unique name for the step (required)
	Name string `mapstructure:"name"`

	// Optional human-readable description of the step
	Description string `mapstructure:"description,omitempty"`

	// Command in argv form. Mutually exclusive with Run.
	Command []string `mapstructure:"command,omitempty"`

	// Run is a script-form command executed through the configured shell.
	// Mutually exclusive with Command.
	Run string `mapstructure:"run,omitempty"`

	// Optional conditional execution expression evaluated against the run
	// context. Absent means the step always runs.
	Condition string `mapstructure:"condition,omitempty"`

	// Environment overlay merged over the run context environment.
	// Overlay values win on key collision.
	Env map[string]string `mapstructure:"env,omitempty"`

	// ContinueOnError opts this step out of fail-fast behavior
	ContinueOnError bool `mapstructure:"continue_on_error,omitempty"`

	// Timeout for the step's command. Zero falls back to the runner default.
	Timeout time.Duration `mapstructure:"timeout,omitempty"`
}

// Argv returns the effective command line for the step. Script-form commands
// are wrapped in the given shell prefix.
func (s *Step) Argv(shell []string) []string {
	if s.Run != "" {
		argv := make([]string, 0, len(shell)+1)
		argv = append(argv, shell...)
		return append(argv, s.Run)
	}
	return s.Command
}

// commandStrings returns every string that may carry variable references,
// for validation purposes.
func (s *Step) commandStrings() []string {
	if s.Run != "" {
		return []string{s.Run}
	}
	return s.Command
}
