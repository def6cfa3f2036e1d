package pipeline

import (
	"fmt"
	"os"
	"strings"

	commonerrors "github.com/deploymenttheory/go-pipeline-runner/internal/common/errors"
)

// Validate checks a pipeline definition against a run context. It returns
// every violation found rather than stopping at the first, so a caller can
// report a complete picture. A non-empty slice means the run must abort
// before executing any step.
func Validate(def *Definition, rc *RunContext) []error {
	var errs []error

	if def.Name == "" {
		errs = append(errs, fmt.Errorf("%w: pipeline name is required", commonerrors.ErrConfigInvalid))
	}

	if len(def.Steps) == 0 {
		errs = append(errs, commonerrors.ErrEmptyPipeline)
		return errs
	}

	seen := make(map[string]bool, len(def.Steps))
	for i := range def.Steps {
		step := &def.Steps[i]

		if step.Name == "" {
			errs = append(errs, fmt.Errorf("step %d: %w", i+1, commonerrors.ErrMissingStepName))
		} else if seen[step.Name] {
			errs = append(errs, fmt.Errorf("step %d: %w: %q", i+1, commonerrors.ErrDuplicateStepName, step.Name))
		}
		seen[step.Name] = true

		for _, err := range validateStep(step, rc) {
			errs = append(errs, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err))
		}
	}

	return errs
}

func validateStep(step *Step, rc *RunContext) []error {
	var errs []error

	switch {
	case len(step.Command) == 0 && step.Run == "":
		errs = append(errs, commonerrors.ErrMissingCommand)
	case len(step.Command) > 0 && step.Run != "":
		errs = append(errs, fmt.Errorf("%w: command and run are mutually exclusive", commonerrors.ErrInvalidArgument))
	}

	if step.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%w: %s", commonerrors.ErrInvalidTimeout, step.Timeout))
	}

	// Conditions must parse, and every env key they read must exist in the
	// run context. This keeps evaluation total once execution starts.
	if step.Condition != "" {
		expr, err := ParseCondition(step.Condition)
		if err != nil {
			errs = append(errs, err)
		} else {
			for _, key := range EnvRefs(expr) {
				if _, ok := rc.LookupEnv(key); !ok {
					errs = append(errs, fmt.Errorf("%w: condition reads env.%s", commonerrors.ErrUnknownField, key))
				}
			}
		}
	}

	// Overlay values may reference the context environment and secrets.
	for key, value := range step.Env {
		for _, ref := range collectRefs(value) {
			if err := checkRef(ref, rc, nil); err != nil {
				errs = append(errs, fmt.Errorf("%w (env %s)", err, key))
			}
		}
	}

	// Command strings may additionally reference the step's own overlay keys.
	for _, s := range step.commandStrings() {
		for _, ref := range collectRefs(s) {
			if err := checkRef(ref, rc, step.Env); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errs
}

// checkRef verifies a single ${...} reference is resolvable
func checkRef(ref string, rc *RunContext, overlay map[string]string) error {
	if name, ok := strings.CutPrefix(ref, "secrets."); ok {
		if _, ok := rc.LookupSecret(name); !ok {
			return fmt.Errorf("%w: secrets.%s", commonerrors.ErrUnresolvedReference, name)
		}
		return nil
	}
	if _, ok := rc.LookupEnv(ref); ok {
		return nil
	}
	if _, ok := overlay[ref]; ok {
		return nil
	}
	return fmt.Errorf("%w: %s", commonerrors.ErrUnresolvedReference, ref)
}

// collectRefs returns the variable references in a ${...}/$VAR string
func collectRefs(s string) []string {
	var refs []string
	os.Expand(s, func(name string) string {
		if name != "" && name != "$" {
			refs = append(refs, name)
		}
		return ""
	})
	return refs
}

// expandString resolves ${NAME} against env and ${secrets.NAME} against
// secrets. Validation guarantees every reference resolves; an unknown name
// expands to the empty string.
func expandString(s string, env map[string]string, secrets map[string]string) string {
	return os.Expand(s, func(name string) string {
		if name == "$" {
			return "$"
		}
		if rest, ok := strings.CutPrefix(name, "secrets."); ok {
			return secrets[rest]
		}
		return env[name]
	})
}
