package pipeline

import (
	"fmt"

	commonerrors "github.com/deploymenttheory/go-pipeline-runner/internal/common/errors"
)

// EventKind identifies what triggered a pipeline run
type EventKind string

const (
	// EventPullRequest is a proposed-change trigger; Ref is the source branch
	EventPullRequest EventKind = "pull_request"

	// EventPush is a push to a branch; Ref is the branch name
	EventPush EventKind = "push"

	// EventTag is a push of a tag; Ref is the tag name
	EventTag EventKind = "tag"
)

// ParseEventKind validates an event kind string
func ParseEventKind(s string) (EventKind, error) {
	switch EventKind(s) {
	case EventPullRequest, EventPush, EventTag:
		return EventKind(s), nil
	}
	return "", fmt.Errorf("%w: %q", commonerrors.ErrUnknownEventKind, s)
}

// TriggerEvent describes the event a run was invoked for, along with the
// environment and secrets available to it
type TriggerEvent struct {
	Kind    EventKind
	Ref     string
	Env     map[string]string
	Secrets map[string]string
}

// RunContext is an immutable snapshot of the triggering event, the environment
// and the secret values for one pipeline invocation. It is created once per
// run and never mutated; concurrent runs each own an independent context.
type RunContext struct {
	kind    EventKind
	ref     string
	env     map[string]string
	secrets map[string]string
}

// NewRunContext constructs a context from a trigger event. Maps are copied so
// later mutation of the event cannot leak into a running pipeline.
func NewRunContext(event TriggerEvent) (*RunContext, error) {
	kind, err := ParseEventKind(string(event.Kind))
	if err != nil {
		return nil, err
	}
	if event.Ref == "" {
		return nil, fmt.Errorf("%w: event kind %s", commonerrors.ErrMissingRef, kind)
	}

	env := make(map[string]string, len(event.Env))
	for k, val := range event.Env {
		env[k] = val
	}
	secrets := make(map[string]string, len(event.Secrets))
	for k, val := range event.Secrets {
		secrets[k] = val
	}

	return &RunContext{
		kind:    kind,
		ref:     event.Ref,
		env:     env,
		secrets: secrets,
	}, nil
}

// Event returns the trigger event kind
func (rc *RunContext) Event() EventKind {
	return rc.kind
}

// Ref returns the branch or tag name the run was triggered for
func (rc *RunContext) Ref() string {
	return rc.ref
}

// Branch returns the branch name, or "" for tag events
func (rc *RunContext) Branch() string {
	if rc.kind == EventTag {
		return ""
	}
	return rc.ref
}

// Tag returns the tag name, or "" for branch events
func (rc *RunContext) Tag() string {
	if rc.kind != EventTag {
		return ""
	}
	return rc.ref
}

// LookupEnv returns an environment value and whether it is present
func (rc *RunContext) LookupEnv(key string) (string, bool) {
	val, ok := rc.env[key]
	return val, ok
}

// LookupSecret returns a secret value and whether it is present
func (rc *RunContext) LookupSecret(key string) (string, bool) {
	val, ok := rc.secrets[key]
	return val, ok
}

// EnvSnapshot returns a copy of the context environment, safe to overlay
func (rc *RunContext) EnvSnapshot() map[string]string {
	env := make(map[string]string, len(rc.env))
	for k, val := range rc.env {
		env[k] = val
	}
	return env
}

// SecretValues returns the secret values for redaction setup. Callers must
// not log or persist these.
func (rc *RunContext) SecretValues() []string {
	values := make([]string, 0, len(rc.secrets))
	for _, val := range rc.secrets {
		values = append(values, val)
	}
	return values
}
