package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "github.com/deploymenttheory/go-pipeline-runner/internal/common/errors"
)

func TestParseEventKind(t *testing.T) {
	for _, valid := range []string{"pull_request", "push", "tag"} {
		kind, err := ParseEventKind(valid)
		require.NoError(t, err)
		assert.Equal(t, EventKind(valid), kind)
	}

	_, err := ParseEventKind("schedule")
	require.Error(t, err)
	assert.ErrorIs(t, err, commonerrors.ErrUnknownEventKind)

	_, err = ParseEventKind("")
	assert.ErrorIs(t, err, commonerrors.ErrUnknownEventKind)
}

func TestNewRunContextRequiresRef(t *testing.T) {
	_, err := NewRunContext(TriggerEvent{Kind: EventPush})
	require.Error(t, err)
	assert.ErrorIs(t, err, commonerrors.ErrMissingRef)
}

func TestNewRunContextRejectsUnknownKind(t *testing.T) {
	_, err := NewRunContext(TriggerEvent{Kind: "workflow_dispatch", Ref: "main"})
	assert.ErrorIs(t, err, commonerrors.ErrUnknownEventKind)
}

func TestRunContextBranchAndTag(t *testing.T) {
	push, err := NewRunContext(TriggerEvent{Kind: EventPush, Ref: "develop"})
	require.NoError(t, err)
	assert.Equal(t, "develop", push.Branch())
	assert.Equal(t, "", push.Tag())
	assert.Equal(t, "develop", push.Ref())

	pr, err := NewRunContext(TriggerEvent{Kind: EventPullRequest, Ref: "feature-x"})
	require.NoError(t, err)
	assert.Equal(t, "feature-x", pr.Branch())
	assert.Equal(t, "", pr.Tag())

	tag, err := NewRunContext(TriggerEvent{Kind: EventTag, Ref: "v2.0.0"})
	require.NoError(t, err)
	assert.Equal(t, "", tag.Branch())
	assert.Equal(t, "v2.0.0", tag.Tag())
}

func TestRunContextCopiesEventMaps(t *testing.T) {
	env := map[string]string{"CI": "true"}
	secrets := map[string]string{"TOKEN": "hunter2"}

	rc, err := NewRunContext(TriggerEvent{
		Kind:    EventPush,
		Ref:     "main",
		Env:     env,
		Secrets: secrets,
	})
	require.NoError(t, err)

	// Mutating the source maps after construction must not be visible.
	env["CI"] = "false"
	secrets["TOKEN"] = "changed"

	val, ok := rc.LookupEnv("CI")
	require.True(t, ok)
	assert.Equal(t, "true", val)

	val, ok = rc.LookupSecret("TOKEN")
	require.True(t, ok)
	assert.Equal(t, "hunter2", val)
}

func TestRunContextEnvSnapshotIsACopy(t *testing.T) {
	rc, err := NewRunContext(TriggerEvent{
		Kind: EventPush,
		Ref:  "main",
		Env:  map[string]string{"PATH": "/usr/bin"},
	})
	require.NoError(t, err)

	snap := rc.EnvSnapshot()
	snap["PATH"] = "/tmp"

	val, _ := rc.LookupEnv("PATH")
	assert.Equal(t, "/usr/bin", val)
}

func TestRunContextSecretValues(t *testing.T) {
	rc, err := NewRunContext(TriggerEvent{
		Kind:    EventPush,
		Ref:     "main",
		Secrets: map[string]string{"A": "alpha", "B": "beta"},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"alpha", "beta"}, rc.SecretValues())
}

func TestInferEvent(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		wantKind EventKind
		wantRef  string
		wantOK   bool
	}{
		{
			name:     "branch push",
			env:      map[string]string{"GITHUB_EVENT_NAME": "push", "GITHUB_REF": "refs/heads/main"},
			wantKind: EventPush,
			wantRef:  "main",
			wantOK:   true,
		},
		{
			name:     "tag push",
			env:      map[string]string{"GITHUB_EVENT_NAME": "push", "GITHUB_REF": "refs/tags/v1.2.3"},
			wantKind: EventTag,
			wantRef:  "v1.2.3",
			wantOK:   true,
		},
		{
			name:     "pull request with head ref",
			env:      map[string]string{"GITHUB_EVENT_NAME": "pull_request", "GITHUB_HEAD_REF": "feature-x"},
			wantKind: EventPullRequest,
			wantRef:  "feature-x",
			wantOK:   true,
		},
		{
			name:   "nothing usable",
			env:    map[string]string{"HOME": "/root"},
			wantOK: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kind, ref, ok := InferEvent(tc.env)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantKind, kind)
				assert.Equal(t, tc.wantRef, ref)
			}
		})
	}
}
