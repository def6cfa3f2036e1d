package pipeline

import (
	"os"
	"strings"
)

// EnvironSnapshot captures the process environment as a map
func EnvironSnapshot() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// InferEvent derives a trigger event from conventional CI environment
// variables. These are treated as plain environment content, not as a hosted
// platform API. Returns ok=false when the environment carries no usable
// trigger information.
func InferEvent(env map[string]string) (kind EventKind, ref string, ok bool) {
	name := env["GITHUB_EVENT_NAME"]
	rawRef := env["GITHUB_REF"]

	switch {
	case strings.HasPrefix(rawRef, "refs/tags/"):
		return EventTag, strings.TrimPrefix(rawRef, "refs/tags/"), true
	case strings.HasPrefix(rawRef, "refs/heads/"):
		branch := strings.TrimPrefix(rawRef, "refs/heads/")
		if name == string(EventPullRequest) {
			return EventPullRequest, branch, true
		}
		return EventPush, branch, true
	}

	if name == string(EventPullRequest) {
		if branch := env["GITHUB_HEAD_REF"]; branch != "" {
			return EventPullRequest, branch, true
		}
	}

	return "", "", false
}
