package capture

import (
	"bytes"
	"sort"
)

// RedactedPlaceholder replaces secret values in persisted output
const RedactedPlaceholder = "***"

// Redactor removes known secret values from captured output before it is
// persisted or returned. Values are replaced longest-first so that a secret
// which contains another secret as a substring is masked whole.
type Redactor struct {
	secrets [][]byte
}

// NewRedactor creates a Redactor for the given secret values. Empty values
// are ignored since replacing them would corrupt the output.
func NewRedactor(values []string) *Redactor {
	r := &Redactor{}
	for _, v := range values {
		if v == "" {
			continue
		}
		r.secrets = append(r.secrets, []byte(v))
	}
	sort.Slice(r.secrets, func(i, j int) bool {
		return len(r.secrets[i]) > len(r.secrets[j])
	})
	return r
}

// Redact returns a copy of data with every secret value masked
func (r *Redactor) Redact(data []byte) []byte {
	if r == nil || len(r.secrets) == 0 {
		return data
	}

	out := data
	for _, secret := range r.secrets {
		out = bytes.ReplaceAll(out, secret, []byte(RedactedPlaceholder))
	}
	return out
}

// RedactString is a convenience wrapper for log-safe strings
func (r *Redactor) RedactString(s string) string {
	return string(r.Redact([]byte(s)))
}
