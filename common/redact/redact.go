// Package redact keeps bot credentials out of log output.
//
// Access tokens for Matrix and Discord are carried as Secret values. A Secret
// prints as [REDACTED] through fmt and slog, so configuration structs can be
// logged whole at startup.
package redact

import (
	"log/slog"
	"strings"
)

const placeholder = "[REDACTED]"

// Secret is a string that never prints its value.
type Secret string

// Reveal returns the underlying value. Call it only where the value is sent
// to the service that needs it.
func (s Secret) Reveal() string { return string(s) }

// IsZero reports whether the secret is unset.
func (s Secret) IsZero() bool { return s == "" }

// String implements fmt.Stringer.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return placeholder
}

// GoString keeps %#v from leaking the value.
func (s Secret) GoString() string { return s.String() }

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value { return slog.StringValue(s.String()) }

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped to avoid
// spurious redaction of common substrings.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}
