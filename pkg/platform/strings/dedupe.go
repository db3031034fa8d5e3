// Package strings holds small helpers for cleaning user-supplied lists.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each value and drops blanks and repeats, keeping the
// first occurrence in order.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// DedupeAndTrimLower is DedupeAndTrim with case folding. Hex account
// addresses are compared this way since checksum casing is not identity.
func DedupeAndTrimLower(values []string) []string {
	return dedupe(values, func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	})
}

func dedupe(values []string, normalize func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = normalize(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
