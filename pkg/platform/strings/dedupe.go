// Package strings holds the small list-normalization helpers shared by
// request DTOs.
package strings

import "strings"

// DedupeAndTrim normalizes a user-supplied label list, such as the entity
// types of a reference: each element is whitespace-trimmed, empties are
// dropped, and later duplicates of an earlier element are removed. First
// occurrence order is preserved and case is significant.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
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
