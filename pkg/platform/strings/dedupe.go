// Package strings provides string slice helpers.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each element and drops empty values and repeats, keeping the
// first occurrence.
//
//	DedupeAndTrim([]string{" 42 ", "7", "42", ""}) // []string{"42", "7"}
func DedupeAndTrim(values []string) []string {
	if values == nil {
		return nil
	}
	return Dedupe(TrimAll(values))
}

// TrimAll trims whitespace from every element and drops the ones left empty.
func TrimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Dedupe removes repeated values, keeping the first occurrence.
func Dedupe[T comparable](values []T) []T {
	seen := make(map[T]struct{}, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
