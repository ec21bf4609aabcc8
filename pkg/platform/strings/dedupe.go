// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
//	// Returns: []string{"foo", "bar"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	trimmed := make([]string, 0, len(values))
	for _, v := range values {
		trimmed = append(trimmed, strings.TrimSpace(v))
	}
	return DedupeBy(trimmed, identity)
}

// DedupeAndTrimUpper is like DedupeAndTrim but also uppercases each element.
// Used for airport and carrier code lists.
//
// Example:
//
//	DedupeAndTrimUpper([]string{" tpe", "TSA", "Tpe"})
//	// Returns: []string{"TPE", "TSA"}
func DedupeAndTrimUpper(values []string) []string {
	if len(values) == 0 {
		return values
	}
	upper := make([]string, 0, len(values))
	for _, v := range values {
		upper = append(upper, strings.ToUpper(v))
	}
	return DedupeAndTrim(upper)
}

// DedupeBy keeps the first element for each distinct key(v) and drops
// elements whose key is empty. Kept elements are returned unchanged.
func DedupeBy(values []string, key func(string) string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		k := key(v)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			result = append(result, v)
		}
	}

	return result
}

func identity(s string) string { return s }
