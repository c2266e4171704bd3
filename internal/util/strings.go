// Package util provides small shared helpers used across pgtunnel. It is
// intentionally dependency-free (no imports from other internal/* packages)
// so it can serve as a foundation without circular imports.
package util

import "strings"

// DefaultString returns the fallback value if v is empty or consists entirely
// of whitespace; otherwise it returns v unchanged.
func DefaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
