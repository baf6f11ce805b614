// Package utils holds small parsing helpers shared by the query compiler and
// the HTTP handlers. Nothing here knows about the marketplace domain.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ParseID parses a positive decimal identifier such as a :id path segment.
// Signs, blanks, zero and values beyond 32 bits report ok=false.
func ParseID(s string) (uint, bool) {
	if s == "" || strings.ContainsAny(s, "+-") {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
