// Package utils holds small parsing helpers shared by the HTTP layer.
package utils

import "strconv"

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

// ClampedInt parses s like AtoiDefault and bounds the result to [min, max].
func ClampedInt(s string, def, min, max int) int {
	n := AtoiDefault(s, def)
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// ParseID parses a positive decimal row id. Zero, negatives, signs and
// values wider than 32 bits are rejected.
func ParseID(s string) (uint, bool) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
