// Package utils provides small helpers for parsing query parameters. They are
// independent of domain or business logic.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault converts s to an int, returning def when s is empty or not a
// valid integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Clamp bounds n to [lo, hi].
func Clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// BoundedInt parses a query value with a default and clamps it to [lo, hi].
// Surrounding whitespace is ignored.
//
//	utils.BoundedInt("500", 20, 1, 100) // 100
//	utils.BoundedInt("", 20, 1, 100)    // 20
func BoundedInt(s string, def, lo, hi int) int {
	return Clamp(AtoiDefault(strings.TrimSpace(s), def), lo, hi)
}
