// Package version compares dotted application version strings.
//
// Versions are compared on their first three numeric segments only. Each segment
// contributes the integer value of its leading digits, so pre-release and build
// suffixes inside a segment are truncated rather than rejected: "1.0.22-beta.1"
// compares equal to "1.0.22".
package version

import (
	"strconv"
	"strings"
)

// Normalize removes surrounding whitespace and a leading 'v' prefix.
func Normalize(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "v") || strings.HasPrefix(v, "V") {
		v = v[1:]
	}
	return v
}

// Parse splits a version string into [major, minor, patch].
// Missing or non-numeric segments parse as 0.
func Parse(v string) [3]int {
	var parts [3]int
	segments := strings.Split(Normalize(v), ".")
	for i := 0; i < 3 && i < len(segments); i++ {
		parts[i] = leadingInt(segments[i])
	}
	return parts
}

// leadingInt returns the value of the leading ASCII digits of s, or 0.
func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		// Overflowing segments are not meaningful versions.
		return 0
	}
	return n
}

// Compare returns -1 if a < b, 0 if a == b and 1 if a > b.
func Compare(a, b string) int {
	pa, pb := Parse(a), Parse(b)
	for i := 0; i < 3; i++ {
		if pa[i] < pb[i] {
			return -1
		}
		if pa[i] > pb[i] {
			return 1
		}
	}
	return 0
}

// IsNewer reports whether candidate is newer than current.
// A "dev" or empty current version is older than any release.
func IsNewer(candidate, current string) bool {
	current = Normalize(current)
	candidate = Normalize(candidate)
	if current == "dev" || current == "" {
		return candidate != "dev" && candidate != ""
	}
	if candidate == "dev" || candidate == "" {
		return false
	}
	return Compare(candidate, current) > 0
}

// AtLeast reports whether v is greater than or equal to min.
// An empty min is always satisfied.
func AtLeast(v, min string) bool {
	if strings.TrimSpace(min) == "" {
		return true
	}
	if Normalize(v) == "dev" {
		return true
	}
	return Compare(v, min) >= 0
}
