// Package normalize provides helper functions for consistent string normalization
// across the application. Use these helpers instead of scattered strings.ToLower
// and strings.TrimSpace calls to ensure consistent behavior.
package normalize

import "strings"

// Email normalizes an email address by trimming whitespace and converting to lowercase.
// This is the canonical way to normalize emails before storage or comparison.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Issuer normalizes an issuer identifier by trimming whitespace.
// Issuers are opaque provider-supplied values and are otherwise stored verbatim;
// they are never case-folded.
func Issuer(s string) string {
	return strings.TrimSpace(s)
}

// Assertion normalizes a raw identity assertion by trimming whitespace and any
// "Bearer " prefix carried over from an Authorization header.
func Assertion(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 7 && strings.EqualFold(s[:7], "Bearer ") {
		s = strings.TrimSpace(s[7:])
	}
	return s
}
