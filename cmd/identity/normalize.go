package identity

import "strings"

// NormalizeEmail is the case-folded form stored in email_norm.
// Only trim + lower-case; no provider-specific rewriting (dots, plus tags).
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
