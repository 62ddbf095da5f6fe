package util

import "fmt"

// DefaultLogMaxLen is the default maximum length for truncated log output (1KB)
const DefaultLogMaxLen = 1024

// TruncateLog truncates long strings for verbose logging.
// This helps control log file growth while maintaining diagnostics capability.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// MaskToken renders a credential safe for logs: first and last four
// characters with the middle elided. Short values are fully masked.
func MaskToken(t string) string {
	if len(t) <= 12 {
		return "****"
	}
	return t[:4] + "..." + t[len(t)-4:]
}
