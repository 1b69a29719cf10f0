package shell

import "strings"

// notFoundExitCode is the shell's reserved "command not found" exit status.
const notFoundExitCode = 127

// notFoundPatterns are the stderr shapes shells emit for a missing command,
// matched case-insensitively.
var notFoundPatterns = []string{
	"command not found",
	"unknown command",
	"no such command",
	"not recognized as",
}

// IsNotFound reports whether the result is the reserved not-found condition:
// exit code 127 plus stderr matching one of the fixed patterns. The loop
// records these as capability gaps rather than plain failures.
func IsNotFound(r *Result) bool {
	if r == nil || r.ExitCode != notFoundExitCode {
		return false
	}
	stderr := strings.ToLower(r.Stderr)
	for _, pat := range notFoundPatterns {
		if strings.Contains(stderr, pat) {
			return true
		}
	}
	return false
}

// NotFoundPattern returns the matched not-found pattern, or "" when the
// result is not a not-found condition.
func NotFoundPattern(r *Result) string {
	if r == nil || r.ExitCode != notFoundExitCode {
		return ""
	}
	stderr := strings.ToLower(r.Stderr)
	for _, pat := range notFoundPatterns {
		if strings.Contains(stderr, pat) {
			return pat
		}
	}
	return ""
}
