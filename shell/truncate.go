package shell

import (
	"fmt"
	"strings"
)

// Default caps applied to tool output before it is logged or echoed into
// the iteration transcript.
const (
	DefaultMaxOutputChars = 30000
	DefaultMaxOutputLines = 256
)

// TruncateOutput caps output by characters (head+tail split around an
// elision marker) and then by lines. Full output stays available to the
// caller; this bounds only what flows onward.
func TruncateOutput(output string, maxChars, maxLines int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxOutputChars
	}
	if maxLines <= 0 {
		maxLines = DefaultMaxOutputLines
	}

	if len(output) > maxChars {
		half := maxChars / 2
		removed := len(output) - maxChars
		output = output[:half] +
			fmt.Sprintf("\n[... %d characters truncated ...]\n", removed) +
			output[len(output)-half:]
	}

	lines := strings.Split(output, "\n")
	if len(lines) > maxLines {
		head := maxLines / 2
		tail := maxLines - head
		omitted := len(lines) - head - tail
		output = strings.Join(lines[:head], "\n") +
			fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
			strings.Join(lines[len(lines)-tail:], "\n")
	}

	return output
}
