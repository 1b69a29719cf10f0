package loop

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// repeatThreshold is how many consecutive repetitions of a command pattern
// trigger an advisory. Patterns of length 1 to maxPatternLen are checked.
const (
	repeatThreshold = 3
	maxPatternLen   = 3
)

// repeatDetector watches the trailing window of executed commands for short
// cycles. Detection is advisory: it produces a warning folded into feedback,
// never a hard stop, since rebuilding after each edit legitimately repeats
// commands.
type repeatDetector struct {
	signatures []string
	commands   []string
}

func commandSignature(command string) string {
	sum := sha256.Sum256([]byte(command))
	return hex.EncodeToString(sum[:8])
}

// Observe records a command and reports a non-empty warning when the
// trailing window is a short cycle repeated at least repeatThreshold times.
func (d *repeatDetector) Observe(command string) string {
	d.signatures = append(d.signatures, commandSignature(command))
	d.commands = append(d.commands, command)

	keep := maxPatternLen * (repeatThreshold + 1)
	if len(d.signatures) > keep {
		d.signatures = d.signatures[len(d.signatures)-keep:]
		d.commands = d.commands[len(d.commands)-keep:]
	}

	for patternLen := 1; patternLen <= maxPatternLen; patternLen++ {
		if d.repeats(patternLen) {
			return fmt.Sprintf(
				"Advisory: the last %d commands repeat the same %d-command pattern (e.g. %q). If this is not converging, try a different approach.",
				patternLen*repeatThreshold, patternLen, d.commands[len(d.commands)-1])
		}
	}
	return ""
}

// repeats reports whether the trailing patternLen*repeatThreshold signatures
// are the same patternLen-long sequence repeated.
func (d *repeatDetector) repeats(patternLen int) bool {
	need := patternLen * repeatThreshold
	if len(d.signatures) < need {
		return false
	}
	tail := d.signatures[len(d.signatures)-need:]
	for i := patternLen; i < need; i++ {
		if tail[i] != tail[i%patternLen] {
			return false
		}
	}
	return true
}
