package task

import (
	"fmt"
	"strings"
)

// Render produces the fixed text form of the task. The loop treats this
// rendered text as read-only ground truth for the whole task, so the layout
// is stable: title heading, metadata line, requirement bullets, optional
// scope section, and the raw message quoted verbatim.
func (t Structured) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", t.Title)
	fmt.Fprintf(&b, "Type: %s | Task #%d\n", t.Type, t.TaskNumber)
	if t.PreviousTag != "" {
		fmt.Fprintf(&b, "Previous snapshot: %s\n", t.PreviousTag)
	}
	b.WriteString("\n## Requirements\n")
	for _, r := range t.Requirements {
		fmt.Fprintf(&b, "- [%s] %s\n", r.Marker, r.Description)
	}

	if len(t.Scope.Preserve) > 0 || len(t.Scope.AffectedFiles) > 0 {
		b.WriteString("\n## Scope\n")
		for _, p := range t.Scope.Preserve {
			fmt.Fprintf(&b, "- PRESERVE: %s\n", p)
		}
		for _, a := range t.Scope.AffectedFiles {
			fmt.Fprintf(&b, "- AFFECTED: %s\n", a)
		}
	}

	b.WriteString("\n## Original request\n")
	for _, line := range strings.Split(strings.TrimRight(t.RawMessage, "\n"), "\n") {
		fmt.Fprintf(&b, "> %s\n", line)
	}

	return b.String()
}
