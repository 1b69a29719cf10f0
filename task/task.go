// Package task converts a free-text user message into a typed, bounded task
// record before the loop ever sees it.
//
// The primary path is one model call with a fixed classification prompt; the
// decoded payload is never trusted literally and is validated field by field.
// Any failure of the primary path falls back to a keyword heuristic, so the
// loop always receives a well-formed task.
package task

import "strings"

// Type classifies what kind of work a message asks for.
type Type string

const (
	TypeFresh    Type = "fresh"
	TypeMutation Type = "mutation"
	TypeBugfix   Type = "bugfix"
)

// Marker tags a single requirement.
type Marker string

const (
	MarkerAdd    Marker = "ADD"
	MarkerModify Marker = "MODIFY"
	MarkerFix    Marker = "FIX"
	MarkerRemove Marker = "REMOVE"
)

// titleMaxLen bounds rendered titles.
const titleMaxLen = 80

// Requirement is one unit of requested work.
type Requirement struct {
	Marker      Marker `json:"marker"`
	Description string `json:"description"`
}

// Scope constrains what the task may touch.
type Scope struct {
	Preserve      []string `json:"preserve"`
	AffectedFiles []string `json:"affectedFiles"`
}

// Structured is the validated task record. Requirements is always non-empty
// and every marker is one of the four enum values.
type Structured struct {
	Type         Type          `json:"type"`
	Title        string        `json:"title"`
	TaskNumber   int           `json:"taskNumber"`
	PreviousTag  string        `json:"previousTag,omitempty"`
	Requirements []Requirement `json:"requirements"`
	Scope        Scope         `json:"scope"`
	RawMessage   string        `json:"rawMessage"`
}

// bugfixKeywords trigger the bugfix classification in the fallback path.
var bugfixKeywords = []string{
	"fix", "bug", "broken", "crash", "error", "wrong", "doesn't work", "not working",
}

// looksLikeBugfix reports whether the message matches the fixed bugfix
// keyword set.
func looksLikeBugfix(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range bugfixKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// validType reports whether t is one of the three task types.
func validType(t Type) bool {
	return t == TypeFresh || t == TypeMutation || t == TypeBugfix
}

// validMarker reports whether m is one of the four requirement markers.
func validMarker(m Marker) bool {
	return m == MarkerAdd || m == MarkerModify || m == MarkerFix || m == MarkerRemove
}

// truncateTitle caps s at the title limit, appending an ellipsis when the
// original was longer. The result never exceeds titleMaxLen.
func truncateTitle(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= titleMaxLen {
		return s
	}
	return s[:titleMaxLen-3] + "..."
}
