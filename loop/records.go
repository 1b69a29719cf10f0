package loop

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/martinemde/anvil/state"
)

// CommandAttempt is one executed tool call, persisted as a JSON line in the
// command log field.
type CommandAttempt struct {
	CallID    string    `json:"call_id,omitempty"`
	Command   string    `json:"command"`
	Rationale string    `json:"rationale,omitempty"`
	Success   bool      `json:"success"`
	ExitCode  int       `json:"exit_code"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// GapRecord marks a command the environment could not satisfy: a structured
// signal for harness improvement rather than a task failure.
type GapRecord struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	Pattern    string    `json:"pattern"`
	TaskNumber int       `json:"task_number"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewGapRecord builds a GapRecord with a fresh id and current timestamp.
func NewGapRecord(command, pattern string, taskNumber int) GapRecord {
	return GapRecord{
		ID:         uuid.New().String(),
		Command:    command,
		Pattern:    pattern,
		TaskNumber: taskNumber,
		Timestamp:  time.Now().UTC(),
	}
}

// appendRecord marshals v and appends it as one line to the given field.
// Record-keeping must never sink a task, so failures are returned for
// logging only.
func appendRecord(s state.Store, field string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return state.AppendLine(s, field, string(raw))
}
