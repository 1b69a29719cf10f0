// Package state implements the file-backed key-value store that serves as the
// only memory between loop iterations.
//
// Each field is a named plain-text value. The orchestrator reads every field
// fresh at the start of an iteration and never carries a transcript across
// iterations, so the store is the whole of the agent's durable state. The
// Store interface keeps the contract injectable: FileStore is the production
// implementation, MemStore backs tests.
package state

import (
	"fmt"
	"strconv"
	"strings"
)

// Well-known task state fields.
const (
	FieldTask      = "task"
	FieldOrigin    = "origin"
	FieldIntent    = "intent"
	FieldPlan      = "plan"
	FieldSummary   = "summary"
	FieldFeedback  = "feedback"
	FieldIteration = "iteration"
	FieldStatus    = "status"
)

// Lifecycle and audit fields.
const (
	FieldTaskCounter = "task_counter"
	FieldTaskHistory = "task_history"
	FieldCommandLog  = "commands"
	FieldGaps        = "gaps"
	FieldReflections = "reflections"
)

// Status values the loop recognizes in FieldStatus.
const (
	StatusRunning  = "running"
	StatusWaiting  = "waiting"
	StatusComplete = "complete"
)

// Store is the minimal persistence contract between iterations.
//
// Get returns the trimmed value, or "" when the field has never been written.
// Set replaces the value. Append adds to the end without reading first.
type Store interface {
	Get(field string) (string, error)
	Set(field, value string) error
	Append(field, value string) error
}

// GetInt reads a decimal integer field, returning def when the field is
// missing or unparsable. Counter-style fields must never fail a task just
// because a file is corrupt.
func GetInt(s Store, field string, def int) int {
	raw, err := s.Get(field)
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return n
}

// SetInt writes a decimal integer field.
func SetInt(s Store, field string, n int) error {
	return s.Set(field, strconv.Itoa(n))
}

// AppendLine appends value followed by a newline.
func AppendLine(s Store, field, value string) error {
	return s.Append(field, value+"\n")
}

// EphemeralFields returns the task fields that are reset when a new task
// begins. FieldOrigin and FieldPlan are deliberately absent: origin is
// append-only, plan survives across tasks.
func EphemeralFields() []string {
	return []string{FieldTask, FieldIntent, FieldSummary, FieldFeedback, FieldIteration, FieldStatus}
}

// Snapshot reads the named fields into a map. Used for field-change
// detection at iteration boundaries.
func Snapshot(s Store, fields []string) (map[string]string, error) {
	snap := make(map[string]string, len(fields))
	for _, f := range fields {
		v, err := s.Get(f)
		if err != nil {
			return nil, fmt.Errorf("snapshot field %s: %w", f, err)
		}
		snap[f] = v
	}
	return snap, nil
}
