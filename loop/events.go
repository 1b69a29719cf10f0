package loop

import (
	"sync"
	"time"
)

// EventKind identifies the type of loop event.
type EventKind string

const (
	EventTaskStart     EventKind = "task_start"
	EventModelCall     EventKind = "model_call"
	EventToolCallStart EventKind = "tool_call_start"
	EventToolCallEnd   EventKind = "tool_call_end"
	EventToolBudget    EventKind = "tool_budget"
	EventFieldChanged  EventKind = "field_changed"
	EventCheckpoint    EventKind = "checkpoint"
	EventGateReport    EventKind = "gate_report"
	EventTaskComplete  EventKind = "task_complete"
	EventTaskFailed    EventKind = "task_failed"
	EventAborted       EventKind = "aborted"
	EventWarning       EventKind = "warning"
)

// Event is a typed notification emitted by the loop.
type Event struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Emitter delivers events to the host application over a buffered channel.
// A full channel drops the event rather than blocking the loop.
type Emitter struct {
	ch     chan Event
	closed bool
	mu     sync.Mutex
}

// NewEmitter creates an Emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Emitter{ch: make(chan Event, bufferSize)}
}

// Emit sends an event. Safe on a nil or closed emitter.
func (e *Emitter) Emit(kind EventKind, data map[string]interface{}) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := Event{Kind: kind, Timestamp: time.Now(), Data: data}
	select {
	case e.ch <- event:
	default:
		// Channel full; drop rather than stall the loop.
	}
}

// Events returns the read-only event channel.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
