// Package loop implements the bounded iteration state machine that drives a
// language model through cycles of read state, propose actions, execute
// actions, evaluate completion, and checkpoint.
//
// The filesystem-backed state store is the only memory between iterations:
// every iteration reads the current state fields fresh and never resends an
// accumulating transcript, so cost and behavior do not drift with iteration
// count.
//
// # Architecture
//
//   - Orchestrator: the per-task iteration loop. It composes the state
//     store, model gateway, tool executor, quality-gate runner and
//     checkpointer, and enforces the three hard caps (max iterations, tool
//     calls per iteration, consecutive gate failures).
//   - Session: the per-message wrapper. It runs the task parser and the
//     lifecycle sequencing (history, counter, pre/post snapshots) around
//     one Orchestrator run.
//   - Emitter: a typed, buffered event stream for host integration. Events
//     are dropped rather than ever blocking the loop.
//
// Completion has three triggers, checked in priority order: the status
// field turning "complete" mid tool batch, the status field at end of
// batch, and the model stopping without tool calls. Every trigger funnels
// into the same quality-gate evaluation; gates decide, not the model.
package loop
