package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5"
	"go.uber.org/zap"

	"github.com/martinemde/anvil/gate"
	"github.com/martinemde/anvil/llm"
	"github.com/martinemde/anvil/reflection"
	"github.com/martinemde/anvil/shell"
	"github.com/martinemde/anvil/state"
)

// Outcome classifies how a task run ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeAborted Outcome = "aborted"
)

// RunResult is the terminal report of one task run.
type RunResult struct {
	Outcome      Outcome
	Iterations   int
	Summary      string
	Message      string
	FailingGates []string
}

// Config carries the loop's hard caps and toggles.
type Config struct {
	// MaxIterations bounds the whole task; reaching it is a failure.
	MaxIterations int
	// MaxToolCallsPerIteration bounds one batch; exceeding it ends the
	// iteration, it is not an error.
	MaxToolCallsPerIteration int
	// MaxGateFailures is the consecutive completion-rejection cap.
	MaxGateFailures int
	// MinReflectionIterations skips the reflection call for trivial tasks.
	MinReflectionIterations int
	// DetectGaps records environment-gap entries for not-found commands.
	DetectGaps bool
	// RequireSummaryEvidence demands a non-empty summary before an
	// implicit stop (no tool calls, no explicit status) counts as done.
	RequireSummaryEvidence bool
	// StateDir is surfaced to the model so it can write its state files.
	StateDir string
	// Model and Provider are passed through on every request.
	Model    string
	Provider string
}

// DefaultConfig returns the caps used when the host configures nothing.
func DefaultConfig() Config {
	return Config{
		MaxIterations:            50,
		MaxToolCallsPerIteration: 24,
		MaxGateFailures:          3,
		MinReflectionIterations:  2,
		DetectGaps:               true,
		RequireSummaryEvidence:   true,
		StateDir:                 ".anvil/state",
	}
}

// Checkpointer commits whatever changed since the last checkpoint. A clean
// tree must be a no-op, not an error.
type Checkpointer interface {
	Checkpoint(message string) error
}

// Orchestrator runs the bounded iteration loop for one task at a time.
type Orchestrator struct {
	store     state.Store
	gateway   llm.Gateway
	executor  shell.Executor
	gates     *gate.Runner
	fsys      billy.Filesystem
	workDir   string
	gctx      *gate.Context
	check     Checkpointer
	reflector *reflection.Capturer
	emitter   *Emitter
	cfg       Config
	log       *zap.Logger
}

// Options wires an Orchestrator. Gateway, Store, Executor, Gates and Fsys
// are required; the rest are optional.
type Options struct {
	Store     state.Store
	Gateway   llm.Gateway
	Executor  shell.Executor
	Gates     *gate.Runner
	Fsys      billy.Filesystem
	WorkDir   string
	GateCtx   *gate.Context
	Check     Checkpointer
	Reflector *reflection.Capturer
	Emitter   *Emitter
	Config    Config
	Log       *zap.Logger
}

// NewOrchestrator creates an Orchestrator from Options, applying defaults
// for any zero-valued cap.
func NewOrchestrator(opts Options) *Orchestrator {
	cfg := opts.Config
	def := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.MaxToolCallsPerIteration <= 0 {
		cfg.MaxToolCallsPerIteration = def.MaxToolCallsPerIteration
	}
	if cfg.MaxGateFailures <= 0 {
		cfg.MaxGateFailures = def.MaxGateFailures
	}
	if cfg.MinReflectionIterations <= 0 {
		cfg.MinReflectionIterations = def.MinReflectionIterations
	}
	if cfg.StateDir == "" {
		cfg.StateDir = def.StateDir
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		store:     opts.Store,
		gateway:   opts.Gateway,
		executor:  opts.Executor,
		gates:     opts.Gates,
		fsys:      opts.Fsys,
		workDir:   opts.WorkDir,
		gctx:      opts.GateCtx,
		check:     opts.Check,
		reflector: opts.Reflector,
		emitter:   opts.Emitter,
		cfg:       cfg,
		log:       log,
	}
}

// watchedFields are diffed across each iteration for one-shot change events.
var watchedFields = []string{
	state.FieldTask,
	state.FieldIntent,
	state.FieldPlan,
	state.FieldSummary,
	state.FieldFeedback,
	state.FieldStatus,
}

// Run executes the iteration loop for the given task until a completion
// trigger survives the gates, a cap is hit, or the context is cancelled.
// A panic anywhere inside the loop is converted into a failure result; the
// host process never crashes because of a task.
func (o *Orchestrator) Run(ctx context.Context, taskNumber int) (res RunResult) {
	iteration := 0
	defer func() {
		if rec := recover(); rec != nil {
			o.log.Error("loop panic",
				zap.Int("task", taskNumber),
				zap.Int("iteration", iteration),
				zap.Any("panic", rec))
			res = RunResult{
				Outcome:    OutcomeFailure,
				Iterations: iteration,
				Message:    fmt.Sprintf("internal error: %v", rec),
			}
			o.emitter.Emit(EventTaskFailed, map[string]interface{}{
				"task":   taskNumber,
				"reason": res.Message,
			})
		}
	}()

	detector := &repeatDetector{}
	consecutiveGateFailures := 0

	for iteration = 1; iteration <= o.cfg.MaxIterations; iteration++ {
		// Cancellation is honored at the top of each iteration, before
		// any state write for this iteration happens.
		if ctx.Err() != nil {
			return o.aborted(taskNumber, iteration)
		}

		before, err := state.Snapshot(o.store, watchedFields)
		if err != nil {
			return o.failed(taskNumber, iteration, fmt.Sprintf("read state: %v", err), nil)
		}
		if err := state.SetInt(o.store, state.FieldIteration, iteration); err != nil {
			return o.failed(taskNumber, iteration, fmt.Sprintf("write iteration: %v", err), nil)
		}

		o.emitter.Emit(EventModelCall, map[string]interface{}{
			"task":      taskNumber,
			"iteration": iteration,
		})
		resp, err := o.gateway.Chat(ctx, llm.Request{
			Model:    o.cfg.Model,
			Provider: o.cfg.Provider,
			Messages: buildMessages(o.cfg.StateDir, before, iteration, o.cfg.MaxIterations),
			Tools:    toolCatalog(),
		})
		if err != nil {
			var abort *llm.AbortError
			if errors.As(err, &abort) || ctx.Err() != nil {
				return o.aborted(taskNumber, iteration)
			}
			// Transient model failures surface as feedback and burn an
			// iteration; the retry policy inside the gateway already
			// absorbed the recoverable ones.
			o.log.Warn("model call failed", zap.Int("iteration", iteration), zap.Error(err))
			o.setField(state.FieldFeedback, "The previous model call failed: "+err.Error())
			continue
		}

		completed := o.runToolBatch(ctx, taskNumber, iteration, resp.ToolCalls(), detector)

		if o.check != nil {
			msg := fmt.Sprintf("anvil: task %d iteration %d", taskNumber, iteration)
			if err := o.check.Checkpoint(msg); err != nil {
				o.log.Warn("checkpoint failed", zap.Int("iteration", iteration), zap.Error(err))
			} else {
				o.emitter.Emit(EventCheckpoint, map[string]interface{}{
					"task":      taskNumber,
					"iteration": iteration,
				})
			}
		}

		o.emitFieldChanges(before)

		if !completed {
			switch {
			case o.field(state.FieldStatus) == state.StatusComplete:
				completed = true
			case len(resp.ToolCalls()) == 0 && resp.FinishReason == llm.FinishStop:
				// Implicit completion: the model stopped on its own.
				if !o.cfg.RequireSummaryEvidence || o.field(state.FieldSummary) != "" {
					completed = true
				} else {
					o.setField(state.FieldFeedback,
						"You stopped without issuing commands or writing a summary. Either continue working, or write a one-line summary and set status to complete.")
				}
			}
		}

		if !completed {
			continue
		}

		report := o.gates.Run(o.fsys, o.workDir, o.gctx)
		o.emitter.Emit(EventGateReport, map[string]interface{}{
			"task":    taskNumber,
			"pass":    report.Pass(),
			"failing": report.FailingNames(),
		})

		if report.Pass() {
			summary := o.field(state.FieldSummary)
			o.setField(state.FieldStatus, state.StatusComplete)
			o.emitter.Emit(EventTaskComplete, map[string]interface{}{
				"task":       taskNumber,
				"iterations": iteration,
				"summary":    summary,
			})
			if o.reflector != nil && iteration >= o.cfg.MinReflectionIterations {
				if err := o.reflector.Capture(ctx, taskNumber, iteration, summary); err != nil {
					o.log.Warn("reflection capture failed", zap.Error(err))
				}
			}
			return RunResult{Outcome: OutcomeSuccess, Iterations: iteration, Summary: summary}
		}

		consecutiveGateFailures++
		if consecutiveGateFailures >= o.cfg.MaxGateFailures {
			msg := fmt.Sprintf("quality gates rejected completion %d consecutive times", consecutiveGateFailures)
			return o.failed(taskNumber, iteration, msg, report.FailingNames())
		}
		o.setField(state.FieldFeedback, report.Feedback())
		o.setField(state.FieldStatus, state.StatusRunning)
	}

	return o.failed(taskNumber, o.cfg.MaxIterations, "max iterations reached without completion", nil)
}

// runToolBatch executes one iteration's tool calls sequentially, up to the
// per-iteration cap, polling the status field after each call so the model
// can stop mid-batch. Returns whether completion was signalled mid-batch.
func (o *Orchestrator) runToolBatch(ctx context.Context, taskNumber, iteration int, calls []llm.ToolCall, detector *repeatDetector) bool {
	executed := 0
	for _, call := range calls {
		if executed >= o.cfg.MaxToolCallsPerIteration {
			// Budget exhausted ends the batch quietly; the model simply
			// gets another iteration.
			o.emitter.Emit(EventToolBudget, map[string]interface{}{
				"task":      taskNumber,
				"iteration": iteration,
				"skipped":   len(calls) - executed,
			})
			return false
		}
		executed++
		o.runToolCall(ctx, taskNumber, call, detector)
		if o.field(state.FieldStatus) == state.StatusComplete {
			return true
		}
	}
	return false
}

type runCommandArgs struct {
	Command   string `json:"command"`
	Rationale string `json:"rationale"`
}

// runToolCall executes one tool call and records the attempt. Malformed
// arguments and unknown tools produce a failed attempt, not a loop error.
func (o *Orchestrator) runToolCall(ctx context.Context, taskNumber int, call llm.ToolCall, detector *repeatDetector) {
	o.emitter.Emit(EventToolCallStart, map[string]interface{}{
		"call_id": call.ID,
		"tool":    call.Name,
	})

	attempt := CommandAttempt{CallID: call.ID, Timestamp: nowUTC()}

	var args runCommandArgs
	switch {
	case call.Name != runCommandTool:
		attempt.Error = fmt.Sprintf("unknown tool %q", call.Name)
	case json.Unmarshal(call.Arguments, &args) != nil, args.Command == "":
		attempt.Error = "invalid run_command arguments"
	}
	attempt.Command = args.Command
	attempt.Rationale = args.Rationale

	var output string
	if attempt.Error == "" {
		res, err := o.executor.Execute(ctx, args.Command, o.workDir)
		if err != nil {
			attempt.Error = err.Error()
			attempt.ExitCode = -1
		} else {
			attempt.Success = res.Success()
			attempt.ExitCode = res.ExitCode
			output = shell.TruncateOutput(res.Output(), 0, 0)
			if !res.Success() {
				attempt.Error = firstLine(res.Stderr)
			}
			if o.cfg.DetectGaps && shell.IsNotFound(res) {
				gap := NewGapRecord(args.Command, shell.NotFoundPattern(res), taskNumber)
				if err := appendRecord(o.store, state.FieldGaps, gap); err != nil {
					o.log.Warn("gap record failed", zap.Error(err))
				}
			}
			if warn := detector.Observe(args.Command); warn != "" {
				o.emitter.Emit(EventWarning, map[string]interface{}{"warning": warn})
				o.appendFeedback(warn)
			}
		}
	}

	if err := appendRecord(o.store, state.FieldCommandLog, attempt); err != nil {
		o.log.Warn("command log failed", zap.Error(err))
	}

	o.emitter.Emit(EventToolCallEnd, map[string]interface{}{
		"call_id":   call.ID,
		"command":   attempt.Command,
		"success":   attempt.Success,
		"exit_code": attempt.ExitCode,
		"error":     attempt.Error,
		"output":    output,
	})
}

// emitFieldChanges fires one event per watched field whose value changed
// during the iteration.
func (o *Orchestrator) emitFieldChanges(before map[string]string) {
	for _, f := range watchedFields {
		now := o.field(f)
		if now != before[f] {
			o.emitter.Emit(EventFieldChanged, map[string]interface{}{
				"field": f,
				"value": now,
			})
		}
	}
}

func (o *Orchestrator) aborted(taskNumber, iteration int) RunResult {
	o.emitter.Emit(EventAborted, map[string]interface{}{
		"task":      taskNumber,
		"iteration": iteration,
	})
	return RunResult{Outcome: OutcomeAborted, Iterations: iteration, Message: "cancelled"}
}

func (o *Orchestrator) failed(taskNumber, iteration int, msg string, failing []string) RunResult {
	o.emitter.Emit(EventTaskFailed, map[string]interface{}{
		"task":   taskNumber,
		"reason": msg,
	})
	return RunResult{
		Outcome:      OutcomeFailure,
		Iterations:   iteration,
		Message:      msg,
		FailingGates: failing,
	}
}

// field reads a state field, treating read errors as empty. Reads feed
// prompts and triggers, where a transient miss is safer than a crash.
func (o *Orchestrator) field(name string) string {
	v, err := o.store.Get(name)
	if err != nil {
		o.log.Warn("state read failed", zap.String("field", name), zap.Error(err))
		return ""
	}
	return v
}

func (o *Orchestrator) setField(name, value string) {
	if err := o.store.Set(name, value); err != nil {
		o.log.Warn("state write failed", zap.String("field", name), zap.Error(err))
	}
}

func (o *Orchestrator) appendFeedback(line string) {
	current := o.field(state.FieldFeedback)
	if current == "" {
		o.setField(state.FieldFeedback, line)
		return
	}
	if !containsLine(current, line) {
		o.setField(state.FieldFeedback, current+"\n"+line)
	}
}
