package loop

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martinemde/anvil/lifecycle"
	"github.com/martinemde/anvil/state"
	"github.com/martinemde/anvil/task"
)

// Session handles one user message at a time: lifecycle sequencing, task
// parsing, state reset, then one Orchestrator run. Sessions are not safe
// for concurrent HandleMessage calls.
type Session struct {
	id        string
	store     state.Store
	parser    *task.Parser
	lifecycle *lifecycle.Manager
	orch      *Orchestrator
	fsys      billy.Filesystem
	workDir   string
	emitter   *Emitter
	log       *zap.Logger
}

// NewSession wires a Session around an Orchestrator.
func NewSession(store state.Store, parser *task.Parser, lc *lifecycle.Manager, orch *Orchestrator, fsys billy.Filesystem, workDir string, emitter *Emitter, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		id:        uuid.New().String(),
		store:     store,
		parser:    parser,
		lifecycle: lc,
		orch:      orch,
		fsys:      fsys,
		workDir:   workDir,
		emitter:   emitter,
		log:       log,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// HandleMessage runs one task for the given user message and returns its
// terminal result.
func (s *Session) HandleMessage(ctx context.Context, message string) RunResult {
	message = strings.TrimSpace(message)
	if message == "" {
		return RunResult{Outcome: OutcomeFailure, Message: "empty message"}
	}

	hasPlan := s.fieldNonEmpty(state.FieldPlan)
	previousSummary := ""
	if s.lifecycle.ReadCounter() > 0 {
		previousSummary = s.lifecycle.PreviousSummary()
	}

	taskNum, previousTag, err := s.lifecycle.BeginTask()
	if err != nil {
		return RunResult{Outcome: OutcomeFailure, Message: fmt.Sprintf("begin task: %v", err)}
	}

	st := s.parser.Parse(ctx, task.ParseInput{
		Message:         message,
		HasPlan:         hasPlan,
		PreviousSummary: previousSummary,
		ProjectPaths:    s.projectPaths(),
		TaskNumber:      taskNum,
		PreviousTag:     previousTag,
	})

	if err := s.resetForTask(st, message); err != nil {
		return RunResult{Outcome: OutcomeFailure, Message: fmt.Sprintf("reset state: %v", err)}
	}

	s.emitter.Emit(EventTaskStart, map[string]interface{}{
		"session": s.id,
		"task":    taskNum,
		"type":    string(st.Type),
		"title":   st.Title,
	})
	s.log.Info("task start",
		zap.String("session", s.id),
		zap.Int("task", taskNum),
		zap.String("type", string(st.Type)),
		zap.String("title", st.Title))

	res := s.orch.Run(ctx, taskNum)

	if res.Outcome == OutcomeSuccess {
		s.lifecycle.FinishTask(taskNum)
	}
	s.log.Info("task end",
		zap.Int("task", taskNum),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("iterations", res.Iterations))
	return res
}

// resetForTask clears the ephemeral fields and seeds the new task record.
// Origin is append-only and plan is preserved across tasks.
func (s *Session) resetForTask(st task.Structured, message string) error {
	for _, f := range state.EphemeralFields() {
		if err := s.store.Set(f, ""); err != nil {
			return err
		}
	}
	if err := state.AppendLine(s.store, state.FieldOrigin, message); err != nil {
		return err
	}
	if err := s.store.Set(state.FieldTask, st.Render()); err != nil {
		return err
	}
	if err := s.store.Set(state.FieldIntent, string(st.Type)); err != nil {
		return err
	}
	if err := s.store.Set(state.FieldStatus, state.StatusRunning); err != nil {
		return err
	}
	return state.SetInt(s.store, state.FieldIteration, 0)
}

func (s *Session) fieldNonEmpty(field string) bool {
	v, err := s.store.Get(field)
	return err == nil && strings.TrimSpace(v) != ""
}

// projectPaths lists the project's files for the classifier, skipping
// version control and state internals. Best effort; an unreadable tree
// just yields fewer hints.
func (s *Session) projectPaths() []string {
	if s.fsys == nil {
		return nil
	}
	var paths []string
	s.walk(s.workDir, "", &paths)
	return paths
}

func (s *Session) walk(dir, rel string, paths *[]string) {
	if len(*paths) >= 200 {
		return
	}
	entries, err := s.fsys.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if name == ".git" || name == ".anvil" {
			continue
		}
		full := path.Join(dir, name)
		relName := path.Join(rel, name)
		if e.IsDir() {
			s.walk(full, relName, paths)
			continue
		}
		if e.Mode()&os.ModeType == 0 {
			*paths = append(*paths, relName)
		}
	}
}
