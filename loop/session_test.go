package loop

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/anvil/lifecycle"
	"github.com/martinemde/anvil/llm"
	"github.com/martinemde/anvil/state"
	"github.com/martinemde/anvil/task"
)

// completeWith returns a gateway step that writes the summary, marks the
// task complete, and stops.
func completeWith(ms *state.MemStore, summary string) func(llm.Request) (*llm.Response, error) {
	return func(llm.Request) (*llm.Response, error) {
		if err := ms.Set(state.FieldSummary, summary); err != nil {
			return nil, err
		}
		if err := ms.Set(state.FieldStatus, state.StatusComplete); err != nil {
			return nil, err
		}
		return stopResp(), nil
	}
}

func newTestSession(t *testing.T, ms *state.MemStore, steps ...func(llm.Request) (*llm.Response, error)) *Session {
	gw := &scriptGateway{t: t, steps: steps}
	orch := NewOrchestrator(Options{
		Store:    ms,
		Gateway:  gw,
		Executor: &fakeExecutor{store: ms},
		Gates:    passingGates(),
		Fsys:     memfs.New(),
		WorkDir:  "/",
		Config:   DefaultConfig(),
	})
	lc := lifecycle.NewManager(ms, nil, nil)
	parser := task.NewParser(nil, nil) // heuristic fallback path
	return NewSession(ms, parser, lc, orch, memfs.New(), "/", nil, nil)
}

func TestSessionFirstMessage(t *testing.T) {
	ms := state.NewMemStore()
	s := newTestSession(t, ms, completeWith(ms, "built the landing page"))

	res := s.HandleMessage(context.Background(), "Build a landing page for a bakery")

	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "built the landing page", res.Summary)

	assert.Equal(t, 1, state.GetInt(ms, state.FieldTaskCounter, 0))
	history, _ := ms.Get(state.FieldTaskHistory)
	assert.Empty(t, history, "no history before the first task")

	origin, _ := ms.Get(state.FieldOrigin)
	assert.Contains(t, origin, "bakery")
	taskRecord, _ := ms.Get(state.FieldTask)
	assert.Contains(t, taskRecord, "Task #1")
	intent, _ := ms.Get(state.FieldIntent)
	assert.Equal(t, "fresh", intent)
}

func TestSessionSecondMessageLogsHistory(t *testing.T) {
	ms := state.NewMemStore()
	s := newTestSession(t, ms,
		completeWith(ms, "built the landing page"),
		completeWith(ms, "added a contact form"),
	)

	require.Equal(t, OutcomeSuccess,
		s.HandleMessage(context.Background(), "Build a landing page").Outcome)
	require.Equal(t, OutcomeSuccess,
		s.HandleMessage(context.Background(), "Now add a contact form").Outcome)

	assert.Equal(t, 2, state.GetInt(ms, state.FieldTaskCounter, 0))
	history, _ := ms.Get(state.FieldTaskHistory)
	assert.Contains(t, history, "# Task History")
	assert.Contains(t, history, "- **Task 1**: built the landing page")
	assert.NotContains(t, history, "contact form",
		"the running task's summary is logged when the next task begins")
}

func TestSessionResetsEphemeralFieldsButKeepsPlan(t *testing.T) {
	ms := state.NewMemStore()
	require.NoError(t, ms.Set(state.FieldPlan, "1. hero 2. menu"))
	require.NoError(t, ms.Set(state.FieldFeedback, "stale feedback"))

	s := newTestSession(t, ms, completeWith(ms, "done"))
	seen := map[string]string{}
	s.orch.gateway = &scriptGateway{t: t, steps: []func(llm.Request) (*llm.Response, error){
		func(req llm.Request) (*llm.Response, error) {
			seen[state.FieldPlan], _ = ms.Get(state.FieldPlan)
			seen[state.FieldFeedback], _ = ms.Get(state.FieldFeedback)
			return completeWith(ms, "done")(req)
		},
	}}

	require.Equal(t, OutcomeSuccess, s.HandleMessage(context.Background(), "tweak colors").Outcome)
	assert.Equal(t, "1. hero 2. menu", seen[state.FieldPlan], "plan survives across tasks")
	assert.Empty(t, seen[state.FieldFeedback], "feedback is reset for a new task")
}

func TestSessionBugfixHeuristic(t *testing.T) {
	ms := state.NewMemStore()
	s := newTestSession(t, ms, completeWith(ms, "fixed"))

	res := s.HandleMessage(context.Background(), "The nav menu is broken on mobile")

	require.Equal(t, OutcomeSuccess, res.Outcome)
	intent, _ := ms.Get(state.FieldIntent)
	assert.Equal(t, "bugfix", intent)
	taskRecord, _ := ms.Get(state.FieldTask)
	assert.Contains(t, taskRecord, "[FIX]")
}

func TestSessionRejectsEmptyMessage(t *testing.T) {
	ms := state.NewMemStore()
	s := newTestSession(t, ms)

	res := s.HandleMessage(context.Background(), "   \n ")
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.Equal(t, 0, state.GetInt(ms, state.FieldTaskCounter, -1),
		"an empty message never becomes a task")
}

func TestSessionProjectPathsSkipInternals(t *testing.T) {
	fsys := memfs.New()
	require.NoError(t, util.WriteFile(fsys, "/index.html", []byte("<html></html>"), 0o644))
	require.NoError(t, util.WriteFile(fsys, "/assets/site.css", []byte("body{}"), 0o644))
	require.NoError(t, util.WriteFile(fsys, "/.git/config", []byte(""), 0o644))
	require.NoError(t, util.WriteFile(fsys, "/.anvil/state/plan", []byte(""), 0o644))

	ms := state.NewMemStore()
	s := newTestSession(t, ms)
	s.fsys = fsys

	paths := s.projectPaths()
	assert.ElementsMatch(t, []string{"index.html", "assets/site.css"}, paths)
}
