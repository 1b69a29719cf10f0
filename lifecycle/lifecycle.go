// Package lifecycle maintains the cross-task bookkeeping around the loop:
// a monotonic task counter, an append-only task history log, and the paired
// version-control snapshots that bound every task.
package lifecycle

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/martinemde/anvil/state"
	"github.com/martinemde/anvil/vcs"
)

// NoSummary is returned when the previous task left no summary behind.
const NoSummary = "(no summary)"

// historyHeader opens the task history file on first write.
const historyHeader = "# Task History\n\nOne line per completed task.\n\n"

// summaryMaxLen bounds the first-line excerpt kept in history.
const summaryMaxLen = 100

// Snapshot records one task-boundary tag.
type Snapshot struct {
	Tag       string
	Hash      string
	Committed bool
}

// Manager owns the task counter, history log and boundary snapshots.
// Snapshot failures are logged and reported as nil results, never as errors:
// bookkeeping must not block task progress.
type Manager struct {
	store state.Store
	repo  *vcs.Repo
	log   *zap.Logger
}

// NewManager creates a Manager. repo may be nil, in which case snapshots are
// skipped (useful for tests and stateless runs).
func NewManager(store state.Store, repo *vcs.Repo, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, repo: repo, log: log}
}

// ReadCounter returns the cross-task counter, 0 when missing or unparsable.
func (m *Manager) ReadCounter() int {
	return state.GetInt(m.store, state.FieldTaskCounter, 0)
}

// WriteCounter persists the counter.
func (m *Manager) WriteCounter(n int) error {
	return state.SetInt(m.store, state.FieldTaskCounter, n)
}

// PreviousSummary returns the first line of the persisted summary, truncated
// to 100 characters with an ellipsis, or the "(no summary)" sentinel.
func (m *Manager) PreviousSummary() string {
	raw, err := m.store.Get(state.FieldSummary)
	if err != nil || strings.TrimSpace(raw) == "" {
		return NoSummary
	}
	first := strings.TrimSpace(strings.SplitN(raw, "\n", 2)[0])
	if first == "" {
		return NoSummary
	}
	if len(first) > summaryMaxLen {
		return first[:summaryMaxLen] + "..."
	}
	return first
}

// AppendHistory appends one bullet for taskNum to the history log, writing
// the fixed header first if the log is empty. Prior entries are never
// rewritten.
func (m *Manager) AppendHistory(taskNum int, summary string) error {
	existing, err := m.store.Get(state.FieldTaskHistory)
	if err != nil {
		return fmt.Errorf("lifecycle: read history: %w", err)
	}
	if existing == "" {
		if err := m.store.Append(state.FieldTaskHistory, historyHeader); err != nil {
			return fmt.Errorf("lifecycle: write history header: %w", err)
		}
	}
	entry := fmt.Sprintf("- **Task %d**: %s\n", taskNum, summary)
	if err := m.store.Append(state.FieldTaskHistory, entry); err != nil {
		return fmt.Errorf("lifecycle: append history: %w", err)
	}
	return nil
}

// PreSnapshot stages and tags the project state before task n starts.
func (m *Manager) PreSnapshot(n int) *Snapshot {
	return m.snapshot(fmt.Sprintf("task-%d-pre", n), fmt.Sprintf("pre-task snapshot for task %d", n))
}

// PostSnapshot stages and tags the project state after task n succeeds.
func (m *Manager) PostSnapshot(n int) *Snapshot {
	return m.snapshot(fmt.Sprintf("task-%d-post", n), fmt.Sprintf("post-task snapshot for task %d", n))
}

// snapshot stages all pending changes, commits only when the stage differs
// from HEAD, and always creates the tag so the boundary pair exists even for
// no-op tasks. Any failure is logged and produces a nil result.
func (m *Manager) snapshot(tag, message string) *Snapshot {
	if m.repo == nil {
		return nil
	}
	if err := m.repo.AddAll(); err != nil {
		m.log.Warn("snapshot stage failed", zap.String("tag", tag), zap.Error(err))
		return nil
	}
	_, committed, err := m.repo.Commit(message)
	if err != nil {
		m.log.Warn("snapshot commit failed", zap.String("tag", tag), zap.Error(err))
		return nil
	}
	tagHash, err := m.repo.Tag(tag)
	if err != nil {
		m.log.Warn("snapshot tag failed", zap.String("tag", tag), zap.Error(err))
		return nil
	}
	return &Snapshot{Tag: tag, Hash: tagHash.String(), Committed: committed}
}

// BeginTask runs the pre-loop sequencing for a new message and returns the
// new task number and the previous-boundary tag (empty for the first task):
//
//  1. read counter C; when C == 0 this is the first task ever and the
//     pre-snapshot is skipped entirely
//  2. when C > 0, log the previous task's summary under task number C and
//     create the task-{C+1}-pre snapshot
//  3. write counter C+1
func (m *Manager) BeginTask() (taskNum int, previousTag string, err error) {
	c := m.ReadCounter()
	if c > 0 {
		prev := m.PreviousSummary()
		if err := m.AppendHistory(c, prev); err != nil {
			// History is cosmetic; a write failure must not abort the task.
			m.log.Warn("task history append failed", zap.Int("task", c), zap.Error(err))
		}
		if snap := m.PreSnapshot(c + 1); snap != nil {
			previousTag = snap.Tag
		}
	}
	taskNum = c + 1
	if err := m.WriteCounter(taskNum); err != nil {
		return 0, "", fmt.Errorf("lifecycle: write counter: %w", err)
	}
	return taskNum, previousTag, nil
}

// FinishTask creates the post-task snapshot after a successful run.
func (m *Manager) FinishTask(taskNum int) *Snapshot {
	return m.PostSnapshot(taskNum)
}
