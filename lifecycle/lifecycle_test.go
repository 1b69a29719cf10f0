package lifecycle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/anvil/state"
	"github.com/martinemde/anvil/vcs"
)

func newManager(t *testing.T) (*Manager, *state.MemStore, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := vcs.Open(dir, vcs.Author{Name: "test", Email: "test@example.com"})
	require.NoError(t, err)
	ms := state.NewMemStore()
	return NewManager(ms, repo, nil), ms, dir
}

func TestCounterDefaultsToZero(t *testing.T) {
	m := NewManager(state.NewMemStore(), nil, nil)
	assert.Equal(t, 0, m.ReadCounter())

	require.NoError(t, m.store.Set(state.FieldTaskCounter, "not a number"))
	assert.Equal(t, 0, m.ReadCounter(), "unparsable counter reads as zero")

	require.NoError(t, m.WriteCounter(3))
	assert.Equal(t, 3, m.ReadCounter())
}

func TestPreviousSummaryFirstLineOnly(t *testing.T) {
	m := NewManager(state.NewMemStore(), nil, nil)

	assert.Equal(t, NoSummary, m.PreviousSummary())

	require.NoError(t, m.store.Set(state.FieldSummary,
		"Built hero section with gradient background\nmore text"))
	assert.Equal(t, "Built hero section with gradient background", m.PreviousSummary())
}

func TestPreviousSummaryTruncation(t *testing.T) {
	m := NewManager(state.NewMemStore(), nil, nil)
	long := strings.Repeat("x", 150)
	require.NoError(t, m.store.Set(state.FieldSummary, long))

	got := m.PreviousSummary()
	assert.Equal(t, strings.Repeat("x", 100)+"...", got)
}

func TestAppendHistoryWritesHeaderOnceAndNeverRewrites(t *testing.T) {
	ms := state.NewMemStore()
	m := NewManager(ms, nil, nil)

	require.NoError(t, m.AppendHistory(1, "Built hero section"))
	first := ms.Raw(state.FieldTaskHistory)
	assert.True(t, strings.HasPrefix(first, "# Task History\n"))
	assert.Contains(t, first, "- **Task 1**: Built hero section\n")

	require.NoError(t, m.AppendHistory(2, "Added footer"))
	second := ms.Raw(state.FieldTaskHistory)
	assert.True(t, strings.HasPrefix(second, first), "prior entries are untouched")
	assert.Equal(t, 1, strings.Count(second, "# Task History"))
	assert.Contains(t, second, "- **Task 2**: Added footer\n")
}

func TestFirstTaskSkipsPreSnapshot(t *testing.T) {
	m, ms, _ := newManager(t)

	taskNum, prevTag, err := m.BeginTask()
	require.NoError(t, err)
	assert.Equal(t, 1, taskNum)
	assert.Equal(t, "", prevTag, "no pre-snapshot for the first task ever")
	assert.Equal(t, 1, state.GetInt(ms, state.FieldTaskCounter, -1))
	assert.Equal(t, "", ms.Raw(state.FieldTaskHistory), "history does not yet mention task 1")

	snap := m.FinishTask(taskNum)
	require.NotNil(t, snap)
	assert.Equal(t, "task-1-post", snap.Tag)
}

func TestSecondTaskLogsHistoryAndSnapshots(t *testing.T) {
	m, ms, dir := newManager(t)

	// Task 1 ran and finished with a two-line summary.
	_, _, err := m.BeginTask()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html></html>"), 0o644))
	require.NoError(t, ms.Set(state.FieldSummary,
		"Built hero section with gradient background\nmore text"))
	require.NotNil(t, m.FinishTask(1))

	taskNum, prevTag, err := m.BeginTask()
	require.NoError(t, err)
	assert.Equal(t, 2, taskNum)
	assert.Equal(t, "task-2-pre", prevTag)
	assert.Equal(t, 2, m.ReadCounter())
	assert.Contains(t, ms.Raw(state.FieldTaskHistory),
		"- **Task 1**: Built hero section with gradient background")
}

func TestSnapshotPairExistsForNoOpTask(t *testing.T) {
	m, ms, dir := newManager(t)

	_, _, err := m.BeginTask()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NotNil(t, m.FinishTask(1))
	require.NoError(t, ms.Set(state.FieldSummary, "did things"))

	// Task 2 changes nothing at all.
	taskNum, _, err := m.BeginTask()
	require.NoError(t, err)
	require.Equal(t, 2, taskNum)
	post := m.FinishTask(2)
	require.NotNil(t, post)
	assert.False(t, post.Committed, "no file changes, no commit")

	pre := m.PreSnapshot(2)
	require.NotNil(t, pre)
	assert.Equal(t, pre.Hash, post.Hash, "both boundary tags point at the same commit")
}

func TestSnapshotIdempotence(t *testing.T) {
	m, _, dir := newManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))

	s1 := m.PreSnapshot(1)
	require.NotNil(t, s1)
	s2 := m.PreSnapshot(1)
	require.NotNil(t, s2)
	assert.Equal(t, s1.Tag, s2.Tag)
	assert.Equal(t, s1.Hash, s2.Hash)
}

func TestSnapshotWithoutRepoIsNil(t *testing.T) {
	m := NewManager(state.NewMemStore(), nil, nil)
	assert.Nil(t, m.PreSnapshot(1))
	assert.Nil(t, m.PostSnapshot(1))
}
