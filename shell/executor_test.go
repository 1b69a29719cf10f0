package shell

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalExecutorRunsCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash-specific test")
	}
	e := NewLocalExecutor(t.TempDir(), 10*time.Second)

	res, err := e.Execute(context.Background(), "echo hello", "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.True(t, res.Success())
}

func TestLocalExecutorNonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash-specific test")
	}
	e := NewLocalExecutor(t.TempDir(), 10*time.Second)

	res, err := e.Execute(context.Background(), "exit 3", "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Success())
}

func TestLocalExecutorMissingCommandIsNotFound(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash-specific test")
	}
	e := NewLocalExecutor(t.TempDir(), 10*time.Second)

	res, err := e.Execute(context.Background(), "definitely-not-a-real-command-xyz", "")
	require.NoError(t, err)
	assert.Equal(t, 127, res.ExitCode)
	assert.True(t, IsNotFound(res))
	assert.NotEmpty(t, NotFoundPattern(res))
}

func TestIsNotFoundRequiresBothSignals(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(&Result{ExitCode: 127, Stderr: "segfault"}),
		"exit 127 alone is not enough")
	assert.False(t, IsNotFound(&Result{ExitCode: 1, Stderr: "command not found"}),
		"pattern alone is not enough")
	assert.True(t, IsNotFound(&Result{ExitCode: 127, Stderr: "bash: foo: Command Not Found"}),
		"matching is case-insensitive")
	assert.True(t, IsNotFound(&Result{ExitCode: 127, Stderr: "'foo' is not recognized as an internal or external command"}))
}

func TestResultOutputCombinesStreams(t *testing.T) {
	assert.Equal(t, "out", Result{Stdout: "out"}.Output())
	assert.Equal(t, "err", Result{Stderr: "err"}.Output())
	assert.Equal(t, "out\nerr", Result{Stdout: "out", Stderr: "err"}.Output())
}

func TestTruncateOutputByChars(t *testing.T) {
	long := strings.Repeat("a", 1000)
	out := TruncateOutput(long, 100, 0)
	assert.Less(t, len(out), 200)
	assert.Contains(t, out, "characters truncated")
}

func TestTruncateOutputByLines(t *testing.T) {
	long := strings.Repeat("line\n", 1000)
	out := TruncateOutput(long, 0, 10)
	assert.Contains(t, out, "lines omitted")
	assert.Less(t, len(strings.Split(out, "\n")), 15)
}

func TestTruncateOutputShortPassesThrough(t *testing.T) {
	assert.Equal(t, "short", TruncateOutput("short", 100, 10))
}
