package gate

import (
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passGate(name string) Gate {
	return GateFunc{GateName: name, Fn: func(billy.Filesystem, string, *Context) Result {
		return Result{Name: name, Pass: true}
	}}
}

func failGate(name, msg string) Gate {
	return GateFunc{GateName: name, Fn: func(billy.Filesystem, string, *Context) Result {
		return Result{Name: name, Pass: false, Message: msg}
	}}
}

func TestRunnerRunsEveryGateWithoutShortCircuit(t *testing.T) {
	var order []string
	observe := func(name string, pass bool) Gate {
		return GateFunc{GateName: name, Fn: func(billy.Filesystem, string, *Context) Result {
			order = append(order, name)
			return Result{Name: name, Pass: pass}
		}}
	}

	r := NewRunner([]Gate{
		observe("first", false),
		observe("second", true),
		observe("third", false),
	}, nil)

	summary := r.Run(memfs.New(), "/", nil)

	assert.Equal(t, []string{"first", "second", "third"}, order, "every gate runs even after a failure")
	assert.False(t, summary.Pass())
	assert.Equal(t, []string{"first", "third"}, summary.FailingNames())
}

func TestSummaryAggregateIsLogicalAnd(t *testing.T) {
	all := NewRunner([]Gate{passGate("a"), passGate("b")}, nil).Run(memfs.New(), "/", nil)
	assert.True(t, all.Pass())

	one := NewRunner([]Gate{passGate("a"), failGate("b", "")}, nil).Run(memfs.New(), "/", nil)
	assert.False(t, one.Pass())
}

func TestFeedbackNamesFailingGates(t *testing.T) {
	r := NewRunner([]Gate{
		passGate("a"),
		failGate("broken-links", "two links are dead"),
	}, nil)

	fb := r.Run(memfs.New(), "/", nil).Feedback()
	assert.Contains(t, fb, "broken-links")
	assert.Contains(t, fb, "two links are dead")
	assert.NotContains(t, fb, "- a:")
}

func TestFeedbackFallsBackToRemediation(t *testing.T) {
	r := NewRunner([]Gate{failGate(GateEntrypoint, "")}, nil)

	fb := r.Run(memfs.New(), "/", nil).Feedback()
	assert.Contains(t, fb, GateEntrypoint)
	assert.Contains(t, fb, remediation[GateEntrypoint])
}

func TestRunnerConvertsPanicToFailingResult(t *testing.T) {
	boom := GateFunc{GateName: "boom", Fn: func(billy.Filesystem, string, *Context) Result {
		panic("nil artifact")
	}}
	r := NewRunner([]Gate{boom, passGate("after")}, nil)

	summary := r.Run(memfs.New(), "/", nil)

	require.Len(t, summary.Results, 2, "the gate after the panic still runs")
	assert.False(t, summary.Results[0].Pass)
	assert.Contains(t, summary.Results[0].Message, "gate crashed")
	assert.Contains(t, summary.Results[0].Message, "nil artifact")
	assert.True(t, summary.Results[1].Pass)
}

func TestGatesListsNamesInOrder(t *testing.T) {
	r := NewRunner(DefaultGates(), nil)
	assert.Equal(t, []string{GateEntrypoint, GatePlaceholder, GateAssetLinks, GateRuntimeError}, r.Gates())
}
