package reflection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/anvil/llm"
	"github.com/martinemde/anvil/state"
)

type stubGateway struct {
	text string
	err  error
}

func (g *stubGateway) Chat(_ context.Context, _ llm.Request) (*llm.Response, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &llm.Response{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: g.text},
		FinishReason: llm.FinishStop,
	}, nil
}

func TestCaptureAppendsReflection(t *testing.T) {
	ms := state.NewMemStore()
	c := NewCapturer(&stubGateway{text: "- feedback loop was slow"}, ms, nil)

	require.NoError(t, c.Capture(context.Background(), 3, 7, "built the hero"))

	raw := ms.Raw(state.FieldReflections)
	assert.Contains(t, raw, "## Task 3")
	assert.Contains(t, raw, "7 iterations")
	assert.Contains(t, raw, "- feedback loop was slow")
}

func TestCaptureIsAppendOnly(t *testing.T) {
	ms := state.NewMemStore()
	c := NewCapturer(&stubGateway{text: "first"}, ms, nil)
	require.NoError(t, c.Capture(context.Background(), 1, 1, "a"))
	first := ms.Raw(state.FieldReflections)

	c2 := NewCapturer(&stubGateway{text: "second"}, ms, nil)
	require.NoError(t, c2.Capture(context.Background(), 2, 2, "b"))
	assert.Contains(t, ms.Raw(state.FieldReflections), first)
}

func TestCaptureReportsGatewayError(t *testing.T) {
	c := NewCapturer(&stubGateway{err: errors.New("down")}, state.NewMemStore(), nil)
	assert.Error(t, c.Capture(context.Background(), 1, 1, "x"))
}

func TestCaptureWithoutGatewayIsNoOp(t *testing.T) {
	ms := state.NewMemStore()
	c := NewCapturer(nil, ms, nil)
	require.NoError(t, c.Capture(context.Background(), 1, 1, "x"))
	assert.Empty(t, ms.Raw(state.FieldReflections))
}
