// Package reflection gathers harness-quality feedback after a successful
// task. It is strictly best-effort: a failed capture is logged and dropped,
// never surfaced to the loop's caller.
package reflection

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/martinemde/anvil/llm"
	"github.com/martinemde/anvil/state"
)

const reflectionPrompt = `The task below was just completed by an autonomous coding loop.
In at most five bullet points, note where the harness (tools, prompts, feedback loop)
helped or got in the way. Be concrete; skip praise.`

// Capturer makes one post-success model call and appends the response to the
// reflections log.
type Capturer struct {
	gateway llm.Gateway
	store   state.Store
	log     *zap.Logger
}

// NewCapturer creates a Capturer.
func NewCapturer(gateway llm.Gateway, store state.Store, log *zap.Logger) *Capturer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Capturer{gateway: gateway, store: store, log: log}
}

// Capture records harness feedback for a completed task. Errors are
// returned so the caller can log them, but they carry no obligation: the
// loop ignores everything except for logging.
func (c *Capturer) Capture(ctx context.Context, taskNumber, iterations int, summary string) error {
	if c.gateway == nil {
		return nil
	}

	resp, err := c.gateway.Chat(ctx, llm.Request{
		Messages: []llm.Message{
			llm.SystemMessage(reflectionPrompt),
			llm.UserMessage(fmt.Sprintf("Task #%d finished in %d iteration(s).\nSummary: %s",
				taskNumber, iterations, summary)),
		},
	})
	if err != nil {
		return fmt.Errorf("reflection: capture: %w", err)
	}

	entry := fmt.Sprintf("## Task %d (%s, %d iterations)\n%s\n\n",
		taskNumber, time.Now().UTC().Format(time.RFC3339), iterations, resp.Text())
	if err := c.store.Append(state.FieldReflections, entry); err != nil {
		return fmt.Errorf("reflection: persist: %w", err)
	}
	return nil
}
