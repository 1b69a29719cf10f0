package loop

import (
	"fmt"
	"strings"

	"github.com/martinemde/anvil/llm"
	"github.com/martinemde/anvil/state"
)

const systemPrompt = `You are an autonomous engineer building a static web project.

You work in short iterations. Each iteration you see the current task state
and may issue shell commands through the run_command tool. Nothing else
persists between iterations: anything worth remembering must be written to
a state file or to the project itself.

State files (plain text, under %s):
  plan      your working plan; update it as the work evolves
  summary   one line describing what you accomplished
  status    write "complete" when the task is done

Finishing: write a one-line summary to the summary state file, then write
"complete" to the status state file. Quality gates then verify the result;
if they reject it you will receive feedback and must address it.

Rules:
- Address any feedback section before anything new.
- Prefer small verifiable steps over large speculative ones.
- Never delete the state directory or the .git directory.`

// runCommandTool is the single tool exposed to the model.
const runCommandTool = "run_command"

func toolCatalog() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        runCommandTool,
			Description: "Execute a shell command in the project directory and return its output.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command": map[string]interface{}{
						"type":        "string",
						"description": "The shell command to run.",
					},
					"rationale": map[string]interface{}{
						"type":        "string",
						"description": "One line on why this command is needed.",
					},
				},
				"required": []string{"command"},
			},
		},
	}
}

// buildMessages assembles the per-iteration context from the current state
// fields. The same fields are read fresh every iteration; no transcript is
// carried over.
func buildMessages(stateDir string, fields map[string]string, iteration, maxIterations int) []llm.Message {
	var b strings.Builder

	fmt.Fprintf(&b, "Iteration %d of %d.\n", iteration, maxIterations)

	if fb := fields[state.FieldFeedback]; fb != "" {
		b.WriteString("\n## Feedback (address this first)\n")
		b.WriteString(fb)
		b.WriteString("\n")
	}

	b.WriteString("\n## Task\n")
	if task := fields[state.FieldTask]; task != "" {
		b.WriteString(task)
	} else {
		b.WriteString("(no task record; consult the origin state file)")
	}
	b.WriteString("\n")

	if intent := fields[state.FieldIntent]; intent != "" {
		fmt.Fprintf(&b, "\nIntent: %s\n", intent)
	}

	if plan := fields[state.FieldPlan]; plan != "" {
		b.WriteString("\n## Plan\n")
		b.WriteString(plan)
		b.WriteString("\n")
	}

	if summary := fields[state.FieldSummary]; summary != "" {
		fmt.Fprintf(&b, "\nSummary so far: %s\n", summary)
	}

	return []llm.Message{
		llm.SystemMessage(fmt.Sprintf(systemPrompt, stateDir)),
		llm.UserMessage(b.String()),
	}
}
