// Package llm defines the model-gateway contract the loop orchestrator
// depends on, plus a production gateway backed by gollm.
//
// The contract is deliberately small: a Message either carries structured
// tool-call requests or a final text with a finish reason. The orchestrator
// reads "no tool calls and a stop finish reason" as the model believing it
// is done.
package llm

import (
	"context"
	"encoding/json"
)

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Finish reasons the loop distinguishes.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// ToolCall is a model-initiated tool invocation. Arguments are an untrusted
// serialized payload; callers must validate before use.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one unit of conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// ToolResultMessage creates a tool result Message keyed by the call id.
func ToolResultMessage(toolCallID, content string, isError bool) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID, IsError: isError}
}

// ToolDefinition describes a tool for the model.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Request is the input to Chat.
type Request struct {
	Model       string           `json:"model,omitempty"`
	Provider    string           `json:"provider,omitempty"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	JSONOnly    bool             `json:"json_only,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// Response is the output of Chat.
type Response struct {
	ID           string  `json:"id"`
	Model        string  `json:"model"`
	Provider     string  `json:"provider"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
	Usage        Usage   `json:"usage"`
}

// Text returns the response's text content.
func (r *Response) Text() string { return r.Message.Content }

// ToolCalls returns the response's tool-call requests.
func (r *Response) ToolCalls() []ToolCall { return r.Message.ToolCalls }

// Gateway is the model-serving collaborator. Implementations must honor
// context cancellation; the orchestrator checks its cancellation signal
// before every call and relies on ctx for in-flight aborts.
type Gateway interface {
	Chat(ctx context.Context, req Request) (*Response, error)
}
