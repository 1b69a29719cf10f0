package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmGateway implements Gateway on top of gollm, which handles the
// provider-specific HTTP plumbing. Calls go through the package Retry
// helper; gollm's own retries are disabled.
type GollmGateway struct {
	provider string
	model    string
	llm      gollm.LLM
	policy   RetryPolicy
}

// GollmOption configures a GollmGateway.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	policy      RetryPolicy
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key. When empty, gollm reads it from the
// provider's environment variable.
func WithAPIKey(key string) GollmOption {
	return func(c *gollmConfig) { c.apiKey = key }
}

// WithModel sets the model identifier.
func WithModel(model string) GollmOption {
	return func(c *gollmConfig) { c.model = model }
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmOption {
	return func(c *gollmConfig) { c.maxTokens = n }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) GollmOption {
	return func(c *gollmConfig) { c.policy = p }
}

// NewGollmGateway creates a gateway for the given provider.
func NewGollmGateway(provider string, opts ...GollmOption) (*GollmGateway, error) {
	cfg := &gollmConfig{
		maxTokens:   8192,
		temperature: 0.7,
		policy:      DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-5-20250514"
		default:
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries are handled here
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{GatewayError: GatewayError{
			Message: fmt.Sprintf("create gollm client for %s", provider), Cause: err,
		}}
	}

	return &GollmGateway{provider: provider, model: model, llm: llm, policy: cfg.policy}, nil
}

// Chat sends the request and translates the generated text back into the
// gateway contract, including any tool calls gollm surfaced in the text.
func (g *GollmGateway) Chat(ctx context.Context, req Request) (*Response, error) {
	prompt := g.translateRequest(req)

	text, err := Retry(ctx, g.policy, func(ctx context.Context) (string, error) {
		out, err := g.llm.Generate(ctx, prompt)
		if err != nil {
			return "", g.classifyError(err)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	return g.buildResponse(req, text), nil
}

// translateRequest flattens the message list into a gollm prompt. System
// messages become the system prompt; assistant and tool messages are
// prefixed context, matching how gollm models multi-turn exchanges.
func (g *GollmGateway) translateRequest(req Request) *gollm.Prompt {
	var system strings.Builder
	var parts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system.WriteString(msg.Content)
			system.WriteString("\n")
		case RoleUser:
			parts = append(parts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				parts = append(parts, "[Assistant]: "+msg.Content)
			}
		case RoleTool:
			prefix := "[Tool Result]"
			if msg.IsError {
				prefix = "[Tool Error]"
			}
			parts = append(parts, prefix+": "+msg.Content)
		}
	}

	if req.JSONOnly {
		parts = append(parts, "Respond with a single valid JSON value and nothing else.")
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Proceed."
	}

	opts := []gollm.PromptOption{}
	if system.Len() > 0 {
		opts = append(opts, gollm.WithSystemPrompt(strings.TrimSpace(system.String()), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		opts = append(opts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		opts = append(opts, gollm.WithTools(tools))
		opts = append(opts, gollm.WithToolChoice("auto"))
	}

	return gollm.NewPrompt(promptText, opts...)
}

// buildResponse parses any tool calls gollm returned embedded in the text
// and sets the finish reason accordingly.
func (g *GollmGateway) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = g.model
	}

	toolCalls := parseToolCalls(text)
	finish := FinishStop
	if len(toolCalls) > 0 {
		finish = FinishToolCalls
	}

	return &Response{
		ID:       "resp_" + uuid.New().String()[:8],
		Model:    model,
		Provider: g.provider,
		Message: Message{
			Role:      RoleAssistant,
			Content:   stripToolCallJSON(text, toolCalls),
			ToolCalls: toolCalls,
		},
		FinishReason: finish,
		Usage: Usage{
			// gollm does not expose usage; approximate from text length.
			InputTokens:  estimateTokens(req),
			OutputTokens: len(text) / 4,
			TotalTokens:  estimateTokens(req) + len(text)/4,
		},
	}
}

// toolCallMarkers are the text shapes gollm uses to surface tool calls.
var toolCallMarkers = []string{`{"tool_calls"`, `[{"name"`}

// parseToolCalls extracts tool calls embedded in the response text.
func parseToolCalls(text string) []ToolCall {
	start := -1
	for _, marker := range toolCallMarkers {
		if idx := strings.Index(text, marker); idx != -1 {
			start = idx
			break
		}
	}
	if start == -1 {
		return nil
	}

	var rawCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text[start:]), &rawCalls); err != nil {
		return nil
	}

	calls := make([]ToolCall, 0, len(rawCalls))
	for _, rc := range rawCalls {
		calls = append(calls, ToolCall{
			ID:        "call_" + uuid.New().String()[:8],
			Name:      rc.Name,
			Arguments: rc.Arguments,
		})
	}
	return calls
}

// stripToolCallJSON removes the parsed tool-call JSON from the text.
func stripToolCallJSON(text string, calls []ToolCall) string {
	if len(calls) == 0 {
		return text
	}
	result := text
	for _, marker := range toolCallMarkers {
		if idx := strings.Index(result, marker); idx != -1 {
			result = strings.TrimSpace(result[:idx])
		}
	}
	return result
}

// classifyError maps a gollm error into the gateway error hierarchy based
// on its message, since gollm does not expose typed errors.
func (g *GollmGateway) classifyError(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)

	pe := ProviderError{
		GatewayError: GatewayError{Message: msg, Cause: err},
		Provider:     g.provider,
	}

	switch {
	case strings.Contains(lower, "401"), strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "invalid api key"):
		pe.StatusCode = 401
		return &AuthenticationError{ProviderError: pe}
	case strings.Contains(lower, "429"), strings.Contains(lower, "rate limit"):
		pe.StatusCode = 429
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case strings.Contains(lower, "context length"), strings.Contains(lower, "too many tokens"):
		pe.StatusCode = 413
		return &ContextLengthError{ProviderError: pe}
	case strings.Contains(lower, "content filter"), strings.Contains(lower, "safety"):
		return &ContentFilterError{ProviderError: pe}
	case strings.Contains(lower, "500"), strings.Contains(lower, "502"),
		strings.Contains(lower, "503"), strings.Contains(lower, "internal server"):
		pe.StatusCode = 500
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return &RequestTimeoutError{GatewayError: GatewayError{Message: msg, Cause: err}}
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "no such host"):
		return &NetworkError{GatewayError: GatewayError{Message: msg, Cause: err}}
	default:
		pe.Retryable = true
		return &pe
	}
}

// estimateTokens roughly counts request tokens from message text.
func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	if total == 0 {
		total = 10
	}
	return total
}
