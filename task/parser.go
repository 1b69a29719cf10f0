package task

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/martinemde/anvil/llm"
)

// maxProjectPaths caps how many project paths the classification prompt
// includes.
const maxProjectPaths = 40

// ParseInput carries everything the classifier may consult.
type ParseInput struct {
	Message         string
	HasPlan         bool
	PreviousSummary string
	ProjectPaths    []string
	TaskNumber      int
	PreviousTag     string
}

// Parser classifies incoming messages. A nil or failing gateway degrades to
// the heuristic fallback; Parse never fails.
type Parser struct {
	gateway llm.Gateway
	log     *zap.Logger
}

// NewParser creates a Parser. gateway may be nil to force the fallback path.
func NewParser(gateway llm.Gateway, log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{gateway: gateway, log: log}
}

// Parse classifies the message into a Structured task. The primary path is
// one model call; on any failure (network, decode, validation of the outer
// shape) the keyword fallback takes over.
func (p *Parser) Parse(ctx context.Context, in ParseInput) Structured {
	if p.gateway != nil {
		st, err := p.classify(ctx, in)
		if err == nil {
			return st
		}
		p.log.Warn("task classification failed, using fallback", zap.Error(err))
	}
	return p.fallback(in)
}

// classificationPayload is the untrusted shape the model is asked to emit.
type classificationPayload struct {
	Type         string `json:"type"`
	Title        string `json:"title"`
	Requirements []struct {
		Marker      string `json:"marker"`
		Description string `json:"description"`
	} `json:"requirements"`
	Scope struct {
		Preserve      []interface{} `json:"preserve"`
		AffectedFiles []interface{} `json:"affectedFiles"`
	} `json:"scope"`
}

func (p *Parser) classify(ctx context.Context, in ParseInput) (Structured, error) {
	resp, err := p.gateway.Chat(ctx, llm.Request{
		Messages: []llm.Message{
			llm.SystemMessage(classifierSystemPrompt),
			llm.UserMessage(buildClassifierPrompt(in)),
		},
		JSONOnly: true,
	})
	if err != nil {
		return Structured{}, fmt.Errorf("task: classify: %w", err)
	}

	raw := stripFences(resp.Text())
	var payload classificationPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Structured{}, fmt.Errorf("task: decode classification: %w", err)
	}

	return p.validate(payload, in), nil
}

// validate converts the untrusted payload into a Structured task, coercing
// every out-of-range value rather than rejecting the whole payload.
func (p *Parser) validate(payload classificationPayload, in ParseInput) Structured {
	st := Structured{
		Type:        Type(payload.Type),
		Title:       truncateTitle(payload.Title),
		TaskNumber:  in.TaskNumber,
		PreviousTag: in.PreviousTag,
		RawMessage:  in.Message,
	}

	if !validType(st.Type) {
		if in.HasPlan {
			st.Type = TypeMutation
		} else {
			st.Type = TypeFresh
		}
	}
	if st.Title == "" {
		st.Title = truncateTitle(in.Message)
	}

	for _, r := range payload.Requirements {
		desc := strings.TrimSpace(r.Description)
		if desc == "" {
			continue
		}
		marker := Marker(strings.ToUpper(strings.TrimSpace(r.Marker)))
		if !validMarker(marker) {
			marker = MarkerModify
		}
		st.Requirements = append(st.Requirements, Requirement{Marker: marker, Description: desc})
	}
	if len(st.Requirements) == 0 {
		// The record contract guarantees at least one requirement.
		fb := p.fallback(in)
		st.Requirements = fb.Requirements
	}

	st.Scope.Preserve = stringsOnly(payload.Scope.Preserve)
	st.Scope.AffectedFiles = stringsOnly(payload.Scope.AffectedFiles)
	return st
}

// stringsOnly keeps the string entries of an untyped array, dropping
// everything else. Missing or malformed scope arrays become empty.
func stringsOnly(values []interface{}) []string {
	out := []string{}
	for _, v := range values {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// fallback is the heuristic path: bugfix when the message matches the fixed
// keyword set, else mutation when a plan exists, else fresh. The whole
// message becomes the single requirement.
func (p *Parser) fallback(in ParseInput) Structured {
	var typ Type
	var marker Marker
	switch {
	case looksLikeBugfix(in.Message):
		typ = TypeBugfix
		marker = MarkerFix
	case in.HasPlan:
		typ = TypeMutation
		marker = MarkerModify
	default:
		typ = TypeFresh
		marker = MarkerAdd
	}

	return Structured{
		Type:        typ,
		Title:       truncateTitle(in.Message),
		TaskNumber:  in.TaskNumber,
		PreviousTag: in.PreviousTag,
		Requirements: []Requirement{
			{Marker: marker, Description: in.Message},
		},
		Scope:      Scope{Preserve: []string{}, AffectedFiles: []string{}},
		RawMessage: in.Message,
	}
}

// stripFences removes surrounding markdown code fences the model may wrap
// its JSON in, plus any prose before the first brace.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.IndexAny(s, "{["); idx > 0 {
		s = s[idx:]
	}
	return s
}

const classifierSystemPrompt = `You classify website-change requests into a strict JSON record.
Respond with a single JSON object and nothing else:
{
  "type": "fresh" | "mutation" | "bugfix",
  "title": "short imperative title, at most 80 characters",
  "requirements": [{"marker": "ADD" | "MODIFY" | "FIX" | "REMOVE", "description": "..."}],
  "scope": {"preserve": ["..."], "affectedFiles": ["..."]}
}
"fresh" means building from nothing, "mutation" changes an existing site, "bugfix" repairs defects.`

// buildClassifierPrompt renders the user half of the classification call.
func buildClassifierPrompt(in ParseInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request:\n%s\n\n", in.Message)
	fmt.Fprintf(&b, "A plan already exists: %v\n", in.HasPlan)
	if in.PreviousSummary != "" {
		fmt.Fprintf(&b, "Previous task summary: %s\n", in.PreviousSummary)
	}
	paths := in.ProjectPaths
	if len(paths) > maxProjectPaths {
		paths = paths[:maxProjectPaths]
	}
	if len(paths) > 0 {
		b.WriteString("Project files:\n")
		for _, p := range paths {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	return b.String()
}
