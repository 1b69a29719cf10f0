// Package config loads anvil's configuration by layering built-in defaults,
// an optional YAML file, and ANVIL_-prefixed environment variables, in that
// order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/martinemde/anvil/loop"
)

const envPrefix = "ANVIL_"

// defaults is the base layer every load starts from.
var defaults = []byte(`
work_dir: .
state_dir: .anvil/state

model:
  provider: openai
  name: gpt-4o
  max_tokens: 8192

loop:
  max_iterations: 50
  max_tool_calls_per_iteration: 24
  max_gate_failures: 3
  min_reflection_iterations: 2
  detect_gaps: true
  require_summary_evidence: true
  command_timeout_seconds: 120

git:
  author_name: anvil
  author_email: anvil@localhost

log:
  level: info
`)

// Config is the root configuration record.
type Config struct {
	WorkDir  string `koanf:"work_dir"`
	StateDir string `koanf:"state_dir"`
	Model    Model  `koanf:"model"`
	Loop     Loop   `koanf:"loop"`
	Git      Git    `koanf:"git"`
	Log      Log    `koanf:"log"`
}

// Model selects the provider and model for all gateway calls. APIKey is
// normally supplied through ANVIL_MODEL__API_KEY rather than the file.
type Model struct {
	Provider  string `koanf:"provider"`
	Name      string `koanf:"name"`
	APIKey    string `koanf:"api_key"`
	MaxTokens int    `koanf:"max_tokens"`
}

// Loop mirrors the orchestrator caps.
type Loop struct {
	MaxIterations            int  `koanf:"max_iterations"`
	MaxToolCallsPerIteration int  `koanf:"max_tool_calls_per_iteration"`
	MaxGateFailures          int  `koanf:"max_gate_failures"`
	MinReflectionIterations  int  `koanf:"min_reflection_iterations"`
	DetectGaps               bool `koanf:"detect_gaps"`
	RequireSummaryEvidence   bool `koanf:"require_summary_evidence"`
	CommandTimeoutSeconds    int  `koanf:"command_timeout_seconds"`
}

// Git identifies the author of checkpoint and snapshot commits.
type Git struct {
	AuthorName  string `koanf:"author_name"`
	AuthorEmail string `koanf:"author_email"`
}

// Log configures the zap logger.
type Log struct {
	Level string `koanf:"level"`
}

// Load builds a Config from defaults, the optional YAML file at path, and
// the environment. A missing file is an error only when a path was given.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// ANVIL_MODEL__API_KEY maps to model.api_key: double underscore is the
	// level separator, single underscores stay inside a key.
	if err := k.Load(env.Provider(envPrefix, ".", normalizeEnv), nil); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func normalizeEnv(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// LoopConfig converts the loop section into the orchestrator's Config.
func (c *Config) LoopConfig() loop.Config {
	return loop.Config{
		MaxIterations:            c.Loop.MaxIterations,
		MaxToolCallsPerIteration: c.Loop.MaxToolCallsPerIteration,
		MaxGateFailures:          c.Loop.MaxGateFailures,
		MinReflectionIterations:  c.Loop.MinReflectionIterations,
		DetectGaps:               c.Loop.DetectGaps,
		RequireSummaryEvidence:   c.Loop.RequireSummaryEvidence,
		StateDir:                 c.StateDir,
		Model:                    c.Model.Name,
		Provider:                 c.Model.Provider,
	}
}

// CommandTimeout returns the shell timeout as a duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Loop.CommandTimeoutSeconds) * time.Second
}
