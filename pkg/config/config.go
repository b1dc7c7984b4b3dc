// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package config loads and validates the warp configuration.
// Priority: CLI flags > WARP_* env vars > config file > defaults. Unknown
// keys are rejected so typos fail before a run starts instead of silently
// falling back to defaults.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is the config file base name (warp.yaml).
const DefaultConfigFileName = "warp"

// Config is the full configuration tree.
type Config struct {
	// RunDir is where per-run directories are created; empty means
	// <data_dir>/runs
	RunDir string `mapstructure:"run_dir" yaml:"run_dir"`

	// Agents lists the coordinating agents in registration order
	Agents []AgentConfig `mapstructure:"agents" yaml:"agents"`

	// ContextPaths mounts external directories into every agent workspace
	ContextPaths []ContextPathConfig `mapstructure:"context_paths" yaml:"context_paths"`

	// Orchestrator holds coordination policy
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`

	// Hooks configures external tool-pipeline hooks
	Hooks []HookConfig `mapstructure:"hooks" yaml:"hooks"`

	// Logging configures the zap logger
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Session configures the run-history SQLite store
	Session SessionConfig `mapstructure:"session" yaml:"session"`
}

// AgentConfig declares one coordinating agent.
type AgentConfig struct {
	// ID is the agent identifier (agent1, agent2, ... by convention)
	ID string `mapstructure:"id" yaml:"id"`

	// Backend is the adapter name; "scripted" replays a script file and is
	// the only in-tree adapter
	Backend string `mapstructure:"backend" yaml:"backend"`

	// Model is the model identifier used in display names
	Model string `mapstructure:"model" yaml:"model"`

	// SystemPrompt extends the coordination system prompt for this agent
	SystemPrompt string `mapstructure:"system_prompt" yaml:"system_prompt"`

	// ScriptPath is the scripted backend's turns file (YAML)
	ScriptPath string `mapstructure:"script_path" yaml:"script_path"`
}

// ContextPathConfig mounts one external directory.
type ContextPathConfig struct {
	Path           string   `mapstructure:"path" yaml:"path"`
	Permission     string   `mapstructure:"permission" yaml:"permission"` // read | write
	ProtectedPaths []string `mapstructure:"protected_paths" yaml:"protected_paths"`
}

// OrchestratorConfig holds orchestration policy.
type OrchestratorConfig struct {
	Coordination CoordinationConfig `mapstructure:"coordination" yaml:"coordination"`
}

// CoordinationConfig mirrors the orchestrator's tunables.
type CoordinationConfig struct {
	MaxEnforcementRetries int  `mapstructure:"max_enforcement_retries" yaml:"max_enforcement_retries"`
	MaxAnswersPerAgent    int  `mapstructure:"max_answers_per_agent" yaml:"max_answers_per_agent"`
	RequireNovelty        bool `mapstructure:"require_novelty" yaml:"require_novelty"`

	// DisableInjection turns off mid-conversation peer-answer delivery;
	// agents then learn of peer answers only at turn boundaries
	DisableInjection bool `mapstructure:"disable_injection" yaml:"disable_injection"`

	// DeferVotingUntilAllAnswered parks early finishers until every agent
	// has submitted a first answer
	DeferVotingUntilAllAnswered bool `mapstructure:"defer_voting_until_all_answered" yaml:"defer_voting_until_all_answered"`

	EnableRefinement bool `mapstructure:"enable_refinement" yaml:"enable_refinement"`
	SkipVoting       bool `mapstructure:"skip_voting" yaml:"skip_voting"`

	// SkipFinalPresentation ends the run with the winning answer as-is
	// instead of granting the winner a final presentation turn
	SkipFinalPresentation bool `mapstructure:"skip_final_presentation" yaml:"skip_final_presentation"`

	EnablePlanningMode bool `mapstructure:"enable_planning_mode" yaml:"enable_planning_mode"`
	TimeoutSeconds     int  `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxTokens          int  `mapstructure:"max_tokens" yaml:"max_tokens"`

	// AsyncSubagents configures background subagent spawning
	AsyncSubagents AsyncSubagentsConfig `mapstructure:"async_subagents" yaml:"async_subagents"`

	// Subagent timeout clamp, in seconds
	SubagentMinTimeout     int `mapstructure:"subagent_min_timeout" yaml:"subagent_min_timeout"`
	SubagentMaxTimeout     int `mapstructure:"subagent_max_timeout" yaml:"subagent_max_timeout"`
	SubagentDefaultTimeout int `mapstructure:"subagent_default_timeout" yaml:"subagent_default_timeout"`
}

// AsyncSubagentsConfig bounds background subagent execution.
type AsyncSubagentsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// InjectionStrategy is where drained subagent results land:
	// tool_result (default) or user_message
	InjectionStrategy string `mapstructure:"injection_strategy" yaml:"injection_strategy"`

	InjectProgress bool `mapstructure:"inject_progress" yaml:"inject_progress"`
	MaxBackground  int  `mapstructure:"max_background" yaml:"max_background"`
}

// Timeout returns the run timeout as a duration.
func (c CoordinationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HookConfig declares one external hook handler.
type HookConfig struct {
	// Name identifies the hook in logs
	Name string `mapstructure:"name" yaml:"name"`

	// Event is PreToolUse or PostToolUse
	Event string `mapstructure:"event" yaml:"event"`

	// Matcher is a glob on the namespaced tool name; empty matches all
	Matcher string `mapstructure:"matcher" yaml:"matcher"`

	// Command is the external handler argv
	Command []string `mapstructure:"command" yaml:"command"`

	// TimeoutSeconds bounds one invocation; 0 uses the hook default
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`

	// AgentID scopes the hook to one agent; empty means global
	AgentID string `mapstructure:"agent_id" yaml:"agent_id"`

	// Override replaces the global chain for this event (per-agent only)
	Override bool `mapstructure:"override" yaml:"override"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
	File   string `mapstructure:"file" yaml:"file"`     // optional log file path
}

// SessionConfig holds run-history persistence configuration.
type SessionConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Load reads configuration with the documented precedence. cfgFile, when
// non-empty, names an explicit config file; otherwise the search path is the
// warp data directory, then the working directory.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(DataDir())
		v.AddConfigPath(".")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
		// No config file found; defaults + env vars + flags apply.
	}

	v.SetEnvPrefix("WARP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.UnmarshalExact(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

// setDefaults installs every coordination default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("run_dir", SubDir("runs"))

	v.SetDefault("orchestrator.coordination.max_enforcement_retries", 3)
	v.SetDefault("orchestrator.coordination.max_answers_per_agent", 3)
	v.SetDefault("orchestrator.coordination.require_novelty", false)
	v.SetDefault("orchestrator.coordination.disable_injection", false)
	v.SetDefault("orchestrator.coordination.defer_voting_until_all_answered", false)
	v.SetDefault("orchestrator.coordination.enable_refinement", false)
	v.SetDefault("orchestrator.coordination.skip_voting", false)
	v.SetDefault("orchestrator.coordination.skip_final_presentation", false)
	v.SetDefault("orchestrator.coordination.enable_planning_mode", false)
	v.SetDefault("orchestrator.coordination.timeout_seconds", 900)
	v.SetDefault("orchestrator.coordination.max_tokens", 8192)

	v.SetDefault("orchestrator.coordination.async_subagents.enabled", true)
	v.SetDefault("orchestrator.coordination.async_subagents.injection_strategy", "tool_result")
	v.SetDefault("orchestrator.coordination.async_subagents.inject_progress", false)
	v.SetDefault("orchestrator.coordination.async_subagents.max_background", 4)
	v.SetDefault("orchestrator.coordination.subagent_min_timeout", 60)
	v.SetDefault("orchestrator.coordination.subagent_max_timeout", 600)
	v.SetDefault("orchestrator.coordination.subagent_default_timeout", 300)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("session.enabled", true)
	v.SetDefault("session.path", filepath.Join(DataDir(), "sessions.db"))
}

// Validate returns the first pre-run fatal error, or nil.
func (c *Config) Validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent is required (set agents in the config)")
	}
	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agents[%d].id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
		if a.Backend == "" {
			return fmt.Errorf("agent %s: backend is required", a.ID)
		}
	}

	if c.Orchestrator.Coordination.SkipVoting && len(c.Agents) != 1 {
		return fmt.Errorf("skip_voting requires exactly one agent, got %d", len(c.Agents))
	}
	if c.Orchestrator.Coordination.TimeoutSeconds < 0 {
		return fmt.Errorf("orchestrator.coordination.timeout_seconds must not be negative")
	}

	for i, cp := range c.ContextPaths {
		if cp.Path == "" {
			return fmt.Errorf("context_paths[%d].path is required", i)
		}
		switch cp.Permission {
		case "read", "write":
		default:
			return fmt.Errorf("context path %s: permission must be read or write, got %q", cp.Path, cp.Permission)
		}
	}

	for i, h := range c.Hooks {
		switch h.Event {
		case "PreToolUse", "PostToolUse":
		default:
			return fmt.Errorf("hooks[%d]: event must be PreToolUse or PostToolUse, got %q", i, h.Event)
		}
		if len(h.Command) == 0 {
			return fmt.Errorf("hooks[%d] (%s): command is required", i, h.Name)
		}
	}

	coord := c.Orchestrator.Coordination
	if coord.SubagentMinTimeout > coord.SubagentMaxTimeout {
		return fmt.Errorf("subagent_min_timeout (%d) exceeds subagent_max_timeout (%d)",
			coord.SubagentMinTimeout, coord.SubagentMaxTimeout)
	}
	switch coord.AsyncSubagents.InjectionStrategy {
	case "", "tool_result", "user_message":
	default:
		return fmt.Errorf("async_subagents.injection_strategy must be tool_result or user_message, got %q",
			coord.AsyncSubagents.InjectionStrategy)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Session.Enabled && c.Session.Path == "" {
		return fmt.Errorf("session.path is required when session persistence is enabled")
	}
	return nil
}

// GenerateExampleConfig returns a commented example warp.yaml.
func GenerateExampleConfig() string {
	return `# warp configuration
# Priority: CLI flags > WARP_* environment variables > config file > defaults

# Where per-run directories (logs, workspaces, snapshots) are created.
# run_dir: ~/.warp/runs

agents:
  - id: agent1
    backend: scripted
    model: replay-a
    script_path: ./scripts/agent1.yaml
  - id: agent2
    backend: scripted
    model: replay-b
    script_path: ./scripts/agent2.yaml
    # system_prompt: "Favor concise answers."

# External directories mounted into every agent workspace.
context_paths:
  - path: ./docs
    permission: read
  - path: ./output
    permission: write
    protected_paths:
      - output/README.md

orchestrator:
  coordination:
    max_enforcement_retries: 3
    max_answers_per_agent: 3
    require_novelty: false
    disable_injection: false
    defer_voting_until_all_answered: false
    enable_refinement: false
    skip_voting: false
    skip_final_presentation: false
    enable_planning_mode: false
    timeout_seconds: 900
    max_tokens: 8192
    async_subagents:
      enabled: true
      injection_strategy: tool_result # tool_result, user_message
      inject_progress: false
      max_background: 4
    subagent_min_timeout: 60
    subagent_max_timeout: 600
    subagent_default_timeout: 300

# External hooks speaking the one-line JSON stdin/stdout protocol.
hooks:
  - name: audit-writes
    event: PreToolUse
    matcher: "write_file"
    command: ["./hooks/audit.sh"]
    timeout_seconds: 10

logging:
  level: info  # debug, info, warn, error
  format: text # text, json
  # file: ./warp.log

session:
  enabled: true
  # path: ~/.warp/sessions.db
`
}
