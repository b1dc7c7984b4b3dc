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
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func validConfig() *Config {
	cfg, _ := Load("") // defaults only
	cfg.Agents = []AgentConfig{{ID: "agent1", Backend: "scripted"}}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Orchestrator.Coordination.MaxEnforcementRetries)
	assert.Equal(t, 3, cfg.Orchestrator.Coordination.MaxAnswersPerAgent)
	assert.False(t, cfg.Orchestrator.Coordination.DisableInjection)
	assert.False(t, cfg.Orchestrator.Coordination.SkipVoting)
	assert.Equal(t, 15*time.Minute, cfg.Orchestrator.Coordination.Timeout())
	assert.Equal(t, 8192, cfg.Orchestrator.Coordination.MaxTokens)
	assert.True(t, cfg.Orchestrator.Coordination.AsyncSubagents.Enabled)
	assert.Equal(t, "tool_result", cfg.Orchestrator.Coordination.AsyncSubagents.InjectionStrategy)
	assert.Equal(t, 4, cfg.Orchestrator.Coordination.AsyncSubagents.MaxBackground)
	assert.Equal(t, 300, cfg.Orchestrator.Coordination.SubagentDefaultTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Session.Enabled)
	assert.NotEmpty(t, cfg.Session.Path)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
agents:
  - id: agent1
    backend: scripted
    model: replay-a
  - id: agent2
    backend: scripted
    system_prompt: "Be terse."
context_paths:
  - path: /tmp/docs
    permission: read
orchestrator:
  coordination:
    enable_refinement: true
    timeout_seconds: 120
    async_subagents:
      inject_progress: true
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Agents, 2)
	assert.Equal(t, "replay-a", cfg.Agents[0].Model)
	assert.Equal(t, "Be terse.", cfg.Agents[1].SystemPrompt)
	assert.True(t, cfg.Orchestrator.Coordination.EnableRefinement)
	assert.Equal(t, 2*time.Minute, cfg.Orchestrator.Coordination.Timeout())
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Orchestrator.Coordination.MaxEnforcementRetries)
	assert.Equal(t, 4, cfg.Orchestrator.Coordination.AsyncSubagents.MaxBackground)
	assert.True(t, cfg.Orchestrator.Coordination.AsyncSubagents.InjectProgress)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
agents:
  - id: agent1
    backend: scripted
orchestrator:
  coordination:
    max_enforcment_retries: 5
`)
	_, err := Load(path)
	require.Error(t, err, "misspelled keys must not be silently dropped")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no agents", func(c *Config) { c.Agents = nil }, "at least one agent"},
		{"duplicate ids", func(c *Config) {
			c.Agents = append(c.Agents, AgentConfig{ID: "agent1", Backend: "scripted"})
		}, "duplicate agent id"},
		{"missing backend", func(c *Config) { c.Agents[0].Backend = "" }, "backend is required"},
		{"skip_voting multi-agent", func(c *Config) {
			c.Agents = append(c.Agents, AgentConfig{ID: "agent2", Backend: "scripted"})
			c.Orchestrator.Coordination.SkipVoting = true
		}, "skip_voting requires exactly one agent"},
		{"bad permission", func(c *Config) {
			c.ContextPaths = []ContextPathConfig{{Path: "/tmp/x", Permission: "rw"}}
		}, "permission must be read or write"},
		{"bad hook event", func(c *Config) {
			c.Hooks = []HookConfig{{Name: "h", Event: "OnToolUse", Command: []string{"x"}}}
		}, "event must be PreToolUse or PostToolUse"},
		{"hook without command", func(c *Config) {
			c.Hooks = []HookConfig{{Name: "h", Event: "PreToolUse"}}
		}, "command is required"},
		{"inverted subagent timeouts", func(c *Config) {
			c.Orchestrator.Coordination.SubagentMinTimeout = 700
		}, "exceeds subagent_max_timeout"},
		{"bad injection strategy", func(c *Config) {
			c.Orchestrator.Coordination.AsyncSubagents.InjectionStrategy = "sms"
		}, "injection_strategy"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"session without path", func(c *Config) {
			c.Session.Enabled = true
			c.Session.Path = ""
		}, "session.path is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGenerateExampleConfigParses(t *testing.T) {
	path := writeConfig(t, GenerateExampleConfig())
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Agents, 2)
	assert.False(t, cfg.Orchestrator.Coordination.DisableInjection)
	assert.True(t, cfg.Orchestrator.Coordination.AsyncSubagents.Enabled)
}

func TestDataDirEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WARP_DATA_DIR", dir)
	assert.Equal(t, dir, DataDir())
	assert.Equal(t, filepath.Join(dir, "runs"), SubDir("runs"))
}
