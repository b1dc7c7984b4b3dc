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
package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	warpconfig "github.com/teradata-labs/warp/pkg/config"
	"github.com/teradata-labs/warp/pkg/types"
)

func testConfig(t *testing.T, agents ...warpconfig.AgentConfig) *warpconfig.Config {
	t.Helper()
	t.Setenv("WARP_DATA_DIR", t.TempDir())
	cfg, err := warpconfig.Load("")
	require.NoError(t, err)
	cfg.Agents = agents
	cfg.Session.Enabled = false
	cfg.Orchestrator.Coordination.AsyncSubagents.Enabled = false
	return cfg
}

func TestBuildAgentSpecsDryRun(t *testing.T) {
	cfg := testConfig(t,
		warpconfig.AgentConfig{ID: "agent1", Backend: "scripted", Model: "replay-a"},
		warpconfig.AgentConfig{ID: "agent2", Backend: "scripted"},
	)
	cfg.ContextPaths = []warpconfig.ContextPathConfig{
		{Path: "/tmp/docs", Permission: "read"},
	}

	specs, err := buildAgentSpecs(cfg, true)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "agent1", specs[0].ID)
	assert.NotNil(t, specs[0].Backend)
	require.Len(t, specs[0].ContextPaths, 1)
	assert.Equal(t, types.PermissionRead, specs[0].ContextPaths[0].Permission)
}

func TestBuildAgentSpecsUnknownBackend(t *testing.T) {
	cfg := testConfig(t, warpconfig.AgentConfig{ID: "agent1", Backend: "anthropic"})
	_, err := buildAgentSpecs(cfg, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestBuildAgentSpecsRequiresScript(t *testing.T) {
	cfg := testConfig(t, warpconfig.AgentConfig{ID: "agent1", Backend: "scripted"})
	_, err := buildAgentSpecs(cfg, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script_path is required")
}

func TestBuildAgentSpecsLoadsScript(t *testing.T) {
	script := filepath.Join(t.TempDir(), "agent1.yaml")
	require.NoError(t, os.WriteFile(script, []byte(`
turns:
  - tool_calls:
      - name: new_answer
        input:
          content: "scripted answer"
`), 0o644))

	cfg := testConfig(t, warpconfig.AgentConfig{ID: "agent1", Backend: "scripted", ScriptPath: script})
	specs, err := buildAgentSpecs(cfg, false)
	require.NoError(t, err)
	require.Len(t, specs, 1)
}

func TestExecuteRunDryRun(t *testing.T) {
	cfg := testConfig(t,
		warpconfig.AgentConfig{ID: "agent1", Backend: "scripted"},
		warpconfig.AgentConfig{ID: "agent2", Backend: "scripted"},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := executeRun(ctx, cfg, t.TempDir(), "summarize the plan", true, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, types.PhaseDone, result.Phase)
	// Both agents endorse their own answer; the tie resolves to whichever
	// answer landed first.
	assert.Contains(t, []string{"agent1.1", "agent2.1"}, result.Winner)
	assert.Contains(t, result.Content, "Dry-run answer from")
	assert.Len(t, result.Answers, 2)
}
