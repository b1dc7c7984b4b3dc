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
package subagent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/teradata-labs/warp/pkg/observability"
	"github.com/teradata-labs/warp/pkg/tools"
	"github.com/teradata-labs/warp/pkg/types"
)

// RegisterTools adds spawn_subagents and check_subagent_status for one
// parent agent.
func RegisterTools(r *tools.Registry, m *Manager, parentID string) {
	r.RegisterBuiltin(&tools.ToolFunc{
		ToolName: "spawn_subagents",
		ToolDescription: "Delegate tasks to nested agents. Blocking by default; " +
			"async=true returns immediately and results arrive at a later tool boundary.",
		Schema: tools.NewObjectSchema("", map[string]*tools.JSONSchema{
			"context": tools.NewStringSchema("Shared context prepended to every task"),
			"tasks": tools.NewArraySchema("Task descriptions, one subagent each",
				tools.NewStringSchema("task text")),
			"async":           tools.NewBooleanSchema("Return immediately and deliver results later").WithDefault(false),
			"timeout_seconds": tools.NewNumberSchema("Per-task timeout; clamped to the configured range"),
		}, []string{"tasks"}),
		Mutating: true,
		Fn: func(ctx context.Context, params map[string]interface{}) (*types.ToolResult, error) {
			prompts := taskPrompts(params)
			if len(prompts) == 0 {
				return types.NewErrorResult("invalid_arguments", "tasks must be a non-empty array of strings", ""), nil
			}
			timeout := time.Duration(floatParam(params, "timeout_seconds")) * time.Second
			async, _ := params["async"].(bool)

			if async {
				ids := m.SpawnAsync(ctx, parentID, prompts, timeout)
				return &types.ToolResult{
					Success: true,
					Data: fmt.Sprintf("Started %d subagents in the background: %s. Results will arrive after a later tool call.",
						len(ids), strings.Join(ids, ", ")),
				}, nil
			}

			results := m.SpawnBlocking(ctx, parentID, prompts, timeout)
			return &types.ToolResult{Success: true, Data: FormatResults(results)}, nil
		},
	})

	r.RegisterBuiltin(&tools.ToolFunc{
		ToolName:        "check_subagent_status",
		ToolDescription: "Check a background subagent's progress by id.",
		Schema: tools.NewObjectSchema("", map[string]*tools.JSONSchema{
			"id": tools.NewStringSchema("Subagent id returned by spawn_subagents"),
		}, []string{"id"}),
		Fn: func(ctx context.Context, params map[string]interface{}) (*types.ToolResult, error) {
			id, _ := params["id"].(string)
			st, err := observability.ReadStatus(StatusPath(m.childRunDir(id)))
			if err != nil {
				return types.NewErrorResult("status_unavailable",
					fmt.Sprintf("no status for subagent %s: %v", id, err),
					"the subagent may not have started yet"), nil
			}
			view := observability.DeriveView(st)
			return &types.ToolResult{Success: true, Data: view}, nil
		},
	})
}

// childRunDir locates a subagent's run directory by id.
func (m *Manager) childRunDir(id string) string {
	return fmt.Sprintf("%s/subagents/%s", m.runDir, id)
}

// taskPrompts flattens the tool arguments into per-subagent prompts, with
// the shared context prepended.
func taskPrompts(params map[string]interface{}) []string {
	shared, _ := params["context"].(string)
	raw, _ := params["tasks"].([]interface{})
	var prompts []string
	for _, t := range raw {
		s, ok := t.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		if shared != "" {
			s = shared + "\n\n" + s
		}
		prompts = append(prompts, s)
	}
	return prompts
}

func floatParam(params map[string]interface{}, key string) float64 {
	if v, ok := params[key].(float64); ok {
		return v
	}
	return 0
}
