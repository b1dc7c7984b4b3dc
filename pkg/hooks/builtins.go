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
package hooks

import (
	"context"
	"strings"
)

// ReminderBanner prefixes every injected high-priority reminder.
const ReminderBanner = "⚠️ HIGH PRIORITY TASK REMINDER"

// DrainFunc returns and removes the pending injection payloads for one
// agent. Implementations must be safe for concurrent use.
type DrainFunc func(agentID string) []string

// NewMidStreamInjectionHook builds the PostToolUse hook that delivers peer
// answers into the current tool response. Appending to the tool result
// keeps the conversation prefix intact, which is the cache-friendly delivery
// path for inject-and-continue.
func NewMidStreamInjectionHook(drain DrainFunc) *Hook {
	return &Hook{
		Name:  "mid_stream_injection",
		Event: PostToolUse,
		Handler: HandlerFunc(func(ctx context.Context, event *HookEvent) (*HookResult, error) {
			payloads := drain(event.AgentID)
			if len(payloads) == 0 {
				return nil, nil
			}
			return &HookResult{
				Inject: []Injection{{
					Content:  strings.Join(payloads, "\n\n"),
					Strategy: InjectToolResult,
				}},
			}, nil
		}),
	}
}

// NewHighPriorityTaskReminderHook builds the PostToolUse hook that lifts a
// "reminder" field out of tool-result metadata and re-delivers it as a
// bannered user message, so it survives however deep the tool output gets
// buried.
func NewHighPriorityTaskReminderHook() *Hook {
	return &Hook{
		Name:  "high_priority_task_reminder",
		Event: PostToolUse,
		Handler: HandlerFunc(func(ctx context.Context, event *HookEvent) (*HookResult, error) {
			if event.ToolResult == nil {
				return nil, nil
			}
			reminder := event.ToolResult.Metadata["reminder"]
			if reminder == "" {
				return nil, nil
			}
			return &HookResult{
				Inject: []Injection{{
					Content:  ReminderBanner + "\n\n" + reminder,
					Strategy: InjectUserMessage,
				}},
			}, nil
		}),
	}
}

// NewSubagentCompleteHook builds the PostToolUse hook that drains the
// parent's pending-subagent queue at its next tool boundary. The manager
// formats completed results before queuing; this hook only delivers them.
func NewSubagentCompleteHook(drain DrainFunc, strategy InjectStrategy) *Hook {
	if strategy == "" {
		strategy = InjectToolResult
	}
	return &Hook{
		Name:  "subagent_complete",
		Event: PostToolUse,
		Handler: HandlerFunc(func(ctx context.Context, event *HookEvent) (*HookResult, error) {
			payloads := drain(event.AgentID)
			if len(payloads) == 0 {
				return nil, nil
			}
			return &HookResult{
				Inject: []Injection{{
					Content:  strings.Join(payloads, "\n"),
					Strategy: strategy,
				}},
			}, nil
		}),
	}
}
