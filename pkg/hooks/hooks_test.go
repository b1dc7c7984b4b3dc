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
	"errors"
	"testing"
	"time"

	"github.com/teradata-labs/warp/pkg/types"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		matcher string
		tool    string
		want    bool
	}{
		{"", "anything", true},
		{"new_answer", "new_answer", true},
		{"new_answer", "vote", false},
		{"mcp__db__*", "mcp__db__query", true},
		{"mcp__db__*", "mcp__files__read", false},
		{"custom_tool__*", "custom_tool__search", true},
		{"[", "anything", false}, // malformed pattern matches nothing
	}
	for _, tt := range tests {
		if got := Matches(tt.matcher, tt.tool); got != tt.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", tt.matcher, tt.tool, got, tt.want)
		}
	}
}

func allowHandler(result *HookResult) Handler {
	return HandlerFunc(func(ctx context.Context, event *HookEvent) (*HookResult, error) {
		return result, nil
	})
}

func TestFireDenyWins(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterGlobal(&Hook{Name: "allow", Event: PreToolUse, Handler: allowHandler(&HookResult{})})
	r.RegisterGlobal(&Hook{Name: "deny", Event: PreToolUse, Handler: allowHandler(&HookResult{Decision: DecisionDeny, Reason: "blocked by policy"})})
	r.RegisterGlobal(&Hook{Name: "ask", Event: PreToolUse, Handler: allowHandler(&HookResult{Decision: DecisionAsk})})

	agg := r.Fire(context.Background(), &HookEvent{Event: PreToolUse, ToolName: "write_file", AgentID: "agent1"})
	if !agg.Denied {
		t.Fatal("expected deny to win")
	}
	if agg.Reason != "blocked by policy" {
		t.Errorf("reason = %q", agg.Reason)
	}
	if agg.Asked {
		t.Error("ask should not survive a deny")
	}
}

func TestFireUpdatedInputChains(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterGlobal(&Hook{Event: PreToolUse, Handler: HandlerFunc(func(ctx context.Context, ev *HookEvent) (*HookResult, error) {
		in := map[string]interface{}{}
		for k, v := range ev.ToolInput {
			in[k] = v
		}
		in["first"] = true
		return &HookResult{UpdatedInput: in}, nil
	})})
	r.RegisterGlobal(&Hook{Event: PreToolUse, Handler: HandlerFunc(func(ctx context.Context, ev *HookEvent) (*HookResult, error) {
		// Must observe the first hook's rewrite.
		if ev.ToolInput["first"] != true {
			t.Error("second hook did not see chained input")
		}
		in := map[string]interface{}{}
		for k, v := range ev.ToolInput {
			in[k] = v
		}
		in["second"] = true
		return &HookResult{UpdatedInput: in}, nil
	})})

	agg := r.Fire(context.Background(), &HookEvent{
		Event:     PreToolUse,
		ToolName:  "read_file",
		AgentID:   "agent1",
		ToolInput: map[string]interface{}{"path": "a.md"},
	})
	if agg.UpdatedInput["first"] != true || agg.UpdatedInput["second"] != true {
		t.Errorf("chained input = %v", agg.UpdatedInput)
	}
	if agg.UpdatedInput["path"] != "a.md" {
		t.Error("original input lost in chain")
	}
}

func TestFireInjectionsConcatenate(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterGlobal(&Hook{Event: PostToolUse, Handler: allowHandler(&HookResult{Inject: []Injection{{Content: "one", Strategy: InjectToolResult}}})})
	r.RegisterGlobal(&Hook{Event: PostToolUse, Handler: allowHandler(&HookResult{Inject: []Injection{{Content: "two", Strategy: InjectUserMessage}}})})

	agg := r.Fire(context.Background(), &HookEvent{Event: PostToolUse, ToolName: "query", AgentID: "agent1"})
	if len(agg.Injections) != 2 {
		t.Fatalf("injections = %d", len(agg.Injections))
	}
	if agg.Injections[0].Content != "one" || agg.Injections[1].Content != "two" {
		t.Error("injection order not preserved")
	}
}

func TestFireMatcherFilters(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterGlobal(&Hook{Event: PreToolUse, Matcher: "mcp__db__*", Handler: allowHandler(&HookResult{Decision: DecisionDeny})})

	agg := r.Fire(context.Background(), &HookEvent{Event: PreToolUse, ToolName: "read_file", AgentID: "agent1"})
	if agg.Denied {
		t.Error("non-matching hook fired")
	}
	agg = r.Fire(context.Background(), &HookEvent{Event: PreToolUse, ToolName: "mcp__db__query", AgentID: "agent1"})
	if !agg.Denied {
		t.Error("matching hook did not fire")
	}
}

func TestPerAgentOverride(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterGlobal(&Hook{Name: "global_deny", Event: PreToolUse, Handler: allowHandler(&HookResult{Decision: DecisionDeny})})
	r.RegisterForAgent("agent2", &Hook{Name: "agent_allow", Event: PreToolUse, Override: true, Handler: allowHandler(&HookResult{})})

	// agent1 keeps the global.
	if agg := r.Fire(context.Background(), &HookEvent{Event: PreToolUse, ToolName: "x", AgentID: "agent1"}); !agg.Denied {
		t.Error("global hook skipped for agent1")
	}
	// agent2's override replaces the global chain.
	if agg := r.Fire(context.Background(), &HookEvent{Event: PreToolUse, ToolName: "x", AgentID: "agent2"}); agg.Denied {
		t.Error("override did not replace global hooks")
	}
}

func TestRuntimeErrorFailsOpen(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterGlobal(&Hook{Event: PreToolUse, Handler: HandlerFunc(func(ctx context.Context, ev *HookEvent) (*HookResult, error) {
		return nil, errors.New("handler crashed")
	})})
	agg := r.Fire(context.Background(), &HookEvent{Event: PreToolUse, ToolName: "x", AgentID: "agent1"})
	if agg.Denied {
		t.Error("runtime error should fail open")
	}
}

func TestTimeoutFailsOpen(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterGlobal(&Hook{
		Event:   PreToolUse,
		Timeout: 10 * time.Millisecond,
		Handler: HandlerFunc(func(ctx context.Context, ev *HookEvent) (*HookResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	})
	agg := r.Fire(context.Background(), &HookEvent{Event: PreToolUse, ToolName: "x", AgentID: "agent1"})
	if agg.Denied {
		t.Error("timeout should fail open")
	}
}

func TestLoadErrorFailsClosed(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterGlobal(&Hook{Name: "broken", Event: PreToolUse, Handler: HandlerFunc(func(ctx context.Context, ev *HookEvent) (*HookResult, error) {
		return nil, &LoadError{Hook: "broken", Err: errors.New("module missing")}
	})})
	agg := r.Fire(context.Background(), &HookEvent{Event: PreToolUse, ToolName: "x", AgentID: "agent1"})
	if !agg.Denied {
		t.Error("load error should fail closed")
	}
}

func TestExternalHandlerMissingCommand(t *testing.T) {
	h := NewExternalHandler("/nonexistent/hook-command-for-test")
	_, err := h.Run(context.Background(), &HookEvent{Event: PreToolUse, ToolName: "x"})
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Errorf("expected LoadError, got %v", err)
	}
}

func TestExternalHandlerProtocol(t *testing.T) {
	// cat echoes the event back; it is not a valid HookResult but proves
	// stdin/stdout plumbing. Use a shell to emit a proper result instead.
	h := NewExternalHandler("sh", "-c", `read line; echo '{"decision":"deny","reason":"external policy"}'`)
	result, err := h.Run(context.Background(), &HookEvent{Event: PreToolUse, ToolName: "write_file", AgentID: "agent1", SessionID: "s1"})
	if err != nil {
		t.Fatalf("external handler failed: %v", err)
	}
	if result.Decision != DecisionDeny || result.Reason != "external policy" {
		t.Errorf("result = %+v", result)
	}
}

func TestExternalHandlerEnvironment(t *testing.T) {
	h := NewExternalHandler("sh", "-c", `printf '{"reason":"%s/%s"}' "$HOOK_TYPE" "$TOOL_NAME"`)
	result, err := h.Run(context.Background(), &HookEvent{Event: PostToolUse, ToolName: "vote", AgentID: "agent1"})
	if err != nil {
		t.Fatalf("external handler failed: %v", err)
	}
	if result.Reason != "PostToolUse/vote" {
		t.Errorf("env not passed: %q", result.Reason)
	}
}

func TestMidStreamInjectionHook(t *testing.T) {
	pending := map[string][]string{"agent2": {"UPDATE: agent1.1 submitted"}}
	h := NewMidStreamInjectionHook(func(agentID string) []string {
		out := pending[agentID]
		pending[agentID] = nil
		return out
	})

	result, err := h.Handler.Run(context.Background(), &HookEvent{Event: PostToolUse, ToolName: "read_file", AgentID: "agent2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Inject) != 1 || result.Inject[0].Strategy != InjectToolResult {
		t.Fatalf("result = %+v", result)
	}

	// Second fire finds the queue drained.
	result, err = h.Handler.Run(context.Background(), &HookEvent{Event: PostToolUse, ToolName: "read_file", AgentID: "agent2"})
	if err != nil || result != nil {
		t.Errorf("expected nil result on drained queue, got %+v, %v", result, err)
	}
}

func TestHighPriorityTaskReminderHook(t *testing.T) {
	h := NewHighPriorityTaskReminderHook()
	result, err := h.Handler.Run(context.Background(), &HookEvent{
		Event:      PostToolUse,
		ToolName:   "query",
		AgentID:    "agent1",
		ToolResult: &types.ToolResult{Success: true, Metadata: map[string]string{"reminder": "submit your answer"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Inject) != 1 || result.Inject[0].Strategy != InjectUserMessage {
		t.Fatalf("result = %+v", result)
	}
	if want := ReminderBanner + "\n\nsubmit your answer"; result.Inject[0].Content != want {
		t.Errorf("content = %q", result.Inject[0].Content)
	}

	// No reminder field, no injection.
	result, err = h.Handler.Run(context.Background(), &HookEvent{
		Event:      PostToolUse,
		ToolResult: &types.ToolResult{Success: true},
	})
	if err != nil || result != nil {
		t.Errorf("expected nil result, got %+v", result)
	}
}
