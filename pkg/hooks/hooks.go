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
// Package hooks is the tool pipeline's extension seam. PreToolUse hooks may
// deny a call or rewrite its input; PostToolUse hooks may inject content
// back into the conversation. Handlers are in-process callables or external
// commands speaking a one-line JSON stdin/stdout protocol. Handlers receive
// a copy of the tool event and never touch coordinator state directly.
package hooks

import (
	"context"
	"time"

	"github.com/teradata-labs/warp/pkg/types"
)

// Event is a hook event type.
type Event string

const (
	PreToolUse  Event = "PreToolUse"
	PostToolUse Event = "PostToolUse"
)

// Decision is a PreToolUse verdict.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
	DecisionAsk   Decision = "ask"
)

// InjectStrategy says where injected content lands.
type InjectStrategy string

const (
	// InjectToolResult appends to the current tool result. Cache-friendly:
	// the conversation prefix is untouched.
	InjectToolResult InjectStrategy = "tool_result"

	// InjectUserMessage adds a follow-up user message after the tool turn.
	InjectUserMessage InjectStrategy = "user_message"
)

// DefaultTimeout bounds a single handler invocation.
const DefaultTimeout = 30 * time.Second

// HookEvent is the payload a handler receives. External handlers get it as
// one JSON line on stdin.
type HookEvent struct {
	// ID uniquely identifies this event
	ID string `json:"id"`

	// Event is PreToolUse or PostToolUse
	Event Event `json:"event"`

	// ToolName is the namespaced tool name
	ToolName string `json:"tool_name"`

	// ToolInput is the (possibly already rewritten) tool input
	ToolInput map[string]interface{} `json:"tool_input,omitempty"`

	// ToolResult is set for PostToolUse events
	ToolResult *types.ToolResult `json:"tool_result,omitempty"`

	// SessionID identifies the coordination run
	SessionID string `json:"session_id"`

	// AgentID identifies the calling agent
	AgentID string `json:"agent_id"`
}

// Injection is one PostToolUse content injection.
type Injection struct {
	Content  string         `json:"content"`
	Strategy InjectStrategy `json:"strategy"`
}

// HookResult is a handler's response. External handlers write it as one JSON
// line on stdout.
type HookResult struct {
	// Decision applies to PreToolUse; empty means allow
	Decision Decision `json:"decision,omitempty"`

	// Reason explains a deny or ask
	Reason string `json:"reason,omitempty"`

	// UpdatedInput replaces the tool input when non-nil (PreToolUse)
	UpdatedInput map[string]interface{} `json:"updated_input,omitempty"`

	// Inject carries PostToolUse content injections
	Inject []Injection `json:"inject,omitempty"`
}

// Handler processes one hook event.
type Handler interface {
	// Run handles the event. Returning an error counts as a runtime
	// failure: the registry fails open and continues.
	Run(ctx context.Context, event *HookEvent) (*HookResult, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event *HookEvent) (*HookResult, error)

// Run implements Handler.
func (f HandlerFunc) Run(ctx context.Context, event *HookEvent) (*HookResult, error) {
	return f(ctx, event)
}

// Hook is one registered hook.
type Hook struct {
	// Name identifies the hook in logs
	Name string

	// Event selects PreToolUse or PostToolUse
	Event Event

	// Matcher is a glob pattern on the tool name; empty matches all
	Matcher string

	// Handler processes matching events
	Handler Handler

	// Timeout bounds one invocation; zero means DefaultTimeout
	Timeout time.Duration

	// Override, on a per-agent hook, replaces the globals for this event
	// instead of extending them
	Override bool
}

// Aggregate is the combined outcome of every matching hook for one event.
type Aggregate struct {
	// Denied is true when any hook denied; Reason carries the first denial
	Denied bool
	Reason string

	// Asked is true when a hook requested confirmation and nothing denied
	Asked bool

	// UpdatedInput is the final input after chaining updated_input values in
	// registration order; nil when no hook modified it
	UpdatedInput map[string]interface{}

	// Injections concatenates every inject payload in registration order
	Injections []Injection
}
