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
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/teradata-labs/warp/internal/tokens"
	"github.com/teradata-labs/warp/pkg/hooks"
	"github.com/teradata-labs/warp/pkg/trace"
	"github.com/teradata-labs/warp/pkg/types"
)

// DefaultToolTimeout bounds one tool execution.
const DefaultToolTimeout = 60 * time.Second

// Outcome is what one pipeline pass produces for the agent runner.
type Outcome struct {
	// Result is the structured tool result; always non-nil for
	// non-workflow calls
	Result *types.ToolResult

	// Rendered is the in-context text for the result, after normalization,
	// eviction, and tool_result injections
	Rendered string

	// UserMessages carries user_message injections to append after the
	// tool turn
	UserMessages []string

	// Workflow is non-nil when the call was a terminal workflow tool; the
	// streamed turn ends and the scheduler takes over
	Workflow *WorkflowCall

	// Unknown is true when the tool name resolved to nothing
	Unknown bool
}

// Executor runs the tool pipeline for one agent. Each agent runner owns its
// own executor so eviction files and traces stay per-agent.
type Executor struct {
	registry  *Registry
	hooks     *hooks.Registry
	evictions *EvictionStore
	recorder  *trace.Recorder
	logger    *zap.Logger

	sessionID string
	agentID   string

	toolTimeout time.Duration

	// planningMode describes side-effecting tools instead of executing
	// them; presenting lifts the restriction for the winner's final turn
	planningMode bool
	presenting   func() bool
}

// ExecutorConfig wires one executor.
type ExecutorConfig struct {
	Registry     *Registry
	Hooks        *hooks.Registry
	Evictions    *EvictionStore
	Recorder     *trace.Recorder
	Logger       *zap.Logger
	SessionID    string
	AgentID      string
	ToolTimeout  time.Duration
	PlanningMode bool
	Presenting   func() bool
}

// NewExecutor creates a tool executor for one agent.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	if cfg.Presenting == nil {
		cfg.Presenting = func() bool { return false }
	}
	return &Executor{
		registry:     cfg.Registry,
		hooks:        cfg.Hooks,
		evictions:    cfg.Evictions,
		recorder:     cfg.Recorder,
		logger:       cfg.Logger,
		sessionID:    cfg.SessionID,
		agentID:      cfg.AgentID,
		toolTimeout:  cfg.ToolTimeout,
		planningMode: cfg.PlanningMode,
		presenting:   cfg.Presenting,
	}
}

// SetPresenting replaces the presentation probe. Called once at wiring time
// when the runner is built after its executor.
func (e *Executor) SetPresenting(fn func() bool) {
	if fn != nil {
		e.presenting = fn
	}
}

// Execute runs the full pipeline for one tool call.
func (e *Executor) Execute(ctx context.Context, call types.ToolCall) *Outcome {
	e.traceCall(call)

	desc, ok := e.registry.Resolve(call.Name)
	if !ok {
		result := types.NewErrorResult("unknown_tool",
			fmt.Sprintf("tool %s is not registered", call.Name),
			"call one of the registered tools, or the workflow tools new_answer / vote")
		e.traceResult(call.Name, result)
		return &Outcome{Result: result, Rendered: renderResult(result), Unknown: true}
	}

	// Workflow tools are terminal: decoded and handed to the scheduler,
	// never executed here.
	if desc.IsWorkflow {
		wf, err := decodeWorkflowCall(call.Name, call.Input)
		if err != nil {
			result := types.NewErrorResult("invalid_workflow_call", err.Error(), "")
			e.traceResult(call.Name, result)
			return &Outcome{Result: result, Rendered: renderResult(result)}
		}
		return &Outcome{Workflow: wf}
	}

	if result := e.validateInput(desc, call.Input); result != nil {
		e.traceResult(call.Name, result)
		return &Outcome{Result: result, Rendered: renderResult(result)}
	}

	input := call.Input
	pre := e.hooks.Fire(ctx, &hooks.HookEvent{
		ID:        call.ID,
		Event:     hooks.PreToolUse,
		ToolName:  call.Name,
		ToolInput: input,
		SessionID: e.sessionID,
		AgentID:   e.agentID,
	})
	if pre.Denied {
		result := types.NewErrorResult("hook_denied", pre.Reason, "")
		e.traceResult(call.Name, result)
		return &Outcome{Result: result, Rendered: renderResult(result)}
	}
	if pre.UpdatedInput != nil {
		input = pre.UpdatedInput
	}

	result := e.run(ctx, desc, input)

	rendered := renderResult(result)
	if e.evictions != nil && result.Success && tokens.Estimate(rendered) > EvictionTokenThreshold {
		ref, message, err := e.evictions.Store(call.Name, rendered)
		if err != nil {
			e.logger.Warn("Large-result eviction failed, keeping inline",
				zap.String("tool", call.Name),
				zap.Error(err))
		} else {
			result.DataReference = ref
			result.Data = message
			rendered = message
		}
	}

	outcome := &Outcome{Result: result, Rendered: rendered}

	post := e.hooks.Fire(ctx, &hooks.HookEvent{
		ID:         call.ID,
		Event:      hooks.PostToolUse,
		ToolName:   call.Name,
		ToolInput:  input,
		ToolResult: result,
		SessionID:  e.sessionID,
		AgentID:    e.agentID,
	})
	for _, inj := range post.Injections {
		switch inj.Strategy {
		case hooks.InjectUserMessage:
			outcome.UserMessages = append(outcome.UserMessages, inj.Content)
		default:
			outcome.Rendered += "\n\n" + inj.Content
		}
	}

	e.traceResult(call.Name, result)
	return outcome
}

// run executes the tool with its timeout, honoring planning mode.
func (e *Executor) run(ctx context.Context, desc *Descriptor, input map[string]interface{}) *types.ToolResult {
	if e.planningMode && !e.presenting() && isSideEffecting(desc.Tool) {
		return &types.ToolResult{
			Success: true,
			Data: fmt.Sprintf("[planning mode] %s was described, not executed. It would run with input: %s",
				desc.Name, compactJSON(input)),
			Metadata: map[string]string{"planning_mode": "described"},
		}
	}

	tctx, cancel := context.WithTimeout(ctx, e.toolTimeout)
	defer cancel()

	start := time.Now()
	result, err := desc.Tool.Execute(tctx, input)
	elapsed := time.Since(start)

	if err != nil {
		code := "execution_failed"
		if tctx.Err() == context.DeadlineExceeded {
			code = "tool_timeout"
		}
		result = types.NewErrorResult(code, err.Error(), "")
	}
	if result == nil {
		result = &types.ToolResult{Success: true}
	}
	// Executor timing is authoritative.
	result.ExecutionTimeMs = elapsed.Milliseconds()
	return result
}

// validateInput checks arguments against the declared schema. Violations
// synthesize an error result without executing.
func (e *Executor) validateInput(desc *Descriptor, input map[string]interface{}) *types.ToolResult {
	if desc.Schema == nil || len(desc.Schema.Properties) == 0 {
		return nil
	}
	if input == nil {
		input = map[string]interface{}{}
	}
	docLoader := gojsonschema.NewGoLoader(input)
	schemaLoader := gojsonschema.NewGoLoader(desc.Schema.ToMap())
	validation, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		e.logger.Warn("Schema validation unavailable",
			zap.String("tool", desc.Name),
			zap.Error(err))
		return nil
	}
	if validation.Valid() {
		return nil
	}
	msgs := ""
	for _, verr := range validation.Errors() {
		if msgs != "" {
			msgs += "; "
		}
		msgs += verr.String()
	}
	return types.NewErrorResult("invalid_arguments", msgs, "fix the arguments to match the tool schema")
}

// isSideEffecting reports whether a tool mutates external state.
func isSideEffecting(t Tool) bool {
	if se, ok := t.(SideEffecting); ok {
		return se.SideEffecting()
	}
	return false
}

// renderResult produces the in-context text for a result.
func renderResult(r *types.ToolResult) string {
	if r == nil {
		return ""
	}
	if r.Error != nil {
		return fmt.Sprintf("Error (%s): %s", r.Error.Code, r.Error.Message)
	}
	if r.Data == nil {
		return "(no output)"
	}
	if s, ok := r.Data.(string); ok {
		return s
	}
	data, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Sprintf("%v", r.Data)
	}
	return string(data)
}

// compactJSON renders input for planning-mode descriptions.
func compactJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func (e *Executor) traceCall(call types.ToolCall) {
	if e.recorder != nil {
		e.recorder.ToolCall(call)
	}
}

func (e *Executor) traceResult(name string, result *types.ToolResult) {
	if e.recorder != nil {
		e.recorder.ToolResult(name, result)
	}
}
