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
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// LoadError marks a handler that could not be loaded at all (missing
// external command, broken registration). Load errors fail closed: the tool
// call is denied.
type LoadError struct {
	Hook string
	Err  error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("hook %s failed to load: %v", e.Hook, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error { return e.Err }

// Registry holds global and per-agent hooks and fires them with the spec'd
// aggregation: any deny wins, updated_input chains in registration order,
// injections concatenate.
type Registry struct {
	logger *zap.Logger

	mu       sync.RWMutex
	global   []*Hook
	perAgent map[string][]*Hook
}

// NewRegistry creates an empty hook registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:   logger,
		perAgent: make(map[string][]*Hook),
	}
}

// RegisterGlobal adds a hook that applies to every agent.
func (r *Registry) RegisterGlobal(h *Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = append(r.global, h)
}

// RegisterForAgent adds a hook for one agent. Per-agent hooks extend the
// globals by default; a hook with Override replaces the globals for its
// event.
func (r *Registry) RegisterForAgent(agentID string, h *Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perAgent[agentID] = append(r.perAgent[agentID], h)
}

// hooksFor resolves the effective hook chain for one agent and event, in
// registration order (globals first unless overridden).
func (r *Registry) hooksFor(agentID string, event Event) []*Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agentHooks := make([]*Hook, 0)
	override := false
	for _, h := range r.perAgent[agentID] {
		if h.Event != event {
			continue
		}
		agentHooks = append(agentHooks, h)
		if h.Override {
			override = true
		}
	}
	if override {
		return agentHooks
	}

	chain := make([]*Hook, 0, len(r.global)+len(agentHooks))
	for _, h := range r.global {
		if h.Event == event {
			chain = append(chain, h)
		}
	}
	return append(chain, agentHooks...)
}

// Fire runs every matching hook for the event and aggregates the results.
// Handler timeouts and runtime errors fail open (logged, skipped); load
// errors fail closed (the aggregate denies).
func (r *Registry) Fire(ctx context.Context, event *HookEvent) *Aggregate {
	agg := &Aggregate{}
	input := event.ToolInput

	for _, h := range r.hooksFor(event.AgentID, event.Event) {
		if !Matches(h.Matcher, event.ToolName) {
			continue
		}

		timeout := h.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hctx, cancel := context.WithTimeout(ctx, timeout)

		// Hand the handler the current input so updated_input chains.
		ev := *event
		ev.ToolInput = input
		result, err := h.Handler.Run(hctx, &ev)
		cancel()

		if err != nil {
			var loadErr *LoadError
			if errors.As(err, &loadErr) {
				r.logger.Error("Hook load failure, denying tool",
					zap.String("hook", h.Name),
					zap.String("tool", event.ToolName),
					zap.Error(err))
				agg.Denied = true
				if agg.Reason == "" {
					agg.Reason = loadErr.Error()
				}
				return agg
			}
			// Timeout or runtime failure: fail open.
			r.logger.Warn("Hook failed, continuing",
				zap.String("hook", h.Name),
				zap.String("tool", event.ToolName),
				zap.Error(err))
			continue
		}
		if result == nil {
			continue
		}

		switch result.Decision {
		case DecisionDeny:
			agg.Denied = true
			if agg.Reason == "" {
				agg.Reason = result.Reason
			}
		case DecisionAsk:
			agg.Asked = true
			if agg.Reason == "" {
				agg.Reason = result.Reason
			}
		}
		if result.UpdatedInput != nil {
			input = result.UpdatedInput
			agg.UpdatedInput = result.UpdatedInput
		}
		agg.Injections = append(agg.Injections, result.Inject...)
	}

	// Any deny wins regardless of later hooks' opinions.
	if agg.Denied {
		agg.Asked = false
	}
	return agg
}
