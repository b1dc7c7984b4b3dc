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
	"sort"
	"sync"

	"github.com/teradata-labs/warp/pkg/backend"
	"github.com/teradata-labs/warp/pkg/mcp"
	"github.com/teradata-labs/warp/pkg/types"
)

// Namespace prefixes. Workflow tools stay bare.
const (
	CustomPrefix = "custom_tool__"
	MCPPrefix    = "mcp__"
)

// Descriptor is one registry entry: tool names are data, dispatch is by
// name, and backends see only the schema-exposed subset.
type Descriptor struct {
	// Name is the fully namespaced name
	Name string

	// Tool executes the call; nil for workflow tools
	Tool Tool

	// IsWorkflow marks the two terminal tools
	IsWorkflow bool

	// Schema is the declared input schema
	Schema *JSONSchema

	// Description is surfaced to backends
	Description string
}

// Registry maps namespaced tool names to descriptors.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Descriptor
}

// NewRegistry creates a registry pre-loaded with the two workflow tools.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]*Descriptor)}
	r.tools[WorkflowNewAnswer] = &Descriptor{
		Name:        WorkflowNewAnswer,
		IsWorkflow:  true,
		Schema:      NewAnswerSchema(),
		Description: NewAnswerSchema().Description,
	}
	r.tools[WorkflowVote] = &Descriptor{
		Name:        WorkflowVote,
		IsWorkflow:  true,
		Schema:      VoteSchema(),
		Description: VoteSchema().Description,
	}
	return r
}

// RegisterBuiltin registers a tool under its bare name (workspace tools,
// subagent tools).
func (r *Registry) RegisterBuiltin(tool Tool) {
	r.register(tool.Name(), tool)
}

// RegisterCustom registers an in-process tool under the custom_tool__
// namespace.
func (r *Registry) RegisterCustom(tool Tool) {
	r.register(CustomPrefix+tool.Name(), tool)
}

// register stores a descriptor, replacing any previous registration.
func (r *Registry) register(name string, tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = &Descriptor{
		Name:        name,
		Tool:        tool,
		Schema:      tool.InputSchema(),
		Description: tool.Description(),
	}
}

// DiscoverMCP lists a server's tools once and registers proxies under
// mcp__<server>__<tool>. The allow and deny lists filter by bare tool name;
// an empty allow list admits everything not denied.
func (r *Registry) DiscoverMCP(ctx context.Context, caller mcp.Caller, allow, deny []string) (int, error) {
	defs, err := caller.ListTools(ctx)
	if err != nil {
		return 0, fmt.Errorf("MCP discovery failed for %s: %w", caller.ServerName(), err)
	}

	allowed := make(map[string]bool, len(allow))
	for _, name := range allow {
		allowed[name] = true
	}
	denied := make(map[string]bool, len(deny))
	for _, name := range deny {
		denied[name] = true
	}

	count := 0
	for _, def := range defs {
		if denied[def.Name] {
			continue
		}
		if len(allowed) > 0 && !allowed[def.Name] {
			continue
		}
		proxy := newMCPProxy(caller, def)
		r.register(MCPPrefix+caller.ServerName()+"__"+def.Name, proxy)
		count++
	}
	return count, nil
}

// Resolve returns the descriptor for a namespaced name.
func (r *Registry) Resolve(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// Names returns every registered namespaced name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the tool schemas exposed to a backend. When skipVoting is
// set the vote tool is withheld entirely (single-agent quick mode).
func (r *Registry) Schemas(skipVoting bool) []backend.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]backend.ToolSchema, 0, len(r.tools))
	for name, d := range r.tools {
		if skipVoting && name == WorkflowVote {
			continue
		}
		schemas = append(schemas, backend.ToolSchema{
			Name:        name,
			Description: d.Description,
			InputSchema: d.Schema.ToMap(),
		})
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// mcpProxy adapts one discovered MCP tool to the Tool interface, applying
// result normalization on every call.
type mcpProxy struct {
	caller mcp.Caller
	def    mcp.Tool
	schema *JSONSchema
}

func newMCPProxy(caller mcp.Caller, def mcp.Tool) *mcpProxy {
	schema := &JSONSchema{Type: "object"}
	if def.InputSchema != nil {
		// Best effort; a schemaless tool validates as a bare object.
		if raw, err := json.Marshal(def.InputSchema); err == nil {
			_ = json.Unmarshal(raw, schema)
		}
	}
	return &mcpProxy{caller: caller, def: def, schema: schema}
}

// Name implements Tool.
func (p *mcpProxy) Name() string { return p.def.Name }

// Description implements Tool.
func (p *mcpProxy) Description() string { return p.def.Description }

// InputSchema implements Tool.
func (p *mcpProxy) InputSchema() *JSONSchema { return p.schema }

// Execute implements Tool. The raw CallToolResult never reaches the
// context: Normalize strips wrapper metadata and duplicated structured
// content down to the text payload.
func (p *mcpProxy) Execute(ctx context.Context, params map[string]interface{}) (*types.ToolResult, error) {
	result, err := p.caller.CallTool(ctx, p.def.Name, params)
	if err != nil {
		return &types.ToolResult{
			Success: false,
			Error: &types.ToolError{
				Code:      "mcp_execution_failed",
				Message:   err.Error(),
				Retryable: true,
			},
		}, nil
	}
	data := mcp.Normalize(result)
	if result.IsError {
		msg, _ := data.(string)
		return &types.ToolResult{
			Success: false,
			Error:   &types.ToolError{Code: "mcp_tool_error", Message: msg},
		}, nil
	}
	return &types.ToolResult{Success: true, Data: data}, nil
}
