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
// Package tools is the single chokepoint for every tool invocation a
// backend emits: built-in workspace tools, custom in-process tools, MCP
// proxies, and the two terminal workflow tools (new_answer, vote). The
// executor runs the full pipeline — namespace resolution, schema
// validation, PreToolUse hooks, execution, MCP normalization, large-result
// eviction, PostToolUse hooks, trace append.
package tools

import (
	"context"
	"encoding/json"

	"github.com/teradata-labs/warp/pkg/types"
)

// Tool is one executable capability exposed to a backend.
type Tool interface {
	// Name returns the tool's bare (un-namespaced) identifier
	Name() string

	// Description returns a human-readable description for LLM context
	Description() string

	// InputSchema returns the JSON Schema for tool parameters
	InputSchema() *JSONSchema

	// Execute runs the tool with given parameters
	Execute(ctx context.Context, params map[string]interface{}) (*types.ToolResult, error)
}

// SideEffecting is implemented by tools whose execution mutates state
// outside the conversation. Planning mode describes these instead of
// executing them during enforcement.
type SideEffecting interface {
	SideEffecting() bool
}

// JSONSchema represents a JSON Schema for tool parameters.
type JSONSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []interface{}          `json:"enum,omitempty"`
	Default     interface{}            `json:"default,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Maximum     *float64               `json:"maximum,omitempty"`
}

// ToMap converts the schema into the generic map shape backends consume.
func (s *JSONSchema) ToMap() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{"type": "object"}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	return out
}

// NewObjectSchema creates a new object schema with the given properties.
func NewObjectSchema(description string, properties map[string]*JSONSchema, required []string) *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: description,
		Properties:  properties,
		Required:    required,
	}
}

// NewStringSchema creates a new string schema.
func NewStringSchema(description string) *JSONSchema {
	return &JSONSchema{Type: "string", Description: description}
}

// NewNumberSchema creates a new number schema.
func NewNumberSchema(description string) *JSONSchema {
	return &JSONSchema{Type: "number", Description: description}
}

// NewBooleanSchema creates a new boolean schema.
func NewBooleanSchema(description string) *JSONSchema {
	return &JSONSchema{Type: "boolean", Description: description}
}

// NewArraySchema creates a new array schema.
func NewArraySchema(description string, items *JSONSchema) *JSONSchema {
	return &JSONSchema{Type: "array", Description: description, Items: items}
}

// WithEnum adds enum values to the schema.
func (s *JSONSchema) WithEnum(values ...interface{}) *JSONSchema {
	s.Enum = values
	return s
}

// WithDefault adds a default value to the schema.
func (s *JSONSchema) WithDefault(value interface{}) *JSONSchema {
	s.Default = value
	return s
}

// ToolFunc adapts a function into a Tool.
type ToolFunc struct {
	ToolName        string
	ToolDescription string
	Schema          *JSONSchema
	Fn              func(ctx context.Context, params map[string]interface{}) (*types.ToolResult, error)
	Mutating        bool
}

// Name implements Tool.
func (t *ToolFunc) Name() string { return t.ToolName }

// Description implements Tool.
func (t *ToolFunc) Description() string { return t.ToolDescription }

// InputSchema implements Tool.
func (t *ToolFunc) InputSchema() *JSONSchema { return t.Schema }

// Execute implements Tool.
func (t *ToolFunc) Execute(ctx context.Context, params map[string]interface{}) (*types.ToolResult, error) {
	return t.Fn(ctx, params)
}

// SideEffecting implements SideEffecting.
func (t *ToolFunc) SideEffecting() bool { return t.Mutating }
