// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package types contains shared types used across the warp coordinator.
// This package breaks import cycles by providing the common vocabulary that
// the tool pipeline, agent runners, and the scheduler all depend on.
package types

import (
	"time"
)

// ============================================================================
// Conversation types
// ============================================================================

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ToolCall represents a tool invocation emitted by a backend.
type ToolCall struct {
	// ID is a unique identifier for this tool call
	ID string `json:"id"`

	// Name is the (namespaced) tool name
	Name string `json:"name"`

	// Input contains the tool parameters as decoded JSON
	Input map[string]interface{} `json:"input"`
}

// Message represents a single message in a conversation.
type Message struct {
	// Role is the message sender (user, assistant, system, tool)
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`

	// ToolCalls contains tool invocations (if role is assistant)
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is the tool call this result corresponds to (if role is tool)
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolResult contains the tool execution result (if role is tool)
	ToolResult *ToolResult `json:"tool_result,omitempty"`

	// Timestamp is when the message was created
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Task is the user-provided question plus its enclosing session context.
// Immutable within a coordination run.
type Task struct {
	// Question is the user task text
	Question string `json:"question"`

	// Turn is the 1-based turn number within the session
	Turn int `json:"turn"`

	// History holds the conversation of prior turns, oldest first
	History []Message `json:"history,omitempty"`
}

// Usage tracks token usage and cost for backend calls.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Add accumulates another usage record into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.CostUSD += other.CostUSD
}

// ============================================================================
// Tool result types
// ============================================================================

// ToolResult is the structured outcome of a tool execution. Errors are data:
// a failed execution still yields a result with Success=false so the agent
// can observe and react to it.
type ToolResult struct {
	// Success indicates whether the tool executed without error
	Success bool `json:"success"`

	// Data is the tool output (string for most tools, structured otherwise)
	Data interface{} `json:"data,omitempty"`

	// Error describes the failure when Success is false
	Error *ToolError `json:"error,omitempty"`

	// Metadata carries tool-specific key/value annotations
	Metadata map[string]string `json:"metadata,omitempty"`

	// ExecutionTimeMs is the wall-clock execution time
	ExecutionTimeMs int64 `json:"execution_time_ms"`

	// DataReference points at an evicted payload when the result was too
	// large to keep in context
	DataReference *DataReference `json:"data_reference,omitempty"`
}

// Text returns the result data as a string when possible.
func (r *ToolResult) Text() string {
	if r == nil {
		return ""
	}
	if s, ok := r.Data.(string); ok {
		return s
	}
	return ""
}

// ToolError describes a tool failure in a form agents can act on.
type ToolError struct {
	// Code is a stable machine-readable error code
	Code string `json:"code"`

	// Message is the human-readable description
	Message string `json:"message"`

	// Details carries additional context
	Details map[string]string `json:"details,omitempty"`

	// Retryable indicates whether retrying the same call may succeed
	Retryable bool `json:"retryable"`

	// Suggestion tells the agent what to do instead
	Suggestion string `json:"suggestion,omitempty"`
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return e.Code + ": " + e.Message
}

// NewErrorResult builds a failed ToolResult.
func NewErrorResult(code, message, suggestion string) *ToolResult {
	return &ToolResult{
		Success: false,
		Error: &ToolError{
			Code:       code,
			Message:    message,
			Suggestion: suggestion,
		},
	}
}

// DataReference describes a tool result evicted to disk. The in-context
// value is replaced by a reference message built from these fields.
type DataReference struct {
	// Path is the eviction file location
	Path string `json:"path"`

	// SizeBytes is the full payload size
	SizeBytes int64 `json:"size_bytes"`

	// TokenEstimate is the estimated token count of the full payload
	TokenEstimate int `json:"token_estimate"`

	// Preview holds the leading slice of the payload kept in context
	Preview string `json:"preview"`
}
