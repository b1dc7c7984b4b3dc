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
// Package backend defines the streaming chat contract between the
// coordinator and LLM adapters. Backends own wire formats only; every
// policy decision (restart, injection, compression) belongs to the caller.
package backend

import (
	"context"

	"github.com/teradata-labs/warp/pkg/types"
)

// ChunkType identifies one streamed event.
type ChunkType string

const (
	ChunkText          ChunkType = "text"
	ChunkReasoning     ChunkType = "reasoning"
	ChunkToolCallStart ChunkType = "tool_call_start"
	ChunkToolCallDelta ChunkType = "tool_call_delta"
	ChunkToolCallEnd   ChunkType = "tool_call_end"
	ChunkFinish        ChunkType = "finish"
	ChunkError         ChunkType = "error"
)

// ErrorKind classifies backend failures the coordinator reacts to.
type ErrorKind string

const (
	// ErrContextOverflow signals the conversation no longer fits the model
	// context window; the runner hands the turn to the compression adapter.
	ErrContextOverflow ErrorKind = "context_overflow"

	// ErrRateLimited signals throttling; adapters retry internally and only
	// surface this when retries are exhausted.
	ErrRateLimited ErrorKind = "rate_limited"

	// ErrOther covers everything else.
	ErrOther ErrorKind = "other"
)

// Error is a classified backend failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Chunk is one streamed event. Exactly one payload group is populated,
// selected by Type.
type Chunk struct {
	Type ChunkType

	// Text carries content for text and reasoning chunks
	Text string

	// ToolCall is set on tool_call_start (id and name) and tool_call_end
	// (complete decoded input)
	ToolCall *types.ToolCall

	// Delta carries a partial argument fragment on tool_call_delta
	Delta string

	// FinishReason is set on finish: end_turn, tool_use, or max_tokens
	FinishReason string

	// Usage is set on finish
	Usage *types.Usage

	// Err is set on error chunks
	Err *Error
}

// ToolSchema is the declared shape of one tool exposed to a backend.
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Request is one streamed chat call. Tool results from prior calls travel
// in Messages as tool-role entries.
type Request struct {
	SystemPrompt string
	Messages     []types.Message
	Tools        []ToolSchema
	MaxTokens    int
}

// ChunkFunc receives streamed chunks. Returning an error aborts the stream;
// the backend must stop promptly and return that error.
type ChunkFunc func(Chunk) error

// Backend is one LLM adapter. Implementations must be safe for use by a
// single runner goroutine at a time.
type Backend interface {
	// Name returns the backend identifier (e.g. "anthropic").
	Name() string

	// Model returns the model identifier used for display names.
	Model() string

	// ChatStream performs one streamed chat call, delivering chunks in
	// arrival order. It returns a *Error for classified failures.
	ChatStream(ctx context.Context, req *Request, onChunk ChunkFunc) error

	// ContextLimit returns the advertised context window in tokens, or 0
	// when unknown.
	ContextLimit() int
}

// DisplayName derives the user-facing agent name from its id and backend.
func DisplayName(agentID string, b Backend) string {
	if b == nil || b.Model() == "" {
		return agentID
	}
	return agentID + " (" + b.Model() + ")"
}
