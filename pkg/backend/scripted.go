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
package backend

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/teradata-labs/warp/pkg/types"
)

// ScriptedTurn describes the chunks one ChatStream call replays.
type ScriptedTurn struct {
	// Reasoning is streamed first as a reasoning chunk when non-empty
	Reasoning string

	// Text is streamed as a text chunk when non-empty
	Text string

	// ToolCalls are streamed as start/delta/end triplets
	ToolCalls []types.ToolCall

	// Err ends the call with an error chunk instead of finish
	Err *Error

	// Usage is attached to the finish chunk
	Usage types.Usage
}

// ScriptedBackend replays configured turns. It drives deterministic
// scheduler and runner tests, and backs dry runs. Once the script is
// exhausted the last turn repeats, so enforcement-retry loops stay
// deterministic regardless of attempt count.
type ScriptedBackend struct {
	name  string
	model string

	mu       sync.Mutex
	turns    []ScriptedTurn
	calls    int
	requests []*Request

	// OnRequest, when set, picks the turn for each call instead of the
	// scripted sequence. Useful for request-dependent scripts.
	OnRequest func(call int, req *Request) ScriptedTurn
}

// NewScripted creates a scripted backend replaying the given turns in order.
func NewScripted(name, model string, turns ...ScriptedTurn) *ScriptedBackend {
	return &ScriptedBackend{name: name, model: model, turns: turns}
}

// Name returns the backend identifier.
func (s *ScriptedBackend) Name() string { return s.name }

// Model returns the model identifier.
func (s *ScriptedBackend) Model() string { return s.model }

// ContextLimit reports a generous fixed window.
func (s *ScriptedBackend) ContextLimit() int { return 200000 }

// Calls returns how many ChatStream invocations have occurred.
func (s *ScriptedBackend) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Requests returns a copy of every recorded request.
func (s *ScriptedBackend) Requests() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// ChatStream replays the next scripted turn as a chunk sequence.
func (s *ScriptedBackend) ChatStream(ctx context.Context, req *Request, onChunk ChunkFunc) error {
	s.mu.Lock()
	call := s.calls
	s.calls++
	s.requests = append(s.requests, req)
	var turn ScriptedTurn
	switch {
	case s.OnRequest != nil:
		turn = s.OnRequest(call, req)
	case len(s.turns) == 0:
		s.mu.Unlock()
		return &Error{Kind: ErrOther, Message: "scripted backend has no turns"}
	case call < len(s.turns):
		turn = s.turns[call]
	default:
		turn = s.turns[len(s.turns)-1]
	}
	s.mu.Unlock()

	emit := func(c Chunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return onChunk(c)
	}

	if turn.Err != nil {
		if err := emit(Chunk{Type: ChunkError, Err: turn.Err}); err != nil {
			return err
		}
		return turn.Err
	}

	if turn.Reasoning != "" {
		if err := emit(Chunk{Type: ChunkReasoning, Text: turn.Reasoning}); err != nil {
			return err
		}
	}
	if turn.Text != "" {
		if err := emit(Chunk{Type: ChunkText, Text: turn.Text}); err != nil {
			return err
		}
	}

	for i := range turn.ToolCalls {
		tc := turn.ToolCalls[i]
		if err := emit(Chunk{Type: ChunkToolCallStart, ToolCall: &types.ToolCall{ID: tc.ID, Name: tc.Name}}); err != nil {
			return err
		}
		if args, err := json.Marshal(tc.Input); err == nil && len(turn.ToolCalls[i].Input) > 0 {
			if err := emit(Chunk{Type: ChunkToolCallDelta, Delta: string(args)}); err != nil {
				return err
			}
		}
		full := tc
		if err := emit(Chunk{Type: ChunkToolCallEnd, ToolCall: &full}); err != nil {
			return err
		}
	}

	finishReason := "end_turn"
	if len(turn.ToolCalls) > 0 {
		finishReason = "tool_use"
	}
	usage := turn.Usage
	return emit(Chunk{Type: ChunkFinish, FinishReason: finishReason, Usage: &usage})
}
