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
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/teradata-labs/warp/internal/csync"
	"github.com/teradata-labs/warp/pkg/backend"
	"github.com/teradata-labs/warp/pkg/tools"
	"github.com/teradata-labs/warp/pkg/trace"
	"github.com/teradata-labs/warp/pkg/types"
)

// maxCompressRetries bounds back-to-back context-overflow recoveries within
// one turn before the error is surfaced.
const maxCompressRetries = 3

// DirectiveKind is the scheduler's instruction after a turn event.
type DirectiveKind string

const (
	// DirectiveContinue appends the message (if any) and keeps the
	// conversation going.
	DirectiveContinue DirectiveKind = "continue"

	// DirectiveRestart is an enforcement restart: the streaming buffer is
	// cleared, the retry message appended, and the chat re-invoked.
	DirectiveRestart DirectiveKind = "restart"

	// DirectivePresent starts the winner's final presentation turn.
	DirectivePresent DirectiveKind = "present"

	// DirectiveFinish ends the runner in the given terminal state.
	DirectiveFinish DirectiveKind = "finish"
)

// Directive is the scheduler's reply to one TurnEvent.
type Directive struct {
	Kind    DirectiveKind
	Message string

	// State applies on finish (voted, won, failed)
	State types.AgentStatus
}

// TurnEvent is what a runner hands the scheduler when a streamed turn ends:
// a workflow call, or the evidence the scheduler needs to decide an
// enforcement restart. The scheduler replies on Reply; it may hold the reply
// to park the runner (deferred voting).
type TurnEvent struct {
	AgentID string

	// Workflow is non-nil when the turn ended in new_answer or vote
	Workflow *tools.WorkflowCall

	// Text is the assistant text accumulated this turn
	Text string

	// ToolCallNames lists every tool called this turn, in order
	ToolCallNames []string

	// UnknownTools lists calls that resolved to nothing
	UnknownTools []string

	// VoteAndAnswer is true when one assistant message carried both workflow
	// tools; neither was executed
	VoteAndAnswer bool

	// BufferPreview and BufferChars capture the streaming buffer for
	// enforcement records
	BufferPreview string
	BufferChars   int

	// Usage is this turn's token usage
	Usage types.Usage

	// Presenting is true for the final presentation turn
	Presenting bool

	Reply chan Directive
}

// RunnerConfig wires one agent runner.
type RunnerConfig struct {
	ID           string
	Backend      backend.Backend
	Registry     *tools.Registry
	Executor     *tools.Executor
	Compressor   *Compressor
	Recorder     *trace.Recorder
	Logger       *zap.Logger
	Events       chan<- *TurnEvent
	SystemPrompt string
	MaxTokens    int
	SkipVoting   bool
}

// Runner drives exactly one agent's streamed conversation. All shared state
// lives with the scheduler; the runner owns its conversation, buffer, and
// injection queue.
type Runner struct {
	id         string
	backend    backend.Backend
	registry   *tools.Registry
	executor   *tools.Executor
	compressor *Compressor
	recorder   *trace.Recorder
	logger     *zap.Logger
	events     chan<- *TurnEvent

	systemPrompt string
	maxTokens    int
	skipVoting   bool

	buffer       *StreamBuffer
	conversation []types.Message
	injections   *csync.Slice[string]
	evicted      *csync.Slice[string]

	presenting atomic.Bool

	mu    sync.Mutex
	state types.AgentStatus
}

// NewRunner creates a runner in the waiting state.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Runner{
		id:           cfg.ID,
		backend:      cfg.Backend,
		registry:     cfg.Registry,
		executor:     cfg.Executor,
		compressor:   cfg.Compressor,
		recorder:     cfg.Recorder,
		logger:       cfg.Logger.With(zap.String("agent", cfg.ID)),
		events:       cfg.Events,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		skipVoting:   cfg.SkipVoting,
		buffer:       &StreamBuffer{},
		injections:   csync.NewSlice[string](),
		evicted:      csync.NewSlice[string](),
		state:        types.AgentWaiting,
	}
}

// State returns the runner's current status.
func (r *Runner) State() types.AgentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s types.AgentStatus) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Presenting reports whether the runner is in its final presentation turn.
// Wired into the executor so planning mode lifts for the winner.
func (r *Runner) Presenting() bool { return r.presenting.Load() }

// Inject queues an UPDATE for delivery at the runner's next safe boundary.
// Never interrupts an in-flight backend call.
func (r *Runner) Inject(content string) {
	r.injections.Append(content)
}

// TakeInjections drains the pending queue. Used both by the runner between
// backend calls and by the mid-stream injection hook at tool boundaries.
func (r *Runner) TakeInjections() []string {
	return r.injections.Take()
}

// Buffer exposes the streaming buffer to the scheduler and compressor.
func (r *Runner) Buffer() *StreamBuffer { return r.buffer }

// Run drives the conversation until the scheduler finishes the runner or
// the context is cancelled.
func (r *Runner) Run(ctx context.Context, task string) error {
	r.conversation = []types.Message{{Role: "user", Content: task}}

	for {
		if err := ctx.Err(); err != nil {
			r.setState(types.AgentFailed)
			return err
		}
		r.drainIntoConversation()

		ev, err := r.streamTurn(ctx)
		if err != nil {
			r.setState(types.AgentFailed)
			if r.recorder != nil {
				r.recorder.Error("turn failed", err)
			}
			return err
		}

		directive, err := r.report(ctx, ev)
		if err != nil {
			r.setState(types.AgentFailed)
			return err
		}

		switch directive.Kind {
		case DirectiveRestart:
			r.setState(types.AgentAwaitingRestart)
			r.buffer.Clear()
			if directive.Message != "" {
				r.conversation = append(r.conversation, types.Message{Role: "user", Content: directive.Message})
			}
		case DirectivePresent:
			r.presenting.Store(true)
			r.buffer.Clear()
			if directive.Message != "" {
				r.conversation = append(r.conversation, types.Message{Role: "user", Content: directive.Message})
			}
		case DirectiveFinish:
			state := directive.State
			if state == "" {
				state = types.AgentVoted
			}
			r.setState(state)
			return nil
		default: // continue
			r.buffer.Clear()
			if directive.Message != "" {
				r.conversation = append(r.conversation, types.Message{Role: "user", Content: directive.Message})
			}
		}
	}
}

// streamTurn runs backend calls and tool executions until a workflow tool is
// emitted or the model stops calling tools.
func (r *Runner) streamTurn(ctx context.Context) (*TurnEvent, error) {
	var turnUsage types.Usage
	var turnText string
	var toolNames, unknown []string
	overflows := 0

	for {
		r.setState(types.AgentStreaming)

		text, calls, usage, err := r.streamOnce(ctx)
		if err != nil {
			var berr *backend.Error
			if errors.As(err, &berr) && berr.Kind == backend.ErrContextOverflow && r.compressor != nil {
				overflows++
				if overflows > maxCompressRetries {
					return nil, fmt.Errorf("context overflow persisted after %d compression retries: %w", maxCompressRetries, err)
				}
				r.logger.Warn("Context overflow, compressing conversation",
					zap.Int("messages", len(r.conversation)),
					zap.Int("buffer_chars", r.buffer.Len()))
				r.buffer.SetCompressionRetry(true)
				r.conversation = r.compressor.Compress(ctx, r.conversation, r.buffer.String(), r.evicted.Items())
				continue
			}
			return nil, err
		}
		r.buffer.SetCompressionRetry(false)
		if usage != nil {
			turnUsage.Add(*usage)
		}
		turnText += text

		r.conversation = append(r.conversation, types.Message{
			Role:      "assistant",
			Content:   text,
			ToolCalls: calls,
		})

		if len(calls) == 0 {
			return r.turnEvent(nil, turnText, toolNames, unknown, turnUsage), nil
		}

		for _, call := range calls {
			toolNames = append(toolNames, call.Name)
		}
		if hasBothWorkflowCalls(calls) {
			ev := r.turnEvent(nil, turnText, toolNames, unknown, turnUsage)
			ev.VoteAndAnswer = true
			return ev, nil
		}

		for _, call := range calls {
			outcome := r.executor.Execute(ctx, call)
			if outcome.Workflow != nil {
				return r.turnEvent(outcome.Workflow, turnText, toolNames, unknown, turnUsage), nil
			}
			if outcome.Unknown {
				unknown = append(unknown, call.Name)
			}
			if ref := outcome.Result.DataReference; ref != nil {
				r.evicted.Append(ref.Path)
			}
			r.conversation = append(r.conversation, types.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    outcome.Rendered,
				ToolResult: outcome.Result,
			})
			for _, um := range outcome.UserMessages {
				r.conversation = append(r.conversation, types.Message{Role: "user", Content: um})
			}
		}

		// Tool boundary: a safe point for queued peer updates.
		r.drainIntoConversation()
	}
}

// streamOnce performs a single backend call, assembling tool calls from the
// chunk stream.
func (r *Runner) streamOnce(ctx context.Context) (string, []types.ToolCall, *types.Usage, error) {
	req := &backend.Request{
		SystemPrompt: r.systemPrompt,
		Messages:     r.conversation,
		Tools:        r.registry.Schemas(r.skipVoting),
		MaxTokens:    r.maxTokens,
	}

	var text string
	var calls []types.ToolCall
	var usage *types.Usage
	var pending *types.ToolCall
	var pendingArgs string

	err := r.backend.ChatStream(ctx, req, func(c backend.Chunk) error {
		switch c.Type {
		case backend.ChunkText:
			text += c.Text
			r.buffer.AppendText(c.Text)
		case backend.ChunkReasoning:
			r.buffer.AppendReasoning(c.Text)
			if r.recorder != nil {
				r.recorder.Reasoning(c.Text)
			}
		case backend.ChunkToolCallStart:
			pending = c.ToolCall
			pendingArgs = ""
		case backend.ChunkToolCallDelta:
			pendingArgs += c.Delta
		case backend.ChunkToolCallEnd:
			if c.ToolCall != nil {
				calls = append(calls, *c.ToolCall)
				r.buffer.AppendToolCall(c.ToolCall.Name, pendingArgs)
			}
			pending = nil
		case backend.ChunkFinish:
			usage = c.Usage
		case backend.ChunkError:
			if c.Err != nil {
				return c.Err
			}
		}
		return nil
	})
	if err != nil {
		// A call cut off mid-tool-call still leaves its fragment in the
		// buffer for compression recovery.
		if pending != nil {
			r.buffer.AppendToolCall(pending.Name, pendingArgs)
		}
		return "", nil, nil, err
	}
	return text, calls, usage, nil
}

// hasBothWorkflowCalls reports whether one assistant message emitted both
// terminal tools. Executing either would be ambiguous, so the whole message
// is handed to the scheduler as a protocol violation.
func hasBothWorkflowCalls(calls []types.ToolCall) bool {
	var answer, vote bool
	for _, c := range calls {
		switch c.Name {
		case tools.WorkflowNewAnswer:
			answer = true
		case tools.WorkflowVote:
			vote = true
		}
	}
	return answer && vote
}

// turnEvent packages the turn for the scheduler.
func (r *Runner) turnEvent(wf *tools.WorkflowCall, text string, toolNames, unknown []string, usage types.Usage) *TurnEvent {
	return &TurnEvent{
		AgentID:       r.id,
		Workflow:      wf,
		Text:          text,
		ToolCallNames: toolNames,
		UnknownTools:  unknown,
		BufferPreview: r.buffer.Preview(),
		BufferChars:   r.buffer.Len(),
		Usage:         usage,
		Presenting:    r.presenting.Load(),
		Reply:         make(chan Directive, 1),
	}
}

// report sends the event to the scheduler and waits for its directive. The
// scheduler may hold the reply to park the runner (deferred voting).
func (r *Runner) report(ctx context.Context, ev *TurnEvent) (Directive, error) {
	select {
	case r.events <- ev:
	case <-ctx.Done():
		return Directive{}, ctx.Err()
	}
	r.setState(types.AgentWaiting)
	select {
	case d := <-ev.Reply:
		return d, nil
	case <-ctx.Done():
		return Directive{}, ctx.Err()
	}
}

// drainIntoConversation appends queued peer updates as user messages.
func (r *Runner) drainIntoConversation() {
	for _, update := range r.injections.Take() {
		r.setState(types.AgentSuspendedForInjection)
		r.conversation = append(r.conversation, types.Message{Role: "user", Content: update})
	}
}
