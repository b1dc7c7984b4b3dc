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
// Package trace records a full-fidelity markdown execution trace per agent:
// tool calls with complete arguments, tool results in full, reasoning blocks,
// and errors. The trace is persisted into every workspace snapshot so peer
// agents can read how an answer was produced, and it doubles as the
// out-of-context history source referenced after compression.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/teradata-labs/warp/pkg/types"
)

// FileName is the trace file name inside workspaces and snapshots.
const FileName = "execution_trace.md"

// EntryKind classifies one trace entry.
type EntryKind string

const (
	KindToolCall   EntryKind = "tool_call"
	KindToolResult EntryKind = "tool_result"
	KindReasoning  EntryKind = "reasoning"
	KindError      EntryKind = "error"
)

// Recorder accumulates the markdown trace for one agent. All methods are
// safe for concurrent use; entries are appended in call order.
type Recorder struct {
	mu      sync.Mutex
	agentID string
	buf     strings.Builder
	round   int
}

// NewRecorder creates a recorder for one agent.
func NewRecorder(agentID string) *Recorder {
	r := &Recorder{agentID: agentID}
	r.buf.WriteString(fmt.Sprintf("# Execution Trace: %s\n\nStarted: %s\n", agentID, time.Now().Format(time.RFC3339)))
	return r
}

// BeginRound opens a section labeled by the agent's answer number.
func (r *Recorder) BeginRound(answerNumber int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.round = answerNumber
	r.buf.WriteString(fmt.Sprintf("\n## Round %d\n", answerNumber))
}

// Reasoning appends a reasoning block in full.
func (r *Recorder) Reasoning(text string) {
	if text == "" {
		return
	}
	r.append(KindReasoning, "### Reasoning\n\n"+text+"\n")
}

// ToolCall appends a tool invocation with its complete arguments.
func (r *Recorder) ToolCall(call types.ToolCall) {
	args, err := json.MarshalIndent(call.Input, "", "  ")
	if err != nil {
		args = []byte(fmt.Sprintf("%v", call.Input))
	}
	r.append(KindToolCall, fmt.Sprintf("### Tool Call: %s\n\n```json\n%s\n```\n", call.Name, args))
}

// ToolResult appends a tool result in full. No truncation: the trace is the
// one place where evicted or summarized results stay complete.
func (r *Recorder) ToolResult(toolName string, result *types.ToolResult) {
	if result == nil {
		return
	}
	var body string
	switch {
	case result.Error != nil:
		body = fmt.Sprintf("**Error** (%s): %s", result.Error.Code, result.Error.Message)
	case result.Data == nil:
		body = "(empty result)"
	default:
		if s, ok := result.Data.(string); ok {
			body = s
		} else if data, err := json.MarshalIndent(result.Data, "", "  "); err == nil {
			body = string(data)
		} else {
			body = fmt.Sprintf("%v", result.Data)
		}
	}
	r.append(KindToolResult, fmt.Sprintf("### Tool Result: %s\n\n%s\n", toolName, body))
}

// Error appends an error entry.
func (r *Recorder) Error(context string, err error) {
	msg := context
	if err != nil {
		msg = context + ": " + err.Error()
	}
	r.append(KindError, "### Error\n\n"+msg+"\n")
}

func (r *Recorder) append(kind EntryKind, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf.WriteString(fmt.Sprintf("\n<!-- %s %s -->\n", kind, time.Now().Format(time.RFC3339Nano)))
	r.buf.WriteString(body)
}

// Markdown returns the accumulated trace.
func (r *Recorder) Markdown() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

// WriteTo writes the trace as execution_trace.md under dir.
func (r *Recorder) WriteTo(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(r.Markdown()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write execution trace: %w", err)
	}
	return path, nil
}
