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
// Package agent drives one agent's streamed conversation: the runner loop,
// the per-agent streaming buffer, and the reactive context-compression
// adapter. One Runner per agent; the scheduler owns everything shared.
package agent

import (
	"strings"
	"sync"
)

// BufferPreviewChars bounds the buffer excerpt recorded on enforcement.
const BufferPreviewChars = 500

// StreamBuffer accumulates everything one streamed turn produced: text,
// reasoning, and tool calls in progress. On a context-overflow failure the
// buffer is the in-flight work the compression adapter must preserve.
//
// The buffer is cleared on turn completion or acknowledged restart. During a
// compression retry the retry flag suppresses clearing so a second overflow
// still sees the original content.
type StreamBuffer struct {
	mu               sync.Mutex
	b                strings.Builder
	compressionRetry bool
}

// AppendText records streamed answer text.
func (s *StreamBuffer) AppendText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.b.WriteString(text)
}

// AppendReasoning records a streamed reasoning fragment.
func (s *StreamBuffer) AppendReasoning(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.b.WriteString(text)
}

// AppendToolCall records a tool call the stream has started emitting.
func (s *StreamBuffer) AppendToolCall(name, args string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.b.WriteString("\n[tool call: " + name + "] " + args + "\n")
}

// String returns the accumulated buffer.
func (s *StreamBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

// Len returns the accumulated character count.
func (s *StreamBuffer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Len()
}

// Preview returns the first BufferPreviewChars characters.
func (s *StreamBuffer) Preview() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.b.String()
	if len(out) > BufferPreviewChars {
		out = out[:BufferPreviewChars]
	}
	return out
}

// SetCompressionRetry marks or clears the compression-retry window.
func (s *StreamBuffer) SetCompressionRetry(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compressionRetry = on
}

// Clear empties the buffer unless a compression retry is in flight.
func (s *StreamBuffer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.compressionRetry {
		return
	}
	s.b.Reset()
}
