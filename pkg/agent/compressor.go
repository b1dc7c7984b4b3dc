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
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/warp/pkg/backend"
	"github.com/teradata-labs/warp/pkg/types"
)

const (
	// compressorKeepRecent is how many trailing messages survive verbatim.
	compressorKeepRecent = 6

	// summaryHeadChars / summaryTailChars bound the deterministic fallback.
	summaryHeadChars = 4_000
	summaryTailChars = 2_000

	summarizerTimeout = 45 * time.Second
)

// Summarizer condenses conversation text. Implementations may fail; the
// compressor always has a deterministic fallback.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// LLMSummarizer summarizes through a backend.
type LLMSummarizer struct {
	Backend backend.Backend
}

// Summarize implements Summarizer with a single non-tool chat call.
func (s *LLMSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, summarizerTimeout)
	defer cancel()

	var out strings.Builder
	req := &backend.Request{
		SystemPrompt: "Summarize the following conversation excerpt. Preserve decisions, answer content, file paths, and tool outcomes. Be dense; omit pleasantries.",
		Messages:     []types.Message{{Role: "user", Content: text}},
		MaxTokens:    1024,
	}
	err := s.Backend.ChatStream(ctx, req, func(c backend.Chunk) error {
		if c.Type == backend.ChunkText {
			out.WriteString(c.Text)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", fmt.Errorf("summarizer returned no text")
	}
	return out.String(), nil
}

// Compressor rebuilds a conversation that no longer fits the context window.
// Old turns collapse into a summary, recent turns survive verbatim, and the
// in-flight streaming buffer is reinjected as a synthesized assistant
// message so partial work is not lost.
type Compressor struct {
	summarizer Summarizer
	keepRecent int
	logger     *zap.Logger
}

// NewCompressor creates a compressor. The summarizer may be nil; the
// deterministic head/tail fallback then applies unconditionally.
func NewCompressor(summarizer Summarizer, logger *zap.Logger) *Compressor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compressor{summarizer: summarizer, keepRecent: compressorKeepRecent, logger: logger}
}

// Compress returns the replacement message list. evictedRefs are paths to
// evicted tool-result files, referenced verbatim so the retried turn can
// still reach them.
func (c *Compressor) Compress(ctx context.Context, messages []types.Message, buffer string, evictedRefs []string) []types.Message {
	keep := c.keepRecent
	if keep > len(messages) {
		keep = len(messages)
	}
	old := messages[:len(messages)-keep]
	recent := messages[len(messages)-keep:]

	summary := c.summarizeOld(ctx, old)

	var intro strings.Builder
	intro.WriteString("[Conversation compressed to fit the context window]\n\n")
	if summary != "" {
		intro.WriteString("Summary of earlier turns:\n")
		intro.WriteString(summary)
		intro.WriteString("\n")
	}
	if len(evictedRefs) > 0 {
		intro.WriteString("\nLarge tool results from earlier turns remain on disk:\n")
		for _, ref := range evictedRefs {
			intro.WriteString("- " + ref + "\n")
		}
		intro.WriteString("Use read_file with offset/length to retrieve them.\n")
	}

	out := make([]types.Message, 0, len(recent)+2)
	out = append(out, types.Message{Role: "user", Content: intro.String()})
	out = append(out, recent...)
	if strings.TrimSpace(buffer) != "" {
		out = append(out, types.Message{
			Role:    "assistant",
			Content: "[Tool execution results]\n" + buffer,
		})
	}
	return out
}

// summarizeOld condenses the dropped prefix, degrading from the LLM
// summarizer to head/tail extraction.
func (c *Compressor) summarizeOld(ctx context.Context, old []types.Message) string {
	if len(old) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range old {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		for _, tc := range m.ToolCalls {
			b.WriteString("\n  (called " + tc.Name + ")")
		}
		b.WriteString("\n")
	}
	text := b.String()

	if c.summarizer != nil {
		summary, err := c.summarizer.Summarize(ctx, text)
		if err == nil {
			return summary
		}
		c.logger.Warn("LLM summarization failed, using head/tail extraction", zap.Error(err))
	}
	return headTail(text, summaryHeadChars, summaryTailChars)
}

// headTail keeps the start and end of a transcript, eliding the middle.
func headTail(text string, head, tail int) string {
	if len(text) <= head+tail {
		return text
	}
	return text[:head] + "\n[... " + fmt.Sprintf("%d", len(text)-head-tail) + " characters elided ...]\n" + text[len(text)-tail:]
}
