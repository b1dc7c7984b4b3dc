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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/teradata-labs/warp/internal/tokens"
	"github.com/teradata-labs/warp/pkg/types"
)

const (
	// EvictionTokenThreshold is the estimated token count above which a
	// tool result leaves the context window.
	EvictionTokenThreshold = 20_000

	// evictionPreviewTokens is the slice of the payload kept in context.
	evictionPreviewTokens = 2_000

	// compressSidecarBytes is the payload size at which a zstd sidecar is
	// written alongside the raw text.
	compressSidecarBytes = 1 << 20
)

// EvictionStore writes oversized tool results to per-agent files under
// <workspace>/.tool_results/ and hands back reference messages. Files are
// per-agent to avoid contention between runners.
type EvictionStore struct {
	dir string

	mu      sync.Mutex
	encoder *zstd.Encoder
}

// NewEvictionStore creates the store rooted at the agent's workspace.
func NewEvictionStore(workspacePath string) (*EvictionStore, error) {
	dir := filepath.Join(workspacePath, ".tool_results")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tool results directory: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return &EvictionStore{dir: dir, encoder: enc}, nil
}

// Dir returns the eviction directory.
func (s *EvictionStore) Dir() string { return s.dir }

// Store writes the full payload to disk and returns the DataReference plus
// the in-context reference message. Payloads past the sidecar threshold
// also get a zstd copy that retrieval prefers.
func (s *EvictionStore) Store(toolName, payload string) (*types.DataReference, string, error) {
	sum := sha256.Sum256([]byte(payload))
	name := fmt.Sprintf("%s_%d_%s.txt", sanitizeToolName(toolName), time.Now().UnixNano(), hex.EncodeToString(sum[:4]))
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		return nil, "", fmt.Errorf("failed to write evicted result: %w", err)
	}
	if len(payload) >= compressSidecarBytes {
		s.mu.Lock()
		compressed := s.encoder.EncodeAll([]byte(payload), nil)
		s.mu.Unlock()
		if err := os.WriteFile(path+".zst", compressed, 0o644); err != nil {
			// The raw file is authoritative; a missing sidecar only costs
			// disk space.
			os.Remove(path + ".zst")
		}
	}

	tokenEstimate := tokens.Estimate(payload)
	preview := previewSlice(payload, evictionPreviewTokens)
	ref := &types.DataReference{
		Path:          path,
		SizeBytes:     int64(len(payload)),
		TokenEstimate: tokenEstimate,
		Preview:       preview,
	}
	return ref, formatReferenceMessage(toolName, ref), nil
}

// ReadRange returns payload bytes [offset, offset+length) from an evicted
// file, preferring the zstd sidecar when present. Concatenating consecutive
// ranges reproduces the original payload exactly.
func ReadRange(path string, offset, length int64) ([]byte, error) {
	var data []byte
	if sidecar, err := os.ReadFile(path + ".zst"); err == nil {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(sidecar, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress evicted result: %w", err)
		}
	} else {
		var rerr error
		data, rerr = os.ReadFile(path)
		if rerr != nil {
			return nil, fmt.Errorf("failed to read evicted result: %w", rerr)
		}
	}

	if offset < 0 || offset > int64(len(data)) {
		return nil, fmt.Errorf("offset %d out of range for %d-byte payload", offset, len(data))
	}
	end := offset + length
	if length < 0 || end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[offset:end], nil
}

// formatReferenceMessage builds the in-context replacement for an evicted
// payload: full size, byte range, a bounded preview, and how to get the
// rest.
func formatReferenceMessage(toolName string, ref *types.DataReference) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[Tool result evicted: %s]\n", toolName))
	b.WriteString(fmt.Sprintf("Full size: %d bytes (~%d tokens), stored at %s (bytes 0-%d)\n\n",
		ref.SizeBytes, ref.TokenEstimate, ref.Path, ref.SizeBytes))
	b.WriteString("Preview:\n")
	b.WriteString(ref.Preview)
	b.WriteString(fmt.Sprintf("\n\nTo retrieve more, call read_file with {\"path\": %q, \"offset\": <byte offset>, \"length\": <byte count>}.", ref.Path))
	return b.String()
}

// previewSlice returns a prefix of roughly maxTokens tokens.
func previewSlice(payload string, maxTokens int) string {
	if tokens.Estimate(payload) <= maxTokens {
		return payload
	}
	// Cut by characters first (4 chars/token heuristic), then trim until
	// the estimate fits.
	cut := maxTokens * 4
	if cut > len(payload) {
		cut = len(payload)
	}
	preview := payload[:cut]
	for tokens.Estimate(preview) > maxTokens && len(preview) > 0 {
		preview = preview[:len(preview)*9/10]
	}
	return preview
}

// sanitizeToolName makes a namespaced tool name filesystem-safe.
func sanitizeToolName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}
