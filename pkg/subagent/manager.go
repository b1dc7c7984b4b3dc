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
// Package subagent runs nested coordination sessions on behalf of a parent
// agent: blocking or async spawning, bounded background concurrency, and
// work recovery from the child's status file when a task is cut off.
package subagent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/warp/internal/csync"
	"github.com/teradata-labs/warp/pkg/observability"
	"github.com/teradata-labs/warp/pkg/types"
)

// Timeout clamp defaults, seconds.
const (
	DefaultMinTimeout    = 60 * time.Second
	DefaultMaxTimeout    = 600 * time.Second
	DefaultTaskTimeout   = 300 * time.Second
	DefaultMaxBackground = 4
)

// Task is one nested run handed to the Runner.
type Task struct {
	// ID is the subagent identifier
	ID string

	// ParentAgentID is the spawning agent
	ParentAgentID string

	// Prompt is the task text
	Prompt string

	// RunDir is the child's run directory; its status.json lives at
	// <RunDir>/full_logs/status.json
	RunDir string
}

// Runner executes one nested coordination run. It must write the child's
// status file as it goes; the manager recovers from that file when the
// context is cut.
type Runner func(ctx context.Context, task Task) error

// Config carries the subagent bounds.
type Config struct {
	MinTimeout     time.Duration
	MaxTimeout     time.Duration
	DefaultTimeout time.Duration
	MaxBackground  int
	InjectProgress bool
}

func (c *Config) applyDefaults() {
	if c.MinTimeout <= 0 {
		c.MinTimeout = DefaultMinTimeout
	}
	if c.MaxTimeout <= 0 {
		c.MaxTimeout = DefaultMaxTimeout
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultTaskTimeout
	}
	if c.MaxBackground <= 0 {
		c.MaxBackground = DefaultMaxBackground
	}
}

// Manager owns subagent lifecycles for one coordination run.
type Manager struct {
	cfg    Config
	runner Runner
	runDir string
	logger *zap.Logger

	// sem bounds concurrent background tasks
	sem chan struct{}

	// pending holds completed async results per parent until the next tool
	// boundary drains them
	pending *csync.Map[string, *csync.Slice[types.SubagentResult]]

	// notes holds queued progress notes per parent
	notes *csync.Map[string, *csync.Slice[string]]

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewManager creates a subagent manager rooted at the parent run directory.
func NewManager(cfg Config, runner Runner, runDir string, logger *zap.Logger) *Manager {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:     cfg,
		runner:  runner,
		runDir:  runDir,
		logger:  logger,
		sem:     make(chan struct{}, cfg.MaxBackground),
		pending: csync.NewMap[string, *csync.Slice[types.SubagentResult]](),
		notes:   csync.NewMap[string, *csync.Slice[string]](),
	}
}

// ClampTimeout forces a requested timeout into the configured range. Zero
// requests the default.
func (m *Manager) ClampTimeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return m.cfg.DefaultTimeout
	}
	if requested < m.cfg.MinTimeout {
		return m.cfg.MinTimeout
	}
	if requested > m.cfg.MaxTimeout {
		return m.cfg.MaxTimeout
	}
	return requested
}

// SpawnBlocking runs all tasks and waits for every result.
func (m *Manager) SpawnBlocking(ctx context.Context, parentID string, prompts []string, timeout time.Duration) []types.SubagentResult {
	timeout = m.ClampTimeout(timeout)
	results := make([]types.SubagentResult, len(prompts))
	var wg sync.WaitGroup
	for i, prompt := range prompts {
		wg.Add(1)
		go func(i int, prompt string) {
			defer wg.Done()
			results[i] = m.runOne(ctx, parentID, prompt, timeout)
		}(i, prompt)
	}
	wg.Wait()
	return results
}

// SpawnAsync starts the tasks in the background under the concurrency bound
// and returns their ids immediately. Results surface through Drain at the
// parent's next tool boundary.
func (m *Manager) SpawnAsync(ctx context.Context, parentID string, prompts []string, timeout time.Duration) []string {
	timeout = m.ClampTimeout(timeout)
	ids := make([]string, len(prompts))
	for i, prompt := range prompts {
		id := uuid.NewString()[:8]
		ids[i] = id
		m.wg.Add(1)
		go func(id, prompt string) {
			defer m.wg.Done()
			select {
			case m.sem <- struct{}{}:
				defer func() { <-m.sem }()
			case <-ctx.Done():
				return
			}
			res := m.runOneWithID(ctx, id, parentID, prompt, timeout)
			m.deliver(parentID, res)
		}(id, prompt)
	}
	return ids
}

// deliver queues an async result, unless the parent session already closed
// (orphaned completions are logged and discarded).
func (m *Manager) deliver(parentID string, res types.SubagentResult) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		m.logger.Warn("Discarding orphaned subagent result",
			zap.String("subagent_id", res.SubagentID),
			zap.String("status", string(res.Status)))
		return
	}
	q := m.pending.GetOrSet(parentID, func() *csync.Slice[types.SubagentResult] {
		return csync.NewSlice[types.SubagentResult]()
	})
	q.Append(res)
}

// Drain returns and clears the parent's completed async results.
func (m *Manager) Drain(parentID string) []types.SubagentResult {
	q, ok := m.pending.Get(parentID)
	if !ok {
		return nil
	}
	return q.Take()
}

// DrainFormatted adapts Drain for the subagent-complete hook: completed
// results batch into one wrapper payload.
func (m *Manager) DrainFormatted(parentID string) []string {
	results := m.Drain(parentID)
	var out []string
	if len(results) > 0 {
		out = append(out, FormatResults(results))
	}
	out = append(out, m.DrainNotes(parentID)...)
	return out
}

// DrainNotes returns and clears queued progress notes.
func (m *Manager) DrainNotes(parentID string) []string {
	q, ok := m.notes.Get(parentID)
	if !ok {
		return nil
	}
	return q.Take()
}

// Close marks the parent session finished. Background tasks keep running,
// but their results are discarded on completion.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Wait blocks until all background tasks have finished. Used by tests and
// by graceful shutdown paths that can afford to wait.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) runOne(ctx context.Context, parentID, prompt string, timeout time.Duration) types.SubagentResult {
	return m.runOneWithID(ctx, uuid.NewString()[:8], parentID, prompt, timeout)
}

// runOneWithID executes one nested run and recovers whatever it produced.
func (m *Manager) runOneWithID(ctx context.Context, id, parentID, prompt string, timeout time.Duration) types.SubagentResult {
	task := Task{
		ID:            id,
		ParentAgentID: parentID,
		Prompt:        prompt,
		RunDir:        filepath.Join(m.runDir, "subagents", id),
	}
	if err := os.MkdirAll(task.RunDir, 0o755); err != nil {
		return types.SubagentResult{
			ParentAgentID: parentID,
			SubagentID:    id,
			Status:        types.SubagentError,
			Warnings:      []string{fmt.Sprintf("failed to create run directory: %v", err)},
		}
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var watchDone chan struct{}
	if m.cfg.InjectProgress {
		watchDone = m.watchProgress(tctx, id, parentID, StatusPath(task.RunDir))
	}

	start := time.Now()
	err := m.runner(tctx, task)
	elapsed := time.Since(start)
	if watchDone != nil {
		cancel()
		<-watchDone
	}

	res := Recover(task, err, elapsed, m.logger)
	res.ParentAgentID = parentID
	return res
}

// StatusPath locates a child run's status file.
func StatusPath(runDir string) string {
	return filepath.Join(runDir, "full_logs", observability.FileName)
}

// FormatResults renders completed results as one XML-like wrapper so
// multiple completions cost a single context append.
func FormatResults(results []types.SubagentResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<subagent_results count=%d>\n", len(results))
	for _, r := range results {
		fmt.Fprintf(&b, "  <subagent id=%q status=%q success=%q tokens=%q duration=%q",
			r.SubagentID, r.Status, fmt.Sprintf("%t", r.Success),
			fmt.Sprintf("%d", r.Tokens.TotalTokens), r.Duration.Round(time.Millisecond).String())
		if r.WorkspacePath != "" {
			fmt.Fprintf(&b, " workspace=%q", r.WorkspacePath)
		}
		b.WriteString(">\n")
		if r.Answer != "" {
			b.WriteString(r.Answer)
			b.WriteString("\n")
		}
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  <warning>%s</warning>\n", w)
		}
		b.WriteString("  </subagent>\n")
	}
	b.WriteString("</subagent_results>")
	return b.String()
}
