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
// Package workspace manages per-agent isolated directories, permissioned
// context paths, and atomic answer-time snapshots. During coordination all
// context paths are effectively read-only; write access is granted only to
// the winning agent at the final-presentation boundary. Agents never share a
// workspace: peers see each other's work exclusively through published
// snapshots.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/warp/internal/csync"
	"github.com/teradata-labs/warp/pkg/types"
)

// Sentinel errors callers branch on.
var (
	// ErrPermissionDenied is returned for reads or writes outside the
	// agent's permitted paths.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrProtectedPath is returned for any attempt to modify or delete a
	// registered protected path. Never overridden.
	ErrProtectedPath = errors.New("protected path")

	// ErrReadBeforeDelete is returned when a delete targets a path the
	// agent has not successfully read in this session.
	ErrReadBeforeDelete = errors.New("path must be read before it can be deleted")
)

// Workspace is a directory owned exclusively by one agent during a
// coordination run.
type Workspace struct {
	// AgentID is the owning agent
	AgentID string

	// Path is the workspace root directory
	Path string

	mu           sync.Mutex
	contextPaths []types.ContextPathSpec
	writeEnabled bool
	initialMtime MtimeIndex
}

// ContextPaths returns a copy of the mounted context path specs.
func (w *Workspace) ContextPaths() []types.ContextPathSpec {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]types.ContextPathSpec, len(w.contextPaths))
	copy(out, w.contextPaths)
	return out
}

// WriteEnabled reports whether the final-presentation write window is open.
func (w *Workspace) WriteEnabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeEnabled
}

// Manager creates workspaces and publishes snapshots under one run
// directory:
//
//	<runDir>/workspaces/<agent>/
//	<runDir>/snapshots/<agent>_<ts>/
//	<runDir>/temp_workspaces/<agent>_turn_<k>/
type Manager struct {
	runDir string
	logger *zap.Logger

	mu         sync.Mutex
	workspaces map[string]*Workspace

	historical *csync.Slice[types.SnapshotRef]
}

// NewManager creates a workspace manager rooted at runDir.
func NewManager(runDir string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(runDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve run directory: %w", err)
	}
	for _, sub := range []string{"workspaces", "snapshots", "temp_workspaces"} {
		if err := os.MkdirAll(filepath.Join(abs, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
	}
	return &Manager{
		runDir:     abs,
		logger:     logger,
		workspaces: make(map[string]*Workspace),
		historical: csync.NewSlice[types.SnapshotRef](),
	}, nil
}

// RunDir returns the run directory root.
func (m *Manager) RunDir() string {
	return m.runDir
}

// CreateWorkspace creates (or returns) the isolated workspace for agentID.
func (m *Manager) CreateWorkspace(agentID string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.workspaces[agentID]; ok {
		return ws, nil
	}
	path := filepath.Join(m.runDir, "workspaces", agentID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace for %s: %w", agentID, err)
	}
	ws := &Workspace{AgentID: agentID, Path: path}
	m.workspaces[agentID] = ws
	m.logger.Debug("Created workspace",
		zap.String("agent_id", agentID),
		zap.String("path", path))
	return ws, nil
}

// Get returns the workspace for agentID.
func (m *Manager) Get(agentID string) (*Workspace, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[agentID]
	return ws, ok
}

// MountContextPaths attaches external directories with their permissions and
// protected-subpath lists. Paths must exist; write permission stays dormant
// until EnableWriteAccess.
func (m *Manager) MountContextPaths(ws *Workspace, specs []types.ContextPathSpec) error {
	for _, spec := range specs {
		info, err := os.Stat(spec.Path)
		if err != nil {
			return fmt.Errorf("context path %s: %w", spec.Path, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("context path %s is not a directory", spec.Path)
		}
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.contextPaths = append(ws.contextPaths, specs...)
	return nil
}

// EnableWriteAccess opens the write window on writable context paths. Used
// only at the final-presentation boundary. The mtime index captured here is
// the baseline for the write-diff report.
func (m *Manager) EnableWriteAccess(ws *Workspace) (MtimeIndex, error) {
	index, err := m.SnapshotMtimeIndex(ws)
	if err != nil {
		return nil, fmt.Errorf("failed to index writable paths: %w", err)
	}
	ws.mu.Lock()
	ws.writeEnabled = true
	ws.initialMtime = index
	ws.mu.Unlock()
	m.logger.Info("Write access enabled",
		zap.String("agent_id", ws.AgentID),
		zap.Int("indexed_files", len(index)))
	return index, nil
}

// GetHistorical returns the published snapshots for one agent, oldest first.
func (m *Manager) GetHistorical(agentID string) []types.SnapshotRef {
	var out []types.SnapshotRef
	for ref := range m.historical.Seq() {
		if ref.AgentID == agentID {
			out = append(out, ref)
		}
	}
	return out
}

// Historical returns every published snapshot across all agents, in
// publication order.
func (m *Manager) Historical() []types.SnapshotRef {
	return m.historical.Items()
}

// MaterializeSnapshot copies a published snapshot into a temp workspace
// (temp_workspaces/<agent>_turn_<k>) so a peer can inspect the artifacts and
// execution trace without touching the original.
func (m *Manager) MaterializeSnapshot(ref types.SnapshotRef, forAgentID string, turn int) (string, error) {
	dest := filepath.Join(m.runDir, "temp_workspaces", fmt.Sprintf("%s_turn_%d", forAgentID, turn))
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("failed to clear temp workspace: %w", err)
	}
	if err := copyTree(ref.Path, dest); err != nil {
		return "", fmt.Errorf("failed to materialize snapshot %s: %w", ref.AnswerLabel, err)
	}
	return dest, nil
}

// copyTree recursively copies src into dst, preserving mtimes.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, data, info.Mode()); err != nil {
			return err
		}
		return os.Chtimes(target, time.Now(), info.ModTime())
	})
}
