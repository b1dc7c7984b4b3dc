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
package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/warp/pkg/trace"
	"github.com/teradata-labs/warp/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)
	return m
}

func TestCreateWorkspaceIsolated(t *testing.T) {
	m := newTestManager(t)

	ws1, err := m.CreateWorkspace("agent1")
	require.NoError(t, err)
	ws2, err := m.CreateWorkspace("agent2")
	require.NoError(t, err)

	assert.NotEqual(t, ws1.Path, ws2.Path)
	assert.DirExists(t, ws1.Path)

	// Same agent gets the same workspace back.
	again, err := m.CreateWorkspace("agent1")
	require.NoError(t, err)
	assert.Same(t, ws1, again)
}

func TestSnapshotAtomicAndRegistered(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.CreateWorkspace("agent1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws.Path, "draft.md"), []byte("work in progress"), 0o644))

	ref, err := m.Snapshot("agent1", "agent1.1", "# Execution Trace: agent1\n")
	require.NoError(t, err)

	assert.Equal(t, "agent1", ref.AgentID)
	assert.Equal(t, "agent1.1", ref.AnswerLabel)
	assert.FileExists(t, filepath.Join(ref.Path, "draft.md"))
	assert.FileExists(t, ref.TracePath)
	assert.Equal(t, trace.FileName, filepath.Base(ref.TracePath))

	// No staging debris left behind.
	entries, err := os.ReadDir(filepath.Join(m.RunDir(), "snapshots"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".staging_"), "staging directory leaked: %s", e.Name())
	}

	hist := m.GetHistorical("agent1")
	require.Len(t, hist, 1)
	assert.Equal(t, ref.Path, hist[0].Path)
}

func TestSnapshotImmutableAcrossEdits(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.CreateWorkspace("agent1")
	require.NoError(t, err)
	file := filepath.Join(ws.Path, "answer.md")
	require.NoError(t, os.WriteFile(file, []byte("v1"), 0o644))

	ref, err := m.Snapshot("agent1", "agent1.1", "")
	require.NoError(t, err)

	// Later workspace edits must not leak into the published snapshot.
	require.NoError(t, os.WriteFile(file, []byte("v2"), 0o644))
	data, err := os.ReadFile(filepath.Join(ref.Path, "answer.md"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestMaterializeSnapshot(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.CreateWorkspace("agent1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws.Path, "notes.md"), []byte("peer notes"), 0o644))
	ref, err := m.Snapshot("agent1", "agent1.1", "trace body")
	require.NoError(t, err)

	dest, err := m.MaterializeSnapshot(*ref, "agent2", 3)
	require.NoError(t, err)
	assert.Contains(t, dest, "agent2_turn_3")
	assert.FileExists(t, filepath.Join(dest, "notes.md"))
	assert.FileExists(t, filepath.Join(dest, trace.FileName))
}

func TestGuardReadRules(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.CreateWorkspace("agent1")
	require.NoError(t, err)

	ctx := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ctx, "ref.txt"), []byte("reference"), 0o644))
	require.NoError(t, m.MountContextPaths(ws, []types.ContextPathSpec{{Path: ctx, Permission: types.PermissionRead}}))

	g := NewGuard(m, ws)

	assert.NoError(t, g.CheckRead(filepath.Join(ws.Path, "anything.md")))
	assert.NoError(t, g.CheckRead(filepath.Join(ctx, "ref.txt")))

	err = g.CheckRead(filepath.Join(os.TempDir(), "elsewhere.txt"))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = g.CheckRead(filepath.Join(ws.Path, "song.mp3"))
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestGuardSnapshotReadable(t *testing.T) {
	m := newTestManager(t)
	ws1, err := m.CreateWorkspace("agent1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws1.Path, "art.md"), []byte("x"), 0o644))
	ref, err := m.Snapshot("agent1", "agent1.1", "")
	require.NoError(t, err)

	ws2, err := m.CreateWorkspace("agent2")
	require.NoError(t, err)
	g2 := NewGuard(m, ws2)

	// Peer snapshot is readable; peer live workspace is not.
	assert.NoError(t, g2.CheckRead(filepath.Join(ref.Path, "art.md")))
	assert.ErrorIs(t, g2.CheckRead(filepath.Join(ws1.Path, "art.md")), ErrPermissionDenied)
}

func TestGuardWriteWindow(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.CreateWorkspace("agent1")
	require.NoError(t, err)
	ctx := t.TempDir()
	require.NoError(t, m.MountContextPaths(ws, []types.ContextPathSpec{{Path: ctx, Permission: types.PermissionWrite}}))
	g := NewGuard(m, ws)

	target := filepath.Join(ctx, "out.md")

	// Closed during coordination.
	assert.ErrorIs(t, g.CheckWrite(target), ErrPermissionDenied)
	// Workspace writes always allowed.
	assert.NoError(t, g.CheckWrite(filepath.Join(ws.Path, "draft.md")))

	_, err = m.EnableWriteAccess(ws)
	require.NoError(t, err)
	assert.NoError(t, g.CheckWrite(target))
}

func TestGuardProtectedPathsImmune(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.CreateWorkspace("agent1")
	require.NoError(t, err)
	ctx := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(ctx, "vendor"), 0o755))
	require.NoError(t, m.MountContextPaths(ws, []types.ContextPathSpec{{
		Path:           ctx,
		Permission:     types.PermissionWrite,
		ProtectedPaths: []string{"vendor"},
	}}))
	_, err = m.EnableWriteAccess(ws)
	require.NoError(t, err)

	g := NewGuard(m, ws)
	assert.ErrorIs(t, g.CheckWrite(filepath.Join(ctx, "vendor", "lib.go")), ErrProtectedPath)
	assert.ErrorIs(t, g.CheckDelete(filepath.Join(ctx, "vendor", "lib.go")), ErrProtectedPath)
	// Sibling paths unaffected.
	assert.NoError(t, g.CheckWrite(filepath.Join(ctx, "main.go")))
}

func TestGuardReadBeforeDelete(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.CreateWorkspace("agent1")
	require.NoError(t, err)
	g := NewGuard(m, ws)

	target := filepath.Join(ws.Path, "scratch.md")
	require.NoError(t, os.WriteFile(target, []byte("scratch"), 0o644))

	err = g.CheckDelete(target)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReadBeforeDelete))

	g.RecordRead(target)
	assert.NoError(t, g.CheckDelete(target))
}

func TestMtimeDiff(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.CreateWorkspace("agent1")
	require.NoError(t, err)
	ctx := t.TempDir()
	existing := filepath.Join(ctx, "kept.md")
	touched := filepath.Join(ctx, "touched.md")
	require.NoError(t, os.WriteFile(existing, []byte("same"), 0o644))
	require.NoError(t, os.WriteFile(touched, []byte("before"), 0o644))
	require.NoError(t, m.MountContextPaths(ws, []types.ContextPathSpec{{Path: ctx, Permission: types.PermissionWrite}}))

	baseline, err := m.EnableWriteAccess(ws)
	require.NoError(t, err)

	// Advance mtime explicitly so the test does not depend on clock
	// granularity.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(touched, future, future))
	require.NoError(t, os.WriteFile(filepath.Join(ctx, "created.md"), []byte("new"), 0o644))

	written, err := m.DiffAgainst(ws, baseline)
	require.NoError(t, err)
	require.Len(t, written, 2)
	assert.Equal(t, filepath.Join(ctx, "created.md"), written[0].Path)
	assert.True(t, written[0].New)
	assert.Equal(t, touched, written[1].Path)
	assert.False(t, written[1].New)
}

func TestFormatWriteReport(t *testing.T) {
	short := []WrittenFile{{Path: "/a.md", New: true}, {Path: "/b.md"}}
	report, err := FormatWriteReport(short, t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, report, "+ /a.md (new)")
	assert.Contains(t, report, "~ /b.md")

	var many []WrittenFile
	for i := 0; i < 8; i++ {
		many = append(many, WrittenFile{Path: filepath.Join("/out", string(rune('a'+i)))})
	}
	dir := t.TempDir()
	report, err = FormatWriteReport(many, dir)
	require.NoError(t, err)
	assert.Contains(t, report, "8 files written")
	assert.FileExists(t, filepath.Join(dir, "written_files.txt"))

	empty, err := FormatWriteReport(nil, dir)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
