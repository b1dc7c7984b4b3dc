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
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/teradata-labs/warp/pkg/types"
)

// binaryExtensions are read-blocked by default: streaming audio/video or
// object code into an LLM context is never useful.
var binaryExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".ogg": true, ".m4a": true,
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true,
	".o": true, ".a": true, ".so": true, ".dylib": true, ".dll": true,
	".exe": true, ".bin": true, ".class": true, ".pyc": true,
}

// Guard checks individual file operations for one agent against its
// workspace, context paths, and the published snapshot set. It records
// successful reads to enforce read-before-delete within the session.
type Guard struct {
	manager   Guarded
	ws        *Workspace
	mu        sync.Mutex
	readPaths map[string]bool
}

// Guarded is the subset of Manager the guard consults for snapshot reads.
type Guarded interface {
	Historical() []types.SnapshotRef
}

// NewGuard creates a guard bound to one agent's workspace.
func NewGuard(m Guarded, ws *Workspace) *Guard {
	return &Guard{manager: m, ws: ws, readPaths: make(map[string]bool)}
}

// CheckRead validates a read. Reads are permitted anywhere in the agent's
// workspace, any mounted context path, or any published snapshot. Binary
// extensions are blocked.
func (g *Guard) CheckRead(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: invalid path %s", ErrPermissionDenied, path)
	}
	if binaryExtensions[strings.ToLower(filepath.Ext(abs))] {
		return fmt.Errorf("%w: binary file type %s is read-blocked", ErrPermissionDenied, filepath.Ext(abs))
	}
	if pathWithin(abs, g.ws.Path) {
		return nil
	}
	for _, spec := range g.ws.ContextPaths() {
		if pathWithin(abs, spec.Path) {
			return nil
		}
	}
	for _, ref := range g.manager.Historical() {
		if pathWithin(abs, ref.Path) {
			return nil
		}
	}
	return fmt.Errorf("%w: read of %s outside workspace, context paths, and snapshots", ErrPermissionDenied, abs)
}

// RecordRead marks a successful read so the path becomes deletable later in
// the session.
func (g *Guard) RecordRead(path string) {
	if abs, err := filepath.Abs(path); err == nil {
		g.mu.Lock()
		g.readPaths[abs] = true
		g.mu.Unlock()
	}
}

// CheckWrite validates a write. Writes are permitted in the agent's
// workspace always, and in writable context paths only once the
// final-presentation write window is open. Protected paths are refused
// unconditionally.
func (g *Guard) CheckWrite(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: invalid path %s", ErrPermissionDenied, path)
	}
	if err := g.checkProtected(abs); err != nil {
		return err
	}
	if pathWithin(abs, g.ws.Path) {
		return nil
	}
	if g.ws.WriteEnabled() {
		for _, spec := range g.ws.ContextPaths() {
			if spec.Permission == types.PermissionWrite && pathWithin(abs, spec.Path) {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: write of %s outside workspace and writable context paths", ErrPermissionDenied, abs)
}

// CheckDelete validates a delete: write rules, plus read-before-delete.
func (g *Guard) CheckDelete(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: invalid path %s", ErrPermissionDenied, path)
	}
	if err := g.CheckWrite(abs); err != nil {
		return err
	}
	g.mu.Lock()
	read := g.readPaths[abs]
	g.mu.Unlock()
	if !read {
		return fmt.Errorf("%w: %s", ErrReadBeforeDelete, abs)
	}
	return nil
}

// checkProtected refuses any path under a registered protected subpath.
func (g *Guard) checkProtected(abs string) error {
	for _, spec := range g.ws.ContextPaths() {
		for _, prot := range spec.ProtectedPaths {
			protAbs := prot
			if !filepath.IsAbs(prot) {
				protAbs = filepath.Join(spec.Path, prot)
			}
			if abs == protAbs || pathWithin(abs, protAbs) {
				return fmt.Errorf("%w: %s", ErrProtectedPath, abs)
			}
		}
	}
	return nil
}

// pathWithin reports whether path is root or inside root.
func pathWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..")
}
