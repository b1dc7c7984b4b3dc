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
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/teradata-labs/warp/pkg/types"
)

// MtimeIndex maps absolute file paths to their modification times.
type MtimeIndex map[string]time.Time

// WrittenFile is one file reported by the write-diff.
type WrittenFile struct {
	// Path is the absolute file path
	Path string `json:"path"`

	// New is true when the file did not exist in the baseline index
	New bool `json:"new"`
}

// SnapshotMtimeIndex walks every writable context path and records each
// file's mtime. Taken right before write access opens; the diff after the
// write window closes reports what the winner actually changed.
func (m *Manager) SnapshotMtimeIndex(ws *Workspace) (MtimeIndex, error) {
	index := make(MtimeIndex)
	for _, spec := range ws.ContextPaths() {
		if spec.Permission != types.PermissionWrite {
			continue
		}
		err := filepath.Walk(spec.Path, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() {
				index[path] = info.ModTime()
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", spec.Path, err)
		}
	}
	return index, nil
}

// DiffAgainst reports files whose mtime advanced past the prior index or
// which are new, sorted by path.
func (m *Manager) DiffAgainst(ws *Workspace, prior MtimeIndex) ([]WrittenFile, error) {
	current, err := m.SnapshotMtimeIndex(ws)
	if err != nil {
		return nil, err
	}
	var written []WrittenFile
	for path, mtime := range current {
		before, existed := prior[path]
		if !existed {
			written = append(written, WrittenFile{Path: path, New: true})
		} else if mtime.After(before) {
			written = append(written, WrittenFile{Path: path})
		}
	}
	sort.Slice(written, func(i, j int) bool { return written[i].Path < written[j].Path })
	return written, nil
}

// FormatWriteReport renders the write-diff for attachment to the final
// answer: inline when five or fewer files changed, otherwise written to a
// side file whose path is referenced instead.
func FormatWriteReport(written []WrittenFile, sideFileDir string) (string, error) {
	if len(written) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Files written during final presentation (%d):\n", len(written)))
	for _, w := range written {
		if w.New {
			b.WriteString("  + " + w.Path + " (new)\n")
		} else {
			b.WriteString("  ~ " + w.Path + "\n")
		}
	}
	if len(written) <= 5 {
		return b.String(), nil
	}
	side := filepath.Join(sideFileDir, "written_files.txt")
	if err := os.WriteFile(side, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write file report: %w", err)
	}
	return fmt.Sprintf("%d files written during final presentation; full list: %s", len(written), side), nil
}
