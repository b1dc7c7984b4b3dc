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
package subagent

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teradata-labs/warp/internal/csync"
	"github.com/teradata-labs/warp/pkg/observability"
)

// progressStep is the minimum completion-percentage advance that produces a
// progress note.
const progressStep = 25.0

// watchProgress watches a child's status file and queues a note for the
// parent each time completion advances by at least progressStep points. The
// returned channel closes when the watcher exits.
func (m *Manager) watchProgress(ctx context.Context, subagentID, parentID, statusPath string) chan struct{} {
	done := make(chan struct{})
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Warn("Progress watcher unavailable", zap.Error(err))
		close(done)
		return done
	}
	// Watch the directory: the store publishes via rename, which replaces
	// the file inode.
	if err := watcher.Add(filepath.Dir(statusPath)); err != nil {
		m.logger.Warn("Progress watcher unavailable",
			zap.String("path", statusPath),
			zap.Error(err))
		watcher.Close()
		close(done)
		return done
	}

	go func() {
		defer close(done)
		defer watcher.Close()

		lastReported := 0.0
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != observability.FileName {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				st, err := observability.ReadStatus(statusPath)
				if err != nil {
					continue
				}
				view := observability.DeriveView(st)
				if view.CompletionPercentage-lastReported < progressStep {
					continue
				}
				lastReported = view.CompletionPercentage
				m.queueNote(parentID, fmt.Sprintf(
					"<subagent_progress id=%q status=%q completion=%.0f%% />",
					subagentID, view.Status, view.CompletionPercentage))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Debug("Progress watcher error", zap.Error(err))
			}
		}
	}()
	return done
}

// queueNote appends a progress note for the parent's next tool boundary.
func (m *Manager) queueNote(parentID, note string) {
	q := m.notes.GetOrSet(parentID, func() *csync.Slice[string] {
		return csync.NewSlice[string]()
	})
	q.Append(note)
}
