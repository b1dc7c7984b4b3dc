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
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/warp/pkg/trace"
	"github.com/teradata-labs/warp/pkg/types"
)

// Snapshot atomically captures the agent's workspace at answer-submission
// time, bundling the execution trace. Staging happens in a hidden sibling
// directory; the final rename is the publication point. A failure anywhere
// before the rename leaves nothing visible: consumers never observe a
// partial snapshot.
func (m *Manager) Snapshot(agentID, answerLabel, traceMarkdown string) (*types.SnapshotRef, error) {
	ws, ok := m.Get(agentID)
	if !ok {
		return nil, fmt.Errorf("no workspace for agent %s", agentID)
	}

	now := time.Now()
	snapDir := filepath.Join(m.runDir, "snapshots")
	finalName := fmt.Sprintf("%s_%d", agentID, now.UnixNano())
	staging := filepath.Join(snapDir, ".staging_"+finalName)
	final := filepath.Join(snapDir, finalName)

	if err := copyTree(ws.Path, staging); err != nil {
		os.RemoveAll(staging)
		return nil, fmt.Errorf("snapshot copy failed for %s: %w", answerLabel, err)
	}

	tracePath := filepath.Join(staging, trace.FileName)
	if err := os.WriteFile(tracePath, []byte(traceMarkdown), 0o644); err != nil {
		os.RemoveAll(staging)
		return nil, fmt.Errorf("snapshot trace write failed for %s: %w", answerLabel, err)
	}

	if err := syncDir(staging); err != nil {
		os.RemoveAll(staging)
		return nil, fmt.Errorf("snapshot fsync failed for %s: %w", answerLabel, err)
	}

	if err := os.Rename(staging, final); err != nil {
		os.RemoveAll(staging)
		return nil, fmt.Errorf("snapshot publish failed for %s: %w", answerLabel, err)
	}

	ref := types.SnapshotRef{
		AgentID:     agentID,
		AnswerLabel: answerLabel,
		Timestamp:   now,
		Path:        final,
		TracePath:   filepath.Join(final, trace.FileName),
	}
	m.historical.Append(ref)
	m.logger.Info("Snapshot published",
		zap.String("agent_id", agentID),
		zap.String("answer_label", answerLabel),
		zap.String("path", final))
	return &ref, nil
}

// syncDir fsyncs a directory so the rename that follows is durable.
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
