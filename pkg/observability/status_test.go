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
package observability

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/warp/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func TestStoreCreatesFileOnOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "full_logs", FileName), s.Path())
	assert.FileExists(t, s.Path())

	st, err := ReadStatus(s.Path())
	require.NoError(t, err)
	assert.Equal(t, types.PhaseInitialAnswer, st.Coordination.Phase)
}

func TestAtomicReadback(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetPhase(types.PhaseEnforcement, 50))
	require.NoError(t, s.SetVotingRound(2))
	require.NoError(t, s.SetAgentStatus("agent1", types.AgentStreaming))

	st, err := ReadStatus(s.Path())
	require.NoError(t, err)
	assert.Equal(t, types.PhaseEnforcement, st.Coordination.Phase)
	assert.Equal(t, 2, st.Coordination.CurrentVotingRound)
	assert.Equal(t, types.AgentStreaming, st.Agents["agent1"].Status)
}

func TestRecordEnforcement(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordEnforcement("agent1", types.EnforcementAttempt{
		Round:         1,
		Attempt:       1,
		Reason:        types.ReasonNoToolCalls,
		BufferPreview: "I think the answer",
		BufferChars:   1234,
		Timestamp:     time.Now(),
	}))
	require.NoError(t, s.RecordEnforcement("agent1", types.EnforcementAttempt{
		Round:        1,
		Attempt:      2,
		Reason:       types.ReasonUnknownTool,
		ToolCalls:    []string{"execute_command"},
		ErrorMessage: "called execute_command (not workflow)",
		BufferChars:  80,
		Timestamp:    time.Now(),
	}))

	st := s.Snapshot()
	rec := st.Agents["agent1"]
	require.NotNil(t, rec)
	assert.Len(t, rec.EnforcementAttempts, 2)
	assert.Equal(t, 2, rec.TotalEnforcementRetries)
	assert.Equal(t, 1314, rec.TotalBufferCharsLost)
	assert.Equal(t, 2, rec.ByRound["1"])
	assert.Equal(t, []string{"execute_command"}, rec.UnknownTools)
	assert.Len(t, rec.WorkflowErrors, 1)
}

func TestCostMonotonicity(t *testing.T) {
	s := newTestStore(t)
	var lastIn, lastOut int
	var lastRetries int
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AddUsage(types.Usage{InputTokens: 100, OutputTokens: 40, CostUSD: 0.01}))
		require.NoError(t, s.RecordEnforcement("agent1", types.EnforcementAttempt{Round: 1, Attempt: i + 1, Reason: types.ReasonNoToolCalls}))

		st, err := ReadStatus(s.Path())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, st.Costs.TotalInputTokens, lastIn)
		assert.GreaterOrEqual(t, st.Costs.TotalOutputTokens, lastOut)
		assert.GreaterOrEqual(t, st.Agents["agent1"].TotalEnforcementRetries, lastRetries)
		lastIn = st.Costs.TotalInputTokens
		lastOut = st.Costs.TotalOutputTokens
		lastRetries = st.Agents["agent1"].TotalEnforcementRetries
	}
	assert.Equal(t, 500, lastIn)
}

func TestConcurrentWriters(t *testing.T) {
	s := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = s.AddUsage(types.Usage{InputTokens: 1})
			}
		}()
	}
	wg.Wait()

	st, err := ReadStatus(s.Path())
	require.NoError(t, err)
	assert.Equal(t, 160, st.Costs.TotalInputTokens)
}

func TestHistoricalWorkspaces(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendHistorical(types.SnapshotRef{
		AgentID:     "agent1",
		AnswerLabel: "agent1.1",
		Timestamp:   time.Now(),
		Path:        "/run/snapshots/agent1_1",
	}))
	st := s.Snapshot()
	require.Len(t, st.HistoricalWorkspaces, 1)
	assert.Equal(t, "agent1", st.HistoricalWorkspaces[0].AgentID)
	assert.Equal(t, "agent1.1", st.HistoricalWorkspaces[0].AnswerLabel)
}

func TestDeriveView(t *testing.T) {
	tests := []struct {
		phase      types.Phase
		wantStatus string
	}{
		{types.PhaseInitialAnswer, "running"},
		{types.PhaseEnforcement, "running"},
		{types.PhasePresentation, "finalizing"},
		{types.PhaseDone, "completed"},
		{types.PhaseFailed, "failed"},
	}
	for _, tt := range tests {
		st := &Status{
			Coordination: CoordinationStatus{Phase: tt.phase, CompletionPercentage: 75},
			Costs:        Costs{TotalInputTokens: 1000, TotalOutputTokens: 200, TotalCostUSD: 0.5},
			Results:      Results{Winner: "agent2.1"},
		}
		view := DeriveView(st)
		assert.Equal(t, tt.wantStatus, view.Status, "phase %s", tt.phase)
		assert.Equal(t, 1200, view.TokenUsage.TotalTokens)
		assert.Equal(t, "agent2.1", view.Winner)
	}
}
