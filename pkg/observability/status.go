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
// Package observability owns the single authoritative status.json for a
// coordination run. One writer serializes every mutation and publishes with
// a temp-file-plus-rename, so readers (the CLI, parent runs recovering a
// subagent) observe either the prior or the new complete object, never a
// torn write. There is no second status file anywhere.
package observability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/warp/pkg/types"
)

// FileName is the status file name under the run's full_logs directory.
const FileName = "status.json"

// CoordinationStatus is the run-level progress block.
type CoordinationStatus struct {
	Phase                types.Phase `json:"phase"`
	CompletionPercentage float64     `json:"completion_percentage"`
	CurrentVotingRound   int         `json:"current_voting_round"`
}

// AgentRecord is the per-agent reliability and enforcement block.
type AgentRecord struct {
	Status                  types.AgentStatus          `json:"status"`
	EnforcementAttempts     []types.EnforcementAttempt `json:"enforcement_attempts,omitempty"`
	ByRound                 map[string]int             `json:"by_round,omitempty"`
	UnknownTools            []string                   `json:"unknown_tools,omitempty"`
	WorkflowErrors          []string                   `json:"workflow_errors,omitempty"`
	TotalEnforcementRetries int                        `json:"total_enforcement_retries"`
	TotalBufferCharsLost    int                        `json:"total_buffer_chars_lost"`
	Outcome                 types.AgentOutcome         `json:"outcome"`
}

// Costs aggregates token usage and estimated spend across all agents.
type Costs struct {
	TotalInputTokens  int     `json:"total_input_tokens"`
	TotalOutputTokens int     `json:"total_output_tokens"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
}

// Results holds winner selection state. Answer contents ride along so a
// parent run can recover a child's work from this file alone.
type Results struct {
	Winner  string            `json:"winner,omitempty"`
	Votes   map[string]int    `json:"votes,omitempty"`
	Answers map[string]string `json:"answers,omitempty"`
}

// HistoricalWorkspace is one published snapshot entry.
type HistoricalWorkspace struct {
	AgentID       string    `json:"agentId"`
	AnswerLabel   string    `json:"answerLabel"`
	Timestamp     time.Time `json:"timestamp"`
	WorkspacePath string    `json:"workspacePath"`
}

// Status is the full status.json document.
type Status struct {
	Coordination         CoordinationStatus      `json:"coordination"`
	Agents               map[string]*AgentRecord `json:"agents"`
	Costs                Costs                   `json:"costs"`
	Results              Results                 `json:"results"`
	HistoricalWorkspaces []HistoricalWorkspace   `json:"historical_workspaces,omitempty"`
}

// Store serializes status mutations and atomic publication.
type Store struct {
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	status Status
}

// NewStore creates the store writing <runLogDir>/full_logs/status.json.
func NewStore(runLogDir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Join(runLogDir, "full_logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	s := &Store{
		path:   filepath.Join(dir, FileName),
		logger: logger,
		status: Status{
			Coordination: CoordinationStatus{Phase: types.PhaseInitialAnswer},
			Agents:       make(map[string]*AgentRecord),
			Results:      Results{Votes: make(map[string]int)},
		},
	}
	if err := s.flushLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the status file location.
func (s *Store) Path() string { return s.path }

// Update applies fn to the status under the writer lock, then publishes
// atomically. All scheduler-side mutations go through here.
func (s *Store) Update(fn func(*Status)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
	return s.flushLocked()
}

// Snapshot returns a deep copy of the current status.
func (s *Store) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Round-trip through JSON: slow path, only used by tests and the CLI.
	data, _ := json.Marshal(s.status)
	var copied Status
	_ = json.Unmarshal(data, &copied)
	if copied.Agents == nil {
		copied.Agents = make(map[string]*AgentRecord)
	}
	return copied
}

// flushLocked publishes the current status with temp-file + rename.
func (s *Store) flushLocked() error {
	data, err := json.MarshalIndent(&s.status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write status temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish status: %w", err)
	}
	return nil
}

// agent returns (creating if needed) the record for agentID. Callers hold
// the Update closure.
func (st *Status) agent(agentID string) *AgentRecord {
	if st.Agents == nil {
		st.Agents = make(map[string]*AgentRecord)
	}
	rec, ok := st.Agents[agentID]
	if !ok {
		rec = &AgentRecord{Status: types.AgentWaiting, Outcome: types.OutcomeOK}
		st.Agents[agentID] = rec
	}
	return rec
}

// SetPhase records the coordination phase and completion estimate.
func (s *Store) SetPhase(phase types.Phase, completionPct float64) error {
	return s.Update(func(st *Status) {
		st.Coordination.Phase = phase
		st.Coordination.CompletionPercentage = completionPct
	})
}

// SetVotingRound records the current voting round.
func (s *Store) SetVotingRound(round int) error {
	return s.Update(func(st *Status) {
		st.Coordination.CurrentVotingRound = round
	})
}

// SetAgentStatus records one agent's runtime status.
func (s *Store) SetAgentStatus(agentID string, status types.AgentStatus) error {
	return s.Update(func(st *Status) {
		st.agent(agentID).Status = status
	})
}

// SetAgentOutcome records one agent's final reliability verdict.
func (s *Store) SetAgentOutcome(agentID string, outcome types.AgentOutcome) error {
	return s.Update(func(st *Status) {
		st.agent(agentID).Outcome = outcome
	})
}

// RecordEnforcement appends an enforcement attempt with its captured buffer
// evidence and bumps the per-round and total counters.
func (s *Store) RecordEnforcement(agentID string, attempt types.EnforcementAttempt) error {
	return s.Update(func(st *Status) {
		rec := st.agent(agentID)
		rec.EnforcementAttempts = append(rec.EnforcementAttempts, attempt)
		if rec.ByRound == nil {
			rec.ByRound = make(map[string]int)
		}
		rec.ByRound[strconv.Itoa(attempt.Round)]++
		rec.TotalEnforcementRetries++
		rec.TotalBufferCharsLost += attempt.BufferChars
		if attempt.Reason == types.ReasonUnknownTool {
			rec.UnknownTools = append(rec.UnknownTools, attempt.ToolCalls...)
		}
		if attempt.ErrorMessage != "" {
			rec.WorkflowErrors = append(rec.WorkflowErrors, attempt.ErrorMessage)
		}
	})
}

// RecordWorkflowError appends a workflow-protocol error message that did
// not become an enforcement attempt (e.g. a failed snapshot).
func (s *Store) RecordWorkflowError(agentID, msg string) error {
	return s.Update(func(st *Status) {
		rec := st.agent(agentID)
		rec.WorkflowErrors = append(rec.WorkflowErrors, msg)
	})
}

// AddUsage accumulates token usage into the cost totals. Totals are
// monotonic: usage is only ever added.
func (s *Store) AddUsage(u types.Usage) error {
	return s.Update(func(st *Status) {
		st.Costs.TotalInputTokens += u.InputTokens
		st.Costs.TotalOutputTokens += u.OutputTokens
		st.Costs.TotalCostUSD += u.CostUSD
	})
}

// SetVotes replaces the live vote counts.
func (s *Store) SetVotes(votes map[string]int) error {
	return s.Update(func(st *Status) {
		st.Results.Votes = votes
	})
}

// RecordAnswer stores a registered answer's content under its label.
func (s *Store) RecordAnswer(label, content string) error {
	return s.Update(func(st *Status) {
		if st.Results.Answers == nil {
			st.Results.Answers = make(map[string]string)
		}
		st.Results.Answers[label] = content
	})
}

// SetWinner records the winning answer label.
func (s *Store) SetWinner(label string) error {
	return s.Update(func(st *Status) {
		st.Results.Winner = label
	})
}

// AppendHistorical registers a published snapshot.
func (s *Store) AppendHistorical(ref types.SnapshotRef) error {
	return s.Update(func(st *Status) {
		st.HistoricalWorkspaces = append(st.HistoricalWorkspaces, HistoricalWorkspace{
			AgentID:       ref.AgentID,
			AnswerLabel:   ref.AnswerLabel,
			Timestamp:     ref.Timestamp,
			WorkspacePath: ref.Path,
		})
	})
}
