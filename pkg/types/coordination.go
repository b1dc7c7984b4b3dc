// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ============================================================================
// Coordination phases and agent statuses
// ============================================================================

// Phase is the coordination run phase.
type Phase string

const (
	PhaseInitialAnswer Phase = "initial_answer"
	PhaseEnforcement   Phase = "enforcement"
	PhasePresentation  Phase = "presentation"
	PhaseDone          Phase = "done"
	PhaseFailed        Phase = "failed"
)

// AgentStatus is the runtime status of one agent runner.
type AgentStatus string

const (
	AgentWaiting               AgentStatus = "waiting"
	AgentStreaming             AgentStatus = "streaming"
	AgentSuspendedForInjection AgentStatus = "suspended_for_injection"
	AgentAwaitingRestart       AgentStatus = "awaiting_restart"
	AgentVoted                 AgentStatus = "voted"
	AgentWon                   AgentStatus = "won"
	AgentFailed                AgentStatus = "failed"
)

// AgentOutcome is the final reliability verdict for an agent within a run.
type AgentOutcome string

const (
	OutcomeOK           AgentOutcome = "ok"
	OutcomeNonCompliant AgentOutcome = "non_compliant"
	OutcomeDropped      AgentOutcome = "dropped"
)

// EnforcementReason classifies a workflow-protocol violation.
type EnforcementReason string

const (
	ReasonNoWorkflowTool  EnforcementReason = "no_workflow_tool"
	ReasonNoToolCalls     EnforcementReason = "no_tool_calls"
	ReasonInvalidVoteID   EnforcementReason = "invalid_vote_id"
	ReasonVoteNoAnswers   EnforcementReason = "vote_no_answers"
	ReasonVoteAndAnswer   EnforcementReason = "vote_and_answer"
	ReasonAnswerLimit     EnforcementReason = "answer_limit"
	ReasonAnswerNovelty   EnforcementReason = "answer_novelty"
	ReasonAnswerDuplicate EnforcementReason = "answer_duplicate"
	ReasonUnknownTool     EnforcementReason = "unknown_tool"
)

// EnforcementAttempt records one protocol violation and the captured
// streaming-buffer evidence.
type EnforcementAttempt struct {
	Round         int               `json:"round"`
	Attempt       int               `json:"attempt"`
	Reason        EnforcementReason `json:"reason"`
	ToolCalls     []string          `json:"tool_calls,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	BufferPreview string            `json:"buffer_preview,omitempty"`
	BufferChars   int               `json:"buffer_chars"`
	Timestamp     time.Time         `json:"timestamp"`
}

// ============================================================================
// Answers, votes, snapshots
// ============================================================================

// SnapshotRef identifies one immutable workspace snapshot taken at
// answer-submission time.
type SnapshotRef struct {
	// AgentID is the snapshot owner
	AgentID string `json:"agent_id"`

	// AnswerLabel is the answer this snapshot belongs to
	AnswerLabel string `json:"answer_label"`

	// Timestamp is the snapshot creation time
	Timestamp time.Time `json:"timestamp"`

	// Path is the published snapshot directory
	Path string `json:"path"`

	// TracePath is the execution trace inside the snapshot
	TracePath string `json:"trace_path"`
}

// Answer is one submitted answer. Answers are append-only; superseded
// answers remain accessible by label.
type Answer struct {
	// Label is the answer identity, form agent{N}.{k}
	Label string `json:"label"`

	// AgentID is the submitting agent
	AgentID string `json:"agent_id"`

	// Content is the answer markdown
	Content string `json:"content"`

	// SubmittedAt orders answers for tie-breaking
	SubmittedAt time.Time `json:"submitted_at"`

	// Snapshot is the workspace snapshot published with this answer
	Snapshot *SnapshotRef `json:"snapshot,omitempty"`
}

// Vote endorses an existing answer within a voting round.
type Vote struct {
	// VoterID is the voting agent
	VoterID string `json:"voter_id"`

	// Target is the endorsed answer label
	Target string `json:"target"`

	// Reason is the voter's stated justification
	Reason string `json:"reason"`

	// Round is the voting round the vote was cast in
	Round int `json:"round"`

	// SubmittedAt is the vote time
	SubmittedAt time.Time `json:"submitted_at"`

	// Invalidated marks votes from superseded rounds; they are retained for
	// history but never counted for winner selection
	Invalidated bool `json:"invalidated"`
}

// answerLabelRe matches agent{N}.{k} and agent{N}.final labels.
var answerLabelRe = regexp.MustCompile(`^agent(\d+)\.(\d+|final)$`)

// AnswerLabel builds the label for submission k (1-indexed) by agent N
// (1-indexed registration order).
func AnswerLabel(agentIndex, k int) string {
	return fmt.Sprintf("agent%d.%d", agentIndex, k)
}

// FinalAnswerLabel builds the label assigned to the winning answer.
func FinalAnswerLabel(agentIndex int) string {
	return fmt.Sprintf("agent%d.final", agentIndex)
}

// ParseAnswerLabel splits a label into agent index and submission number.
// The final label yields submission 0 with final=true.
func ParseAnswerLabel(label string) (agentIndex, k int, final bool, err error) {
	m := answerLabelRe.FindStringSubmatch(label)
	if m == nil {
		return 0, 0, false, fmt.Errorf("malformed answer label %q", label)
	}
	agentIndex, _ = strconv.Atoi(m[1])
	if m[2] == "final" {
		return agentIndex, 0, true, nil
	}
	k, _ = strconv.Atoi(m[2])
	if k < 1 {
		return 0, 0, false, fmt.Errorf("answer label %q has submission number %d, must be >= 1", label, k)
	}
	return agentIndex, k, false, nil
}

// ============================================================================
// Context paths
// ============================================================================

// Permission is a context path access mode.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

// ContextPathSpec mounts an external directory into a workspace.
type ContextPathSpec struct {
	// Path is the absolute directory path
	Path string `json:"path"`

	// Permission is read or write; write paths stay read-only until the
	// final-presentation boundary
	Permission Permission `json:"permission"`

	// ProtectedPaths are subpaths that must never be modified or deleted
	ProtectedPaths []string `json:"protected_paths,omitempty"`
}

// ============================================================================
// Subagents
// ============================================================================

// SubagentStatus is the completion status of a nested coordination run.
type SubagentStatus string

const (
	SubagentCompleted           SubagentStatus = "completed"
	SubagentCompletedButTimeout SubagentStatus = "completed_but_timeout"
	SubagentPartial             SubagentStatus = "partial"
	SubagentTimeout             SubagentStatus = "timeout"
	SubagentError               SubagentStatus = "error"
)

// SubagentResult is the outcome of one subagent task, queued at completion
// and drained at the parent's next tool boundary.
type SubagentResult struct {
	// ParentAgentID is the spawning agent
	ParentAgentID string `json:"parent_agent_id"`

	// SubagentID identifies the nested run
	SubagentID string `json:"subagent_id"`

	// Status reflects the recovery outcome, never a hard-coded timeout when
	// content was recovered
	Status SubagentStatus `json:"status"`

	// Success is true when an answer was recovered
	Success bool `json:"success"`

	// Answer is the recovered answer content, empty when none
	Answer string `json:"answer,omitempty"`

	// Tokens holds the recovered usage totals from the child status file
	Tokens Usage `json:"tokens"`

	// CompletionPct is the child's completion percentage when available
	CompletionPct float64 `json:"completion_pct"`

	// WorkspacePath lets the parent read child artifacts after recovery
	WorkspacePath string `json:"workspace_path,omitempty"`

	// Duration is the wall-clock task duration
	Duration time.Duration `json:"duration"`

	// Warnings carries recovery notes (e.g. orphaned completion)
	Warnings []string `json:"warnings,omitempty"`
}
