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
package tools

import (
	"fmt"
	"strings"
)

// Workflow tool names. Bare, never namespaced: these two end the streamed
// turn, and every agent must ultimately call one of them.
const (
	WorkflowNewAnswer = "new_answer"
	WorkflowVote      = "vote"
)

// WorkflowKind distinguishes the two terminal outcomes.
type WorkflowKind string

const (
	WorkflowKindAnswer WorkflowKind = "answer"
	WorkflowKindVote   WorkflowKind = "vote"
)

// WorkflowCall is a decoded terminal workflow-tool invocation, handed to the
// scheduler instead of being executed.
type WorkflowCall struct {
	// Kind is answer or vote
	Kind WorkflowKind

	// Content is the answer markdown (Kind == answer)
	Content string

	// Target is the endorsed answer label (Kind == vote)
	Target string

	// Reason is the voter's justification (Kind == vote)
	Reason string
}

// NewAnswerSchema describes the new_answer workflow tool.
func NewAnswerSchema() *JSONSchema {
	return NewObjectSchema(
		"Submit or refine your answer to the task. Calling this ends your current turn.",
		map[string]*JSONSchema{
			"content": NewStringSchema("Your complete answer in markdown"),
		},
		[]string{"content"},
	)
}

// VoteSchema describes the vote workflow tool.
func VoteSchema() *JSONSchema {
	return NewObjectSchema(
		"Endorse an existing answer by its label. Calling this ends your current turn.",
		map[string]*JSONSchema{
			"target": NewStringSchema("The answer label to endorse, e.g. agent1.2"),
			"reason": NewStringSchema("Why this answer is best"),
		},
		[]string{"target", "reason"},
	)
}

// decodeWorkflowCall parses workflow-tool arguments. Shape errors here are
// argument-level; protocol-level validation (live labels, answer limits)
// belongs to the scheduler.
func decodeWorkflowCall(name string, input map[string]interface{}) (*WorkflowCall, error) {
	switch name {
	case WorkflowNewAnswer:
		content, _ := input["content"].(string)
		if strings.TrimSpace(content) == "" {
			return nil, fmt.Errorf("new_answer requires non-empty content")
		}
		return &WorkflowCall{Kind: WorkflowKindAnswer, Content: content}, nil
	case WorkflowVote:
		target, _ := input["target"].(string)
		reason, _ := input["reason"].(string)
		if strings.TrimSpace(target) == "" {
			return nil, fmt.Errorf("vote requires a target answer label")
		}
		return &WorkflowCall{Kind: WorkflowKindVote, Target: target, Reason: reason}, nil
	default:
		return nil, fmt.Errorf("%s is not a workflow tool", name)
	}
}
