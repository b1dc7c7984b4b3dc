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
package orchestration

import (
	"fmt"
	"strings"

	"github.com/teradata-labs/warp/pkg/types"
)

// violation is one enforcement decision before it becomes a restart.
type violation struct {
	reason types.EnforcementReason

	// submitted is the offending value (a vote target, an unknown tool name)
	submitted string
}

// retryMessage builds the restart message for a violation: the retry
// counter, reason-specific guidance, and the live label list where voting
// is involved.
func retryMessage(v violation, attempt, max int, labels []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Retry (%d/%d): ", attempt, max)

	switch v.reason {
	case types.ReasonNoToolCalls:
		b.WriteString("Your turn ended without any tool call. You must finish by calling new_answer(content) or vote(target, reason).")
	case types.ReasonNoWorkflowTool:
		b.WriteString("Your turn ended without a workflow tool. You must finish by calling new_answer(content) or vote(target, reason).")
	case types.ReasonUnknownTool:
		fmt.Fprintf(&b, "You called an unregistered tool (%s). Use only the tools provided, and finish with new_answer or vote.", v.submitted)
	case types.ReasonInvalidVoteID:
		fmt.Fprintf(&b, "You voted for %q, which is not a valid answer label.", v.submitted)
		if suggestion := suggestLabel(v.submitted, labels); suggestion != "" {
			fmt.Fprintf(&b, " Did you mean %q?", suggestion)
		}
	case types.ReasonVoteNoAnswers:
		b.WriteString("You voted, but no answers have been submitted yet. Submit your own answer with new_answer(content).")
	case types.ReasonVoteAndAnswer:
		b.WriteString("You called both new_answer and vote in one turn. Call exactly one of them.")
	case types.ReasonAnswerLimit:
		b.WriteString("You have reached your answer limit. Vote for the best existing answer with vote(target, reason).")
	case types.ReasonAnswerDuplicate:
		b.WriteString("Your new answer is nearly identical to your previous one. Either improve it substantially or vote for the best existing answer.")
	case types.ReasonAnswerNovelty:
		b.WriteString("Your answer is nearly identical to an existing answer. Vote for it instead, or submit something substantively different.")
	default:
		b.WriteString("Your turn violated the coordination protocol. Finish by calling new_answer or vote.")
	}

	if len(labels) > 0 && v.reason != types.ReasonVoteNoAnswers {
		fmt.Fprintf(&b, "\nValid answer labels: %s", strings.Join(labels, ", "))
	}
	return b.String()
}
