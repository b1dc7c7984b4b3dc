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
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/warp/pkg/observability"
	"github.com/teradata-labs/warp/pkg/types"
)

// Recover turns a finished (or cut-off) nested run into a SubagentResult.
// Work is never discarded: the child's status file decides how much was
// salvaged, and the outer status always reflects the recovery outcome.
func Recover(task Task, runErr error, elapsed time.Duration, logger *zap.Logger) types.SubagentResult {
	if logger == nil {
		logger = zap.NewNop()
	}
	res := types.SubagentResult{
		SubagentID:    task.ID,
		Duration:      elapsed,
		WorkspacePath: filepath.Join(task.RunDir, "workspaces"),
	}

	st, statErr := observability.ReadStatus(StatusPath(task.RunDir))
	if st != nil {
		res.Tokens = types.Usage{
			InputTokens:  st.Costs.TotalInputTokens,
			OutputTokens: st.Costs.TotalOutputTokens,
			TotalTokens:  st.Costs.TotalInputTokens + st.Costs.TotalOutputTokens,
			CostUSD:      st.Costs.TotalCostUSD,
		}
		res.CompletionPct = st.Coordination.CompletionPercentage
	}

	timedOut := runErr != nil && (errors.Is(runErr, context.DeadlineExceeded) || errors.Is(runErr, context.Canceled))

	switch {
	case runErr == nil:
		res.Status = types.SubagentCompleted
		res.Success = true
		if st != nil {
			res.Answer = recoveredAnswer(st)
		}
	case st == nil:
		// Nothing to salvage.
		if timedOut {
			res.Status = types.SubagentTimeout
		} else {
			res.Status = types.SubagentError
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf("no child status available: %v", firstErr(runErr, statErr)))
	default:
		res.Answer = recoveredAnswer(st)
		switch {
		case st.Coordination.Phase == types.PhaseDone || st.Coordination.Phase == types.PhasePresentation:
			// The child had already decided; only the wrap-up was cut off.
			res.Status = types.SubagentCompletedButTimeout
			res.Success = res.Answer != ""
		case res.Answer != "":
			res.Status = types.SubagentPartial
			res.Success = true
		default:
			res.Status = types.SubagentTimeout
		}
		if !timedOut && runErr != nil {
			res.Warnings = append(res.Warnings, runErr.Error())
		}
	}

	logger.Info("Subagent finished",
		zap.String("subagent_id", task.ID),
		zap.String("status", string(res.Status)),
		zap.Float64("completion_pct", res.CompletionPct),
		zap.Duration("elapsed", elapsed))
	return res
}

// recoveredAnswer extracts the best available answer from a child status:
// the declared winner, else the live-vote leader, else the first-registered
// answer.
func recoveredAnswer(st *observability.Status) string {
	if len(st.Results.Answers) == 0 {
		return ""
	}
	if st.Results.Winner != "" {
		if content, ok := st.Results.Answers[st.Results.Winner]; ok {
			return content
		}
	}

	// Vote leader, ties broken by registration order (the historical
	// workspace list preserves submission order).
	order := labelOrder(st)
	bestLabel := ""
	bestVotes := -1
	for _, label := range order {
		if _, ok := st.Results.Answers[label]; !ok {
			continue
		}
		if v := st.Results.Votes[label]; v > bestVotes {
			bestLabel, bestVotes = label, v
		}
	}
	if bestLabel != "" {
		return st.Results.Answers[bestLabel]
	}
	// Answers exist but none appear in the historical order (snapshot
	// failed); take any deterministically.
	for _, label := range order {
		if content, ok := st.Results.Answers[label]; ok {
			return content
		}
	}
	return ""
}

// labelOrder returns answer labels in submission order, falling back to the
// answers map when the historical list is empty.
func labelOrder(st *observability.Status) []string {
	var order []string
	seen := make(map[string]bool)
	for _, hw := range st.HistoricalWorkspaces {
		if !seen[hw.AnswerLabel] {
			order = append(order, hw.AnswerLabel)
			seen[hw.AnswerLabel] = true
		}
	}
	var rest []string
	for label := range st.Results.Answers {
		if !seen[label] {
			rest = append(rest, label)
			seen[label] = true
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
