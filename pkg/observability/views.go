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
	"encoding/json"
	"fmt"
	"os"

	"github.com/teradata-labs/warp/pkg/types"
)

// View is the simplified status derived for check-style queries. It is
// computed from the authoritative file on demand and never written back.
type View struct {
	Status               string      `json:"status"`
	Phase                types.Phase `json:"phase"`
	CompletionPercentage float64     `json:"completion_percentage"`
	VotingRound          int         `json:"voting_round"`
	Winner               string      `json:"winner,omitempty"`
	TokenUsage           types.Usage `json:"token_usage"`
}

// ReadStatus loads a status.json written by this or a child run.
func ReadStatus(path string) (*Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse status file: %w", err)
	}
	return &st, nil
}

// DeriveView maps the full status onto the simplified shape.
func DeriveView(st *Status) *View {
	return &View{
		Status:               statusForPhase(st.Coordination.Phase),
		Phase:                st.Coordination.Phase,
		CompletionPercentage: st.Coordination.CompletionPercentage,
		VotingRound:          st.Coordination.CurrentVotingRound,
		Winner:               st.Results.Winner,
		TokenUsage: types.Usage{
			InputTokens:  st.Costs.TotalInputTokens,
			OutputTokens: st.Costs.TotalOutputTokens,
			TotalTokens:  st.Costs.TotalInputTokens + st.Costs.TotalOutputTokens,
			CostUSD:      st.Costs.TotalCostUSD,
		},
	}
}

// statusForPhase maps coordination phases onto the coarse status vocabulary
// external callers expect.
func statusForPhase(phase types.Phase) string {
	switch phase {
	case types.PhaseDone:
		return "completed"
	case types.PhaseFailed:
		return "failed"
	case types.PhasePresentation:
		return "finalizing"
	default:
		return "running"
	}
}
