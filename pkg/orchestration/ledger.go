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
	"sort"
	"time"

	"github.com/teradata-labs/warp/pkg/types"
)

// Ledger is the append-only record of answers and votes. Mutated only by
// the scheduler goroutine; no locking needed.
type Ledger struct {
	answers []types.Answer
	votes   []types.Vote

	// round is the current voting round; every accepted answer increments it
	// and invalidates earlier votes
	round int
}

// NewLedger creates an empty ledger at round 0.
func NewLedger() *Ledger { return &Ledger{} }

// Round returns the current voting round.
func (l *Ledger) Round() int { return l.round }

// AddAnswer registers an accepted answer, opens a new voting round, and
// invalidates all prior votes (retained for history).
func (l *Ledger) AddAnswer(a types.Answer) {
	l.answers = append(l.answers, a)
	l.round++
	for i := range l.votes {
		l.votes[i].Invalidated = true
	}
}

// AddVote records a vote in the current round.
func (l *Ledger) AddVote(voterID, target, reason string) {
	l.votes = append(l.votes, types.Vote{
		VoterID:     voterID,
		Target:      target,
		Reason:      reason,
		Round:       l.round,
		SubmittedAt: time.Now(),
	})
}

// Answers returns all answers in submission order.
func (l *Ledger) Answers() []types.Answer { return l.answers }

// Votes returns every vote ever cast, invalidated ones included.
func (l *Ledger) Votes() []types.Vote { return l.votes }

// Labels returns the live answer labels in submission order.
func (l *Ledger) Labels() []string {
	labels := make([]string, len(l.answers))
	for i, a := range l.answers {
		labels[i] = a.Label
	}
	return labels
}

// HasLabel reports whether a label names a registered answer.
func (l *Ledger) HasLabel(label string) bool {
	for _, a := range l.answers {
		if a.Label == label {
			return true
		}
	}
	return false
}

// Get returns the answer with the given label.
func (l *Ledger) Get(label string) (types.Answer, bool) {
	for _, a := range l.answers {
		if a.Label == label {
			return a, true
		}
	}
	return types.Answer{}, false
}

// LatestByAgent returns the agent's most recent answer.
func (l *Ledger) LatestByAgent(agentID string) (types.Answer, bool) {
	for i := len(l.answers) - 1; i >= 0; i-- {
		if l.answers[i].AgentID == agentID {
			return l.answers[i], true
		}
	}
	return types.Answer{}, false
}

// CountByAgent returns how many answers the agent has submitted.
func (l *Ledger) CountByAgent(agentID string) int {
	n := 0
	for _, a := range l.answers {
		if a.AgentID == agentID {
			n++
		}
	}
	return n
}

// LiveVoteCounts tallies non-invalidated votes per answer label.
func (l *Ledger) LiveVoteCounts() map[string]int {
	counts := make(map[string]int)
	for _, v := range l.votes {
		if !v.Invalidated {
			counts[v.Target]++
		}
	}
	return counts
}

// SortedVoteSummary renders live counts as "label:count" pairs ordered by
// count then label, for logs and status.
func (l *Ledger) SortedVoteSummary() []string {
	counts := l.LiveVoteCounts()
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if counts[labels[i]] != counts[labels[j]] {
			return counts[labels[i]] > counts[labels[j]]
		}
		return labels[i] < labels[j]
	})
	return labels
}
