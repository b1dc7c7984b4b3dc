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
	"strings"
	"testing"
	"time"

	"github.com/teradata-labs/warp/pkg/types"
)

func answer(label, agentID, content string, at time.Time) types.Answer {
	return types.Answer{Label: label, AgentID: agentID, Content: content, SubmittedAt: at}
}

func TestLedgerVoteInvalidation(t *testing.T) {
	l := NewLedger()
	now := time.Now()

	l.AddAnswer(answer("agent1.1", "agent1", "a", now))
	if l.Round() != 1 {
		t.Fatalf("round = %d, want 1", l.Round())
	}
	l.AddVote("agent2", "agent1.1", "good")
	l.AddVote("agent3", "agent1.1", "agree")

	l.AddAnswer(answer("agent2.1", "agent2", "b", now.Add(time.Second)))
	if l.Round() != 2 {
		t.Fatalf("round = %d, want 2", l.Round())
	}
	if counts := l.LiveVoteCounts(); len(counts) != 0 {
		t.Fatalf("live votes after new answer = %v, want none", counts)
	}
	// History keeps the invalidated votes.
	if len(l.Votes()) != 2 {
		t.Fatalf("vote history = %d entries, want 2", len(l.Votes()))
	}
	for _, v := range l.Votes() {
		if !v.Invalidated {
			t.Fatalf("vote %+v should be invalidated", v)
		}
	}
}

func TestLedgerPerAgentAccessors(t *testing.T) {
	l := NewLedger()
	now := time.Now()
	l.AddAnswer(answer("agent1.1", "agent1", "first", now))
	l.AddAnswer(answer("agent2.1", "agent2", "other", now))
	l.AddAnswer(answer("agent1.2", "agent1", "second", now))

	if got := l.CountByAgent("agent1"); got != 2 {
		t.Fatalf("CountByAgent = %d, want 2", got)
	}
	latest, ok := l.LatestByAgent("agent1")
	if !ok || latest.Label != "agent1.2" {
		t.Fatalf("LatestByAgent = %v %v, want agent1.2", latest.Label, ok)
	}
	if !l.HasLabel("agent2.1") || l.HasLabel("agent3.1") {
		t.Fatal("HasLabel mismatch")
	}
}

func TestSelectWinner(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		setup func(l *Ledger)
		want  string
	}{
		{
			name: "highest live votes",
			setup: func(l *Ledger) {
				l.AddAnswer(answer("agent1.1", "agent1", "a", now))
				l.AddAnswer(answer("agent2.1", "agent2", "b", now.Add(time.Second)))
				l.AddVote("agent1", "agent2.1", "")
				l.AddVote("agent2", "agent2.1", "")
				l.AddVote("agent3", "agent1.1", "")
			},
			want: "agent2.1",
		},
		{
			name: "tie broken by submission order",
			setup: func(l *Ledger) {
				l.AddAnswer(answer("agent1.1", "agent1", "a", now))
				l.AddAnswer(answer("agent2.1", "agent2", "b", now.Add(time.Second)))
				l.AddVote("agent1", "agent2.1", "")
				l.AddVote("agent2", "agent1.1", "")
			},
			want: "agent1.1",
		},
		{
			name: "no votes falls back to earliest answer",
			setup: func(l *Ledger) {
				l.AddAnswer(answer("agent2.1", "agent2", "b", now))
				l.AddAnswer(answer("agent1.1", "agent1", "a", now.Add(time.Second)))
			},
			want: "agent2.1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger()
			tt.setup(l)
			got, err := selectWinner(l)
			if err != nil {
				t.Fatal(err)
			}
			if got.Label != tt.want {
				t.Fatalf("winner = %s, want %s", got.Label, tt.want)
			}
		})
	}
}

func TestSelectWinnerNoAnswers(t *testing.T) {
	if _, err := selectWinner(NewLedger()); err != ErrNoAnswers {
		t.Fatalf("err = %v, want ErrNoAnswers", err)
	}
}

func TestAnswerSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		wantDup bool
	}{
		{"identical", "the answer is 42", "the answer is 42", true},
		{"whitespace only", "the  answer\nis 42", "the answer is 42", true},
		{"small edit in long text", strings.Repeat("shared prefix text ", 30) + "ending one",
			strings.Repeat("shared prefix text ", 30) + "ending two", true},
		{"different", "completely unrelated", "the answer is 42", false},
		{"empty vs text", "", "the answer is 42", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := answerSimilarity(tt.a, tt.b)
			if dup := got >= duplicateThreshold; dup != tt.wantDup {
				t.Fatalf("similarity(%q, %q) = %.3f, duplicate = %v, want %v", tt.a, tt.b, got, dup, tt.wantDup)
			}
		})
	}
}

func TestSuggestLabel(t *testing.T) {
	live := []string{"agent1.1", "agent1.2", "agent2.1"}
	if got := suggestLabel("agent11", live); got != "agent1.1" {
		t.Fatalf("suggestLabel = %q, want agent1.1", got)
	}
	if got := suggestLabel("zzz", live); got != "" {
		t.Fatalf("suggestLabel for nonsense = %q, want empty", got)
	}
	if got := suggestLabel("agent1.1", nil); got != "" {
		t.Fatalf("suggestLabel with no labels = %q, want empty", got)
	}
}

func TestRetryMessage(t *testing.T) {
	labels := []string{"agent1.1", "agent2.1"}

	msg := retryMessage(violation{reason: types.ReasonInvalidVoteID, submitted: "agent11"}, 2, 3, labels)
	for _, want := range []string{"Retry (2/3)", "agent11", "Did you mean", "agent1.1, agent2.1"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("retry message %q missing %q", msg, want)
		}
	}

	msg = retryMessage(violation{reason: types.ReasonNoToolCalls}, 1, 3, nil)
	if !strings.Contains(msg, "Retry (1/3)") || !strings.Contains(msg, "new_answer") {
		t.Fatalf("retry message %q missing retry counter or guidance", msg)
	}

	msg = retryMessage(violation{reason: types.ReasonVoteNoAnswers}, 1, 3, nil)
	if !strings.Contains(msg, "no answers") {
		t.Fatalf("retry message %q missing vote_no_answers guidance", msg)
	}
}
