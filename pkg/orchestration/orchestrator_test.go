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
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/warp/pkg/backend"
	"github.com/teradata-labs/warp/pkg/observability"
	"github.com/teradata-labs/warp/pkg/types"
	"github.com/teradata-labs/warp/pkg/workspace"
)

func newDeps(t *testing.T) (Deps, *observability.Store) {
	t.Helper()
	wm, err := workspace.NewManager(t.TempDir(), nil)
	require.NoError(t, err)
	store, err := observability.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	return Deps{Workspaces: wm, Status: store}, store
}

func runWithTimeout(t *testing.T, o *Orchestrator, task string) (*Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return o.Run(ctx, task)
}

// answerCall and voteCall build scripted workflow turns.
func answerCall(id, content string) backend.ScriptedTurn {
	return backend.ScriptedTurn{
		ToolCalls: []types.ToolCall{
			{ID: id, Name: "new_answer", Input: map[string]interface{}{"content": content}},
		},
		Usage: types.Usage{InputTokens: 100, OutputTokens: 50},
	}
}

func voteCall(id, target string) backend.ScriptedTurn {
	return backend.ScriptedTurn{
		ToolCalls: []types.ToolCall{
			{ID: id, Name: "vote", Input: map[string]interface{}{"target": target, "reason": "best answer"}},
		},
		Usage: types.Usage{InputTokens: 80, OutputTokens: 20},
	}
}

func TestSingleAgentSkipVoting(t *testing.T) {
	deps, store := newDeps(t)
	b := backend.NewScripted("scripted", "m1",
		answerCall("t1", "draft answer"),
		answerCall("t2", "the final deliverable"),
	)
	o, err := New(Config{SkipVoting: true}, []AgentSpec{
		{ID: "agent1", Backend: b, SystemPrompt: "solve it"},
	}, deps)
	require.NoError(t, err)

	res, err := runWithTimeout(t, o, "compute the thing")
	require.NoError(t, err)
	assert.Equal(t, "agent1.final", res.Winner)
	assert.Equal(t, "the final deliverable", res.Content)
	assert.Equal(t, types.PhaseDone, res.Phase)
	assert.NotZero(t, res.Usage.InputTokens)

	// The vote tool is withheld from the backend entirely.
	for _, req := range b.Requests() {
		for _, schema := range req.Tools {
			assert.NotEqual(t, "vote", schema.Name)
		}
	}

	status := store.Snapshot()
	assert.Equal(t, types.PhaseDone, status.Coordination.Phase)
	assert.Equal(t, "agent1.final", status.Results.Winner)
	require.NotEmpty(t, status.HistoricalWorkspaces)
}

func TestTwoAgentConsensus(t *testing.T) {
	deps, store := newDeps(t)

	// agent1 answers, then endorses its own answer on every later turn.
	b1 := backend.NewScripted("scripted", "m1",
		answerCall("a1", "answer from agent one"),
		voteCall("a2", "agent1.1"),
	)
	// agent2 waits for the injected peer update, then votes for it.
	b2 := backend.NewScripted("scripted", "m2")
	b2.OnRequest = func(call int, req *backend.Request) backend.ScriptedTurn {
		for _, m := range req.Messages {
			if strings.Contains(m.Content, "agent1.1") {
				return voteCall("b-vote", "agent1.1")
			}
		}
		return backend.ScriptedTurn{Text: "waiting for peers", ToolCalls: []types.ToolCall{
			{ID: "b-think", Name: "new_answer", Input: map[string]interface{}{"content": "answer from agent two"}},
		}}
	}

	o, err := New(Config{EnableInjection: true}, []AgentSpec{
		{ID: "agent1", Backend: b1},
		{ID: "agent2", Backend: b2},
	}, deps)
	require.NoError(t, err)

	res, err := runWithTimeout(t, o, "pick the best")
	require.NoError(t, err)
	assert.Equal(t, "agent1.1", res.Winner)
	assert.Equal(t, "answer from agent one", res.Content)
	assert.GreaterOrEqual(t, res.Votes["agent1.1"], 1)

	status := store.Snapshot()
	assert.Equal(t, "agent1.1", status.Results.Winner)
}

func TestEnforcementRetryThenAnswer(t *testing.T) {
	deps, store := newDeps(t)
	b := backend.NewScripted("scripted", "m1",
		backend.ScriptedTurn{Text: "I think the answer is 42 but I will not call any tool"},
		answerCall("t1", "the answer is 42"),
		answerCall("t2", "final: the answer is 42"),
	)
	o, err := New(Config{SkipVoting: true}, []AgentSpec{
		{ID: "agent1", Backend: b},
	}, deps)
	require.NoError(t, err)

	res, err := runWithTimeout(t, o, "what is the answer")
	require.NoError(t, err)
	assert.Equal(t, "agent1.final", res.Winner)

	status := store.Snapshot()
	rec := status.Agents["agent1"]
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.TotalEnforcementRetries)
	require.Len(t, rec.EnforcementAttempts, 1)
	assert.Equal(t, types.ReasonNoToolCalls, rec.EnforcementAttempts[0].Reason)
	assert.NotZero(t, rec.EnforcementAttempts[0].BufferChars)
	assert.Contains(t, rec.EnforcementAttempts[0].BufferPreview, "42")
}

func TestNonCompliantAgentFailsRun(t *testing.T) {
	deps, _ := newDeps(t)
	b := backend.NewScripted("scripted", "m1",
		backend.ScriptedTurn{Text: "refusing to use tools"},
	)
	o, err := New(Config{SkipVoting: true, MaxEnforcementRetries: 2}, []AgentSpec{
		{ID: "agent1", Backend: b},
	}, deps)
	require.NoError(t, err)

	_, err = runWithTimeout(t, o, "task")
	require.Error(t, err)
	// 1 initial turn + 2 retries, then the drop.
	assert.Equal(t, 3, b.Calls())
}

func TestDroppedAgentRecoversExistingAnswer(t *testing.T) {
	deps, store := newDeps(t)

	// agent1 answers once, then goes silent (no workflow tool) until dropped.
	b1 := backend.NewScripted("scripted", "m1",
		answerCall("a1", "the only answer"),
		backend.ScriptedTurn{Text: "silence"},
	)
	// agent2 never produces anything valid either.
	b2 := backend.NewScripted("scripted", "m2",
		backend.ScriptedTurn{Text: "also silent"},
	)
	o, err := New(Config{EnableInjection: true, MaxEnforcementRetries: 1}, []AgentSpec{
		{ID: "agent1", Backend: b1},
		{ID: "agent2", Backend: b2},
	}, deps)
	require.NoError(t, err)

	res, err := runWithTimeout(t, o, "task")
	require.NoError(t, err)
	assert.Equal(t, "agent1.1", res.Winner)
	assert.Equal(t, "the only answer", res.Content)

	status := store.Snapshot()
	assert.Equal(t, types.OutcomeNonCompliant, status.Agents["agent2"].Outcome)
}

func TestDuplicateAnswerRejected(t *testing.T) {
	deps, store := newDeps(t)
	b := backend.NewScripted("scripted", "m1",
		answerCall("t1", "alpha beta gamma delta epsilon"),
		// Near-identical resubmission: rejected as a duplicate.
		answerCall("t2", "alpha beta gamma delta  epsilon"),
		answerCall("t3", "a completely different formulation of the result"),
		voteCall("t4", "agent1.2"),
		answerCall("t5", "presented result"),
	)
	o, err := New(Config{EnableRefinement: true, MaxAnswersPerAgent: 5}, []AgentSpec{
		{ID: "agent1", Backend: b},
	}, deps)
	require.NoError(t, err)

	res, err := runWithTimeout(t, o, "task")
	require.NoError(t, err)
	assert.Equal(t, "agent1.final", res.Winner)
	assert.Equal(t, "presented result", res.Content)

	status := store.Snapshot()
	rec := status.Agents["agent1"]
	require.NotNil(t, rec)
	require.NotEmpty(t, rec.EnforcementAttempts)
	assert.Equal(t, types.ReasonAnswerDuplicate, rec.EnforcementAttempts[0].Reason)
}

func TestInvalidVoteSuggestion(t *testing.T) {
	deps, store := newDeps(t)

	b1 := backend.NewScripted("scripted", "m1",
		answerCall("a1", "first answer"),
		voteCall("a2", "agent1.1"),
	)
	// agent2 first votes for a mistyped label, then corrects.
	b2 := backend.NewScripted("scripted", "m2")
	b2.OnRequest = func(call int, req *backend.Request) backend.ScriptedTurn {
		sawRetry := false
		sawAnswer := false
		for _, m := range req.Messages {
			if strings.Contains(m.Content, "Did you mean") {
				sawRetry = true
			}
			if strings.Contains(m.Content, "agent1.1") {
				sawAnswer = true
			}
		}
		switch {
		case sawRetry:
			return voteCall("b2", "agent1.1")
		case sawAnswer:
			return voteCall("b1", "agent11") // missing the dot
		default:
			return answerCall("b0", "second answer")
		}
	}

	o, err := New(Config{EnableInjection: true}, []AgentSpec{
		{ID: "agent1", Backend: b1},
		{ID: "agent2", Backend: b2},
	}, deps)
	require.NoError(t, err)

	res, err := runWithTimeout(t, o, "task")
	require.NoError(t, err)
	require.NotNil(t, res)

	status := store.Snapshot()
	rec := status.Agents["agent2"]
	require.NotNil(t, rec)
	var sawInvalid bool
	for _, a := range rec.EnforcementAttempts {
		if a.Reason == types.ReasonInvalidVoteID {
			sawInvalid = true
		}
	}
	assert.True(t, sawInvalid)
}

func TestTimeoutRecoversBestAnswer(t *testing.T) {
	deps, _ := newDeps(t)

	// agent1 answers then parks on its vote; agent2 answers and never votes,
	// so consensus is unreachable and the overall timeout must recover.
	b1 := backend.NewScripted("scripted", "m1",
		answerCall("a1", "recoverable answer"),
		voteCall("a2", "agent1.1"),
	)
	b2 := backend.NewScripted("scripted", "m2")
	b2.OnRequest = func(call int, req *backend.Request) backend.ScriptedTurn {
		if call == 0 {
			return answerCall("b0", "other answer")
		}
		// Stall without violating the protocol outright: keep refining
		// distinct answers forever.
		time.Sleep(50 * time.Millisecond)
		return answerCall("bN", strings.Repeat("unique ", call)+"answer variant")
	}

	o, err := New(Config{
		EnableInjection:    true,
		Timeout:            600 * time.Millisecond,
		MaxAnswersPerAgent: 100,
	}, []AgentSpec{
		{ID: "agent1", Backend: b1},
		{ID: "agent2", Backend: b2},
	}, deps)
	require.NoError(t, err)

	res, err := o.Run(context.Background(), "task")
	require.NoError(t, err)
	require.NotNil(t, res)
	// The vote for agent1.1 was invalidated by agent2's later answers, but
	// recovery still selects an available answer.
	assert.NotEmpty(t, res.Winner)
	assert.NotEmpty(t, res.Content)
}

func TestDeferredVotingReleasesAfterAllAnswer(t *testing.T) {
	deps, _ := newDeps(t)

	b1 := backend.NewScripted("scripted", "m1",
		answerCall("a1", "first in"),
		voteCall("a2", "agent1.1"),
	)
	b2 := backend.NewScripted("scripted", "m2")
	b2.OnRequest = func(call int, req *backend.Request) backend.ScriptedTurn {
		if call == 0 {
			return answerCall("b1", "second in")
		}
		return voteCall("b2", "agent1.1")
	}

	o, err := New(Config{EnableInjection: false}, []AgentSpec{
		{ID: "agent1", Backend: b1},
		{ID: "agent2", Backend: b2},
	}, deps)
	require.NoError(t, err)

	res, err := runWithTimeout(t, o, "task")
	require.NoError(t, err)
	assert.Equal(t, "agent1.1", res.Winner)

	// The early finisher was parked: its second turn opens with the digest
	// of all answers, not a mid-run injection.
	reqs := b1.Requests()
	require.GreaterOrEqual(t, len(reqs), 2)
	var sawDigest bool
	for _, m := range reqs[1].Messages {
		if strings.Contains(m.Content, "All agents have now submitted") {
			sawDigest = true
		}
	}
	assert.True(t, sawDigest)
}

func TestDeferVotingWithInjectionEnabled(t *testing.T) {
	deps, _ := newDeps(t)

	b1 := backend.NewScripted("scripted", "m1",
		answerCall("a1", "first in"),
		voteCall("a2", "agent1.1"),
	)
	b2 := backend.NewScripted("scripted", "m2")
	b2.OnRequest = func(call int, req *backend.Request) backend.ScriptedTurn {
		if call == 0 {
			return answerCall("b1", "second in")
		}
		return voteCall("b2", "agent1.1")
	}

	o, err := New(Config{EnableInjection: true, DeferVoting: true}, []AgentSpec{
		{ID: "agent1", Backend: b1},
		{ID: "agent2", Backend: b2},
	}, deps)
	require.NoError(t, err)

	res, err := runWithTimeout(t, o, "task")
	require.NoError(t, err)
	assert.Equal(t, "agent1.1", res.Winner)

	// Injection stays on, but the early finisher still waits for the full
	// answer set before voting opens.
	reqs := b1.Requests()
	require.GreaterOrEqual(t, len(reqs), 2)
	var sawDigest bool
	for _, m := range reqs[1].Messages {
		if strings.Contains(m.Content, "All agents have now submitted") {
			sawDigest = true
		}
	}
	assert.True(t, sawDigest)
}

func TestSkipFinalPresentation(t *testing.T) {
	deps, _ := newDeps(t)
	b := backend.NewScripted("scripted", "m1",
		answerCall("t1", "draft answer"),
	)
	o, err := New(Config{SkipVoting: true, SkipFinalPresentation: true}, []AgentSpec{
		{ID: "agent1", Backend: b},
	}, deps)
	require.NoError(t, err)

	res, err := runWithTimeout(t, o, "task")
	require.NoError(t, err)
	// No final turn: the registered answer wins as-is, without a .final label.
	assert.Equal(t, "agent1.1", res.Winner)
	assert.Equal(t, "draft answer", res.Content)
	assert.Equal(t, types.PhaseDone, res.Phase)
}
