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
// Package orchestration runs the coordination loop: N agent runners in
// parallel, one scheduler goroutine serializing every state mutation.
// Runners never touch shared state; they report turn events and receive
// directives.
package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"

	"github.com/teradata-labs/warp/pkg/agent"
	"github.com/teradata-labs/warp/pkg/backend"
	"github.com/teradata-labs/warp/pkg/hooks"
	"github.com/teradata-labs/warp/pkg/observability"
	"github.com/teradata-labs/warp/pkg/tools"
	"github.com/teradata-labs/warp/pkg/trace"
	"github.com/teradata-labs/warp/pkg/types"
	"github.com/teradata-labs/warp/pkg/workspace"
)

// Defaults for coordination knobs.
const (
	DefaultMaxEnforcementRetries = 3
	DefaultMaxAnswersPerAgent    = 3
	DefaultMaxTokens             = 8192
)

// AgentSpec describes one participant.
type AgentSpec struct {
	ID           string
	Backend      backend.Backend
	SystemPrompt string
	ContextPaths []types.ContextPathSpec
}

// Config carries the coordination knobs.
type Config struct {
	// MaxEnforcementRetries bounds protocol restarts per agent
	MaxEnforcementRetries int

	// MaxAnswersPerAgent bounds refinement submissions per agent
	MaxAnswersPerAgent int

	// RequireNovelty rejects answers near-identical to any peer answer
	RequireNovelty bool

	// EnableInjection delivers peer answers mid-conversation. When false,
	// multi-agent runs use deferred voting: early finishers wait until every
	// agent has submitted at least one answer.
	EnableInjection bool

	// EnableRefinement lets agents keep improving answers after peers vote;
	// it also forces a presentation turn for the winner
	EnableRefinement bool

	// SkipVoting bypasses the vote tool entirely; the sole answer wins.
	// Only meaningful with a single agent.
	SkipVoting bool

	// DeferVoting parks early finishers until every agent has submitted a
	// first answer, even when injection is on
	DeferVoting bool

	// SkipFinalPresentation finalizes with the winning answer as-is instead
	// of granting the winner a presentation turn
	SkipFinalPresentation bool

	// PlanningMode defers side-effecting tools to the presentation turn
	PlanningMode bool

	// Timeout bounds the whole coordination run; 0 means no limit
	Timeout time.Duration

	// MaxTokens is the per-call generation budget
	MaxTokens int
}

func (c *Config) applyDefaults() {
	if c.MaxEnforcementRetries <= 0 {
		c.MaxEnforcementRetries = DefaultMaxEnforcementRetries
	}
	if c.MaxAnswersPerAgent <= 0 {
		c.MaxAnswersPerAgent = DefaultMaxAnswersPerAgent
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
}

// Deps are the shared services an orchestrator coordinates through.
type Deps struct {
	Workspaces *workspace.Manager
	Hooks      *hooks.Registry
	Status     *observability.Store
	Logger     *zap.Logger

	// ConfigureRegistry, when set, registers custom and MCP tools for each
	// agent after the built-ins.
	ConfigureRegistry func(agentID string, r *tools.Registry)
}

// Result is the coordination outcome.
type Result struct {
	Winner   string
	Content  string
	Votes    map[string]int
	Answers  []types.Answer
	AllVotes []types.Vote
	Usage    types.Usage
	Phase    types.Phase
}

// parkKind says why a runner's reply is being held.
type parkKind int

const (
	parkNone parkKind = iota
	parkVoted
	parkWaitAnswers
)

// agentState is the scheduler's view of one runner. Touched only by the
// scheduler goroutine.
type agentState struct {
	spec     AgentSpec
	index    int // 1-based registration order
	runner   *agent.Runner
	recorder *trace.Recorder
	ws       *workspace.Workspace

	retries    int
	votedRound int
	dropped    bool
	finished   bool

	parked *agent.TurnEvent
	parkAs parkKind

	// writeIdx is the mtime baseline taken when the presentation write
	// window opened
	writeIdx workspace.MtimeIndex
}

// Orchestrator owns the coordination state for one run.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	agents   []*agentState
	byID     map[string]*agentState
	ledger   *Ledger
	usage    types.Usage
	phase    types.Phase
	task     string
	events   chan *agent.TurnEvent
	failures chan string
	result   *Result
	runErr   error
	stopped  bool
}

// New builds an orchestrator and its per-agent plumbing: workspace, guard,
// tool registry, executor, runner.
func New(cfg Config, specs []AgentSpec, deps Deps) (*Orchestrator, error) {
	cfg.applyDefaults()
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one agent is required")
	}
	if cfg.SkipVoting && len(specs) > 1 {
		return nil, fmt.Errorf("skip_voting requires a single agent")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Hooks == nil {
		deps.Hooks = hooks.NewRegistry(deps.Logger)
	}

	o := &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger,
		byID:     make(map[string]*agentState, len(specs)),
		ledger:   NewLedger(),
		phase:    types.PhaseInitialAnswer,
		events:   make(chan *agent.TurnEvent, len(specs)*4),
		failures: make(chan string, len(specs)),
	}

	for i, spec := range specs {
		st, err := o.buildAgent(i+1, spec)
		if err != nil {
			return nil, err
		}
		o.agents = append(o.agents, st)
		o.byID[spec.ID] = st
	}
	return o, nil
}

func (o *Orchestrator) buildAgent(index int, spec AgentSpec) (*agentState, error) {
	ws, err := o.deps.Workspaces.CreateWorkspace(spec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace for %s: %w", spec.ID, err)
	}
	if err := o.deps.Workspaces.MountContextPaths(ws, spec.ContextPaths); err != nil {
		return nil, err
	}
	guard := workspace.NewGuard(o.deps.Workspaces, ws)

	registry := tools.NewRegistry()
	tools.RegisterWorkspaceTools(registry, ws, guard)
	if o.deps.ConfigureRegistry != nil {
		o.deps.ConfigureRegistry(spec.ID, registry)
	}

	evictions, err := tools.NewEvictionStore(ws.Path)
	if err != nil {
		return nil, err
	}
	recorder := trace.NewRecorder(spec.ID)

	st := &agentState{spec: spec, index: index, ws: ws, recorder: recorder}

	executor := tools.NewExecutor(tools.ExecutorConfig{
		Registry:     registry,
		Hooks:        o.deps.Hooks,
		Evictions:    evictions,
		Recorder:     recorder,
		Logger:       o.logger,
		AgentID:      spec.ID,
		PlanningMode: o.cfg.PlanningMode,
	})

	st.runner = agent.NewRunner(agent.RunnerConfig{
		ID:           spec.ID,
		Backend:      spec.Backend,
		Registry:     registry,
		Executor:     executor,
		Compressor:   agent.NewCompressor(&agent.LLMSummarizer{Backend: spec.Backend}, o.logger),
		Recorder:     recorder,
		Logger:       o.logger,
		Events:       o.events,
		SystemPrompt: spec.SystemPrompt,
		MaxTokens:    o.cfg.MaxTokens,
		SkipVoting:   o.cfg.SkipVoting,
	})
	// Presentation lifts planning mode; mid-stream injections ride the next
	// tool response.
	executor.SetPresenting(st.runner.Presenting)
	o.deps.Hooks.RegisterForAgent(spec.ID, hooks.NewMidStreamInjectionHook(func(string) []string {
		return st.runner.TakeInjections()
	}))
	return st, nil
}

// Run executes the coordination and returns the winning answer.
func (o *Orchestrator) Run(ctx context.Context, task string) (*Result, error) {
	o.task = task
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.setPhase(types.PhaseInitialAnswer, 0)

	var wg sync.WaitGroup
	for _, st := range o.agents {
		wg.Add(1)
		go func(st *agentState) {
			defer wg.Done()
			if err := st.runner.Run(ctx, o.initialPrompt()); err != nil && ctx.Err() == nil {
				o.logger.Error("Agent runner failed",
					zap.String("agent_id", st.spec.ID),
					zap.Error(err))
				o.failures <- st.spec.ID
			}
		}(st)
	}
	runnersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(runnersDone)
	}()

	// Single scheduler goroutine: this loop is the only mutator of
	// coordination state.
	for !o.stopped {
		select {
		case ev := <-o.events:
			o.handleEvent(ev)
		case id := <-o.failures:
			o.handleRunnerFailure(id)
		case <-ctx.Done():
			o.recoverOnTimeout()
		case <-runnersDone:
			if !o.stopped {
				o.recoverOnTimeout()
			}
		}
	}
	cancel()
	<-runnersDone

	o.flushFinalStatus()
	if o.runErr != nil {
		return nil, o.runErr
	}
	return o.result, nil
}

// initialPrompt is the first user message of every agent's conversation.
func (o *Orchestrator) initialPrompt() string {
	return heredoc.Doc(`
		You are one of several agents working the task below in parallel.
		Work in your workspace. When you have a complete answer, submit it
		with new_answer(content). When a peer answer is better than what you
		would produce, endorse it with vote(target, reason). Every turn must
		end in one of those two calls.
	`) + "\nTask:\n" + o.task
}

// handleEvent dispatches one turn event. Always replies or parks.
func (o *Orchestrator) handleEvent(ev *agent.TurnEvent) {
	st, ok := o.byID[ev.AgentID]
	if !ok || st.finished {
		// A late event from a finished runner; let it stop.
		ev.Reply <- agent.Directive{Kind: agent.DirectiveFinish, State: types.AgentVoted}
		return
	}

	o.usage.Add(ev.Usage)
	if o.deps.Status != nil {
		o.deps.Status.AddUsage(ev.Usage)
	}

	if ev.Presenting {
		o.finishPresentation(st, ev)
		return
	}

	switch {
	case ev.VoteAndAnswer:
		o.enforce(st, ev, violation{reason: types.ReasonVoteAndAnswer})
	case ev.Workflow == nil:
		o.enforceMissingWorkflow(st, ev)
	case ev.Workflow.Kind == tools.WorkflowKindAnswer:
		o.handleAnswer(st, ev)
	default:
		o.handleVote(st, ev)
	}
}

func (o *Orchestrator) enforceMissingWorkflow(st *agentState, ev *agent.TurnEvent) {
	switch {
	case len(ev.UnknownTools) > 0:
		o.enforce(st, ev, violation{reason: types.ReasonUnknownTool, submitted: ev.UnknownTools[0]})
	case len(ev.ToolCallNames) == 0:
		o.enforce(st, ev, violation{reason: types.ReasonNoToolCalls})
	default:
		o.enforce(st, ev, violation{reason: types.ReasonNoWorkflowTool})
	}
}

// handleAnswer validates and registers a new_answer submission.
func (o *Orchestrator) handleAnswer(st *agentState, ev *agent.TurnEvent) {
	content := ev.Workflow.Content

	if o.ledger.CountByAgent(st.spec.ID) >= o.cfg.MaxAnswersPerAgent {
		o.enforce(st, ev, violation{reason: types.ReasonAnswerLimit})
		return
	}
	if prev, ok := o.ledger.LatestByAgent(st.spec.ID); ok &&
		answerSimilarity(prev.Content, content) >= duplicateThreshold {
		o.enforce(st, ev, violation{reason: types.ReasonAnswerDuplicate})
		return
	}
	if o.cfg.RequireNovelty {
		for _, a := range o.ledger.Answers() {
			if a.AgentID != st.spec.ID && answerSimilarity(a.Content, content) >= duplicateThreshold {
				o.enforce(st, ev, violation{reason: types.ReasonAnswerNovelty})
				return
			}
		}
	}

	k := o.ledger.CountByAgent(st.spec.ID) + 1
	label := types.AnswerLabel(st.index, k)

	ref, err := o.deps.Workspaces.Snapshot(st.spec.ID, label, st.recorder.Markdown())
	if err != nil {
		// A failed snapshot aborts the submission; the answer is not
		// registered and the agent retries.
		o.logger.Error("Snapshot failed, rejecting answer",
			zap.String("agent_id", st.spec.ID),
			zap.String("label", label),
			zap.Error(err))
		o.recordWorkflowError(st, fmt.Sprintf("snapshot failed: %v", err))
		ev.Reply <- agent.Directive{
			Kind:    agent.DirectiveRestart,
			Message: fmt.Sprintf("Your answer could not be recorded (workspace snapshot failed: %v). Submit it again.", err),
		}
		return
	}

	answer := types.Answer{
		Label:       label,
		AgentID:     st.spec.ID,
		Content:     content,
		SubmittedAt: time.Now(),
		Snapshot:    ref,
	}
	o.ledger.AddAnswer(answer)
	o.logger.Info("Answer registered",
		zap.String("agent_id", st.spec.ID),
		zap.String("label", label),
		zap.Int("round", o.ledger.Round()))

	if o.deps.Status != nil {
		o.deps.Status.SetVotingRound(o.ledger.Round())
		o.deps.Status.RecordAnswer(label, content)
		if ref != nil {
			o.deps.Status.AppendHistorical(*ref)
		}
		o.deps.Status.SetVotes(o.ledger.LiveVoteCounts())
	}
	o.setPhase(types.PhaseEnforcement, o.completionPct())

	if o.cfg.SkipVoting {
		// Sole agent, refinement off: the answer wins outright.
		st.parked, st.parkAs = ev, parkVoted
		o.checkConsensus()
		return
	}

	// Invalidated votes force parked voters to reconsider.
	o.releaseVoters(answer)
	if o.cfg.EnableInjection {
		o.injectAnswer(st.spec.ID, answer)
	}

	if o.deferVoting() && !o.allAgentsAnswered() {
		// Deferred voting: park until every agent has a first answer.
		st.parked, st.parkAs = ev, parkWaitAnswers
		return
	}
	o.releaseAnswerWaiters()
	ev.Reply <- agent.Directive{Kind: agent.DirectiveContinue, Message: o.afterAnswerMessage(label)}
}

// handleVote validates and records a vote.
func (o *Orchestrator) handleVote(st *agentState, ev *agent.TurnEvent) {
	target := ev.Workflow.Target

	if len(o.ledger.Answers()) == 0 {
		o.enforce(st, ev, violation{reason: types.ReasonVoteNoAnswers})
		return
	}
	if !o.ledger.HasLabel(target) {
		o.enforce(st, ev, violation{reason: types.ReasonInvalidVoteID, submitted: target})
		return
	}

	o.ledger.AddVote(st.spec.ID, target, ev.Workflow.Reason)
	st.votedRound = o.ledger.Round()
	o.logger.Info("Vote recorded",
		zap.String("agent_id", st.spec.ID),
		zap.String("target", target),
		zap.Int("round", o.ledger.Round()))
	if o.deps.Status != nil {
		o.deps.Status.SetVotes(o.ledger.LiveVoteCounts())
		o.deps.Status.SetAgentStatus(st.spec.ID, types.AgentVoted)
	}

	// Park the voter; a newer answer reopens its round, consensus ends it.
	st.parked, st.parkAs = ev, parkVoted
	o.checkConsensus()
}

// enforce records a violation and restarts or drops the agent.
func (o *Orchestrator) enforce(st *agentState, ev *agent.TurnEvent, v violation) {
	st.retries++
	attempt := types.EnforcementAttempt{
		Round:         o.ledger.Round(),
		Attempt:       st.retries,
		Reason:        v.reason,
		ToolCalls:     ev.ToolCallNames,
		BufferPreview: ev.BufferPreview,
		BufferChars:   ev.BufferChars,
		Timestamp:     time.Now(),
	}
	if v.submitted != "" {
		attempt.ErrorMessage = v.submitted
	}
	if o.deps.Status != nil {
		o.deps.Status.RecordEnforcement(st.spec.ID, attempt)
	}
	o.logger.Warn("Workflow enforcement",
		zap.String("agent_id", st.spec.ID),
		zap.String("reason", string(v.reason)),
		zap.Int("attempt", st.retries),
		zap.Int("buffer_chars", ev.BufferChars))

	if st.retries > o.cfg.MaxEnforcementRetries {
		o.dropAgent(st, ev)
		return
	}
	ev.Reply <- agent.Directive{
		Kind:    agent.DirectiveRestart,
		Message: retryMessage(v, st.retries, o.cfg.MaxEnforcementRetries, o.ledger.Labels()),
	}
}

// dropAgent marks an agent non-compliant and removes it from the round.
func (o *Orchestrator) dropAgent(st *agentState, ev *agent.TurnEvent) {
	st.dropped = true
	st.finished = true
	if o.deps.Status != nil {
		o.deps.Status.SetAgentOutcome(st.spec.ID, types.OutcomeNonCompliant)
		o.deps.Status.SetAgentStatus(st.spec.ID, types.AgentFailed)
	}
	o.logger.Warn("Agent dropped as non-compliant", zap.String("agent_id", st.spec.ID))
	ev.Reply <- agent.Directive{Kind: agent.DirectiveFinish, State: types.AgentFailed}
	o.checkConsensus()
}

// recordWorkflowError bumps the agent's workflow error count.
func (o *Orchestrator) recordWorkflowError(st *agentState, msg string) {
	if o.deps.Status == nil {
		return
	}
	o.deps.Status.RecordWorkflowError(st.spec.ID, msg)
}

// injectAnswer queues an UPDATE for every other active runner.
func (o *Orchestrator) injectAnswer(fromID string, a types.Answer) {
	snapshotPath := ""
	if a.Snapshot != nil {
		snapshotPath = a.Snapshot.Path
	}
	update := fmt.Sprintf(heredoc.Doc(`
		UPDATE: a peer submitted answer %s.

		%s

		Workspace snapshot (read-only): %s
		If this answer is better than what you would produce, endorse it with
		vote(%q, reason). Otherwise continue and submit your own with new_answer.
	`), a.Label, a.Content, snapshotPath, a.Label)
	for _, other := range o.agents {
		if other.spec.ID == fromID || other.finished {
			continue
		}
		other.runner.Inject(update)
	}
}

// releaseVoters wakes parked voters whose votes a new answer invalidated.
func (o *Orchestrator) releaseVoters(newAnswer types.Answer) {
	for _, st := range o.agents {
		if st.parkAs != parkVoted || st.parked == nil {
			continue
		}
		ev := st.parked
		st.parked, st.parkAs = nil, parkNone
		ev.Reply <- agent.Directive{
			Kind: agent.DirectiveContinue,
			Message: fmt.Sprintf(
				"A new answer %s arrived and reset the voting round. Review it and vote again, or submit an improved answer.\n\n%s",
				newAnswer.Label, newAnswer.Content),
		}
	}
}

// releaseAnswerWaiters opens the voting phase once every agent has answered
// (deferred-voting mode).
func (o *Orchestrator) releaseAnswerWaiters() {
	if !o.deferVoting() || !o.allAgentsAnswered() {
		return
	}
	digest := o.answerDigest()
	for _, st := range o.agents {
		if st.parkAs != parkWaitAnswers || st.parked == nil {
			continue
		}
		ev := st.parked
		st.parked, st.parkAs = nil, parkNone
		ev.Reply <- agent.Directive{Kind: agent.DirectiveContinue, Message: digest}
	}
}

// deferVoting reports whether early answerers wait for every agent's first
// answer before the voting phase opens.
func (o *Orchestrator) deferVoting() bool {
	return o.cfg.DeferVoting || !o.cfg.EnableInjection
}

// allAgentsAnswered reports whether every active agent has at least one
// registered answer.
func (o *Orchestrator) allAgentsAnswered() bool {
	for _, st := range o.agents {
		if st.dropped {
			continue
		}
		if o.ledger.CountByAgent(st.spec.ID) == 0 {
			return false
		}
	}
	return true
}

// answerDigest summarizes all answers for the deferred-voting release.
func (o *Orchestrator) answerDigest() string {
	msg := "All agents have now submitted. The answers under consideration:\n"
	for _, a := range o.ledger.Answers() {
		msg += fmt.Sprintf("\n--- %s ---\n%s\n", a.Label, a.Content)
	}
	msg += "\nVote for the best answer with vote(target, reason), or submit an improvement with new_answer."
	return msg
}

// afterAnswerMessage acknowledges a registered answer.
func (o *Orchestrator) afterAnswerMessage(label string) string {
	msg := fmt.Sprintf("Your answer was registered as %s.", label)
	if o.cfg.SkipVoting {
		return msg
	}
	labels := o.ledger.Labels()
	msg += fmt.Sprintf(" Current answers: %v. When you are satisfied an answer is best (including your own), endorse it with vote(target, reason); to keep improving, call new_answer again.", labels)
	return msg
}

// checkConsensus ends the round once every active agent has voted in the
// current round or been dropped.
func (o *Orchestrator) checkConsensus() {
	if o.stopped || o.phase == types.PhasePresentation {
		return
	}
	if len(o.ledger.Answers()) == 0 {
		// Nothing to decide; if everyone is dropped the run has failed.
		if o.allDropped() {
			o.failRun(fmt.Errorf("all agents non-compliant before any answer"))
		}
		return
	}
	for _, st := range o.agents {
		if st.dropped {
			continue
		}
		if o.cfg.SkipVoting {
			if st.parked == nil {
				return
			}
			continue
		}
		if st.votedRound != o.ledger.Round() || st.parked == nil {
			return
		}
	}

	winner, err := selectWinner(o.ledger)
	if err != nil {
		o.failRun(err)
		return
	}
	o.beginPresentation(winner)
}

func (o *Orchestrator) allDropped() bool {
	for _, st := range o.agents {
		if !st.dropped {
			return false
		}
	}
	return true
}

// beginPresentation hands the winner its final turn, or finalizes directly
// when presentation is skipped.
func (o *Orchestrator) beginPresentation(winner types.Answer) {
	st := o.byID[winner.AgentID]

	if st == nil || st.dropped || st.parked == nil || o.skipPresentation(st) {
		o.finalize(winner, winner.Content, "")
		return
	}

	o.setPhase(types.PhasePresentation, 90)
	if o.deps.Status != nil {
		o.deps.Status.SetWinner(winner.Label)
		o.deps.Status.SetAgentStatus(st.spec.ID, types.AgentWon)
	}

	if idx, err := o.deps.Workspaces.EnableWriteAccess(st.ws); err != nil {
		o.logger.Warn("Write access for presentation unavailable",
			zap.String("agent_id", st.spec.ID),
			zap.Error(err))
	} else {
		st.writeIdx = idx
	}

	ev := st.parked
	st.parked, st.parkAs = nil, parkNone
	ev.Reply <- agent.Directive{
		Kind: agent.DirectivePresent,
		Message: fmt.Sprintf(heredoc.Doc(`
			Your answer %s won the vote. Produce the final deliverable now:
			refine the answer, apply any file changes to the writable context
			paths, and submit the definitive version with new_answer(content).
		`), winner.Label),
	}

	// Everyone else is done.
	for _, other := range o.agents {
		if other == st || other.finished {
			continue
		}
		o.finishAgent(other, types.AgentVoted)
	}
}

// skipPresentation: presentation disabled, or nothing to write and no
// refinement requested.
func (o *Orchestrator) skipPresentation(st *agentState) bool {
	if o.cfg.SkipFinalPresentation {
		return true
	}
	if o.cfg.EnableRefinement {
		return false
	}
	if len(o.agents) == 1 {
		return false
	}
	for _, cp := range st.ws.ContextPaths() {
		if cp.Permission == types.PermissionWrite {
			return false
		}
	}
	return true
}

// finishPresentation closes the winner's final turn.
func (o *Orchestrator) finishPresentation(st *agentState, ev *agent.TurnEvent) {
	content := ev.Text
	if ev.Workflow != nil && ev.Workflow.Kind == tools.WorkflowKindAnswer {
		content = ev.Workflow.Content
	}
	if content == "" {
		if prev, ok := o.ledger.LatestByAgent(st.spec.ID); ok {
			content = prev.Content
		}
	}

	finalLabel := types.FinalAnswerLabel(st.index)

	if st.writeIdx != nil {
		written, err := o.deps.Workspaces.DiffAgainst(st.ws, st.writeIdx)
		if err != nil {
			o.logger.Warn("Write diff failed", zap.Error(err))
		} else if len(written) > 0 {
			report, rerr := workspace.FormatWriteReport(written, st.ws.Path)
			if rerr == nil {
				content += "\n\n" + report
			}
		}
	}

	if ref, err := o.deps.Workspaces.Snapshot(st.spec.ID, finalLabel, st.recorder.Markdown()); err != nil {
		o.logger.Warn("Final snapshot failed", zap.Error(err))
	} else if ref != nil && o.deps.Status != nil {
		o.deps.Status.AppendHistorical(*ref)
	}

	st.finished = true
	ev.Reply <- agent.Directive{Kind: agent.DirectiveFinish, State: types.AgentWon}

	winner := types.Answer{Label: finalLabel, AgentID: st.spec.ID, Content: content}
	o.finalize(winner, content, finalLabel)
}

// finalize records the result and finishes every remaining runner.
func (o *Orchestrator) finalize(winner types.Answer, content, finalLabel string) {
	label := winner.Label
	if finalLabel != "" {
		label = finalLabel
	}
	o.result = &Result{
		Winner:   label,
		Content:  content,
		Votes:    o.ledger.LiveVoteCounts(),
		Answers:  o.ledger.Answers(),
		AllVotes: o.ledger.Votes(),
		Usage:    o.usage,
		Phase:    types.PhaseDone,
	}
	o.phase = types.PhaseDone
	if o.deps.Status != nil {
		o.deps.Status.SetWinner(label)
		o.deps.Status.SetVotes(o.result.Votes)
	}
	o.setPhase(types.PhaseDone, 100)
	o.stopAll()
}

// failRun ends the coordination without a result.
func (o *Orchestrator) failRun(err error) {
	o.runErr = err
	o.phase = types.PhaseFailed
	o.setPhase(types.PhaseFailed, 0)
	o.stopAll()
}

// stopAll finishes every runner still waiting and stops the scheduler loop.
func (o *Orchestrator) stopAll() {
	for _, st := range o.agents {
		if !st.finished {
			o.finishAgent(st, types.AgentVoted)
		}
	}
	o.stopped = true
}

// finishAgent replies to a parked runner (if any) and marks it finished.
func (o *Orchestrator) finishAgent(st *agentState, state types.AgentStatus) {
	st.finished = true
	if st.parked != nil {
		ev := st.parked
		st.parked, st.parkAs = nil, parkNone
		ev.Reply <- agent.Directive{Kind: agent.DirectiveFinish, State: state}
	}
	if o.deps.Status != nil {
		o.deps.Status.SetAgentStatus(st.spec.ID, state)
	}
}

// handleRunnerFailure drops an agent whose runner exited with an error so a
// dead runner can never block consensus.
func (o *Orchestrator) handleRunnerFailure(agentID string) {
	st, ok := o.byID[agentID]
	if !ok || st.finished {
		return
	}
	st.dropped = true
	st.finished = true
	if o.deps.Status != nil {
		o.deps.Status.SetAgentOutcome(agentID, types.OutcomeDropped)
		o.deps.Status.SetAgentStatus(agentID, types.AgentFailed)
	}
	o.checkConsensus()
}

// recoverOnTimeout picks the best available outcome when the run is cut off:
// the live-vote winner, else the earliest answer, else failure.
func (o *Orchestrator) recoverOnTimeout() {
	if o.stopped {
		return
	}
	winner, err := selectWinner(o.ledger)
	if err != nil {
		o.failRun(fmt.Errorf("coordination timed out with no answers: %w", err))
		return
	}
	o.logger.Warn("Coordination cut off, recovering best available answer",
		zap.String("winner", winner.Label))
	o.finalize(winner, winner.Content, "")
}

// setPhase mirrors the phase into the status store.
func (o *Orchestrator) setPhase(phase types.Phase, pct float64) {
	o.phase = phase
	if o.deps.Status != nil {
		o.deps.Status.SetPhase(phase, pct)
	}
}

// completionPct is a coarse progress estimate: answers plus votes over the
// work needed for consensus.
func (o *Orchestrator) completionPct() float64 {
	active := 0
	for _, st := range o.agents {
		if !st.dropped {
			active++
		}
	}
	if active == 0 {
		return 0
	}
	needed := float64(active * 2) // one answer + one vote each, roughly
	have := float64(len(o.ledger.Answers()))
	for _, st := range o.agents {
		if st.votedRound == o.ledger.Round() && st.votedRound > 0 {
			have++
		}
	}
	pct := have / needed * 80
	if pct > 80 {
		pct = 80
	}
	return pct
}

// flushFinalStatus writes the last status snapshot.
func (o *Orchestrator) flushFinalStatus() {
	if o.deps.Status == nil {
		return
	}
	o.deps.Status.SetVotes(o.ledger.LiveVoteCounts())
}
