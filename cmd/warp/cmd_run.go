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
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/warp/internal/log"
	"github.com/teradata-labs/warp/pkg/backend"
	warpconfig "github.com/teradata-labs/warp/pkg/config"
	"github.com/teradata-labs/warp/pkg/hooks"
	"github.com/teradata-labs/warp/pkg/observability"
	"github.com/teradata-labs/warp/pkg/orchestration"
	"github.com/teradata-labs/warp/pkg/session"
	"github.com/teradata-labs/warp/pkg/subagent"
	"github.com/teradata-labs/warp/pkg/tools"
	"github.com/teradata-labs/warp/pkg/types"
	"github.com/teradata-labs/warp/pkg/workspace"
)

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run a coordination session",
	Long: heredoc.Doc(`
		Run the configured agents against a task. Each agent works in an
		isolated workspace, submits answers, sees its peers' answers, and
		votes; the winning agent presents the final result.

		Agents use the scripted backend and replay the turns file named by
		their script_path. With --dry-run, every agent replays a canned
		answer-then-vote script instead, which exercises the full
		coordination pipeline without any script files.

		Examples:
		  warp run "Summarize the design doc" --dry-run
		  warp run "Fix the flaky test" --config ./warp.yaml
	`),
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "Replay canned turns instead of agent script files")
	runCmd.Flags().Int("timeout", 0, "Coordination timeout in seconds (overrides config)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Flags beat the file and environment.
	if lv, _ := cmd.Flags().GetString("log-level"); lv != "" {
		cfg.Logging.Level = lv
	}
	if lf, _ := cmd.Flags().GetString("log-format"); lf != "" {
		cfg.Logging.Format = lf
	}
	if cmd.Flags().Changed("timeout") {
		secs, _ := cmd.Flags().GetInt("timeout")
		cfg.Orchestrator.Coordination.TimeoutSeconds = secs
	}
	if err := log.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	logger := log.Logger()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	task := args[0]

	runID := uuid.NewString()[:8]
	runDir := filepath.Join(cfg.RunDir, time.Now().Format("20060102-150405")+"-"+runID)
	if err := os.MkdirAll(runDir, 0750); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Run %s: %s\n", runID, runDir)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := executeRun(ctx, cfg, runDir, task, dryRun, logger)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), result)

	if cfg.Session.Enabled {
		saveSession(cfg, runID, task, result, logger, cmd.OutOrStdout())
	}
	return nil
}

// executeRun wires the shared services and drives one coordination run.
func executeRun(ctx context.Context, cfg *warpconfig.Config, runDir, task string, dryRun bool, logger *zap.Logger) (*orchestration.Result, error) {
	specs, err := buildAgentSpecs(cfg, dryRun)
	if err != nil {
		return nil, err
	}

	workspaces, err := workspace.NewManager(runDir, logger)
	if err != nil {
		return nil, err
	}
	status, err := observability.NewStore(runDir, logger)
	if err != nil {
		return nil, err
	}

	registry := hooks.NewRegistry(logger)
	registerConfiguredHooks(registry, cfg.Hooks)

	deps := orchestration.Deps{
		Workspaces: workspaces,
		Hooks:      registry,
		Status:     status,
		Logger:     logger,
	}

	coord := cfg.Orchestrator.Coordination
	if coord.AsyncSubagents.Enabled {
		mgr := subagent.NewManager(subagent.Config{
			MinTimeout:     time.Duration(coord.SubagentMinTimeout) * time.Second,
			MaxTimeout:     time.Duration(coord.SubagentMaxTimeout) * time.Second,
			DefaultTimeout: time.Duration(coord.SubagentDefaultTimeout) * time.Second,
			MaxBackground:  coord.AsyncSubagents.MaxBackground,
			InjectProgress: coord.AsyncSubagents.InjectProgress,
		}, subagentRunner(cfg, logger), runDir, logger)
		defer mgr.Close()

		strategy := hooks.InjectStrategy(coord.AsyncSubagents.InjectionStrategy)
		registry.RegisterGlobal(hooks.NewSubagentCompleteHook(mgr.DrainFormatted, strategy))
		deps.ConfigureRegistry = func(agentID string, r *tools.Registry) {
			subagent.RegisterTools(r, mgr, agentID)
		}
	}

	orch, err := orchestration.New(orchestration.Config{
		MaxEnforcementRetries: coord.MaxEnforcementRetries,
		MaxAnswersPerAgent:    coord.MaxAnswersPerAgent,
		RequireNovelty:        coord.RequireNovelty,
		EnableInjection:       !coord.DisableInjection,
		EnableRefinement:      coord.EnableRefinement,
		SkipVoting:            coord.SkipVoting,
		DeferVoting:           coord.DeferVotingUntilAllAnswered,
		SkipFinalPresentation: coord.SkipFinalPresentation,
		PlanningMode:          coord.EnablePlanningMode,
		Timeout:               coord.Timeout(),
		MaxTokens:             coord.MaxTokens,
	}, specs, deps)
	if err != nil {
		return nil, err
	}
	return orch.Run(ctx, task)
}

// buildAgentSpecs maps configured agents onto orchestration specs. Only the
// scripted backend is built in; anything else is a configuration error.
func buildAgentSpecs(cfg *warpconfig.Config, dryRun bool) ([]orchestration.AgentSpec, error) {
	contextPaths := make([]types.ContextPathSpec, 0, len(cfg.ContextPaths))
	for _, cp := range cfg.ContextPaths {
		contextPaths = append(contextPaths, types.ContextPathSpec{
			Path:           cp.Path,
			Permission:     types.Permission(cp.Permission),
			ProtectedPaths: cp.ProtectedPaths,
		})
	}

	specs := make([]orchestration.AgentSpec, 0, len(cfg.Agents))
	for i, a := range cfg.Agents {
		if a.Backend != "scripted" {
			return nil, fmt.Errorf("agent %s: unknown backend %q (only \"scripted\" is built in)", a.ID, a.Backend)
		}
		var turns []backend.ScriptedTurn
		switch {
		case dryRun:
			turns = dryRunTurns(a.ID, i+1)
		case a.ScriptPath != "":
			loaded, err := backend.LoadScript(a.ScriptPath)
			if err != nil {
				return nil, fmt.Errorf("agent %s: %w", a.ID, err)
			}
			turns = loaded
		default:
			return nil, fmt.Errorf("agent %s: script_path is required for the scripted backend (or use --dry-run)", a.ID)
		}
		specs = append(specs, orchestration.AgentSpec{
			ID:           a.ID,
			Backend:      backend.NewScripted(a.ID, a.Model, turns...),
			SystemPrompt: a.SystemPrompt,
			ContextPaths: contextPaths,
		})
	}
	return specs, nil
}

// dryRunTurns is the canned answer-then-vote script. Each agent endorses its
// own first answer: that label always exists by the agent's second turn, and
// the resulting tie resolves to the earliest submission.
func dryRunTurns(agentID string, index int) []backend.ScriptedTurn {
	return []backend.ScriptedTurn{
		{
			Text: "Drafting an answer.",
			ToolCalls: []types.ToolCall{{
				ID:    "call_answer",
				Name:  tools.WorkflowNewAnswer,
				Input: map[string]interface{}{"content": fmt.Sprintf("Dry-run answer from %s.", agentID)},
			}},
		},
		{
			ToolCalls: []types.ToolCall{{
				ID:    "call_vote",
				Name:  tools.WorkflowVote,
				Input: map[string]interface{}{"target": types.AnswerLabel(index, 1), "reason": "dry run"},
			}},
		},
	}
}

// registerConfiguredHooks installs external hook handlers from the config.
func registerConfiguredHooks(registry *hooks.Registry, configs []warpconfig.HookConfig) {
	for _, hc := range configs {
		h := &hooks.Hook{
			Name:     hc.Name,
			Event:    hooks.Event(hc.Event),
			Matcher:  hc.Matcher,
			Handler:  hooks.NewExternalHandler(hc.Command...),
			Timeout:  time.Duration(hc.TimeoutSeconds) * time.Second,
			Override: hc.Override,
		}
		if hc.AgentID != "" {
			registry.RegisterForAgent(hc.AgentID, h)
		} else {
			registry.RegisterGlobal(h)
		}
	}
}

// subagentRunner builds the nested-run executor: a single-agent skip-voting
// coordination in the child's run directory, so its status file has the same
// shape as a top-level run.
func subagentRunner(cfg *warpconfig.Config, logger *zap.Logger) subagent.Runner {
	return func(ctx context.Context, task subagent.Task) error {
		workspaces, err := workspace.NewManager(task.RunDir, logger)
		if err != nil {
			return err
		}
		status, err := observability.NewStore(task.RunDir, logger)
		if err != nil {
			return err
		}
		b := backend.NewScripted(task.ID, "", backend.ScriptedTurn{
			ToolCalls: []types.ToolCall{{
				ID:    "call_answer",
				Name:  tools.WorkflowNewAnswer,
				Input: map[string]interface{}{"content": "Completed: " + task.Prompt},
			}},
		})
		orch, err := orchestration.New(orchestration.Config{
			SkipVoting: true,
			MaxTokens:  cfg.Orchestrator.Coordination.MaxTokens,
		}, []orchestration.AgentSpec{{ID: task.ID, Backend: b}}, orchestration.Deps{
			Workspaces: workspaces,
			Status:     status,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		_, err = orch.Run(ctx, task.Prompt)
		return err
	}
}

func printResult(w io.Writer, result *orchestration.Result) {
	fmt.Fprintf(w, "\nWinner: %s (phase: %s)\n", result.Winner, result.Phase)
	if len(result.Votes) > 0 {
		targets := make([]string, 0, len(result.Votes))
		for target := range result.Votes {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		fmt.Fprint(w, "Votes:")
		for _, target := range targets {
			fmt.Fprintf(w, " %s=%d", target, result.Votes[target])
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Tokens: %d in / %d out ($%.4f)\n", result.Usage.InputTokens, result.Usage.OutputTokens, result.Usage.CostUSD)
	if result.Content != "" {
		fmt.Fprintf(w, "\n%s\n", result.Content)
	}
}

// saveSession records the finished run. Persistence failures are logged, not
// fatal: the run itself already succeeded.
func saveSession(cfg *warpconfig.Config, runID, task string, result *orchestration.Result, logger *zap.Logger, w io.Writer) {
	store, err := session.Open(cfg.Session.Path, logger)
	if err != nil {
		logger.Warn("failed to open session store", zap.Error(err))
		return
	}
	defer store.Close()

	rec := session.Record{
		ID:           runID,
		Task:         task,
		CreatedAt:    time.Now(),
		Phase:        result.Phase,
		Winner:       result.Winner,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		CostUSD:      result.Usage.CostUSD,
	}
	if err := store.SaveRun(context.Background(), rec, result.Answers, result.AllVotes); err != nil {
		logger.Warn("failed to save session", zap.String("id", runID), zap.Error(err))
		return
	}
	fmt.Fprintf(w, "Saved session %s\n", runID)
}
