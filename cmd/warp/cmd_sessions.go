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
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/warp/pkg/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect saved coordination runs",
	Long:  `List and show runs recorded in the session history database.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs, newest first",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one run with its answers and votes",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openSessionStore() (*session.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Session.Enabled {
		return nil, fmt.Errorf("session history is disabled (set session.enabled: true)")
	}
	return session.Open(cfg.Session.Path, nil)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No saved sessions.")
		return nil
	}
	for _, rec := range records {
		fmt.Fprintf(out, "%s  %s  %-8s  winner=%s  tokens=%d/%d\n",
			rec.ID, rec.CreatedAt.Format("2006-01-02 15:04"), rec.Phase, rec.Winner,
			rec.InputTokens, rec.OutputTokens)
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, answers, votes, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("no session with id %s", args[0])
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session: %s (%s)\n", rec.ID, rec.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Task:    %s\n", rec.Task)
	fmt.Fprintf(out, "Phase:   %s\n", rec.Phase)
	if rec.Winner != "" {
		fmt.Fprintf(out, "Winner:  %s\n", rec.Winner)
	}
	fmt.Fprintf(out, "Tokens:  %d in / %d out ($%.4f)\n", rec.InputTokens, rec.OutputTokens, rec.CostUSD)

	if len(answers) > 0 {
		fmt.Fprintf(out, "\nAnswers (%d):\n", len(answers))
		for _, a := range answers {
			fmt.Fprintf(out, "  %s by %s at %s\n", a.Label, a.AgentID, a.SubmittedAt.Format("15:04:05"))
		}
	}
	if len(votes) > 0 {
		fmt.Fprintf(out, "\nVotes (%d):\n", len(votes))
		for _, v := range votes {
			marker := ""
			if v.Invalidated {
				marker = " (invalidated)"
			}
			fmt.Fprintf(out, "  %s -> %s round %d%s: %s\n", v.VoterID, v.Target, v.Round, marker, v.Reason)
		}
	}
	return nil
}
