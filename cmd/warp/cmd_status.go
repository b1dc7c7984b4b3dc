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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/teradata-labs/warp/pkg/observability"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-dir]",
	Short: "Show the status of a coordination run",
	Long: heredoc.Doc(`
		Read a run's status file and print the simplified view: coarse
		status, phase, completion percentage, voting round, winner, and
		token usage. Works on finished and in-flight runs alike, and on
		subagent child runs.

		The argument is a run directory (the status file is found under
		full_logs/) or a direct path to a status.json.
	`),
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Bool("json", false, "Print the view as JSON")
	statusCmd.Flags().Bool("full", false, "Print the full status file instead of the simplified view")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	path := args[0]
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "full_logs", "status.json")
	}

	st, err := observability.ReadStatus(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	asJSON, _ := cmd.Flags().GetBool("json")
	full, _ := cmd.Flags().GetBool("full")

	if full {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	view := observability.DeriveView(st)
	if asJSON {
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "Status:     %s\n", view.Status)
	fmt.Fprintf(out, "Phase:      %s\n", view.Phase)
	fmt.Fprintf(out, "Completion: %.0f%%\n", view.CompletionPercentage)
	fmt.Fprintf(out, "Round:      %d\n", view.VotingRound)
	if view.Winner != "" {
		fmt.Fprintf(out, "Winner:     %s\n", view.Winner)
	}
	fmt.Fprintf(out, "Tokens:     %d in / %d out ($%.4f)\n",
		view.TokenUsage.InputTokens, view.TokenUsage.OutputTokens, view.TokenUsage.CostUSD)
	return nil
}
