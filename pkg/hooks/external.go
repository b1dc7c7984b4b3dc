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
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ExternalHandler runs a configured command per event. The command receives
// one JSON line of HookEvent on stdin and must write one JSON line of
// HookResult on stdout before its timeout. The environment carries
// HOOK_TYPE, TOOL_NAME, SESSION_ID, and AGENT_ID.
type ExternalHandler struct {
	// Command is the executable plus fixed arguments
	Command []string
}

// NewExternalHandler creates a handler for one external command.
func NewExternalHandler(command ...string) *ExternalHandler {
	return &ExternalHandler{Command: command}
}

// Run implements Handler.
func (h *ExternalHandler) Run(ctx context.Context, event *HookEvent) (*HookResult, error) {
	if len(h.Command) == 0 {
		return nil, &LoadError{Hook: "external", Err: errors.New("empty command")}
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hook event: %w", err)
	}

	cmd := exec.CommandContext(ctx, h.Command[0], h.Command[1:]...)
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(cmd.Environ(),
		"HOOK_TYPE="+string(event.Event),
		"TOOL_NAME="+event.ToolName,
		"SESSION_ID="+event.SessionID,
		"AGENT_ID="+event.AgentID,
	)

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, &LoadError{Hook: h.Command[0], Err: err}
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, &LoadError{Hook: h.Command[0], Err: err}
		}
		return nil, fmt.Errorf("hook command failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	line := strings.TrimSpace(stdout.String())
	if line == "" {
		// No output means no opinion.
		return &HookResult{}, nil
	}
	// Only the first line is protocol; anything after is ignored.
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	var result HookResult
	if err := json.Unmarshal([]byte(line), &result); err != nil {
		return nil, fmt.Errorf("hook command wrote invalid JSON: %w", err)
	}
	return &result, nil
}
