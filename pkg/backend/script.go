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
package backend

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/warp/pkg/types"
)

// scriptFile is the YAML shape of a scripted-backend turns file:
//
//	turns:
//	  - text: "working on it"
//	    tool_calls:
//	      - name: new_answer
//	        input:
//	          content: "the answer"
//	  - error: context_overflow
type scriptFile struct {
	Turns []scriptTurn `yaml:"turns"`
}

type scriptTurn struct {
	Reasoning string           `yaml:"reasoning"`
	Text      string           `yaml:"text"`
	ToolCalls []scriptToolCall `yaml:"tool_calls"`
	Error     string           `yaml:"error"` // context_overflow, rate_limited, other
}

type scriptToolCall struct {
	ID    string                 `yaml:"id"`
	Name  string                 `yaml:"name"`
	Input map[string]interface{} `yaml:"input"`
}

// LoadScript reads a scripted-backend turns file. Dry runs use these files
// to replay a whole coordination without a live backend.
func LoadScript(path string) ([]ScriptedTurn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	var file scriptFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse script file %s: %w", path, err)
	}
	if len(file.Turns) == 0 {
		return nil, fmt.Errorf("script file %s has no turns", path)
	}

	turns := make([]ScriptedTurn, 0, len(file.Turns))
	for i, st := range file.Turns {
		turn := ScriptedTurn{Reasoning: st.Reasoning, Text: st.Text}
		for j, tc := range st.ToolCalls {
			if tc.Name == "" {
				return nil, fmt.Errorf("script file %s: turn %d tool call %d has no name", path, i, j)
			}
			id := tc.ID
			if id == "" {
				id = fmt.Sprintf("call_%d_%d", i, j)
			}
			turn.ToolCalls = append(turn.ToolCalls, types.ToolCall{ID: id, Name: tc.Name, Input: tc.Input})
		}
		if st.Error != "" {
			kind, err := parseErrorKind(st.Error)
			if err != nil {
				return nil, fmt.Errorf("script file %s: turn %d: %w", path, i, err)
			}
			turn.Err = &Error{Kind: kind, Message: "scripted " + st.Error}
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func parseErrorKind(s string) (ErrorKind, error) {
	switch ErrorKind(s) {
	case ErrContextOverflow, ErrRateLimited, ErrOther:
		return ErrorKind(s), nil
	}
	return "", fmt.Errorf("unknown error kind %q", s)
}
