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
package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/teradata-labs/warp/pkg/types"
	"github.com/teradata-labs/warp/pkg/workspace"
)

// RegisterWorkspaceTools adds the built-in filesystem tools for one agent.
// Every path runs through the Guard, so permission, protected-path, and
// read-before-delete semantics hold no matter what the model asks for.
// Relative paths resolve inside the agent's workspace.
func RegisterWorkspaceTools(r *Registry, ws *workspace.Workspace, guard *workspace.Guard) {
	resolve := func(path string) string {
		if filepath.IsAbs(path) {
			return filepath.Clean(path)
		}
		return filepath.Join(ws.Path, path)
	}

	r.RegisterBuiltin(&ToolFunc{
		ToolName:        "read_file",
		ToolDescription: "Read a file from your workspace, a context path, or a peer snapshot. Supports byte-range reads via offset/length.",
		Schema: NewObjectSchema("", map[string]*JSONSchema{
			"path":   NewStringSchema("File path (relative paths resolve inside your workspace)"),
			"offset": NewNumberSchema("Byte offset to start from (optional)"),
			"length": NewNumberSchema("Number of bytes to read (optional; rest of file when omitted)"),
		}, []string{"path"}),
		Fn: func(ctx context.Context, params map[string]interface{}) (*types.ToolResult, error) {
			path := resolve(stringParam(params, "path"))
			if err := guard.CheckRead(path); err != nil {
				return permissionResult(err), nil
			}
			offset := int64(numberParam(params, "offset"))
			length := int64(numberParam(params, "length"))
			if _, hasLen := params["length"]; !hasLen {
				length = -1
			}

			var data []byte
			var err error
			if offset > 0 || length >= 0 {
				data, err = ReadRange(path, offset, length)
			} else {
				data, err = os.ReadFile(path)
			}
			if err != nil {
				return types.NewErrorResult("read_failed", err.Error(), ""), nil
			}
			guard.RecordRead(path)
			return &types.ToolResult{Success: true, Data: string(data)}, nil
		},
	})

	r.RegisterBuiltin(&ToolFunc{
		ToolName:        "write_file",
		ToolDescription: "Write a file in your workspace (or a writable context path during final presentation).",
		Schema: NewObjectSchema("", map[string]*JSONSchema{
			"path":    NewStringSchema("File path (relative paths resolve inside your workspace)"),
			"content": NewStringSchema("Full file content"),
		}, []string{"path", "content"}),
		Mutating: true,
		Fn: func(ctx context.Context, params map[string]interface{}) (*types.ToolResult, error) {
			path := resolve(stringParam(params, "path"))
			if err := guard.CheckWrite(path); err != nil {
				return permissionResult(err), nil
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return types.NewErrorResult("write_failed", err.Error(), ""), nil
			}
			content := stringParam(params, "content")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return types.NewErrorResult("write_failed", err.Error(), ""), nil
			}
			return &types.ToolResult{Success: true, Data: fmt.Sprintf("wrote %d bytes to %s", len(content), path)}, nil
		},
	})

	r.RegisterBuiltin(&ToolFunc{
		ToolName:        "delete_file",
		ToolDescription: "Delete a file you have previously read in this session.",
		Schema: NewObjectSchema("", map[string]*JSONSchema{
			"path": NewStringSchema("File path (relative paths resolve inside your workspace)"),
		}, []string{"path"}),
		Mutating: true,
		Fn: func(ctx context.Context, params map[string]interface{}) (*types.ToolResult, error) {
			path := resolve(stringParam(params, "path"))
			if err := guard.CheckDelete(path); err != nil {
				return permissionResult(err), nil
			}
			if err := os.Remove(path); err != nil {
				return types.NewErrorResult("delete_failed", err.Error(), ""), nil
			}
			return &types.ToolResult{Success: true, Data: "deleted " + path}, nil
		},
	})

	r.RegisterBuiltin(&ToolFunc{
		ToolName:        "list_files",
		ToolDescription: "List files under a directory in your workspace, a context path, or a snapshot.",
		Schema: NewObjectSchema("", map[string]*JSONSchema{
			"path": NewStringSchema("Directory path (defaults to your workspace root)"),
		}, nil),
		Fn: func(ctx context.Context, params map[string]interface{}) (*types.ToolResult, error) {
			path := ws.Path
			if p := stringParam(params, "path"); p != "" {
				path = resolve(p)
			}
			if err := guard.CheckRead(path); err != nil {
				return permissionResult(err), nil
			}
			var files []string
			err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if info.IsDir() {
					return nil
				}
				rel, _ := filepath.Rel(path, p)
				files = append(files, rel)
				return nil
			})
			if err != nil {
				return types.NewErrorResult("list_failed", err.Error(), ""), nil
			}
			sort.Strings(files)
			if len(files) == 0 {
				return &types.ToolResult{Success: true, Data: "(empty)"}, nil
			}
			return &types.ToolResult{Success: true, Data: strings.Join(files, "\n")}, nil
		},
	})
}

// permissionResult maps guard errors onto structured tool errors.
func permissionResult(err error) *types.ToolResult {
	code := "permission_denied"
	suggestion := "stay inside your workspace, mounted context paths, and published snapshots"
	switch {
	case errors.Is(err, workspace.ErrProtectedPath):
		code = "protected_path"
		suggestion = "protected paths can never be modified or deleted"
	case errors.Is(err, workspace.ErrReadBeforeDelete):
		code = "read_before_delete"
		suggestion = "read the file first, then delete it"
	}
	return types.NewErrorResult(code, err.Error(), suggestion)
}

func stringParam(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

func numberParam(params map[string]interface{}, key string) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
