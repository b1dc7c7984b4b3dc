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
// Package mcp holds the Model Context Protocol types the coordinator
// consumes and the result normalization applied to every proxied call.
// Server process management lives outside the core; callers are injected.
package mcp

import "context"

// Tool is an MCP tool definition as discovered from a server.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// CallToolParams contains parameters for tools/call.
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// CallToolResult is the response from tools/call.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
	// StructuredContent duplicates Content for structured-output servers.
	// Normalization drops it; the text content is authoritative.
	StructuredContent map[string]interface{} `json:"structuredContent,omitempty"`
}

// Content is one content item in a tool result.
type Content struct {
	Type     string `json:"type"` // "text", "image", "resource"
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Caller executes tool calls against one MCP server. Implementations wrap a
// stdio or streamable-HTTP transport; the coordinator never manages the
// server process itself.
type Caller interface {
	// ServerName identifies the server for tool namespacing.
	ServerName() string

	// ListTools returns the server's tool definitions. Called once at
	// session start.
	ListTools(ctx context.Context) ([]Tool, error)

	// CallTool invokes one tool by its bare (un-namespaced) name.
	CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*CallToolResult, error)
}
