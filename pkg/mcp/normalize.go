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
package mcp

import (
	"encoding/json"
	"strings"
)

// Normalize reduces a CallToolResult to its text content. Servers commonly
// duplicate the payload across Content, StructuredContent, and wrapper
// metadata; keeping only the text typically shrinks results 4-10x before
// they reach the context window.
//
// Single text items that parse as JSON are returned decoded so downstream
// consumers see structured data instead of a JSON string. Non-text content
// items are represented by a short placeholder rather than their payload.
func Normalize(result *CallToolResult) interface{} {
	if result == nil {
		return nil
	}

	texts := make([]string, 0, len(result.Content))
	for _, c := range result.Content {
		switch c.Type {
		case "text":
			texts = append(texts, c.Text)
		case "image":
			texts = append(texts, "[image content omitted: "+c.MimeType+"]")
		case "resource":
			texts = append(texts, "[resource content omitted]")
		}
	}

	if len(texts) == 0 {
		return ""
	}

	if len(texts) == 1 {
		return parseTextPayload(texts[0])
	}
	return strings.Join(texts, "\n")
}

// parseTextPayload decodes JSON payloads that servers embed in text items,
// skipping any status prefix before the first brace.
func parseTextPayload(text string) interface{} {
	trimmed := strings.TrimSpace(text)
	jsonStart := strings.Index(trimmed, "{")
	if jsonStart >= 0 {
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed[jsonStart:]), &parsed); err == nil {
			return parsed
		}
	}
	return trimmed
}
