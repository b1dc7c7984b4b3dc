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

import "path"

// Matches reports whether a glob-style matcher selects the tool name. An
// empty matcher matches every tool. Namespaced names match as plain strings,
// so "mcp__db__*" selects every tool of the db server.
func Matches(matcher, toolName string) bool {
	if matcher == "" {
		return true
	}
	ok, err := path.Match(matcher, toolName)
	if err != nil {
		// Malformed pattern matches nothing.
		return false
	}
	return ok
}
