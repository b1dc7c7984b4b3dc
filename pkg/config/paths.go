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
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDir returns the warp data directory.
//
// Priority:
// 1. WARP_DATA_DIR environment variable (if set and non-empty)
// 2. ~/.warp (default)
//
// The returned path is always absolute. Tilde (~) is expanded and relative
// paths are resolved against the working directory.
//
// This reads os.Getenv directly, not viper, because it is needed during
// bootstrap to locate the config file itself.
func DataDir() string {
	if dataDir := os.Getenv("WARP_DATA_DIR"); dataDir != "" {
		return expandPath(dataDir)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".warp"
	}
	return filepath.Join(homeDir, ".warp")
}

// SubDir returns a subdirectory within the warp data directory.
// Example: SubDir("runs") returns ~/.warp/runs.
func SubDir(subdir string) string {
	return filepath.Join(DataDir(), subdir)
}

// expandPath expands ~ and resolves to an absolute path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
