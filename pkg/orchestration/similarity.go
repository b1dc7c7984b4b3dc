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
package orchestration

import (
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// duplicateThreshold is the similarity above which a resubmission counts as
// the same answer.
const duplicateThreshold = 0.95

// answerSimilarity returns the fraction of characters two answers share,
// computed over a whitespace-normalized diff. 1.0 means identical.
func answerSimilarity(a, b string) float64 {
	a = normalizeWhitespace(a)
	b = normalizeWhitespace(b)
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	common := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			common += len(d.Text)
		}
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	return float64(common) / float64(longer)
}

// normalizeWhitespace collapses runs of whitespace so formatting changes do
// not defeat duplicate detection.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// suggestLabel fuzzy-matches a mistyped vote target against the live labels.
// Empty result means no candidate was close enough to be worth suggesting.
func suggestLabel(submitted string, live []string) string {
	if len(live) == 0 {
		return ""
	}
	matches := fuzzy.Find(submitted, live)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}
