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
	"errors"

	"github.com/teradata-labs/warp/pkg/types"
)

// ErrNoAnswers is returned when winner selection runs with an empty ledger.
var ErrNoAnswers = errors.New("no answers submitted")

// selectWinner picks the answer with the highest live vote count, breaking
// ties by earliest submission. With no votes at all, the earliest answer
// wins (single-agent and timeout-recovery path).
func selectWinner(l *Ledger) (types.Answer, error) {
	answers := l.Answers()
	if len(answers) == 0 {
		return types.Answer{}, ErrNoAnswers
	}
	counts := l.LiveVoteCounts()

	best := answers[0]
	bestVotes := counts[best.Label]
	for _, a := range answers[1:] {
		if counts[a.Label] > bestVotes {
			best = a
			bestVotes = counts[a.Label]
		}
	}
	return best, nil
}
