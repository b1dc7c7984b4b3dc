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
// Package tokens provides token counting for context management and cost
// accounting. Counts use tiktoken with cl100k_base encoding, a reasonable
// approximation across the model families the coordinator drives.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens in text.
type Counter struct {
	encoder *tiktoken.Tiktoken
	mu      sync.Mutex
}

var (
	globalCounter *Counter
	initOnce      sync.Once
)

// GetCounter returns the singleton token counter.
func GetCounter() *Counter {
	initOnce.Do(func() {
		tkm, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			// Fall back to approximate counting if tiktoken fails
			globalCounter = &Counter{encoder: nil}
			return
		}
		globalCounter = &Counter{encoder: tkm}
	})
	return globalCounter
}

// Count returns the token count for a given text.
func (c *Counter) Count(text string) int {
	if c.encoder == nil {
		// Char-based estimation when the encoder is unavailable
		return len(text) / 4
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.encoder.Encode(text, nil, nil))
}

// CountAll counts tokens across multiple text segments.
func (c *Counter) CountAll(texts ...string) int {
	total := 0
	for _, text := range texts {
		total += c.Count(text)
	}
	return total
}

// Estimate returns the token count for text using the singleton counter.
func Estimate(text string) int {
	return GetCounter().Count(text)
}
