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
package csync

import (
	"sync"
	"testing"
)

func TestMapBasic(t *testing.T) {
	m := NewMap[string, int]()

	if _, ok := m.Get("a"); ok {
		t.Error("expected miss on empty map")
	}

	m.Set("a", 1)
	m.Set("b", 2)

	v, ok := m.Get("a")
	if !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d; want 2", m.Len())
	}

	m.Delete("a")
	if _, ok := m.Get("a"); ok {
		t.Error("expected miss after delete")
	}
}

func TestMapGetOrSet(t *testing.T) {
	m := NewMap[string, []string]()

	calls := 0
	mk := func() []string {
		calls++
		return []string{}
	}

	first := m.GetOrSet("q", mk)
	second := m.GetOrSet("q", mk)
	if calls != 1 {
		t.Errorf("factory called %d times; want 1", calls)
	}
	_ = first
	_ = second
}

func TestMapConcurrent(t *testing.T) {
	m := NewMap[int, int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Set(i, i*10)
			m.Get(i)
		}(i)
	}
	wg.Wait()

	if m.Len() != 50 {
		t.Errorf("Len() = %d; want 50", m.Len())
	}
	count := 0
	for range m.Seq2() {
		count++
	}
	if count != 50 {
		t.Errorf("Seq2 yielded %d entries; want 50", count)
	}
}

func TestSliceAppendTake(t *testing.T) {
	s := NewSlice[string]()
	s.Append("x")
	s.Append("y")

	if s.Len() != 2 {
		t.Fatalf("Len() = %d; want 2", s.Len())
	}

	items := s.Take()
	if len(items) != 2 || items[0] != "x" || items[1] != "y" {
		t.Errorf("Take() = %v; want [x y]", items)
	}
	if s.Len() != 0 {
		t.Errorf("Len() after Take = %d; want 0", s.Len())
	}
}

func TestSliceItemsIsCopy(t *testing.T) {
	s := NewSlice[int]()
	s.Append(1)

	items := s.Items()
	items[0] = 99

	got, _ := s.Get(0)
	if got != 1 {
		t.Errorf("underlying slice mutated through Items copy: got %d", got)
	}
}

func TestSliceConcurrentAppend(t *testing.T) {
	s := NewSlice[int]()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Append(i)
		}(i)
	}
	wg.Wait()

	if s.Len() != 100 {
		t.Errorf("Len() = %d; want 100", s.Len())
	}
}
