package planner

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestStackOrder(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	s := NewStack[string]()
	s.Push("speculative", 2)
	s.Push("join agent", 0)
	s.Push("requested", 1)
	s.Push("join destination", 0)
	require.Equal(4, s.Len())

	var popped []string
	for !s.IsEmpty() {
		item, ok := s.Pop()
		require.True(ok)
		popped = append(popped, item)
	}
	require.Equal([]string{"join agent", "join destination", "requested", "speculative"}, popped)

	_, ok := s.Pop()
	require.False(ok)
}

func TestStackIsStableWithinPriority(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		priorities := rapid.SliceOf(rapid.IntRange(0, 2)).Draw(t, "priorities")

		s := NewStack[int]()
		for i, p := range priorities {
			s.Push(i, Priority(p))
		}

		last := map[Priority]int{}
		previous := Priority(-1)
		for range priorities {
			i, ok := s.Pop()
			if !ok {
				t.Fatalf("stack exhausted early")
			}
			p := Priority(priorities[i])
			if p < previous {
				t.Fatalf("priority %d popped after %d", p, previous)
			}
			if seen, ok := last[p]; ok && seen > i {
				t.Fatalf("item %d popped after %d with the same priority", i, seen)
			}
			last[p] = i
			previous = p
		}
		if !s.IsEmpty() {
			t.Fatalf("stack not empty")
		}
	})
}
