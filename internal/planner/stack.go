package planner

import (
	"cmp"

	"github.com/emirpasic/gods/queues/priorityqueue"
)

type entry[T any] struct {
	item     T
	priority Priority
	seq      uint64
}

// Stack is the work list of the exploration. Items with the lowest priority
// value pop first; items of equal priority pop in the order they were pushed.
type Stack[T any] struct {
	queue *priorityqueue.Queue
	seq   uint64
}

// NewStack returns an empty stack.
func NewStack[T any]() *Stack[T] {
	return &Stack[T]{queue: priorityqueue.NewWith(func(a, b any) int {
		ea, eb := a.(entry[T]), b.(entry[T])
		if c := cmp.Compare(ea.priority, eb.priority); c != 0 {
			return c
		}
		return cmp.Compare(ea.seq, eb.seq)
	})}
}

// Push adds the item with the given priority.
func (s *Stack[T]) Push(item T, priority Priority) {
	s.queue.Enqueue(entry[T]{item: item, priority: priority, seq: s.seq})
	s.seq++
}

// Pop removes and returns the next item, or false if the stack is empty.
func (s *Stack[T]) Pop() (T, bool) {
	v, ok := s.queue.Dequeue()
	if !ok {
		var zero T
		return zero, false
	}
	return v.(entry[T]).item, true
}

func (s *Stack[T]) Len() int { return s.queue.Size() }

func (s *Stack[T]) IsEmpty() bool { return s.queue.Empty() }
