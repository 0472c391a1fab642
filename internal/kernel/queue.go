package kernel

import (
	"container/heap"

	"github.com/careforge/cohort/internal/model"
)

// Queue is a stable min-priority queue keyed by simulated time. A
// monotonically increasing insertion counter guarantees FIFO order among
// entries scheduled for the same instant.
//
// The kernel queues its own scheduled items; the module runtime reuses the
// same structure for its encounter/death records.
type Queue[T any] struct {
	entries entryHeap[T]
	seq     uint64
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push schedules v at time t.
func (q *Queue[T]) Push(t float64, v T) {
	heap.Push(&q.entries, entry[T]{time: t, seq: q.seq, value: v})
	q.seq++
}

// Pop removes and returns the earliest entry. ok is false when empty.
func (q *Queue[T]) Pop() (t float64, v T, ok bool) {
	if len(q.entries) == 0 {
		return 0, v, false
	}
	e := heap.Pop(&q.entries).(entry[T])
	return e.time, e.value, true
}

// Len returns the number of scheduled entries.
func (q *Queue[T]) Len() int { return len(q.entries) }

type entry[T any] struct {
	time  float64
	seq   uint64
	value T
}

type entryHeap[T any] []entry[T]

func (h entryHeap[T]) Len() int { return len(h) }

func (h entryHeap[T]) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap[T]) Push(x any) { *h = append(*h, x.(entry[T])) }

func (h *entryHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = entry[T]{}
	*h = old[:n-1]
	return e
}

// item is a kernel-scheduled entry: either the next possible firing of a
// machine transition, or a time-tagged thunk. Thunk items have a non-nil
// thunk; transition items identify (machine, transition index, version).
type item struct {
	machine string
	tindex  int
	version uint64
	detail  *fireDetail

	thunk model.Thunk
}

func (it *item) isThunk() bool { return it.thunk != nil }
