package alarm

import (
	"container/heap"
	"time"

	"github.com/hushd/hushd/pkg/hushlib"
)

// pendingAlarm is one armed timer in the scheduler heap. It is in-memory
// only; groups are re-armed from the ledger on daemon restart.
type pendingAlarm struct {
	at    time.Time
	group hushlib.GroupKey
	kind  hushlib.AlarmKind
	event hushlib.TriggerEvent
}

// alarmHeap implements container/heap.Interface for pendingAlarm,
// sorted by trigger time (earliest first — min-heap).
type alarmHeap []pendingAlarm

func (h alarmHeap) Len() int           { return len(h) }
func (h alarmHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h alarmHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *alarmHeap) Push(x any) {
	*h = append(*h, x.(pendingAlarm))
}

func (h *alarmHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// heapPush adds a pendingAlarm to the heap, maintaining heap invariant.
func heapPush(h *alarmHeap, a pendingAlarm) {
	heap.Push(h, a)
}

// heapPop removes and returns the pendingAlarm with the earliest trigger
// time. Panics if the heap is empty.
func heapPop(h *alarmHeap) pendingAlarm {
	return heap.Pop(h).(pendingAlarm)
}

// heapRemoveGroup removes every member of the given group and returns the
// number removed. Cancelling a group cancels all of it.
func heapRemoveGroup(h *alarmHeap, group hushlib.GroupKey) int {
	var removed int
	for i := 0; i < h.Len(); {
		if (*h)[i].group == group {
			heap.Remove(h, i)
			removed++
			continue
		}
		i++
	}
	return removed
}
