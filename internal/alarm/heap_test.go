package alarm

import (
	"testing"
	"time"

	"github.com/hushd/hushd/pkg/hushlib"
)

func TestHeapPopOrdering(t *testing.T) {
	h := &alarmHeap{}

	t1 := time.Now().Add(3 * time.Hour)
	t2 := time.Now().Add(1 * time.Hour)
	t3 := time.Now().Add(2 * time.Hour)

	heapPush(h, pendingAlarm{at: t1, group: "g3"})
	heapPush(h, pendingAlarm{at: t2, group: "g1"})
	heapPush(h, pendingAlarm{at: t3, group: "g2"})

	// Pop should return in ascending time order (min-heap).
	for i, want := range []hushlib.GroupKey{"g1", "g2", "g3"} {
		got := heapPop(h)
		if got.group != want {
			t.Errorf("pop %d = %s, want %s", i, got.group, want)
		}
	}
}

func TestHeapRemoveGroup(t *testing.T) {
	h := &alarmHeap{}
	base := time.Now()

	for i := 0; i < 5; i++ {
		heapPush(h, pendingAlarm{at: base.Add(time.Duration(i) * time.Minute), group: "a"})
	}
	heapPush(h, pendingAlarm{at: base.Add(10 * time.Minute), group: "b"})

	if removed := heapRemoveGroup(h, "a"); removed != 5 {
		t.Errorf("removed %d members of group a, want 5", removed)
	}
	if h.Len() != 1 {
		t.Errorf("heap len = %d, want 1", h.Len())
	}
	if got := heapPop(h); got.group != "b" {
		t.Errorf("remaining alarm belongs to %s, want b", got.group)
	}

	if removed := heapRemoveGroup(h, "missing"); removed != 0 {
		t.Errorf("removing a missing group removed %d members", removed)
	}
}
