package alarm

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hushd/hushd/pkg/hushlib"
)

// fakeProvider records schedule/cancel calls without any real timers.
type fakeProvider struct {
	mu        sync.Mutex
	scheduled map[hushlib.GroupKey]int
	cancelled map[hushlib.GroupKey]int
	failAll   bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		scheduled: make(map[hushlib.GroupKey]int),
		cancelled: make(map[hushlib.GroupKey]int),
	}
}

func (f *fakeProvider) ScheduleOnce(_ time.Time, group hushlib.GroupKey, _ hushlib.AlarmKind, _ hushlib.TriggerEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("provider refused")
	}
	f.scheduled[group]++
	return nil
}

func (f *fakeProvider) CancelGroup(group hushlib.GroupKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled[group]++
	f.scheduled[group] = 0
}

func (f *fakeProvider) scheduledCount(group hushlib.GroupKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scheduled[group]
}

func testEvent(key, profileID string, tr hushlib.Transition) hushlib.TriggerEvent {
	return hushlib.TriggerEvent{
		Key:         hushlib.TriggerKey(key),
		Transition:  tr,
		Mode:        hushlib.ModeSilent,
		ProfileID:   profileID,
		ProfileName: "Meeting",
	}
}

func TestArmSchedulesFullGroup(t *testing.T) {
	fp := newFakeProvider()
	g := NewGroupScheduler(fp, testLogger())

	ev := testEvent("p1@d1", "p1", hushlib.TransitionActivate)
	if err := g.Arm(ev, time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	group := hushlib.MakeGroupKey(ev.Key, ev.Transition)
	if n := fp.scheduledCount(group); n != len(groupMembers) {
		t.Errorf("scheduled %d members, want %d", n, len(groupMembers))
	}
	if !g.Pending(group) {
		t.Error("group should be tracked as pending")
	}
}

func TestArmSkipsPastEarlyAndPrimary(t *testing.T) {
	fp := newFakeProvider()
	g := NewGroupScheduler(fp, testLogger())

	// Transition time one minute ago: early and primary are stale, the
	// three backups still fire (immediately) to deliver the transition late.
	ev := testEvent("p1@d1", "p1", hushlib.TransitionActivate)
	if err := g.Arm(ev, time.Now().Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}

	group := hushlib.MakeGroupKey(ev.Key, ev.Transition)
	if n := fp.scheduledCount(group); n != 3 {
		t.Errorf("scheduled %d members, want 3 backups", n)
	}
}

func TestArmEntirelyStaleFails(t *testing.T) {
	fp := newFakeProvider()
	g := NewGroupScheduler(fp, testLogger())

	ev := testEvent("p1@d1", "p1", hushlib.TransitionActivate)
	err := g.Arm(ev, time.Now().Add(-time.Hour))
	if !errors.Is(err, hushlib.ErrScheduleFailed) {
		t.Errorf("expected ErrScheduleFailed, got %v", err)
	}
}

func TestRearmCancelsExistingGroup(t *testing.T) {
	fp := newFakeProvider()
	g := NewGroupScheduler(fp, testLogger())

	ev := testEvent("p1@d1", "p1", hushlib.TransitionActivate)
	if err := g.Arm(ev, time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := g.Arm(ev, time.Now().Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}

	group := hushlib.MakeGroupKey(ev.Key, ev.Transition)
	// The fake zeroes the counter on cancel, so a double schedule would
	// show up as more than one group's worth of members.
	if n := fp.scheduledCount(group); n != len(groupMembers) {
		t.Errorf("after re-arm, %d members scheduled, want %d", n, len(groupMembers))
	}
	if g.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1", g.PendingCount())
	}
}

func TestArmFailureSurfaces(t *testing.T) {
	fp := newFakeProvider()
	fp.failAll = true
	g := NewGroupScheduler(fp, testLogger())

	ev := testEvent("p1@d1", "p1", hushlib.TransitionActivate)
	err := g.Arm(ev, time.Now().Add(time.Hour))
	if !errors.Is(err, hushlib.ErrScheduleFailed) {
		t.Errorf("expected ErrScheduleFailed, got %v", err)
	}
	if g.PendingCount() != 0 {
		t.Error("failed arm must not leave a tracked group")
	}
}

func TestCancelProfileCancelsAllGroups(t *testing.T) {
	fp := newFakeProvider()
	g := NewGroupScheduler(fp, testLogger())

	at := time.Now().Add(time.Hour)
	for _, key := range []string{"p1@d1", "p1@d2"} {
		if err := g.Arm(testEvent(key, "p1", hushlib.TransitionActivate), at); err != nil {
			t.Fatal(err)
		}
		if err := g.Arm(testEvent(key, "p1", hushlib.TransitionDeactivate), at.Add(time.Hour)); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.Arm(testEvent("p2@d1", "p2", hushlib.TransitionActivate), at); err != nil {
		t.Fatal(err)
	}

	if n := g.CancelProfile("p1"); n != 4 {
		t.Errorf("cancelled %d groups, want 4", n)
	}
	if g.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1 (p2's group)", g.PendingCount())
	}
}

func TestCancelTrigger(t *testing.T) {
	fp := newFakeProvider()
	g := NewGroupScheduler(fp, testLogger())

	at := time.Now().Add(time.Hour)
	if err := g.Arm(testEvent("p1@d1", "p1", hushlib.TransitionActivate), at); err != nil {
		t.Fatal(err)
	}
	if err := g.Arm(testEvent("p1@d1", "p1", hushlib.TransitionDeactivate), at.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	g.CancelTrigger("p1@d1")
	if g.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", g.PendingCount())
	}
}
