// Package alarm makes a single logical transition actually fire close to
// its scheduled time on a platform that may defer, coalesce, or drop
// ordinary timers. Each transition is armed as a group of offset one-shot
// timers; whichever fires first wins and the idempotency window absorbs
// the rest.
package alarm

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hushd/hushd/pkg/hushlib"
)

// groupMember describes one timer of a redundant group relative to the
// transition time T: an early pre-warning, the primary at T, and backups
// at increasing offsets to outlast timer suppression.
type groupMember struct {
	kind   hushlib.AlarmKind
	offset time.Duration
}

var groupMembers = []groupMember{
	{hushlib.AlarmEarly, -30 * time.Second},
	{hushlib.AlarmPrimary, 0},
	{hushlib.AlarmBackup, 30 * time.Second},
	{hushlib.AlarmBackup, 90 * time.Second},
	{hushlib.AlarmBackup, 180 * time.Second},
}

// GroupScheduler arms and cancels redundant alarm groups on top of a
// TimerProvider, and tracks which groups belong to which profile so that
// disabling a profile can cancel everything it ever armed.
type GroupScheduler struct {
	tp hushlib.TimerProvider
	l  *log.Logger

	mu     sync.Mutex
	groups map[hushlib.GroupKey]string // group key -> owning profile id
}

// NewGroupScheduler creates a group scheduler over the given provider.
func NewGroupScheduler(tp hushlib.TimerProvider, l *log.Logger) *GroupScheduler {
	return &GroupScheduler{
		tp:     tp,
		l:      l,
		groups: make(map[hushlib.GroupKey]string),
	}
}

// Arm schedules the full redundant group for ev's transition at time at.
// Any existing group for the same key/transition is cancelled first so two
// overlapping schedules can never coexist. Members whose absolute time is
// already past are skipped; if that leaves the group empty the transition
// is too stale to arm and an error is returned.
func (g *GroupScheduler) Arm(ev hushlib.TriggerEvent, at time.Time) error {
	group := hushlib.MakeGroupKey(ev.Key, ev.Transition)
	g.Cancel(group)

	now := time.Now()
	var armed int
	for _, m := range groupMembers {
		t := at.Add(m.offset)
		if t.Before(now) && m.kind != hushlib.AlarmBackup {
			// Early and primary members in the past are pointless;
			// late backups still fire immediately and are wanted.
			continue
		}
		if err := g.tp.ScheduleOnce(t, group, m.kind, ev); err != nil {
			g.Cancel(group)
			return fmt.Errorf("%w: %s %s: %v", hushlib.ErrScheduleFailed, ev.Key, ev.Transition, err)
		}
		armed++
	}
	if armed == 0 {
		return fmt.Errorf("%w: %s %s entirely in the past", hushlib.ErrScheduleFailed, ev.Key, ev.Transition)
	}

	g.mu.Lock()
	g.groups[group] = ev.ProfileID
	g.mu.Unlock()

	g.l.Printf("armed %d alarms for %s %s at %s", armed, ev.Key, ev.Transition, at.Format(time.RFC3339))
	return nil
}

// Cancel cancels every member of a group.
func (g *GroupScheduler) Cancel(group hushlib.GroupKey) {
	g.tp.CancelGroup(group)
	g.mu.Lock()
	delete(g.groups, group)
	g.mu.Unlock()
}

// CancelTrigger cancels both transition groups of a trigger key.
func (g *GroupScheduler) CancelTrigger(key hushlib.TriggerKey) {
	g.Cancel(hushlib.MakeGroupKey(key, hushlib.TransitionActivate))
	g.Cancel(hushlib.MakeGroupKey(key, hushlib.TransitionDeactivate))
}

// CancelProfile cancels every pending group armed for the profile. Returns
// the number of groups cancelled.
func (g *GroupScheduler) CancelProfile(profileID string) int {
	g.mu.Lock()
	var toCancel []hushlib.GroupKey
	for group, pid := range g.groups {
		if pid == profileID {
			toCancel = append(toCancel, group)
		}
	}
	g.mu.Unlock()

	for _, group := range toCancel {
		g.Cancel(group)
	}
	return len(toCancel)
}

// Pending reports whether the group is currently tracked as armed.
func (g *GroupScheduler) Pending(group hushlib.GroupKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.groups[group]
	return ok
}

// PendingCount returns the number of tracked groups.
func (g *GroupScheduler) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.groups)
}
