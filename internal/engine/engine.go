// Package engine is the reconciliation core: it consumes normalized trigger
// events from every source (timers, geofences, calendar scans), decides
// whether device state actually changes, and keeps the registry, the ledger,
// and the physical ringer in agreement. All correctness rules live here —
// the idempotency window, snapshot handling, and the overlap rule.
package engine

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/hushd/hushd/internal/alarm"
	"github.com/hushd/hushd/internal/ledger"
	"github.com/hushd/hushd/internal/registry"
	"github.com/hushd/hushd/pkg/hushlib"
)

// DefaultIdempotencyWindow is how long after processing a (key, transition)
// pair further deliveries of the same pair are treated as duplicates. It must
// exceed the spread of a redundant alarm group's early/primary/first-backup
// members so redundancy never causes double execution.
const DefaultIdempotencyWindow = 60 * time.Second

// UsageRecorder receives one record per executed transition. Optional.
type UsageRecorder interface {
	Record(profileID, profileName string, mode hushlib.RingerMode, tr hushlib.Transition, at time.Time) error
}

// Deps are the engine's collaborators.
type Deps struct {
	Log      *log.Logger
	Ledger   *ledger.Store
	Registry *registry.Registry
	Alarms   *alarm.GroupScheduler
	Ringer   hushlib.RingerPort
	Notify   hushlib.NotificationSink
	Profiles hushlib.ProfileStore
	Usage    UsageRecorder
}

// Options tune engine behavior. The zero value selects defaults.
type Options struct {
	// IdempotencyWindow overrides DefaultIdempotencyWindow.
	IdempotencyWindow time.Duration
	// Clock overrides the wall clock, for tests.
	Clock func() time.Time
}

// Engine implements hushlib.EventHandler.
type Engine struct {
	l        *log.Logger
	ledger   *ledger.Store
	reg      *registry.Registry
	alarms   *alarm.GroupScheduler
	ringer   hushlib.RingerPort
	notify   hushlib.NotificationSink
	profiles hushlib.ProfileStore
	usage    UsageRecorder

	window time.Duration
	now    func() time.Time

	// Per-key serialization: transitions for distinct keys may interleave,
	// but two deliveries for the same key must never race. The map only
	// grows, bounded by the number of distinct trigger keys seen since boot.
	mu       sync.Mutex
	keyLocks map[hushlib.TriggerKey]*sync.Mutex
}

// New creates an engine. opts may be nil.
func New(d Deps, opts *Options) *Engine {
	e := &Engine{
		l:        d.Log,
		ledger:   d.Ledger,
		reg:      d.Registry,
		alarms:   d.Alarms,
		ringer:   d.Ringer,
		notify:   d.Notify,
		profiles: d.Profiles,
		usage:    d.Usage,
		window:   DefaultIdempotencyWindow,
		now:      time.Now,
		keyLocks: make(map[hushlib.TriggerKey]*sync.Mutex),
	}
	if opts != nil {
		if opts.IdempotencyWindow > 0 {
			e.window = opts.IdempotencyWindow
		}
		if opts.Clock != nil {
			e.now = opts.Clock
		}
	}
	return e
}

func (e *Engine) lockKey(key hushlib.TriggerKey) func() {
	e.mu.Lock()
	km, ok := e.keyLocks[key]
	if !ok {
		km = &sync.Mutex{}
		e.keyLocks[key] = km
	}
	e.mu.Unlock()
	km.Lock()
	return km.Unlock
}

// HandleEvent processes one trigger event. Safe for concurrent use; events
// for the same key are serialized.
func (e *Engine) HandleEvent(ev hushlib.TriggerEvent) error {
	switch ev.Transition {
	case hushlib.TransitionActivate:
		unlock := e.lockKey(ev.Key)
		err := e.activate(ev)
		unlock()
		if err != nil {
			return err
		}
		// Daily and cron profiles recur; arming the next occurrence from
		// inside the activation keeps the schedule alive without a separate
		// re-arm loop. Runs outside the key lock: a cron profile firing
		// twice on one day re-arms its own key.
		e.rearmRecurring(ev.ProfileID, e.now())
		return nil
	case hushlib.TransitionDeactivate:
		unlock := e.lockKey(ev.Key)
		defer unlock()
		return e.deactivate(ev, false)
	default:
		return fmt.Errorf("unknown transition %q for %s", ev.Transition, ev.Key)
	}
}

func (e *Engine) activate(ev hushlib.TriggerEvent) error {
	now := e.now()

	ok, err := e.ledger.ShouldProcess(ev.Key, hushlib.TransitionActivate, now, e.window)
	if err != nil {
		return err
	}
	if !ok {
		e.l.Printf("duplicate activate for %s ignored", ev.Key)
		return nil
	}

	// A late alarm may arrive after the user disabled or deleted the
	// profile; the row and any remaining alarms are garbage then.
	if e.profiles != nil {
		p, found := e.profiles.GetProfile(ev.ProfileID)
		if !found || !p.Active {
			e.l.Printf("activate for %s dropped: profile inactive or gone", ev.Key)
			e.alarms.CancelTrigger(ev.Key)
			if err := e.ledger.DeleteTrigger(ev.Key); err != nil {
				e.l.Println(err)
			}
			return nil
		}
	}

	// Snapshot the pre-silence mode, but only when this activation is the
	// one that takes the device away from the user's chosen state. While
	// another silencing trigger is engaged, the current mode is ours, not
	// the user's, and recording it would make the chain un-revertable.
	if !e.reg.AnySilencing() {
		cur, err := e.ringer.CurrentMode()
		if err != nil {
			e.l.Printf("cannot read ringer mode for %s, assuming normal: %v", ev.Key, err)
			cur = hushlib.ModeNormal
		}
		if _, err := e.ledger.SaveSnapshot(ev.Key, cur, now); err != nil {
			return err
		}
	}

	e.reg.Engage(ev.Key, registry.Entry{Mode: ev.Mode, WindowEnd: ev.WindowEnd, EngagedAt: now})

	row := ledger.TriggerRow{
		Key:         ev.Key,
		ProfileID:   ev.ProfileID,
		ProfileName: ev.ProfileName,
		Mode:        ev.Mode,
		Actions:     ev.Actions,
		WindowStart: now,
		WindowEnd:   ev.WindowEnd,
		Engaged:     true,
		EngagedAt:   now,
	}
	if old, found, _ := e.ledger.GetTrigger(ev.Key); found && !old.WindowStart.IsZero() {
		row.WindowStart = old.WindowStart
	}
	if err := e.ledger.PutTrigger(row); err != nil {
		return err
	}

	// Device mutation comes after bookkeeping: a permission failure must
	// not leave the engine believing the trigger never happened, or every
	// backup alarm would retry the refused call.
	permDenied := false
	if err := e.ringer.SetMode(ev.Mode); err != nil {
		if errors.Is(err, hushlib.ErrPermissionDenied) {
			permDenied = true
			e.notify.NotifyPermissionRequired("ringer")
			e.l.Printf("permission denied setting ringer mode for %s", ev.Key)
		} else {
			e.l.Printf("failed to set ringer mode for %s: %v", ev.Key, err)
		}
	}
	if len(ev.Actions) > 0 {
		if err := e.ringer.ApplySideActions(ev.Actions); err != nil {
			if errors.Is(err, hushlib.ErrPermissionDenied) {
				if !permDenied {
					e.notify.NotifyPermissionRequired("side-actions")
				}
				permDenied = true
			}
			e.l.Printf("failed to apply side actions for %s: %v", ev.Key, err)
		}
	}

	// Remaining members of the activate group are moot now; the window
	// check would absorb them anyway, but there is no point firing them.
	e.alarms.Cancel(hushlib.MakeGroupKey(ev.Key, hushlib.TransitionActivate))

	if !permDenied {
		e.notify.NotifyActivated(ev.ProfileName)
	}
	e.recordUsage(ev, hushlib.TransitionActivate, now)
	e.l.Printf("activated %s (%s -> %s)", ev.Key, ev.ProfileName, ev.Mode)
	return nil
}

func (e *Engine) rearmRecurring(profileID string, now time.Time) {
	if e.profiles == nil {
		return
	}
	p, found := e.profiles.GetProfile(profileID)
	if !found || !p.Active || p.Kind != hushlib.TriggerTime {
		return
	}
	if _, err := e.ArmTimeProfile(&p, now.Add(time.Minute)); err != nil {
		e.l.Printf("failed to re-arm %s: %v", p.ID, err)
	}
}

func (e *Engine) deactivate(ev hushlib.TriggerEvent, forced bool) error {
	now := e.now()

	if !forced {
		ok, err := e.ledger.ShouldProcess(ev.Key, hushlib.TransitionDeactivate, now, e.window)
		if err != nil {
			return err
		}
		if !ok {
			e.l.Printf("duplicate deactivate for %s ignored", ev.Key)
			return nil
		}
	}

	if _, engaged := e.reg.Release(ev.Key); !engaged {
		e.l.Printf("deactivate for %s: trigger was not engaged", ev.Key)
	}

	if e.reg.AnySilencing() {
		// Another trigger still holds the device; reversion is its job.
		// If this key carries the pre-chain snapshot, the oldest survivor
		// inherits it so the eventual reversion restores the right mode.
		if to, found := e.oldestSilencing(); found {
			if err := e.ledger.MoveSnapshot(ev.Key, to); err != nil {
				e.l.Println(err)
			}
		}
		e.l.Printf("reversion for %s suppressed: %d triggers still engaged", ev.Key, e.reg.Len())
	} else {
		prev, found, err := e.ledger.GetSnapshot(ev.Key)
		if err != nil {
			e.l.Println(err)
		}
		if !found {
			// Snapshot lost (wiped storage, forced cancel). Normal is the
			// documented fallback; staying silenced would be worse.
			prev = hushlib.ModeNormal
		}
		if err := e.ringer.SetMode(prev); err != nil {
			if errors.Is(err, hushlib.ErrPermissionDenied) {
				e.notify.NotifyPermissionRequired("ringer")
			}
			e.l.Printf("failed to restore ringer mode for %s: %v", ev.Key, err)
		}
		if len(ev.Actions) > 0 {
			if err := e.ringer.RevertSideActions(ev.Actions); err != nil {
				e.l.Printf("failed to revert side actions for %s: %v", ev.Key, err)
			}
		}
		if err := e.ledger.DeleteSnapshot(ev.Key); err != nil {
			e.l.Println(err)
		}
	}

	if err := e.ledger.DeleteTrigger(ev.Key); err != nil {
		e.l.Println(err)
	}
	e.alarms.Cancel(hushlib.MakeGroupKey(ev.Key, hushlib.TransitionDeactivate))

	e.notify.NotifyDeactivated(ev.ProfileName)
	e.recordUsage(ev, hushlib.TransitionDeactivate, now)
	e.l.Printf("deactivated %s (%s)", ev.Key, ev.ProfileName)
	return nil
}

// oldestSilencing returns the engaged silencing trigger with the earliest
// engagement time.
func (e *Engine) oldestSilencing() (hushlib.TriggerKey, bool) {
	var (
		best   hushlib.TriggerKey
		bestAt time.Time
		found  bool
	)
	for _, key := range e.reg.Keys() {
		entry, ok := e.reg.Get(key)
		if !ok || !entry.Mode.Silencing() {
			continue
		}
		if !found || entry.EngagedAt.Before(bestAt) {
			best, bestAt, found = key, entry.EngagedAt, true
		}
	}
	return best, found
}

func (e *Engine) recordUsage(ev hushlib.TriggerEvent, tr hushlib.Transition, at time.Time) {
	if e.usage == nil {
		return
	}
	if err := e.usage.Record(ev.ProfileID, ev.ProfileName, ev.Mode, tr, at); err != nil {
		e.l.Printf("usage record failed: %v", err)
	}
}

// ArmTimeProfile arms the redundant alarm groups for the next occurrence of
// a time profile strictly after the given time, and persists the scheduled
// row so a reboot can re-arm it. Returns the trigger key armed.
func (e *Engine) ArmTimeProfile(p *hushlib.Profile, after time.Time) (hushlib.TriggerKey, error) {
	start, end, err := p.NextWindow(after)
	if err != nil {
		return "", err
	}
	key := hushlib.MakeTriggerKey(p.ID, start.Format("2006-01-02"))
	return key, e.armWindow(p, key, start, end)
}

// ArmCalendarOccurrence arms the alarm groups for one matched calendar
// event. The key embeds the event id and start time so a rescheduled event
// becomes a fresh trigger instance.
func (e *Engine) ArmCalendarOccurrence(p *hushlib.Profile, cev hushlib.CalendarEvent) (hushlib.TriggerKey, error) {
	key := hushlib.MakeTriggerKey(p.ID, cev.ID+"_"+strconv.FormatInt(cev.Start.Unix(), 10))
	start := cev.Start.Add(-time.Duration(p.PreStartMin) * time.Minute)
	return key, e.armWindow(p, key, start, cev.End)
}

func (e *Engine) armWindow(p *hushlib.Profile, key hushlib.TriggerKey, start, end time.Time) error {
	// The calendar poller re-arms keys while alarm deliveries for the same
	// keys are in flight; the read-modify-write below must not interleave
	// with an activation.
	unlock := e.lockKey(key)
	defer unlock()

	row := ledger.TriggerRow{
		Key:         key,
		ProfileID:   p.ID,
		ProfileName: p.Name,
		Mode:        p.Mode,
		Actions:     p.Actions,
		WindowStart: start,
		WindowEnd:   end,
	}
	if old, found, _ := e.ledger.GetTrigger(key); found && old.Engaged {
		// Already activated (late calendar rescan, boot re-arm); keep the
		// engaged row, just make sure the deactivate group is armed.
		row = old
		row.WindowEnd = end
	}
	if err := e.ledger.PutTrigger(row); err != nil {
		return err
	}

	ev := hushlib.TriggerEvent{
		Key:         key,
		Mode:        p.Mode,
		Actions:     p.Actions,
		ProfileID:   p.ID,
		ProfileName: p.Name,
		WindowEnd:   end,
	}

	if !row.Engaged {
		ev.Transition = hushlib.TransitionActivate
		if err := e.alarms.Arm(ev, start); err != nil {
			return err
		}
	}
	if !end.IsZero() {
		ev.Transition = hushlib.TransitionDeactivate
		if err := e.alarms.Arm(ev, end); err != nil {
			return err
		}
	}
	return nil
}

func eventFromRow(row ledger.TriggerRow, tr hushlib.Transition) hushlib.TriggerEvent {
	return hushlib.TriggerEvent{
		Key:         row.Key,
		Transition:  tr,
		Mode:        row.Mode,
		Actions:     row.Actions,
		ProfileID:   row.ProfileID,
		ProfileName: row.ProfileName,
		WindowEnd:   row.WindowEnd,
	}
}

// Recover replays the ledger after a restart: engaged rows are re-entered
// into the registry, windows that ended while the process was down are
// deactivated now, live windows get their deactivate alarms back, and
// scheduled rows whose window has not yet opened are re-armed. Rows whose
// entire window was missed are dropped.
func (e *Engine) Recover() error {
	now := e.now()
	rows, err := e.ledger.ListTriggers()
	if err != nil {
		return err
	}

	// Re-engage everything first so the overlap rule sees the complete
	// picture before any missed deactivation runs.
	for _, row := range rows {
		if row.Engaged {
			e.reg.Engage(row.Key, registry.Entry{
				Mode:      row.Mode,
				WindowEnd: row.WindowEnd,
				EngagedAt: row.EngagedAt,
			})
		}
	}

	var firstErr error
	for _, row := range rows {
		if err := e.recoverRow(row, now); err != nil {
			e.l.Printf("recovery of %s failed: %v", row.Key, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	e.l.Printf("recovery pass complete: %d rows, %d engaged", len(rows), e.reg.Len())
	return firstErr
}

func (e *Engine) recoverRow(row ledger.TriggerRow, now time.Time) error {
	ended := !row.WindowEnd.IsZero() && !row.WindowEnd.After(now)

	if row.Engaged {
		if ended {
			// The deactivate alarm fired into the void while we were down.
			// Forced: a mark from a reversion that died between the
			// idempotency write and the ringer call must not block the
			// replay, and no alarms remain to retry an ended window.
			unlock := e.lockKey(row.Key)
			defer unlock()
			return e.deactivate(eventFromRow(row, hushlib.TransitionDeactivate), true)
		}
		// Still inside the window (or a location trigger with no scheduled
		// end): restore the deactivate alarms and leave the mode alone.
		if !row.WindowEnd.IsZero() {
			return e.alarms.Arm(eventFromRow(row, hushlib.TransitionDeactivate), row.WindowEnd)
		}
		return nil
	}

	// A window that ended within the idempotency period is still replayed:
	// the late activation runs and the immediately-firing deactivate backups
	// clean up, same as a delivery delayed by timer suppression.
	if ended && !row.WindowEnd.Add(e.window).After(now) {
		// The entire window came and went while we were down. Activating
		// now just to deactivate immediately would flap the ringer.
		e.l.Printf("dropping fully missed window %s", row.Key)
		if err := e.ledger.ClearMarks(row.Key); err != nil {
			e.l.Println(err)
		}
		return e.ledger.DeleteTrigger(row.Key)
	}

	if !row.WindowStart.IsZero() && !row.WindowStart.After(now) {
		// Missed the start but the window is still open: activate late. An
		// activation that died between its idempotency write and the rest
		// of the transition leaves a mark that would block the replay;
		// nothing is in flight at boot, so clearing is safe.
		if err := e.ledger.ClearMarks(row.Key); err != nil {
			e.l.Println(err)
		}
		if !row.WindowEnd.IsZero() {
			if err := e.alarms.Arm(eventFromRow(row, hushlib.TransitionDeactivate), row.WindowEnd); err != nil {
				return err
			}
		}
		return e.HandleEvent(eventFromRow(row, hushlib.TransitionActivate))
	}

	// Window entirely in the future: re-arm both groups.
	if err := e.alarms.Arm(eventFromRow(row, hushlib.TransitionActivate), row.WindowStart); err != nil {
		return err
	}
	if !row.WindowEnd.IsZero() {
		return e.alarms.Arm(eventFromRow(row, hushlib.TransitionDeactivate), row.WindowEnd)
	}
	return nil
}

// CancelProfile tears down everything a profile ever armed: pending alarm
// groups, engaged triggers (deactivated immediately, reverting device state
// per the overlap rule), scheduled rows, snapshots, and idempotency marks.
func (e *Engine) CancelProfile(profileID string) error {
	n := e.alarms.CancelProfile(profileID)
	if n > 0 {
		e.l.Printf("cancelled %d pending alarm groups for profile %s", n, profileID)
	}

	rows, err := e.ledger.TriggersForProfile(profileID)
	if err != nil {
		return err
	}

	var firstErr error
	for _, row := range rows {
		unlock := e.lockKey(row.Key)
		if row.Engaged {
			// Forced: cancellation must win even if a deactivate for this
			// key was processed within the idempotency window.
			if err := e.deactivate(eventFromRow(row, hushlib.TransitionDeactivate), true); err != nil && firstErr == nil {
				firstErr = err
			}
		} else {
			if err := e.ledger.DeleteTrigger(row.Key); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := e.ledger.DeleteSnapshot(row.Key); err != nil {
			e.l.Println(err)
		}
		if err := e.ledger.ClearMarks(row.Key); err != nil {
			e.l.Println(err)
		}
		unlock()
	}
	return firstErr
}

// ActiveTriggers returns the engaged trigger keys with their registry
// entries, for status queries.
func (e *Engine) ActiveTriggers() map[hushlib.TriggerKey]registry.Entry {
	out := make(map[hushlib.TriggerKey]registry.Entry)
	for _, key := range e.reg.Keys() {
		if entry, ok := e.reg.Get(key); ok {
			out[key] = entry
		}
	}
	return out
}
