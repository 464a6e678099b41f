package alarm

import (
	"context"
	"log"
	"time"

	"github.com/hushd/hushd/pkg/hushlib"
)

// maxSleepCap bounds how long the scheduler goroutine sleeps between heap
// checks, so NTP steps, DST transitions, and system sleep cannot strand a
// timer far past its trigger time.
const maxSleepCap = 60 * time.Second

// FireFunc receives a timer's payload when it fires.
type FireFunc func(ev hushlib.TriggerEvent, kind hushlib.AlarmKind)

// timerCmd is one operation for the scheduler goroutine. Exactly one of
// add/cancel is meaningful.
type timerCmd struct {
	add    *pendingAlarm
	cancel hushlib.GroupKey
}

// HeapTimer is the in-process TimerProvider: a single-goroutine scheduler
// over a min-heap of pending alarms, in the active-object pattern. It is
// deliberately dumb — redundancy and idempotency live above and below it.
// Adds and cancels share one command channel: a cancel issued after an add
// must never be processed before it, or cancelled members would still fire.
type HeapTimer struct {
	cmdCh chan timerCmd
	ctx   context.Context
	l     *log.Logger
}

// NewHeapTimer creates and starts a heap timer. fire is invoked on the
// scheduler goroutine whenever an alarm's time arrives; the goroutine exits
// when ctx is cancelled.
func NewHeapTimer(ctx context.Context, l *log.Logger, fire FireFunc) *HeapTimer {
	t := &HeapTimer{
		cmdCh: make(chan timerCmd, 64),
		ctx:   ctx,
		l:     l,
	}
	go t.run(fire)
	return t
}

// ScheduleOnce arms a single one-shot timer for the group.
func (t *HeapTimer) ScheduleOnce(at time.Time, group hushlib.GroupKey, kind hushlib.AlarmKind, payload hushlib.TriggerEvent) error {
	select {
	case t.cmdCh <- timerCmd{add: &pendingAlarm{at: at, group: group, kind: kind, event: payload}}:
		return nil
	case <-t.ctx.Done():
		return hushlib.ErrScheduleFailed
	}
}

// CancelGroup cancels every pending timer of the group.
func (t *HeapTimer) CancelGroup(group hushlib.GroupKey) {
	select {
	case t.cmdCh <- timerCmd{cancel: group}:
	case <-t.ctx.Done():
	}
}

func (t *HeapTimer) run(fire FireFunc) {
	h := &alarmHeap{}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if h.Len() == 0 {
			// Nothing pending — block on the channels only.
			return nil
		}
		dur := time.Until((*h)[0].at)
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()

	for {
		select {
		case <-t.ctx.Done():
			return

		case cmd := <-t.cmdCh:
			if cmd.add != nil {
				heapPush(h, *cmd.add)
			} else {
				heapRemoveGroup(h, cmd.cancel)
			}
			timerCh = resetTimer()

		case <-timerCh:
			now := time.Now()
			for h.Len() > 0 && !(*h)[0].at.After(now) {
				a := heapPop(h)
				fire(a.event, a.kind)
			}
			timerCh = resetTimer()
		}
	}
}
