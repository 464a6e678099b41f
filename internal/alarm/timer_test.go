package alarm

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/hushd/hushd/pkg/hushlib"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "test: ", 0)
}

type fireRecorder struct {
	mu    sync.Mutex
	fired []hushlib.TriggerEvent
}

func (r *fireRecorder) fire(ev hushlib.TriggerEvent, _ hushlib.AlarmKind) {
	r.mu.Lock()
	r.fired = append(r.fired, ev)
	r.mu.Unlock()
}

func (r *fireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func TestHeapTimerFires(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &fireRecorder{}
	ht := NewHeapTimer(ctx, testLogger(), rec.fire)

	ev := hushlib.TriggerEvent{Key: "p1@d1", Transition: hushlib.TransitionActivate}
	if err := ht.ScheduleOnce(time.Now().Add(100*time.Millisecond), "g1", hushlib.AlarmPrimary, ev); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)

	if rec.count() != 1 {
		t.Errorf("fired %d times, want 1", rec.count())
	}
}

func TestHeapTimerCancelGroup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &fireRecorder{}
	ht := NewHeapTimer(ctx, testLogger(), rec.fire)

	ev := hushlib.TriggerEvent{Key: "p1@d1"}
	for i := 0; i < 3; i++ {
		if err := ht.ScheduleOnce(time.Now().Add(150*time.Millisecond), "g1", hushlib.AlarmBackup, ev); err != nil {
			t.Fatal(err)
		}
	}
	ht.CancelGroup("g1")

	time.Sleep(300 * time.Millisecond)

	if rec.count() != 0 {
		t.Errorf("cancelled group fired %d times", rec.count())
	}
}

func TestHeapTimerFiresPastAlarmImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &fireRecorder{}
	ht := NewHeapTimer(ctx, testLogger(), rec.fire)

	ev := hushlib.TriggerEvent{Key: "p1@d1"}
	if err := ht.ScheduleOnce(time.Now().Add(-time.Minute), "g1", hushlib.AlarmBackup, ev); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)

	if rec.count() != 1 {
		t.Errorf("past-due alarm fired %d times, want 1", rec.count())
	}
}

func TestHeapTimerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	rec := &fireRecorder{}
	ht := NewHeapTimer(ctx, testLogger(), rec.fire)
	cancel()

	time.Sleep(50 * time.Millisecond)
	if err := ht.ScheduleOnce(time.Now(), "g1", hushlib.AlarmPrimary, hushlib.TriggerEvent{}); err == nil {
		t.Error("ScheduleOnce after cancel should fail")
	}
}
