package daemon

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/hushd/hushd/pkg/hushlib"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	cfg := Config{
		DataDir:    t.TempDir(),
		RPCAddr:    "127.0.0.1:0",
		SocketAddr: "127.0.0.1:0",
		Version:    "test",
	}
	r, err := New(cfg, afero.NewMemMapFs(), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestRunnerLocationProfileEndToEnd(t *testing.T) {
	r := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.setup(ctx)

	added, err := r.AddProfile(hushlib.Profile{
		Name:         "Library",
		Kind:         hushlib.TriggerLocation,
		Latitude:     52.52,
		Longitude:    13.405,
		RadiusMeters: 150,
		Mode:         hushlib.ModeSilent,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Walk into the fence: the device silences.
	if err := r.UpdateLocation(52.52, 13.405); err != nil {
		t.Fatal(err)
	}
	if mode, _ := r.Device().CurrentMode(); mode != hushlib.ModeSilent {
		t.Errorf("mode inside fence = %q, want silent", mode)
	}
	if len(r.ActiveTriggers()) != 1 {
		t.Errorf("active triggers = %v", r.ActiveTriggers())
	}

	// Walk out: the device reverts.
	if err := r.UpdateLocation(48.0, 11.0); err != nil {
		t.Fatal(err)
	}
	if mode, _ := r.Device().CurrentMode(); mode != hushlib.ModeNormal {
		t.Errorf("mode outside fence = %q, want normal", mode)
	}

	if err := r.RemoveProfile(added.ID); err != nil {
		t.Fatal(err)
	}
	if n := len(r.ListProfiles()); n != 0 {
		t.Errorf("%d profiles after remove", n)
	}
}

func TestRunnerAddInvalidProfile(t *testing.T) {
	r := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.setup(ctx)

	_, err := r.AddProfile(hushlib.Profile{Name: "Broken", Kind: hushlib.TriggerTime, StartClock: "99:99", Mode: hushlib.ModeSilent})
	if err == nil {
		t.Fatal("invalid profile accepted")
	}
}

func TestRunnerTimeProfileArmsOnAdd(t *testing.T) {
	r := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.setup(ctx)

	added, err := r.AddProfile(hushlib.Profile{
		Name:       "Meeting",
		Kind:       hushlib.TriggerTime,
		StartClock: "14:00",
		EndClock:   "15:00",
		Mode:       hushlib.ModeSilent,
	})
	if err != nil {
		t.Fatal(err)
	}

	// The scheduled occurrence lands in the ledger; disabling clears it.
	rows, err := r.ledger.ListTriggers()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ProfileID != added.ID {
		t.Fatalf("ledger rows = %v", rows)
	}

	if err := r.DisableProfile(added.ID); err != nil {
		t.Fatal(err)
	}
	rows, err = r.ledger.ListTriggers()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("%d rows after disable", len(rows))
	}
}

func TestRunnerServesAndStops(t *testing.T) {
	r := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
