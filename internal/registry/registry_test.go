package registry

import (
	"testing"
	"time"

	"github.com/hushd/hushd/pkg/hushlib"
)

func TestEngageReleaseOnce(t *testing.T) {
	r := New()
	e := Entry{Mode: hushlib.ModeSilent, EngagedAt: time.Now()}

	r.Engage("a", e)
	r.Engage("a", e) // key appears at most once
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	got, ok := r.Release("a")
	if !ok {
		t.Fatal("Release should find the entry")
	}
	if got.Mode != hushlib.ModeSilent {
		t.Errorf("released mode = %q", got.Mode)
	}
	if _, ok := r.Release("a"); ok {
		t.Error("second release should find nothing")
	}
}

func TestAnySilencingOverlap(t *testing.T) {
	r := New()
	r.Engage("a", Entry{Mode: hushlib.ModeSilent})
	r.Engage("b", Entry{Mode: hushlib.ModeVibrate})

	r.Release("a")
	if !r.AnySilencing() {
		t.Error("b still holds a silencing mode; reversion must be suppressed")
	}

	r.Release("b")
	if r.AnySilencing() {
		t.Error("registry empty; reversion should be permitted")
	}
}

func TestAnySilencingIgnoresNormal(t *testing.T) {
	r := New()
	r.Engage("a", Entry{Mode: hushlib.ModeNormal})
	if r.AnySilencing() {
		t.Error("a normal-mode entry must not suppress reversion")
	}
}
