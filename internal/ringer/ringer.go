// Package ringer provides the in-process device: a thread-safe simulated
// ringer and toggle panel implementing hushlib.RingerPort. On a platform
// with a real audio stack this is the one package to swap out.
package ringer

import (
	"log"
	"sync"

	"github.com/hushd/hushd/pkg/hushlib"
)

// Device simulates the global ringer mode and the side toggles. Permission
// flags model a platform refusing the mutation (Android's DND access,
// airplane-mode restrictions); when set, the corresponding calls return
// hushlib.ErrPermissionDenied without changing state.
type Device struct {
	l *log.Logger

	mu          sync.Mutex
	mode        hushlib.RingerMode
	toggles     map[hushlib.SideAction]bool
	denyRinger  bool
	denyActions bool
}

// NewDevice creates a device in normal mode with every toggle on.
func NewDevice(l *log.Logger) *Device {
	return &Device{
		l:    l,
		mode: hushlib.ModeNormal,
		toggles: map[hushlib.SideAction]bool{
			hushlib.ActionWifi:      true,
			hushlib.ActionBluetooth: true,
			hushlib.ActionData:      true,
			// DND is an inverted toggle: off in the resting state.
			hushlib.ActionDND: false,
		},
	}
}

// CurrentMode returns the current ringer mode.
func (d *Device) CurrentMode() (hushlib.RingerMode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode, nil
}

// SetMode sets the ringer mode.
func (d *Device) SetMode(m hushlib.RingerMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.denyRinger {
		return hushlib.ErrPermissionDenied
	}
	if d.mode != m {
		d.l.Printf("ringer mode %s -> %s", d.mode, m)
	}
	d.mode = m
	return nil
}

// ApplySideActions turns the listed radios off and DND on.
func (d *Device) ApplySideActions(actions hushlib.SideActions) error {
	return d.setActions(actions, false)
}

// RevertSideActions turns the listed radios back on and DND off.
func (d *Device) RevertSideActions(actions hushlib.SideActions) error {
	return d.setActions(actions, true)
}

func (d *Device) setActions(actions hushlib.SideActions, resting bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.denyActions {
		return hushlib.ErrPermissionDenied
	}
	for _, a := range actions {
		on := resting
		if a == hushlib.ActionDND {
			on = !resting
		}
		d.toggles[a] = on
	}
	return nil
}

// ToggleState reports whether a side toggle is currently on.
func (d *Device) ToggleState(a hushlib.SideAction) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.toggles[a]
}

// SetPermissions flips the simulated permission grants.
func (d *Device) SetPermissions(ringer, actions bool) {
	d.mu.Lock()
	d.denyRinger = !ringer
	d.denyActions = !actions
	d.mu.Unlock()
}
