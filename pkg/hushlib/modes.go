package hushlib

import (
	"fmt"
	"strings"
)

// RingerMode is the device interruption mode a profile drives.
type RingerMode string

const (
	ModeSilent  RingerMode = "silent"
	ModeVibrate RingerMode = "vibrate"
	ModeNormal  RingerMode = "normal"
)

// ParseRingerMode parses a case-insensitive mode name.
func ParseRingerMode(s string) (RingerMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent":
		return ModeSilent, nil
	case "vibrate":
		return ModeVibrate, nil
	case "normal":
		return ModeNormal, nil
	default:
		return "", fmt.Errorf("unknown ringer mode: %q", s)
	}
}

// Silencing reports whether the mode holds the device in a non-normal state.
// Reversion is only permitted once no active trigger requires a silencing mode.
func (m RingerMode) Silencing() bool {
	return m == ModeSilent || m == ModeVibrate
}

// SideAction is a device toggle applied alongside the ringer mode.
type SideAction string

const (
	ActionWifi      SideAction = "wifi"
	ActionBluetooth SideAction = "bluetooth"
	ActionData      SideAction = "data"
	ActionDND       SideAction = "dnd"
)

// SideActions is the set of side actions a profile applies on activation
// and reverts on deactivation.
type SideActions []SideAction

// ParseSideActions parses a comma-separated action list ("wifi,dnd").
// An empty string yields an empty set.
func ParseSideActions(s string) (SideActions, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out SideActions
	for _, part := range strings.Split(s, ",") {
		switch a := SideAction(strings.ToLower(strings.TrimSpace(part))); a {
		case ActionWifi, ActionBluetooth, ActionData, ActionDND:
			out = append(out, a)
		default:
			return nil, fmt.Errorf("unknown side action: %q", part)
		}
	}
	return out, nil
}

// String joins the set back into its comma-separated form.
func (sa SideActions) String() string {
	parts := make([]string, len(sa))
	for i, a := range sa {
		parts[i] = string(a)
	}
	return strings.Join(parts, ",")
}

// Has reports whether the set contains the given action.
func (sa SideActions) Has(a SideAction) bool {
	for _, x := range sa {
		if x == a {
			return true
		}
	}
	return false
}
