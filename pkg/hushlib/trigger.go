package hushlib

import (
	"fmt"
	"time"
)

// Transition is the direction of a trigger state change.
type Transition string

const (
	TransitionActivate   Transition = "activate"
	TransitionDeactivate Transition = "deactivate"
)

// TriggerKey identifies one concrete occurrence of a profile's condition:
// the profile id plus an occurrence discriminator (day of activation for
// time profiles, event id + start for calendar, geofence id for location).
type TriggerKey string

// MakeTriggerKey builds a trigger key from a profile id and an occurrence
// discriminator.
func MakeTriggerKey(profileID, occurrence string) TriggerKey {
	return TriggerKey(profileID + "@" + occurrence)
}

// GroupKey identifies one redundant alarm group: all timers armed for the
// same logical transition of the same trigger instance.
type GroupKey string

// MakeGroupKey builds the alarm group key for a trigger transition.
func MakeGroupKey(key TriggerKey, tr Transition) GroupKey {
	return GroupKey(fmt.Sprintf("%s/%s", key, tr))
}

// AlarmKind distinguishes the members of a redundant alarm group.
type AlarmKind string

const (
	AlarmEarly   AlarmKind = "early"
	AlarmPrimary AlarmKind = "primary"
	AlarmBackup  AlarmKind = "backup"
)

// TriggerEvent is the normalized event consumed by the reconciliation
// engine, regardless of which source (timer, geofence, calendar scan)
// delivered it. Delivery is at-least-once: duplicates and delays are normal.
type TriggerEvent struct {
	Key         TriggerKey
	Transition  Transition
	Mode        RingerMode
	Actions     SideActions
	ProfileID   string
	ProfileName string

	// WindowEnd is the scheduled end of the trigger window. Zero for
	// location triggers, which end on geofence exit instead.
	WindowEnd time.Time
}

// EventHandler consumes normalized trigger events. Implemented by the
// reconciliation engine; the alarm scheduler, geofence manager, and
// calendar poller all deliver through it.
type EventHandler interface {
	HandleEvent(ev TriggerEvent) error
}
