package hushlib

import (
	"context"
	"time"
)

// TimerProvider arms one-shot timers. Timers fire at-or-after the requested
// time, may fire slightly early or late, and carry no ordering guarantee
// across distinct group keys. Platform timers do not survive a restart; the
// alarm groups are re-armed from the ledger at boot.
type TimerProvider interface {
	// ScheduleOnce arms a single timer belonging to the given group.
	ScheduleOnce(at time.Time, group GroupKey, kind AlarmKind, payload TriggerEvent) error

	// CancelGroup cancels every pending timer of the group.
	CancelGroup(group GroupKey)
}

// GeofenceProvider registers circular geofences and delivers enter/exit
// transitions. Registration math and transition detection are the
// provider's business; the core only consumes transitions.
type GeofenceProvider interface {
	Register(id string, lat, lng, radiusMeters float64) error
	Unregister(id string)
}

// GeofenceTransition is the direction of a geofence crossing.
type GeofenceTransition string

const (
	GeofenceEnter GeofenceTransition = "enter"
	GeofenceExit  GeofenceTransition = "exit"
)

// CalendarEvent is one event instance returned by a calendar source.
type CalendarEvent struct {
	ID    string
	Title string
	Start time.Time
	End   time.Time
	Busy  bool
}

// EventPredicate is the stateless matching rule a calendar profile supplies:
// which events silence the device is the caller's decision, not the core's.
type EventPredicate func(CalendarEvent) bool

// CalendarSource lists calendar events in a window. Polled periodically;
// never pushed.
type CalendarSource interface {
	FindMatchingEvents(ctx context.Context, windowStart, windowEnd time.Time, match EventPredicate) ([]CalendarEvent, error)
}

// RingerPort is the single code path through which the device's global
// ringer mode and side toggles are read and mutated. Implementations return
// ErrPermissionDenied when the platform refuses the operation.
type RingerPort interface {
	CurrentMode() (RingerMode, error)
	SetMode(m RingerMode) error
	ApplySideActions(actions SideActions) error
	RevertSideActions(actions SideActions) error
}

// NotificationSink receives fire-and-forget, best-effort user notifications.
type NotificationSink interface {
	NotifyActivated(profileName string)
	NotifyDeactivated(profileName string)
	NotifyPermissionRequired(kind string)
}

// ProfileStore is the read-only view of profile storage the core consumes.
type ProfileStore interface {
	ListActiveProfiles() []Profile
	GetProfile(id string) (Profile, bool)
}
