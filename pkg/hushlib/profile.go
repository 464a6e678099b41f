package hushlib

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// TriggerKind selects the condition that drives a profile.
type TriggerKind string

const (
	TriggerTime     TriggerKind = "time"
	TriggerLocation TriggerKind = "location"
	TriggerCalendar TriggerKind = "calendar"
)

// clockLayout is the wall-clock format used by time profiles.
const clockLayout = "15:04"

// Profile is a user-configured rule mapping a trigger condition to a ringer
// mode and side actions. The reconciliation core treats profiles as read-only
// input when arming triggers; persistence is owned by the profile store.
type Profile struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Kind TriggerKind `json:"kind"`

	// Time trigger parameters. StartClock/EndClock are daily wall-clock
	// times ("14:00"). CronExpr, when set, replaces the daily recurrence
	// with a cron schedule for the window start; WindowMinutes then gives
	// the window length.
	StartClock    string `json:"startClock,omitempty"`
	EndClock      string `json:"endClock,omitempty"`
	CronExpr      string `json:"cronExpr,omitempty"`
	WindowMinutes int    `json:"windowMinutes,omitempty"`

	// Location trigger parameters.
	Latitude     float64 `json:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty"`
	RadiusMeters float64 `json:"radiusMeters,omitempty"`

	// Calendar trigger parameters. Keyword filters event titles (empty
	// matches all); BusyOnly restricts matches to busy events. PreStartMin
	// silences the device that many minutes before the event begins.
	Keyword     string `json:"keyword,omitempty"`
	BusyOnly    bool   `json:"busyOnly,omitempty"`
	PreStartMin int    `json:"preStartMin,omitempty"`

	Mode    RingerMode  `json:"mode"`
	Actions SideActions `json:"actions,omitempty"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks that the profile is internally consistent for its kind.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProfile)
	}
	switch p.Mode {
	case ModeSilent, ModeVibrate, ModeNormal:
	default:
		return fmt.Errorf("%w: bad ringer mode %q", ErrInvalidProfile, p.Mode)
	}
	switch p.Kind {
	case TriggerTime:
		if p.CronExpr != "" {
			if !gronx.New().IsValid(p.CronExpr) {
				return fmt.Errorf("%w: bad cron expression %q", ErrInvalidProfile, p.CronExpr)
			}
			if p.WindowMinutes <= 0 {
				return fmt.Errorf("%w: cron profile needs windowMinutes", ErrInvalidProfile)
			}
			return nil
		}
		if _, err := time.Parse(clockLayout, p.StartClock); err != nil {
			return fmt.Errorf("%w: bad start clock %q", ErrInvalidProfile, p.StartClock)
		}
		if p.EndClock != "" {
			if _, err := time.Parse(clockLayout, p.EndClock); err != nil {
				return fmt.Errorf("%w: bad end clock %q", ErrInvalidProfile, p.EndClock)
			}
		}
	case TriggerLocation:
		if p.RadiusMeters <= 0 {
			return fmt.Errorf("%w: geofence radius must be positive", ErrInvalidProfile)
		}
	case TriggerCalendar:
		if p.PreStartMin < 0 {
			return fmt.Errorf("%w: negative pre-start offset", ErrInvalidProfile)
		}
	default:
		return fmt.Errorf("%w: unknown trigger kind %q", ErrInvalidProfile, p.Kind)
	}
	return nil
}

// NextWindow computes the next occurrence window of a time profile strictly
// after now. The returned end is zero when the profile has no end clock.
func (p *Profile) NextWindow(now time.Time) (start, end time.Time, err error) {
	if p.Kind != TriggerTime {
		return start, end, fmt.Errorf("%w: NextWindow on %s profile", ErrInvalidProfile, p.Kind)
	}
	if p.CronExpr != "" {
		start, err = gronx.NextTickAfter(p.CronExpr, now, false)
		if err != nil {
			return start, end, fmt.Errorf("cron next occurrence: %w", err)
		}
		return start, start.Add(time.Duration(p.WindowMinutes) * time.Minute), nil
	}
	sc, err := time.Parse(clockLayout, p.StartClock)
	if err != nil {
		return start, end, fmt.Errorf("bad start clock: %w", err)
	}
	start = time.Date(now.Year(), now.Month(), now.Day(), sc.Hour(), sc.Minute(), 0, 0, now.Location())
	if !start.After(now) {
		start = start.AddDate(0, 0, 1)
	}
	if p.EndClock == "" {
		return start, end, nil
	}
	ec, err := time.Parse(clockLayout, p.EndClock)
	if err != nil {
		return start, end, fmt.Errorf("bad end clock: %w", err)
	}
	end = time.Date(start.Year(), start.Month(), start.Day(), ec.Hour(), ec.Minute(), 0, 0, start.Location())
	// Windows crossing midnight end on the following day.
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}
