package calendar

import (
	"context"
	"log"
	"time"

	"github.com/hushd/hushd/pkg/hushlib"
)

const (
	// DefaultPollInterval is how often the feed is rescanned. Calendar
	// edits should take effect within half a minute.
	DefaultPollInterval = 30 * time.Second

	// DefaultEndGrace extends the scan window into the past so an event
	// that ended between two polls still gets its deactivation armed.
	DefaultEndGrace = 60 * time.Second

	// DefaultLookahead is how far ahead matching events are armed.
	DefaultLookahead = time.Hour
)

// Armer arms the alarm groups for one calendar occurrence. Implemented by
// the reconciliation engine.
type Armer interface {
	ArmCalendarOccurrence(p *hushlib.Profile, ev hushlib.CalendarEvent) (hushlib.TriggerKey, error)
}

// Poller periodically scans a calendar source for every active calendar
// profile and arms the matching occurrences. Arming is idempotent, so
// re-seeing the same event on every poll is harmless.
type Poller struct {
	src      hushlib.CalendarSource
	profiles hushlib.ProfileStore
	armer    Armer
	l        *log.Logger

	interval  time.Duration
	grace     time.Duration
	lookahead time.Duration
	now       func() time.Time
}

// NewPoller creates a poller with default timing.
func NewPoller(src hushlib.CalendarSource, profiles hushlib.ProfileStore, armer Armer, l *log.Logger) *Poller {
	return &Poller{
		src:       src,
		profiles:  profiles,
		armer:     armer,
		l:         l,
		interval:  DefaultPollInterval,
		grace:     DefaultEndGrace,
		lookahead: DefaultLookahead,
		now:       time.Now,
	}
}

// Run scans on the poll interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.Scan(ctx); err != nil {
			// The feed being briefly unreachable must not kill the loop.
			p.l.Printf("calendar scan failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Scan runs a single poll pass.
func (p *Poller) Scan(ctx context.Context) error {
	now := p.now()
	windowStart := now.Add(-p.grace)
	windowEnd := now.Add(p.lookahead)

	var firstErr error
	for _, prof := range p.profiles.ListActiveProfiles() {
		if prof.Kind != hushlib.TriggerCalendar {
			continue
		}
		events, err := p.src.FindMatchingEvents(ctx, windowStart, windowEnd, MatchProfile(&prof))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, ev := range events {
			if !ev.End.After(windowStart) {
				continue
			}
			if _, err := p.armer.ArmCalendarOccurrence(&prof, ev); err != nil {
				p.l.Printf("cannot arm calendar event %s for %s: %v", ev.ID, prof.Name, err)
			}
		}
	}
	return firstErr
}
