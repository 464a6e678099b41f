// Package calendar feeds calendar-driven profiles: an ICS source that
// fetches and filters events, and a poller that keeps alarm groups armed
// for every matching occurrence.
package calendar

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/hushd/hushd/pkg/hushlib"
)

// ICSSource implements hushlib.CalendarSource over an ICS feed URL.
type ICSSource struct {
	url    string
	client *http.Client
	l      *log.Logger
}

// NewICSSource creates a source for the given feed. client may be nil.
func NewICSSource(url string, client *http.Client, l *log.Logger) *ICSSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ICSSource{url: url, client: client, l: l}
}

// FindMatchingEvents fetches the feed and returns events overlapping
// [windowStart, windowEnd) that satisfy match.
func (s *ICSSource) FindMatchingEvents(ctx context.Context, windowStart, windowEnd time.Time, match hushlib.EventPredicate) ([]hushlib.CalendarEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("error: bad calendar url: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error: calendar fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error: calendar fetch failed: %s", resp.Status)
	}

	cal, err := ical.NewDecoder(resp.Body).Decode()
	if err != nil {
		return nil, fmt.Errorf("error: calendar parse failed: %w", err)
	}

	var out []hushlib.CalendarEvent
	for _, ev := range cal.Events() {
		cev, err := convertEvent(ev)
		if err != nil {
			s.l.Printf("skipping malformed calendar event: %v", err)
			continue
		}
		if !overlaps(cev, windowStart, windowEnd) {
			continue
		}
		if match != nil && !match(cev) {
			continue
		}
		out = append(out, cev)
	}
	return out, nil
}

func convertEvent(ev ical.Event) (hushlib.CalendarEvent, error) {
	var cev hushlib.CalendarEvent

	uid := ev.Props.Get(ical.PropUID)
	if uid == nil || uid.Value == "" {
		return cev, fmt.Errorf("event without UID")
	}
	cev.ID = uid.Value

	if summary := ev.Props.Get(ical.PropSummary); summary != nil {
		cev.Title = summary.Value
	}

	start, err := ev.DateTimeStart(time.Local)
	if err != nil {
		return cev, fmt.Errorf("event %s: %w", cev.ID, err)
	}
	end, err := ev.DateTimeEnd(time.Local)
	if err != nil {
		return cev, fmt.Errorf("event %s: %w", cev.ID, err)
	}
	cev.Start, cev.End = start, end

	// TRANSP absent or OPAQUE means the slot is blocked.
	cev.Busy = true
	if tr := ev.Props.Get(ical.PropTransparency); tr != nil && strings.EqualFold(tr.Value, "TRANSPARENT") {
		cev.Busy = false
	}
	return cev, nil
}

func overlaps(ev hushlib.CalendarEvent, start, end time.Time) bool {
	return ev.Start.Before(end) && ev.End.After(start)
}

// MatchProfile builds the predicate a calendar profile configures: keyword
// substring match on the title (empty keyword matches everything) and an
// optional busy-only restriction.
func MatchProfile(p *hushlib.Profile) hushlib.EventPredicate {
	keyword := strings.ToLower(p.Keyword)
	busyOnly := p.BusyOnly
	return func(ev hushlib.CalendarEvent) bool {
		if busyOnly && !ev.Busy {
			return false
		}
		if keyword == "" {
			return true
		}
		return strings.Contains(strings.ToLower(ev.Title), keyword)
	}
}
