// Package usage keeps a durable log of executed transitions and aggregates
// it into simple statistics for the status API.
package usage

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hushd/hushd/pkg/hushlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	profile_id    TEXT NOT NULL,
	profile_name  TEXT NOT NULL,
	mode          TEXT NOT NULL,
	transition    TEXT NOT NULL,
	at            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_profile ON usage_log(profile_id);
CREATE INDEX IF NOT EXISTS idx_usage_at ON usage_log(at);
`

// Tracker records transitions into sqlite.
type Tracker struct {
	db *sql.DB
	l  *log.Logger
}

// Open opens (creating if needed) the usage database at path.
func Open(path string, l *log.Logger) (*Tracker, error) {
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("error: cannot open usage log: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error: cannot configure usage log: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error: cannot create usage schema: %w", err)
	}
	return &Tracker{db: db, l: l}, nil
}

// Close closes the underlying database.
func (t *Tracker) Close() error {
	return t.db.Close()
}

// Record appends one transition to the log.
func (t *Tracker) Record(profileID, profileName string, mode hushlib.RingerMode, tr hushlib.Transition, at time.Time) error {
	_, err := t.db.Exec(`
		INSERT INTO usage_log (profile_id, profile_name, mode, transition, at)
		VALUES (?, ?, ?, ?, ?)`,
		profileID, profileName, string(mode), string(tr), at.Unix())
	if err != nil {
		return fmt.Errorf("error: cannot record usage: %w", err)
	}
	return nil
}

// ProfileCount is one profile's activation tally.
type ProfileCount struct {
	ProfileID   string `json:"profileId"`
	ProfileName string `json:"profileName"`
	Activations int    `json:"activations"`
}

// Summary aggregates the usage log.
type Summary struct {
	TotalActivations int            `json:"totalActivations"`
	ByMode           map[string]int `json:"byMode"`
	PeakHour         int            `json:"peakHour"`
	TopProfiles      []ProfileCount `json:"topProfiles"`
}

// Summarize aggregates all activations since the given time.
func (t *Tracker) Summarize(since time.Time) (Summary, error) {
	s := Summary{ByMode: make(map[string]int), PeakHour: -1}

	rows, err := t.db.Query(`
		SELECT profile_id, profile_name, mode, at FROM usage_log
		WHERE transition = ? AND at >= ?`,
		string(hushlib.TransitionActivate), since.Unix())
	if err != nil {
		return s, fmt.Errorf("error: cannot read usage log: %w", err)
	}
	defer rows.Close()

	type tally struct {
		name  string
		count int
	}
	byProfile := make(map[string]*tally)
	byHour := make(map[int]int)

	for rows.Next() {
		var (
			profileID, profileName, mode string
			at                           int64
		)
		if err := rows.Scan(&profileID, &profileName, &mode, &at); err != nil {
			return s, fmt.Errorf("error: cannot scan usage row: %w", err)
		}
		s.TotalActivations++
		s.ByMode[mode]++
		byHour[time.Unix(at, 0).Hour()]++
		if tl, ok := byProfile[profileID]; ok {
			tl.count++
		} else {
			byProfile[profileID] = &tally{name: profileName, count: 1}
		}
	}
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("error: cannot iterate usage log: %w", err)
	}

	peak := 0
	for hour, n := range byHour {
		if n > peak || (n == peak && s.PeakHour >= 0 && hour < s.PeakHour) {
			peak, s.PeakHour = n, hour
		}
	}

	for id, tl := range byProfile {
		s.TopProfiles = append(s.TopProfiles, ProfileCount{ProfileID: id, ProfileName: tl.name, Activations: tl.count})
	}
	// Highest activation count first; name breaks ties.
	sort.Slice(s.TopProfiles, func(i, j int) bool {
		a, b := s.TopProfiles[i], s.TopProfiles[j]
		if a.Activations != b.Activations {
			return a.Activations > b.Activations
		}
		return a.ProfileName < b.ProfileName
	})
	return s, nil
}
