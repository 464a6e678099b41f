// Package ledger is the durable keyed state behind the reconciliation core:
// trigger instance rows, ringer-mode snapshots, and idempotency marks, all
// persisted in a single sqlite database so they survive process death and
// device reboot.
package ledger

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hushd/hushd/pkg/hushlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS triggers (
	key           TEXT PRIMARY KEY,
	profile_id    TEXT NOT NULL,
	profile_name  TEXT NOT NULL,
	mode          TEXT NOT NULL,
	actions       TEXT NOT NULL DEFAULT '',
	window_start  INTEGER NOT NULL DEFAULT 0,
	window_end    INTEGER NOT NULL DEFAULT 0,
	engaged       INTEGER NOT NULL DEFAULT 0,
	engaged_at    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_triggers_profile ON triggers(profile_id);

CREATE TABLE IF NOT EXISTS snapshots (
	key           TEXT PRIMARY KEY,
	previous_mode TEXT NOT NULL,
	saved_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transitions (
	key           TEXT NOT NULL,
	transition    TEXT NOT NULL,
	processed_at  INTEGER NOT NULL,
	PRIMARY KEY (key, transition)
);
`

// TriggerRow is one persisted trigger instance. WindowStart/WindowEnd are
// zero when unknown (location triggers have no scheduled end).
type TriggerRow struct {
	Key         hushlib.TriggerKey
	ProfileID   string
	ProfileName string
	Mode        hushlib.RingerMode
	Actions     hushlib.SideActions
	WindowStart time.Time
	WindowEnd   time.Time
	Engaged     bool
	EngagedAt   time.Time
}

// Store wraps the sqlite database holding all durable trigger state.
type Store struct {
	db *sql.DB
	l  *log.Logger
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string, l *log.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("error: cannot open trigger ledger: %w", err)
	}
	// Callback handlers write concurrently; let sqlite wait instead of
	// failing with SQLITE_BUSY.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error: cannot configure trigger ledger: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error: cannot create ledger schema: %w", err)
	}
	return &Store{db: db, l: l}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(u int64) time.Time {
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

// PutTrigger inserts or replaces a trigger row.
func (s *Store) PutTrigger(row TriggerRow) error {
	engaged := 0
	if row.Engaged {
		engaged = 1
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO triggers
		(key, profile_id, profile_name, mode, actions, window_start, window_end, engaged, engaged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(row.Key), row.ProfileID, row.ProfileName, string(row.Mode),
		row.Actions.String(), unixOrZero(row.WindowStart), unixOrZero(row.WindowEnd),
		engaged, unixOrZero(row.EngagedAt),
	)
	if err != nil {
		return fmt.Errorf("error: failed to write trigger row: %w", err)
	}
	return nil
}

// GetTrigger fetches a trigger row by key.
func (s *Store) GetTrigger(key hushlib.TriggerKey) (TriggerRow, bool, error) {
	row := s.db.QueryRow(`
		SELECT key, profile_id, profile_name, mode, actions, window_start, window_end, engaged, engaged_at
		FROM triggers WHERE key = ?`, string(key))
	tr, err := scanTrigger(row)
	if err == sql.ErrNoRows {
		return TriggerRow{}, false, nil
	}
	if err != nil {
		return TriggerRow{}, false, err
	}
	return tr, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrigger(r rowScanner) (TriggerRow, error) {
	var (
		key, profileID, profileName, mode, actions string
		windowStart, windowEnd, engagedAt          int64
		engaged                                    int
	)
	if err := r.Scan(&key, &profileID, &profileName, &mode, &actions, &windowStart, &windowEnd, &engaged, &engagedAt); err != nil {
		return TriggerRow{}, err
	}
	acts, err := hushlib.ParseSideActions(actions)
	if err != nil {
		return TriggerRow{}, fmt.Errorf("error: corrupt actions column: %w", err)
	}
	return TriggerRow{
		Key:         hushlib.TriggerKey(key),
		ProfileID:   profileID,
		ProfileName: profileName,
		Mode:        hushlib.RingerMode(mode),
		Actions:     acts,
		WindowStart: timeOrZero(windowStart),
		WindowEnd:   timeOrZero(windowEnd),
		Engaged:     engaged != 0,
		EngagedAt:   timeOrZero(engagedAt),
	}, nil
}

// DeleteTrigger removes a trigger row. Missing rows are a no-op.
func (s *Store) DeleteTrigger(key hushlib.TriggerKey) error {
	if _, err := s.db.Exec(`DELETE FROM triggers WHERE key = ?`, string(key)); err != nil {
		return fmt.Errorf("error: failed to delete trigger row: %w", err)
	}
	return nil
}

// ListTriggers returns every persisted trigger row. Used by the boot-time
// reconciliation pass.
func (s *Store) ListTriggers() ([]TriggerRow, error) {
	return s.queryTriggers(`
		SELECT key, profile_id, profile_name, mode, actions, window_start, window_end, engaged, engaged_at
		FROM triggers ORDER BY key`)
}

// TriggersForProfile returns every row belonging to a profile. Used by
// profile cancellation.
func (s *Store) TriggersForProfile(profileID string) ([]TriggerRow, error) {
	return s.queryTriggers(`
		SELECT key, profile_id, profile_name, mode, actions, window_start, window_end, engaged, engaged_at
		FROM triggers WHERE profile_id = ? ORDER BY key`, profileID)
}

func (s *Store) queryTriggers(q string, args ...any) ([]TriggerRow, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("error: failed to query trigger rows: %w", err)
	}
	defer rows.Close()

	var out []TriggerRow
	for rows.Next() {
		tr, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("error: failed to scan trigger row: %w", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error: failed to iterate trigger rows: %w", err)
	}
	return out, nil
}

// SaveSnapshot records the pre-activation ringer mode for a trigger key.
// The insert is a no-op when a snapshot already exists: a duplicate
// activation must never overwrite a valid snapshot with the already-set
// silent mode. Returns whether a new snapshot was written.
func (s *Store) SaveSnapshot(key hushlib.TriggerKey, prev hushlib.RingerMode, at time.Time) (bool, error) {
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO snapshots (key, previous_mode, saved_at)
		VALUES (?, ?, ?)`, string(key), string(prev), at.Unix())
	if err != nil {
		return false, fmt.Errorf("error: failed to save ringer snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetSnapshot fetches the saved pre-activation mode for a trigger key.
func (s *Store) GetSnapshot(key hushlib.TriggerKey) (hushlib.RingerMode, bool, error) {
	var mode string
	err := s.db.QueryRow(`SELECT previous_mode FROM snapshots WHERE key = ?`, string(key)).Scan(&mode)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error: failed to read ringer snapshot: %w", err)
	}
	return hushlib.RingerMode(mode), true, nil
}

// DeleteSnapshot removes the snapshot for a trigger key.
func (s *Store) DeleteSnapshot(key hushlib.TriggerKey) error {
	if _, err := s.db.Exec(`DELETE FROM snapshots WHERE key = ?`, string(key)); err != nil {
		return fmt.Errorf("error: failed to delete ringer snapshot: %w", err)
	}
	return nil
}

// MoveSnapshot re-keys a snapshot from one trigger to another, keeping the
// destination's existing snapshot if it already has one. Used when a
// trigger whose activation saved the pre-silence mode deactivates while an
// overlapping trigger is still engaged: the surviving trigger inherits the
// snapshot so the eventual reversion restores the true pre-chain mode.
func (s *Store) MoveSnapshot(from, to hushlib.TriggerKey) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("error: snapshot move failed: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO snapshots (key, previous_mode, saved_at)
		SELECT ?, previous_mode, saved_at FROM snapshots WHERE key = ?`,
		string(to), string(from)); err != nil {
		return fmt.Errorf("error: snapshot move failed: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM snapshots WHERE key = ?`, string(from)); err != nil {
		return fmt.Errorf("error: snapshot move failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error: snapshot move failed: %w", err)
	}
	return nil
}

// ShouldProcess is the durable idempotency window check. It returns true
// (and records now) when no mark exists for (key, transition) or the
// previous mark is older than window; otherwise the delivery is a
// duplicate and false is returned. The check and the mark update run in
// one transaction so concurrent duplicates cannot both pass.
//
// Marks are stored at millisecond precision: the redundant alarm group's
// early-to-backup spread equals the window, so whole-second truncation
// would inflate the elapsed time enough to let an edge duplicate through.
func (s *Store) ShouldProcess(key hushlib.TriggerKey, tr hushlib.Transition, now time.Time, window time.Duration) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("error: idempotency check failed: %w", err)
	}
	defer tx.Rollback()

	var processedAt int64
	err = tx.QueryRow(`SELECT processed_at FROM transitions WHERE key = ? AND transition = ?`,
		string(key), string(tr)).Scan(&processedAt)
	switch {
	case err == sql.ErrNoRows:
		// First delivery for this transition.
	case err != nil:
		return false, fmt.Errorf("error: idempotency check failed: %w", err)
	default:
		if now.Sub(time.UnixMilli(processedAt)) <= window {
			return false, nil
		}
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO transitions (key, transition, processed_at)
		VALUES (?, ?, ?)`, string(key), string(tr), now.UnixMilli()); err != nil {
		return false, fmt.Errorf("error: failed to record idempotency mark: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("error: failed to record idempotency mark: %w", err)
	}
	return true, nil
}

// ClearMarks removes all idempotency marks for a trigger key. Called when
// a profile's triggers are cancelled so a re-created profile starts clean.
func (s *Store) ClearMarks(key hushlib.TriggerKey) error {
	if _, err := s.db.Exec(`DELETE FROM transitions WHERE key = ?`, string(key)); err != nil {
		return fmt.Errorf("error: failed to clear idempotency marks: %w", err)
	}
	return nil
}

// PruneMarks drops idempotency marks older than the cutoff. Marks are only
// meaningful within the idempotency window; everything older is noise.
func (s *Store) PruneMarks(before time.Time) error {
	if _, err := s.db.Exec(`DELETE FROM transitions WHERE processed_at < ?`, before.UnixMilli()); err != nil {
		return fmt.Errorf("error: failed to prune idempotency marks: %w", err)
	}
	return nil
}

// CountSnapshots returns the number of stored snapshots. Used by tests and
// the cancellation completeness check.
func (s *Store) CountSnapshots() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
