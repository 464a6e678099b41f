// Package registry tracks the set of trigger instances currently holding
// the device in a non-normal ringer mode. It is the single authority for
// the overlap rule: reversion is permitted only when, after removing the
// expiring key, no remaining entry requires a silencing mode.
package registry

import (
	"time"

	"github.com/hushd/hushd/pkg/hushlib"
)

// Entry is the registry's record of one engaged trigger.
type Entry struct {
	Mode      hushlib.RingerMode
	WindowEnd time.Time
	EngagedAt time.Time
}

// Registry is an in-memory keyed set of engaged triggers. It is rebuilt
// from the ledger at boot; the ledger rows are the durable copy.
type Registry struct {
	entries *hushlib.VMap[hushlib.TriggerKey, Entry]
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: hushlib.NewVMap[hushlib.TriggerKey, Entry]()}
}

// Engage inserts or updates the entry for a trigger key. A key appears at
// most once; re-engaging overwrites.
func (r *Registry) Engage(key hushlib.TriggerKey, e Entry) {
	r.entries.Set(key, e)
}

// Release removes a trigger key, returning its entry if it was engaged.
func (r *Registry) Release(key hushlib.TriggerKey) (Entry, bool) {
	return r.entries.Delete(key)
}

// Get returns the entry for a trigger key.
func (r *Registry) Get(key hushlib.TriggerKey) (Entry, bool) {
	return r.entries.Get(key)
}

// Len returns the number of engaged triggers.
func (r *Registry) Len() int {
	return r.entries.Len()
}

// AnySilencing reports whether any engaged trigger still requires a
// non-normal ringer mode. Deactivation may only revert device state when
// this is false after the expiring key has been released.
func (r *Registry) AnySilencing() bool {
	var found bool
	r.entries.Range(func(_ hushlib.TriggerKey, e Entry) bool {
		if e.Mode.Silencing() {
			found = true
			return false
		}
		return true
	})
	return found
}

// Keys returns all engaged trigger keys.
func (r *Registry) Keys() []hushlib.TriggerKey {
	return r.entries.Keys()
}
