// Package geofence turns geofence crossings into trigger events. The
// manager owns the fence-id bookkeeping; containment math lives in the
// provider so a platform-backed implementation can replace SimProvider
// without touching the manager.
package geofence

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hushd/hushd/pkg/hushlib"
)

// Manager registers one geofence per active location profile and converts
// the provider's enter/exit transitions into activate/deactivate events.
type Manager struct {
	gp      hushlib.GeofenceProvider
	handler hushlib.EventHandler
	l       *log.Logger
	now     func() time.Time

	mu     sync.Mutex
	fences map[string]hushlib.Profile // geofence id -> owning profile
}

// NewManager creates a manager over the given provider, delivering events
// to handler.
func NewManager(gp hushlib.GeofenceProvider, handler hushlib.EventHandler, l *log.Logger) *Manager {
	return &Manager{
		gp:      gp,
		handler: handler,
		l:       l,
		now:     time.Now,
		fences:  make(map[string]hushlib.Profile),
	}
}

// Watch registers a geofence for a location profile and returns its id.
// The timestamp suffix keeps re-registrations distinct so a stale provider
// callback for a removed fence can never hit a new one. The fence is
// recorded before registration: a provider whose device is already inside
// delivers the enter synchronously from Register.
func (m *Manager) Watch(p hushlib.Profile) (string, error) {
	if p.Kind != hushlib.TriggerLocation {
		return "", fmt.Errorf("%w: watch on %s profile", hushlib.ErrInvalidProfile, p.Kind)
	}
	id := fmt.Sprintf("profile_%s_%d", p.ID, m.now().UnixMilli())
	m.mu.Lock()
	m.fences[id] = p
	m.mu.Unlock()
	if err := m.gp.Register(id, p.Latitude, p.Longitude, p.RadiusMeters); err != nil {
		m.mu.Lock()
		delete(m.fences, id)
		m.mu.Unlock()
		return "", fmt.Errorf("%w: geofence registration: %v", hushlib.ErrScheduleFailed, err)
	}
	m.l.Printf("geofence %s registered (%.5f,%.5f r=%.0fm)", id, p.Latitude, p.Longitude, p.RadiusMeters)
	return id, nil
}

// Unwatch unregisters every geofence belonging to a profile. Returns the
// number removed.
func (m *Manager) Unwatch(profileID string) int {
	m.mu.Lock()
	var ids []string
	for id, p := range m.fences {
		if p.ID == profileID {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(m.fences, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.gp.Unregister(id)
	}
	return len(ids)
}

// HandleTransition is the provider's callback. Unknown fence ids (stale
// callbacks after Unwatch) are dropped.
func (m *Manager) HandleTransition(id string, tr hushlib.GeofenceTransition) {
	m.mu.Lock()
	p, ok := m.fences[id]
	m.mu.Unlock()
	if !ok {
		m.l.Printf("transition for unknown geofence %s dropped", id)
		return
	}

	transition := hushlib.TransitionActivate
	if tr == hushlib.GeofenceExit {
		transition = hushlib.TransitionDeactivate
	}
	ev := hushlib.TriggerEvent{
		// Location windows have no scheduled end; WindowEnd stays zero and
		// the exit transition is the only way out. The key is derived from
		// the profile alone, not the fence id: the fence re-registered
		// after a reboot must release the same ledger row the boot
		// recovery re-engaged.
		Key:         hushlib.MakeTriggerKey(p.ID, "geo"),
		Transition:  transition,
		Mode:        p.Mode,
		Actions:     p.Actions,
		ProfileID:   p.ID,
		ProfileName: p.Name,
	}
	if err := m.handler.HandleEvent(ev); err != nil {
		m.l.Printf("geofence %s %s failed: %v", id, tr, err)
	}
}
