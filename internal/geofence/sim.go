package geofence

import (
	"log"
	"math"
	"sync"

	"github.com/hushd/hushd/pkg/hushlib"
)

const earthRadiusMeters = 6371000

// TransitionFunc receives containment changes from the provider.
type TransitionFunc func(id string, tr hushlib.GeofenceTransition)

type circle struct {
	lat, lng, radius float64
}

// SimProvider is the in-process GeofenceProvider: circular fences evaluated
// against a position fed in through UpdatePosition.
type SimProvider struct {
	l      *log.Logger
	notify TransitionFunc

	mu     sync.Mutex
	fences map[string]circle
	inside map[string]bool
	lat    float64
	lng    float64
	hasPos bool
}

// NewSimProvider creates a provider delivering transitions to notify.
func NewSimProvider(l *log.Logger, notify TransitionFunc) *SimProvider {
	return &SimProvider{
		l:      l,
		notify: notify,
		fences: make(map[string]circle),
		inside: make(map[string]bool),
	}
}

// Register implements hushlib.GeofenceProvider. Registering while already
// inside the fence fires an immediate enter, matching platform behavior for
// initial-trigger registration.
func (p *SimProvider) Register(id string, lat, lng, radiusMeters float64) error {
	p.mu.Lock()
	p.fences[id] = circle{lat, lng, radiusMeters}
	fire := p.hasPos && haversine(p.lat, p.lng, lat, lng) <= radiusMeters
	if fire {
		p.inside[id] = true
	}
	p.mu.Unlock()

	if fire {
		p.notify(id, hushlib.GeofenceEnter)
	}
	return nil
}

// Unregister implements hushlib.GeofenceProvider.
func (p *SimProvider) Unregister(id string) {
	p.mu.Lock()
	delete(p.fences, id)
	delete(p.inside, id)
	p.mu.Unlock()
}

// UpdatePosition moves the simulated device and fires enter/exit for every
// fence whose containment changed.
func (p *SimProvider) UpdatePosition(lat, lng float64) {
	type change struct {
		id string
		tr hushlib.GeofenceTransition
	}

	p.mu.Lock()
	p.lat, p.lng, p.hasPos = lat, lng, true
	var changes []change
	for id, c := range p.fences {
		now := haversine(lat, lng, c.lat, c.lng) <= c.radius
		if now != p.inside[id] {
			p.inside[id] = now
			tr := hushlib.GeofenceExit
			if now {
				tr = hushlib.GeofenceEnter
			}
			changes = append(changes, change{id, tr})
		}
	}
	p.mu.Unlock()

	for _, ch := range changes {
		p.notify(ch.id, ch.tr)
	}
}

// haversine returns the great-circle distance in meters.
func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}
