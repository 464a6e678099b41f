// Package daemon wires the hushd components together and manages their
// lifecycle: storage, the alarm scheduler, the reconciliation engine, the
// trigger sources, and the RPC surface.
package daemon

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/hushd/hushd/common"
	"github.com/hushd/hushd/internal/alarm"
	"github.com/hushd/hushd/internal/calendar"
	"github.com/hushd/hushd/internal/engine"
	"github.com/hushd/hushd/internal/geofence"
	"github.com/hushd/hushd/internal/ledger"
	"github.com/hushd/hushd/internal/profile"
	"github.com/hushd/hushd/internal/registry"
	"github.com/hushd/hushd/internal/ringer"
	"github.com/hushd/hushd/internal/server"
	"github.com/hushd/hushd/internal/usage"
	"github.com/hushd/hushd/pkg/hushlib"
)

// Config holds the daemon configuration.
type Config struct {
	// DataDir is the directory for the ledger, usage log, and profiles.
	DataDir string

	// RPCAddr is the listen address of the HTTP bridge and websocket.
	RPCAddr string

	// SocketAddr is the listen address of the raw JSON-RPC socket.
	SocketAddr string

	// CalendarURL is the ICS feed polled for calendar profiles. Empty
	// disables calendar polling.
	CalendarURL string

	// Version is reported by system.getVersion.
	Version string
}

func (c *Config) applyDefaults() {
	if c.RPCAddr == "" {
		c.RPCAddr = common.DefaultRPCAddr
	}
	if c.SocketAddr == "" {
		c.SocketAddr = common.DefaultSocketAddr
	}
	if c.Version == "" {
		c.Version = "dev"
	}
}

// Runner owns every component of a running daemon. It implements
// server.Controller.
type Runner struct {
	cfg Config
	l   *log.Logger

	ledger   *ledger.Store
	tracker  *usage.Tracker
	profiles *profile.Store
	reg      *registry.Registry
	device   *ringer.Device
	notifier *server.Notifier

	mu     sync.Mutex
	eng    *engine.Engine
	geo    *geofence.Manager
	geoSim *geofence.SimProvider
	poller *calendar.Poller
}

// New opens the daemon's persistent stores. The runtime components are
// built by Run, which needs the lifetime context.
func New(cfg Config, fs afero.Fs, l *log.Logger) (*Runner, error) {
	cfg.applyDefaults()

	led, err := ledger.Open(filepath.Join(cfg.DataDir, "ledger.db"), l)
	if err != nil {
		return nil, err
	}
	tracker, err := usage.Open(filepath.Join(cfg.DataDir, "usage.db"), l)
	if err != nil {
		led.Close()
		return nil, err
	}
	profiles, err := profile.NewStore(fs, cfg.DataDir, l)
	if err != nil {
		led.Close()
		tracker.Close()
		return nil, err
	}

	return &Runner{
		cfg:      cfg,
		l:        l,
		ledger:   led,
		tracker:  tracker,
		profiles: profiles,
		reg:      registry.New(),
		device:   ringer.NewDevice(l),
		notifier: server.NewNotifier(l),
	}, nil
}

// Close releases the persistent stores.
func (r *Runner) Close() {
	r.ledger.Close()
	r.tracker.Close()
}

// Run builds the runtime components, replays the ledger, arms every active
// profile, and serves until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.setup(ctx)

	if err := r.eng.Recover(); err != nil {
		r.l.Printf("ledger recovery reported errors: %v", err)
	}
	r.armActiveProfiles()

	rpc := server.NewRPCServer(r)
	defer rpc.Close()
	srv := server.New(r.l, rpc, r.notifier, r.cfg.RPCAddr, r.cfg.SocketAddr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	if r.poller != nil {
		g.Go(func() error {
			err := r.poller.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}
	g.Go(func() error { return r.pruneLoop(ctx) })

	r.l.Printf("hushd %s running, data in %s", r.cfg.Version, r.cfg.DataDir)
	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// setup builds the runtime components that need the lifetime context.
func (r *Runner) setup(ctx context.Context) {
	timer := alarm.NewHeapTimer(ctx, r.l, func(ev hushlib.TriggerEvent, kind hushlib.AlarmKind) {
		if err := r.eng.HandleEvent(ev); err != nil {
			r.l.Printf("alarm %s for %s %s failed: %v", kind, ev.Key, ev.Transition, err)
		}
	})
	alarms := alarm.NewGroupScheduler(timer, r.l)

	sink := hushlib.MultiSink{hushlib.NewLogSink(r.l), r.notifier}

	r.mu.Lock()
	r.eng = engine.New(engine.Deps{
		Log:      r.l,
		Ledger:   r.ledger,
		Registry: r.reg,
		Alarms:   alarms,
		Ringer:   r.device,
		Notify:   sink,
		Profiles: r.profiles,
		Usage:    r.tracker,
	}, nil)

	r.geoSim = geofence.NewSimProvider(r.l, func(id string, tr hushlib.GeofenceTransition) {
		r.geo.HandleTransition(id, tr)
	})
	r.geo = geofence.NewManager(r.geoSim, r.eng, r.l)

	if r.cfg.CalendarURL != "" {
		src := calendar.NewICSSource(r.cfg.CalendarURL, nil, r.l)
		r.poller = calendar.NewPoller(src, r.profiles, r.eng, r.l)
	}
	r.mu.Unlock()
}

// armActiveProfiles arms everything that should be live at boot.
func (r *Runner) armActiveProfiles() {
	for _, p := range r.profiles.ListActiveProfiles() {
		if err := r.armProfile(p); err != nil {
			r.l.Printf("cannot arm profile %q at boot: %v", p.Name, err)
		}
	}
}

func (r *Runner) armProfile(p hushlib.Profile) error {
	switch p.Kind {
	case hushlib.TriggerTime:
		_, err := r.eng.ArmTimeProfile(&p, time.Now())
		return err
	case hushlib.TriggerLocation:
		_, err := r.geo.Watch(p)
		return err
	case hushlib.TriggerCalendar:
		// The poller picks calendar profiles up on its next scan.
		return nil
	}
	return nil
}

// pruneLoop drops idempotency marks that fell out of every conceivable
// window, keeping the transitions table from growing unbounded.
func (r *Runner) pruneLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.ledger.PruneMarks(time.Now().Add(-24 * time.Hour)); err != nil {
				r.l.Println(err)
			}
		}
	}
}

// AddProfile implements server.Controller. The new profile is armed
// immediately; if arming fails it is stored disabled so the caller can fix
// and re-enable it.
func (r *Runner) AddProfile(p hushlib.Profile) (hushlib.Profile, error) {
	added, err := r.profiles.Add(p)
	if err != nil {
		return hushlib.Profile{}, err
	}
	if err := r.armProfile(added); err != nil {
		if serr := r.profiles.SetActive(added.ID, false); serr != nil {
			r.l.Println(serr)
		}
		return hushlib.Profile{}, err
	}
	return added, nil
}

// ListProfiles implements server.Controller.
func (r *Runner) ListProfiles() []hushlib.Profile {
	return r.profiles.List()
}

// EnableProfile implements server.Controller.
func (r *Runner) EnableProfile(id string) error {
	if err := r.profiles.SetActive(id, true); err != nil {
		return err
	}
	p, _ := r.profiles.GetProfile(id)
	if err := r.armProfile(p); err != nil {
		if serr := r.profiles.SetActive(id, false); serr != nil {
			r.l.Println(serr)
		}
		return err
	}
	return nil
}

// DisableProfile implements server.Controller. Everything the profile
// armed or engaged is torn down.
func (r *Runner) DisableProfile(id string) error {
	if err := r.profiles.SetActive(id, false); err != nil {
		return err
	}
	r.geo.Unwatch(id)
	return r.eng.CancelProfile(id)
}

// RemoveProfile implements server.Controller.
func (r *Runner) RemoveProfile(id string) error {
	if err := r.DisableProfile(id); err != nil {
		return err
	}
	return r.profiles.Remove(id)
}

// ActiveTriggers implements server.Controller.
func (r *Runner) ActiveTriggers() map[hushlib.TriggerKey]registry.Entry {
	return r.eng.ActiveTriggers()
}

// UsageSummary implements server.Controller.
func (r *Runner) UsageSummary(since time.Time) (usage.Summary, error) {
	return r.tracker.Summarize(since)
}

// UpdateLocation implements server.Controller: feeds a position fix to the
// simulated geofence provider.
func (r *Runner) UpdateLocation(lat, lng float64) error {
	r.geoSim.UpdatePosition(lat, lng)
	return nil
}

// Version implements server.Controller.
func (r *Runner) Version() string {
	return r.cfg.Version
}

// Device exposes the simulated ringer, for status inspection.
func (r *Runner) Device() *ringer.Device {
	return r.device
}
