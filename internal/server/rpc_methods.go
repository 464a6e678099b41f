// Package server exposes the daemon's control surface: JSON-RPC 2.0 over an
// HTTP bridge, over a raw TCP socket for hushctl, and over websocket with
// push notifications for event subscribers.
package server

import (
	"context"
	"errors"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/hushd/hushd/internal/registry"
	"github.com/hushd/hushd/internal/usage"
	"github.com/hushd/hushd/pkg/hushlib"
)

// Custom JSON-RPC error codes for profile operations.
const (
	codeProfileNotFound = jrpc2.Code(-32001)
	codeProfileExists   = jrpc2.Code(-32002)
	codePermission      = jrpc2.Code(-32003)
	codeInvalidParams   = jrpc2.Code(-32602)
)

// Controller is the daemon-side surface the RPC methods drive.
type Controller interface {
	AddProfile(p hushlib.Profile) (hushlib.Profile, error)
	ListProfiles() []hushlib.Profile
	EnableProfile(id string) error
	DisableProfile(id string) error
	RemoveProfile(id string) error
	ActiveTriggers() map[hushlib.TriggerKey]registry.Entry
	UsageSummary(since time.Time) (usage.Summary, error)
	UpdateLocation(lat, lng float64) error
	Version() string
}

// RPCServer holds the method handlers and the HTTP bridge.
type RPCServer struct {
	ctrl    Controller
	methods handler.Map
	bridge  jhttp.Bridge
}

// VersionResult is the response for system.getVersion.
type VersionResult struct {
	Version string `json:"version"`
}

// AddProfileParams is the input for profile.add.
type AddProfileParams struct {
	Name          string  `json:"name"`
	Kind          string  `json:"kind"`
	StartClock    string  `json:"startClock,omitempty"`
	EndClock      string  `json:"endClock,omitempty"`
	CronExpr      string  `json:"cronExpr,omitempty"`
	WindowMinutes int     `json:"windowMinutes,omitempty"`
	Latitude      float64 `json:"latitude,omitempty"`
	Longitude     float64 `json:"longitude,omitempty"`
	RadiusMeters  float64 `json:"radiusMeters,omitempty"`
	Keyword       string  `json:"keyword,omitempty"`
	BusyOnly      bool    `json:"busyOnly,omitempty"`
	PreStartMin   int     `json:"preStartMin,omitempty"`
	Mode          string  `json:"mode"`
	Actions       string  `json:"actions,omitempty"`
}

// ProfileItem is one profile in RPC responses.
type ProfileItem struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Mode    string `json:"mode"`
	Actions string `json:"actions,omitempty"`
	Active  bool   `json:"active"`
}

// AddProfileResult is the response for profile.add.
type AddProfileResult struct {
	Profile ProfileItem `json:"profile"`
}

// ListProfilesResult is the response for profile.list.
type ListProfilesResult struct {
	Profiles []ProfileItem `json:"profiles"`
}

// IDParam is a common input carrying just a profile id.
type IDParam struct {
	ID string `json:"id"`
}

// ActiveTrigger is one engaged trigger in trigger.active responses.
type ActiveTrigger struct {
	Key       string `json:"key"`
	Mode      string `json:"mode"`
	WindowEnd int64  `json:"windowEnd,omitempty"`
	EngagedAt int64  `json:"engagedAt"`
}

// ActiveResult is the response for trigger.active.
type ActiveResult struct {
	Triggers []ActiveTrigger `json:"triggers"`
}

// UsageParams is the input for usage.summary.
type UsageParams struct {
	SinceHours int `json:"sinceHours,omitempty"`
}

// LocationParams is the input for location.update.
type LocationParams struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// EmptyResult is a placeholder for methods that return no data.
type EmptyResult struct{}

// NewRPCServer creates the method table and the HTTP bridge.
func NewRPCServer(ctrl Controller) *RPCServer {
	rs := &RPCServer{ctrl: ctrl}
	rs.methods = handler.Map{
		"system.getVersion": handler.New(rs.systemGetVersion),
		"profile.add":       handler.New(rs.profileAdd),
		"profile.list":      handler.New(rs.profileList),
		"profile.enable":    handler.New(rs.profileEnable),
		"profile.disable":   handler.New(rs.profileDisable),
		"profile.remove":    handler.New(rs.profileRemove),
		"trigger.active":    handler.New(rs.triggerActive),
		"usage.summary":     handler.New(rs.usageSummary),
		"location.update":   handler.New(rs.locationUpdate),
	}
	rs.bridge = jhttp.NewBridge(rs.methods, nil)
	return rs
}

// Methods returns the method table, for serving over non-HTTP channels.
func (rs *RPCServer) Methods() handler.Map {
	return rs.methods
}

// Close shuts down the HTTP bridge.
func (rs *RPCServer) Close() {
	rs.bridge.Close()
}

func rpcError(err error) error {
	switch {
	case errors.Is(err, hushlib.ErrProfileNotFound):
		return &jrpc2.Error{Code: codeProfileNotFound, Message: err.Error()}
	case errors.Is(err, hushlib.ErrProfileExists):
		return &jrpc2.Error{Code: codeProfileExists, Message: err.Error()}
	case errors.Is(err, hushlib.ErrInvalidProfile):
		return &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, hushlib.ErrPermissionDenied):
		return &jrpc2.Error{Code: codePermission, Message: err.Error()}
	default:
		return err
	}
}

func toItem(p hushlib.Profile) ProfileItem {
	return ProfileItem{
		ID:      p.ID,
		Name:    p.Name,
		Kind:    string(p.Kind),
		Mode:    string(p.Mode),
		Actions: p.Actions.String(),
		Active:  p.Active,
	}
}

func (rs *RPCServer) systemGetVersion(_ context.Context) (*VersionResult, error) {
	return &VersionResult{Version: rs.ctrl.Version()}, nil
}

func (rs *RPCServer) profileAdd(_ context.Context, p *AddProfileParams) (*AddProfileResult, error) {
	mode, err := hushlib.ParseRingerMode(p.Mode)
	if err != nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	}
	actions, err := hushlib.ParseSideActions(p.Actions)
	if err != nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	}

	prof := hushlib.Profile{
		Name:          p.Name,
		Kind:          hushlib.TriggerKind(p.Kind),
		StartClock:    p.StartClock,
		EndClock:      p.EndClock,
		CronExpr:      p.CronExpr,
		WindowMinutes: p.WindowMinutes,
		Latitude:      p.Latitude,
		Longitude:     p.Longitude,
		RadiusMeters:  p.RadiusMeters,
		Keyword:       p.Keyword,
		BusyOnly:      p.BusyOnly,
		PreStartMin:   p.PreStartMin,
		Mode:          mode,
		Actions:       actions,
	}
	added, err := rs.ctrl.AddProfile(prof)
	if err != nil {
		return nil, rpcError(err)
	}
	return &AddProfileResult{Profile: toItem(added)}, nil
}

func (rs *RPCServer) profileList(_ context.Context) (*ListProfilesResult, error) {
	profiles := rs.ctrl.ListProfiles()
	items := make([]ProfileItem, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, toItem(p))
	}
	return &ListProfilesResult{Profiles: items}, nil
}

func (rs *RPCServer) profileEnable(_ context.Context, p *IDParam) (*EmptyResult, error) {
	if err := rs.ctrl.EnableProfile(p.ID); err != nil {
		return nil, rpcError(err)
	}
	return &EmptyResult{}, nil
}

func (rs *RPCServer) profileDisable(_ context.Context, p *IDParam) (*EmptyResult, error) {
	if err := rs.ctrl.DisableProfile(p.ID); err != nil {
		return nil, rpcError(err)
	}
	return &EmptyResult{}, nil
}

func (rs *RPCServer) profileRemove(_ context.Context, p *IDParam) (*EmptyResult, error) {
	if err := rs.ctrl.RemoveProfile(p.ID); err != nil {
		return nil, rpcError(err)
	}
	return &EmptyResult{}, nil
}

func (rs *RPCServer) triggerActive(_ context.Context) (*ActiveResult, error) {
	active := rs.ctrl.ActiveTriggers()
	out := &ActiveResult{Triggers: make([]ActiveTrigger, 0, len(active))}
	for key, entry := range active {
		at := ActiveTrigger{
			Key:       string(key),
			Mode:      string(entry.Mode),
			EngagedAt: entry.EngagedAt.Unix(),
		}
		if !entry.WindowEnd.IsZero() {
			at.WindowEnd = entry.WindowEnd.Unix()
		}
		out.Triggers = append(out.Triggers, at)
	}
	return out, nil
}

func (rs *RPCServer) locationUpdate(_ context.Context, p *LocationParams) (*EmptyResult, error) {
	if err := rs.ctrl.UpdateLocation(p.Latitude, p.Longitude); err != nil {
		return nil, rpcError(err)
	}
	return &EmptyResult{}, nil
}

func (rs *RPCServer) usageSummary(_ context.Context, p *UsageParams) (*usage.Summary, error) {
	var since time.Time
	if p.SinceHours > 0 {
		since = time.Now().Add(-time.Duration(p.SinceHours) * time.Hour)
	}
	s, err := rs.ctrl.UsageSummary(since)
	if err != nil {
		return nil, rpcError(err)
	}
	return &s, nil
}
