package hushcli

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"
	jserver "github.com/creachadair/jrpc2/server"
)

// startFakeDaemon serves a canned method set on an ephemeral socket and
// returns its address.
func startFakeDaemon(t *testing.T, methods handler.Map) string {
	t.Helper()
	lst, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		jserver.Loop(ctx, jserver.NetAccepter(lst, channel.Line), jserver.Static(methods), nil)
	}()
	t.Cleanup(func() {
		cancel()
		lst.Close()
		<-done
	})
	return lst.Addr().String()
}

func TestClientRoundTrip(t *testing.T) {
	var gotAdd AddProfileParams
	methods := handler.Map{
		"system.getVersion": handler.New(func(context.Context) (*VersionResponse, error) {
			return &VersionResponse{Version: "1.2.3"}, nil
		}),
		"profile.add": handler.New(func(_ context.Context, p *AddProfileParams) (*AddProfileResponse, error) {
			gotAdd = *p
			return &AddProfileResponse{Profile: Profile{ID: "p1", Name: p.Name, Kind: p.Kind, Mode: p.Mode, Active: true}}, nil
		}),
		"trigger.active": handler.New(func(context.Context) (*ActiveResponse, error) {
			return &ActiveResponse{Triggers: []ActiveTrigger{{Key: "p1@2026-08-31", Mode: "silent"}}}, nil
		}),
		"usage.summary": handler.New(func(_ context.Context, p *usageParams) (*UsageSummary, error) {
			return &UsageSummary{TotalActivations: p.SinceHours, PeakHour: 9}, nil
		}),
	}
	addr := startFakeDaemon(t, methods)

	cli, err := NewClient(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	v, err := cli.Version()
	if err != nil || v != "1.2.3" {
		t.Errorf("Version() = %q, %v", v, err)
	}

	p, err := cli.AddProfile(&AddProfileParams{Name: "Meeting", Kind: "time", StartClock: "14:00", Mode: "silent"})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "p1" || !p.Active {
		t.Errorf("profile = %+v", p)
	}
	if gotAdd.StartClock != "14:00" {
		t.Errorf("server saw params %+v", gotAdd)
	}

	trs, err := cli.ActiveTriggers()
	if err != nil || len(trs) != 1 || trs[0].Key != "p1@2026-08-31" {
		t.Errorf("ActiveTriggers() = %v, %v", trs, err)
	}

	u, err := cli.Usage(24)
	if err != nil || u.TotalActivations != 24 {
		t.Errorf("Usage() = %+v, %v", u, err)
	}
}

func TestClientSurfacesServerErrors(t *testing.T) {
	methods := handler.Map{
		"profile.enable": handler.New(func(context.Context, *idParam) (*emptyResponse, error) {
			return nil, &jrpc2.Error{Code: -32001, Message: "error: profile not found"}
		}),
	}
	addr := startFakeDaemon(t, methods)

	cli, err := NewClient(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	err = cli.EnableProfile("missing")
	if err == nil {
		t.Fatal("expected error")
	}
	var rpcErr *jrpc2.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("not a jrpc2 error: %v", err)
	}
	if rpcErr.Code != jrpc2.Code(-32001) {
		t.Errorf("code = %v", rpcErr.Code)
	}
}

func TestClientDialFailure(t *testing.T) {
	if _, err := NewClient("127.0.0.1:1"); err == nil {
		t.Fatal("expected connection error")
	}
}
