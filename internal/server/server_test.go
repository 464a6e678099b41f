package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"

	"github.com/hushd/hushd/internal/registry"
	"github.com/hushd/hushd/internal/usage"
	"github.com/hushd/hushd/pkg/hushlib"
)

// fakeController backs the RPC methods with in-memory state.
type fakeController struct {
	mu       sync.Mutex
	profiles map[string]hushlib.Profile
	active   map[hushlib.TriggerKey]registry.Entry
	nextID   int
	lastLat  float64
	lastLng  float64
}

func newFakeController() *fakeController {
	return &fakeController{
		profiles: make(map[string]hushlib.Profile),
		active:   make(map[hushlib.TriggerKey]registry.Entry),
	}
}

func (f *fakeController) AddProfile(p hushlib.Profile) (hushlib.Profile, error) {
	if err := p.Validate(); err != nil {
		return hushlib.Profile{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = "p" + string(rune('0'+f.nextID))
	p.Active = true
	f.profiles[p.ID] = p
	return p, nil
}

func (f *fakeController) ListProfiles() []hushlib.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []hushlib.Profile
	for _, p := range f.profiles {
		out = append(out, p)
	}
	return out
}

func (f *fakeController) setActive(id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return hushlib.ErrProfileNotFound
	}
	p.Active = active
	f.profiles[id] = p
	return nil
}

func (f *fakeController) EnableProfile(id string) error  { return f.setActive(id, true) }
func (f *fakeController) DisableProfile(id string) error { return f.setActive(id, false) }

func (f *fakeController) RemoveProfile(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[id]; !ok {
		return hushlib.ErrProfileNotFound
	}
	delete(f.profiles, id)
	return nil
}

func (f *fakeController) ActiveTriggers() map[hushlib.TriggerKey]registry.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[hushlib.TriggerKey]registry.Entry, len(f.active))
	for k, v := range f.active {
		out[k] = v
	}
	return out
}

func (f *fakeController) UsageSummary(time.Time) (usage.Summary, error) {
	return usage.Summary{TotalActivations: 7, PeakHour: 14}, nil
}

func (f *fakeController) UpdateLocation(lat, lng float64) error {
	f.mu.Lock()
	f.lastLat, f.lastLng = lat, lng
	f.mu.Unlock()
	return nil
}

func (f *fakeController) Version() string { return "test-version" }

func newTestServer(t *testing.T) (*Server, *fakeController, *httptest.Server) {
	t.Helper()
	l := log.New(io.Discard, "", 0)
	ctrl := newFakeController()
	rs := NewRPCServer(ctrl)
	t.Cleanup(rs.Close)
	srv := New(l, rs, NewNotifier(l), "", "")
	hs := httptest.NewServer(srv.handler())
	t.Cleanup(hs.Close)
	return srv, ctrl, hs
}

// rpcPost sends a JSON-RPC request via the HTTP bridge.
func rpcPost(t *testing.T, url, method string, params any) map[string]any {
	t.Helper()
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      1,
	}
	if params != nil {
		reqBody["params"] = params
	}
	data, _ := json.Marshal(reqBody)
	resp, err := http.Post(url+"/rpc", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("HTTP request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("unmarshal: %v (body: %s)", err, string(body))
	}
	return result
}

func TestBridgeGetVersion(t *testing.T) {
	_, _, hs := newTestServer(t)

	result := rpcPost(t, hs.URL, "system.getVersion", nil)
	res, ok := result["result"].(map[string]any)
	if !ok {
		t.Fatalf("no result in %v", result)
	}
	if res["version"] != "test-version" {
		t.Errorf("version = %v", res["version"])
	}
}

func TestBridgeProfileLifecycle(t *testing.T) {
	_, ctrl, hs := newTestServer(t)

	result := rpcPost(t, hs.URL, "profile.add", map[string]any{
		"name":       "Meeting",
		"kind":       "time",
		"startClock": "14:00",
		"endClock":   "15:00",
		"mode":       "silent",
		"actions":    "wifi,dnd",
	})
	res, ok := result["result"].(map[string]any)
	if !ok {
		t.Fatalf("add failed: %v", result)
	}
	prof := res["profile"].(map[string]any)
	id := prof["id"].(string)
	if prof["name"] != "Meeting" || prof["active"] != true {
		t.Errorf("profile = %v", prof)
	}

	result = rpcPost(t, hs.URL, "profile.list", nil)
	list := result["result"].(map[string]any)["profiles"].([]any)
	if len(list) != 1 {
		t.Fatalf("list = %v", list)
	}

	if r := rpcPost(t, hs.URL, "profile.disable", map[string]any{"id": id}); r["error"] != nil {
		t.Fatalf("disable error: %v", r["error"])
	}
	if p := ctrl.profiles[id]; p.Active {
		t.Error("disable did not reach the controller")
	}

	if r := rpcPost(t, hs.URL, "profile.remove", map[string]any{"id": id}); r["error"] != nil {
		t.Fatalf("remove error: %v", r["error"])
	}
	if len(ctrl.profiles) != 0 {
		t.Error("remove did not reach the controller")
	}
}

func TestBridgeErrorCodes(t *testing.T) {
	_, _, hs := newTestServer(t)

	result := rpcPost(t, hs.URL, "profile.add", map[string]any{
		"name": "Broken",
		"kind": "time",
		"mode": "loudest",
	})
	errObj, ok := result["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error, got %v", result)
	}
	if code := errObj["code"].(float64); code != float64(codeInvalidParams) {
		t.Errorf("code = %v, want %v", code, codeInvalidParams)
	}

	result = rpcPost(t, hs.URL, "profile.enable", map[string]any{"id": "missing"})
	errObj, ok = result["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error, got %v", result)
	}
	if code := errObj["code"].(float64); code != float64(codeProfileNotFound) {
		t.Errorf("code = %v, want %v", code, codeProfileNotFound)
	}
}

func TestBridgeLocationUpdate(t *testing.T) {
	_, ctrl, hs := newTestServer(t)

	r := rpcPost(t, hs.URL, "location.update", map[string]any{
		"latitude":  52.52,
		"longitude": 13.405,
	})
	if r["error"] != nil {
		t.Fatalf("location.update error: %v", r["error"])
	}
	if ctrl.lastLat != 52.52 || ctrl.lastLng != 13.405 {
		t.Errorf("position = %v,%v", ctrl.lastLat, ctrl.lastLng)
	}
}

func TestSocketTransport(t *testing.T) {
	l := log.New(io.Discard, "", 0)
	ctrl := newFakeController()
	ctrl.active["p1@d1"] = registry.Entry{Mode: hushlib.ModeSilent, EngagedAt: time.Now()}
	rs := NewRPCServer(ctrl)
	defer rs.Close()
	srv := New(l, rs, NewNotifier(l), "", "")

	httpLst, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	sockLst, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, httpLst, sockLst) }()

	conn, err := net.Dial("tcp", sockLst.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	cli := jrpc2.NewClient(channel.Line(conn, conn), nil)
	defer cli.Close()

	var result ActiveResult
	if err := cli.CallResult(context.Background(), "trigger.active", nil, &result); err != nil {
		t.Fatalf("trigger.active: %v", err)
	}
	if len(result.Triggers) != 1 || result.Triggers[0].Key != "p1@d1" {
		t.Errorf("triggers = %v", result.Triggers)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not stop on cancel")
	}
}

func TestWebSocketCallAndPush(t *testing.T) {
	srv, _, hs := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(hs.URL, "http") + "/rpc/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := cws.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	ch := &wsChannel{conn: conn, ctx: context.Background()}

	pushes := make(chan string, 4)
	cli := jrpc2.NewClient(ch, &jrpc2.ClientOptions{
		OnNotify: func(req *jrpc2.Request) {
			pushes <- req.Method()
		},
	})
	defer cli.Close()

	var vr VersionResult
	if err := cli.CallResult(ctx, "system.getVersion", nil, &vr); err != nil {
		t.Fatalf("getVersion over ws: %v", err)
	}
	if vr.Version != "test-version" {
		t.Errorf("version = %q", vr.Version)
	}

	// Give the server a moment to register the connection, then push.
	deadline := time.Now().Add(2 * time.Second)
	for srv.notifier.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.notifier.Count() == 0 {
		t.Fatal("websocket server never registered with the notifier")
	}
	srv.notifier.NotifyActivated("Meeting")

	select {
	case method := <-pushes:
		if method != "event.activated" {
			t.Errorf("push method = %q", method)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no push received")
	}
}
