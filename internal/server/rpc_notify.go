package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/creachadair/jrpc2"

	"github.com/hushd/hushd/common"
	"github.com/hushd/hushd/pkg/hushlib"
)

// Notifier maintains the set of connected websocket jrpc2 servers and
// broadcasts event pushes to all of them. It implements
// hushlib.NotificationSink, so the reconciliation engine can be wired to it
// directly.
type Notifier struct {
	mu      sync.RWMutex
	servers map[*jrpc2.Server]struct{}
	log     *log.Logger
	now     func() time.Time
}

// NewNotifier creates an empty notifier.
func NewNotifier(l *log.Logger) *Notifier {
	return &Notifier{
		servers: make(map[*jrpc2.Server]struct{}),
		log:     l,
		now:     time.Now,
	}
}

// Register adds a server to the broadcast set.
func (n *Notifier) Register(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.servers[srv] = struct{}{}
}

// Unregister removes a server from the broadcast set.
func (n *Notifier) Unregister(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.servers, srv)
}

// Count returns the number of registered servers.
func (n *Notifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.servers)
}

// Broadcast sends a push notification to every registered server. Servers
// that fail to receive are unregistered.
func (n *Notifier) Broadcast(method string, params any) {
	n.mu.RLock()
	servers := make([]*jrpc2.Server, 0, len(n.servers))
	for srv := range n.servers {
		servers = append(servers, srv)
	}
	n.mu.RUnlock()

	var failed []*jrpc2.Server
	for _, srv := range servers {
		if err := srv.Notify(context.Background(), method, params); err != nil {
			n.log.Printf("event push failed: %v", err)
			failed = append(failed, srv)
		}
	}

	if len(failed) > 0 {
		n.mu.Lock()
		for _, srv := range failed {
			delete(n.servers, srv)
		}
		n.mu.Unlock()
	}
}

// push broadcasts off the caller's goroutine: a slow or panicking
// subscriber must not stall the reconciliation engine.
func (n *Notifier) push(method string, ev *common.Event) {
	hushlib.SafeGo(n.log, "event push", func() {
		n.Broadcast(method, ev)
	})
}

// NotifyActivated implements hushlib.NotificationSink.
func (n *Notifier) NotifyActivated(profileName string) {
	n.push("event.activated", &common.Event{
		Type:    common.EventActivated,
		Profile: profileName,
		At:      n.now().Unix(),
	})
}

// NotifyDeactivated implements hushlib.NotificationSink.
func (n *Notifier) NotifyDeactivated(profileName string) {
	n.push("event.deactivated", &common.Event{
		Type:    common.EventDeactivated,
		Profile: profileName,
		At:      n.now().Unix(),
	})
}

// NotifyPermissionRequired implements hushlib.NotificationSink.
func (n *Notifier) NotifyPermissionRequired(kind string) {
	n.push("event.permissionRequired", &common.Event{
		Type: common.EventPermissionRequired,
		Kind: kind,
		At:   n.now().Unix(),
	})
}
