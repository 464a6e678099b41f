package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	jserver "github.com/creachadair/jrpc2/server"
	"golang.org/x/sync/errgroup"
)

// Server serves the RPC methods over three transports: the HTTP bridge at
// /rpc, jrpc2-over-websocket at /rpc/ws (with event pushes), and raw
// line-delimited JSON-RPC on a TCP socket for hushctl.
type Server struct {
	l        *log.Logger
	rs       *RPCServer
	notifier *Notifier
	httpAddr string
	sockAddr string
}

// New creates a server for the given RPC method set.
func New(l *log.Logger, rs *RPCServer, notifier *Notifier, httpAddr, sockAddr string) *Server {
	return &Server{
		l:        l,
		rs:       rs,
		notifier: notifier,
		httpAddr: httpAddr,
		sockAddr: sockAddr,
	}
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/rpc", s.rs.bridge)
	mux.HandleFunc("/rpc/ws", s.handleWS)
	return mux
}

// handleWS upgrades the connection and runs a jrpc2 server over it. The
// server joins the notifier's broadcast set for as long as it lives, so
// subscribers receive event pushes without polling.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, nil)
	if err != nil {
		s.l.Printf("websocket accept failed: %v", err)
		return
	}
	ch := &wsChannel{conn: conn, ctx: r.Context()}

	// AllowPush: these servers carry the event stream; without it every
	// Notify fails and the subscriber is dropped from the broadcast set.
	srv := jrpc2.NewServer(s.rs.methods, &jrpc2.ServerOptions{AllowPush: true})
	srv.Start(ch)
	s.notifier.Register(srv)
	defer s.notifier.Unregister(srv)

	srv.Wait()
	conn.Close(cws.StatusNormalClosure, "")
}

// Run listens on the configured addresses and serves until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	httpLst, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return err
	}
	sockLst, err := net.Listen("tcp", s.sockAddr)
	if err != nil {
		httpLst.Close()
		return err
	}
	s.l.Printf("rpc bridge on http://%s/rpc, socket on %s", httpLst.Addr(), sockLst.Addr())
	return s.Serve(ctx, httpLst, sockLst)
}

// Serve runs both transports over the given listeners until ctx is
// cancelled. Split from Run so tests can pass ephemeral listeners.
func (s *Server) Serve(ctx context.Context, httpLst, sockLst net.Listener) error {
	httpSrv := &http.Server{Handler: s.handler()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutCtx)
		sockLst.Close()
		return nil
	})
	g.Go(func() error {
		if err := httpSrv.Serve(httpLst); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := jserver.Loop(ctx, jserver.NetAccepter(sockLst, channel.Line), jserver.Static(s.rs.methods), nil)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}
