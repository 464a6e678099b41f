// Package hushcli is the client library for the hushd daemon. It speaks
// line-delimited JSON-RPC 2.0 over the daemon's control socket and wraps
// every method in a typed call.
package hushcli

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"

	"github.com/hushd/hushd/common"
)

// DialTimeout bounds the initial connection to the daemon socket.
const DialTimeout = 5 * time.Second

// Client is a connection to a running hushd daemon.
type Client struct {
	conn net.Conn
	cli  *jrpc2.Client
}

// NewClient connects to the daemon's control socket. An empty addr falls
// back to the HUSHD_SOCKET_ADDR environment variable, then to the default
// socket address.
func NewClient(addr string) (*Client, error) {
	if addr == "" {
		addr = os.Getenv(common.SocketAddrEnv)
	}
	if addr == "" {
		addr = common.DefaultSocketAddr
	}
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("error: cannot connect to hushd at %s: %w", addr, err)
	}
	return &Client{
		conn: conn,
		cli:  jrpc2.NewClient(channel.Line(conn, conn), nil),
	}, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.cli.Close()
	return c.conn.Close()
}

func invoke[T any](c *Client, method string, params any) (*T, error) {
	var out T
	if err := c.cli.CallResult(context.Background(), method, params, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return &out, nil
}
