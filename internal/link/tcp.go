package link

import (
	"context"
	"fmt"
	"net"
	"time"
)

const dialTimeout = 5 * time.Second

// tcpClient dials a remote MAVLink TCP endpoint such as SITL on :5760.
type tcpClient struct {
	base
}

func newTCPClient(cfg Config) *tcpClient {
	return &tcpClient{base: base{cfg: cfg}}
}

// Run implements Transport
func (c *tcpClient) Run(ctx context.Context, sink Sink) error {
	return c.runSessions(ctx, func(ctx context.Context) error {
		return c.session(ctx, sink)
	})
}

func (c *tcpClient) session(ctx context.Context, sink Sink) error {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.cfg.Address, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	s := c.open("")
	c.setConnected(true)
	defer func() {
		c.setConnected(false)
		c.close(s, sink)
	}()

	return c.readStream(conn, s, sink)
}
