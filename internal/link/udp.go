package link

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/groundlink/internal/logging"
)

// udpTransport listens for datagrams. Each remote address is a session.
type udpTransport struct {
	base

	addrMu sync.Mutex
	addr   net.Addr
	peers  map[string]*Session
}

func newUDP(cfg Config) *udpTransport {
	return &udpTransport{
		base:  base{cfg: cfg},
		peers: make(map[string]*Session),
	}
}

// Addr returns the bound address, nil before Run has bound it.
func (u *udpTransport) Addr() net.Addr {
	u.addrMu.Lock()
	defer u.addrMu.Unlock()
	return u.addr
}

// Run implements Transport
func (u *udpTransport) Run(ctx context.Context, sink Sink) error {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", u.cfg.Address)
	if err != nil {
		u.setError(err)
		return fmt.Errorf("failed to listen on %s: %w", u.cfg.Address, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = pc.Close() })
	defer stop()
	defer pc.Close()

	u.addrMu.Lock()
	u.addr = pc.LocalAddr()
	u.addrMu.Unlock()
	u.setConnected(true)
	defer u.setConnected(false)

	logging.Info("UDP link listening",
		zap.String("link", u.cfg.Name),
		zap.String("addr", pc.LocalAddr().String()),
	)

	defer func() {
		for key, s := range u.peers {
			u.close(s, sink)
			delete(u.peers, key)
		}
	}()

	buf := make([]byte, 65535)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			u.setError(err)
			return fmt.Errorf("udp read: %w", err)
		}
		if n == 0 {
			continue
		}

		key := from.String()
		s, ok := u.peers[key]
		if !ok {
			s = u.open(key)
			u.peers[key] = s
		}
		u.deliver(sink, s, buf[:n])
	}
}
