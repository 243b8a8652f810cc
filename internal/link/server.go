package link

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/groundlink/internal/logging"
)

// shutdownTimeout bounds how long Run waits for connection goroutines.
const shutdownTimeout = 10 * time.Second

// tcpServer accepts vehicle or relay connections. Every accepted connection
// is its own session.
type tcpServer struct {
	base
	tlsConfig *tls.Config

	wg          sync.WaitGroup
	connMu      sync.Mutex
	listener    net.Listener
	activeConns map[string]net.Conn
	closing     bool
}

func newTCPServer(cfg Config) (*tcpServer, error) {
	s := &tcpServer{
		base:        base{cfg: cfg},
		activeConns: make(map[string]net.Conn),
	}
	if cfg.CertPath != "" {
		tlsConfig, err := NewTLSConfig(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, err
		}
		s.tlsConfig = tlsConfig
	}
	return s, nil
}

// Addr returns the listening address, nil before Run has bound it.
func (s *tcpServer) Addr() net.Addr {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run implements Transport
func (s *tcpServer) Run(ctx context.Context, sink Sink) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		s.setError(err)
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	s.connMu.Lock()
	s.listener = ln
	s.connMu.Unlock()
	s.setConnected(true)

	logging.Info("TCP link listening",
		zap.String("link", s.cfg.Name),
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", s.tlsConfig != nil),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.acceptConnections(sink)
	}()

	select {
	case <-ctx.Done():
		s.closeListener()
		<-errChan
		s.shutdown()
		return nil
	case err := <-errChan:
		s.closeListener()
		s.shutdown()
		return err
	}
}

func (s *tcpServer) acceptConnections(sink Sink) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				logging.Warn("Temporary accept failure", zap.Error(err))
				continue
			}
			s.setError(err)
			return fmt.Errorf("accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn, sink)
		}()
	}
}

func (s *tcpServer) handleConnection(conn net.Conn, sink Sink) {
	remoteAddr := conn.RemoteAddr().String()

	s.connMu.Lock()
	if s.closing {
		s.connMu.Unlock()
		_ = conn.Close()
		return
	}
	s.activeConns[remoteAddr] = conn
	s.connMu.Unlock()

	session := s.open(remoteAddr)
	defer func() {
		_ = conn.Close()
		s.connMu.Lock()
		delete(s.activeConns, remoteAddr)
		s.connMu.Unlock()
		s.close(session, sink)
	}()

	if tlsConn, ok := conn.(*tls.Conn); ok {
		if err := tlsConn.Handshake(); err != nil {
			logging.Error("TLS handshake failed",
				zap.String("remote_addr", remoteAddr),
				zap.Error(err),
			)
			return
		}
	}

	if err := s.readStream(conn, session, sink); err != nil && !errors.Is(err, net.ErrClosed) {
		logging.Debug("Connection ended",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
	}
}

func (s *tcpServer) closeListener() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logging.Error("Error closing listener", zap.Error(err))
	}
}

// shutdown closes every connection and waits for their goroutines. The
// accept loop must have exited.
func (s *tcpServer) shutdown() {
	s.connMu.Lock()
	s.closing = true
	for addr, conn := range s.activeConns {
		logging.Debug("Closing active connection", zap.String("remote_addr", addr))
		_ = conn.Close()
	}
	s.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logging.Warn("Link shutdown timeout, abandoning connections",
			zap.String("link", s.cfg.Name))
	}
	s.setConnected(false)
}

// ActiveConnections returns the number of open connections.
func (s *tcpServer) ActiveConnections() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.activeConns)
}
