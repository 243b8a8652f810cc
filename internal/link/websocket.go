package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/groundlink/internal/logging"
)

// wsClient dials a WebSocket endpoint that relays MAVLink as binary messages.
type wsClient struct {
	base
	dialer *websocket.Dialer
}

func newWSClient(cfg Config) *wsClient {
	return &wsClient{
		base: base{cfg: cfg},
		dialer: &websocket.Dialer{
			HandshakeTimeout: dialTimeout,
			ReadBufferSize:   readBufferSize,
		},
	}
}

// Run implements Transport
func (c *wsClient) Run(ctx context.Context, sink Sink) error {
	return c.runSessions(ctx, func(ctx context.Context) error {
		return c.session(ctx, sink)
	})
}

func (c *wsClient) session(ctx context.Context, sink Sink) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.Address, nil)
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

	return readMessages(&c.base, conn, s, sink)
}

// readMessages delivers binary WebSocket messages until the connection ends.
func readMessages(b *base, conn *websocket.Conn, s *Session, sink Sink) error {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errClosedByPeer
			}
			return err
		}
		if msgType != websocket.BinaryMessage {
			logging.Debug("Ignoring non-binary WebSocket message",
				zap.String("link", s.Name()),
				zap.Int("type", msgType),
			)
			continue
		}
		b.deliver(sink, s, data)
	}
}

// wsServer accepts WebSocket connections on any path.
type wsServer struct {
	base
	upgrader websocket.Upgrader

	wg      sync.WaitGroup
	mu      sync.Mutex
	addr    net.Addr
	conns   map[*websocket.Conn]struct{}
	closing bool
}

func newWSServer(cfg Config) *wsServer {
	return &wsServer{
		base: base{cfg: cfg},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: readBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Addr returns the listening address, nil before Run has bound it.
func (w *wsServer) Addr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addr
}

// Run implements Transport
func (w *wsServer) Run(ctx context.Context, sink Sink) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", w.cfg.Address)
	if err != nil {
		w.setError(err)
		return fmt.Errorf("failed to listen on %s: %w", w.cfg.Address, err)
	}

	w.mu.Lock()
	w.addr = ln.Addr()
	w.mu.Unlock()

	srv := &http.Server{
		Handler:           http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) { w.handle(rw, r, sink) }),
		ReadHeaderTimeout: dialTimeout,
	}

	logging.Info("WebSocket link listening",
		zap.String("link", w.cfg.Name),
		zap.String("addr", ln.Addr().String()),
	)
	w.setConnected(true)
	defer w.setConnected(false)

	errChan := make(chan error, 1)
	go func() {
		if w.cfg.CertPath != "" {
			errChan <- srv.ServeTLS(ln, w.cfg.CertPath, w.cfg.KeyPath)
			return
		}
		errChan <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			w.setError(err)
			w.closeAll()
			return fmt.Errorf("websocket server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	w.closeAll()
	return nil
}

func (w *wsServer) handle(rw http.ResponseWriter, r *http.Request, sink Sink) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		_ = conn.Close()
		return
	}
	w.conns[conn] = struct{}{}
	w.wg.Add(1)
	w.mu.Unlock()

	s := w.open(r.RemoteAddr)
	defer func() {
		_ = conn.Close()
		w.mu.Lock()
		delete(w.conns, conn)
		w.mu.Unlock()
		w.close(s, sink)
		w.wg.Done()
	}()

	if err := readMessages(&w.base, conn, s, sink); err != nil && !errors.Is(err, errClosedByPeer) {
		logging.Debug("WebSocket connection ended",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
	}
}

// closeAll closes hijacked connections, which http.Server.Shutdown leaves open.
func (w *wsServer) closeAll() {
	w.mu.Lock()
	w.closing = true
	for conn := range w.conns {
		_ = conn.Close()
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logging.Warn("Link shutdown timeout, abandoning connections",
			zap.String("link", w.cfg.Name))
	}
}
