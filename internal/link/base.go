package link

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/muurk/groundlink/internal/logging"
)

const (
	reconnectInitial = 500 * time.Millisecond
	reconnectMax     = 30 * time.Second

	// A session that stayed up this long resets the backoff.
	stableSession = 10 * time.Second
)

// errClosedByPeer is reported when a stream ends without an error.
var errClosedByPeer = errors.New("connection closed by peer")

// base carries the bookkeeping every transport shares.
type base struct {
	cfg Config

	mu        sync.Mutex
	sessions  int
	connected bool
	lastErr   string
	bytesIn   atomic.Uint64
}

// Config returns the link configuration.
func (b *base) Config() Config {
	return b.cfg
}

// Status returns a snapshot of the link state.
func (b *base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		Name:      b.cfg.Name,
		Type:      b.cfg.Type,
		Address:   b.cfg.Address,
		Sessions:  b.sessions,
		Connected: b.connected,
		BytesIn:   b.bytesIn.Load(),
		LastError: b.lastErr,
	}
}

func (b *base) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}

func (b *base) setError(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	b.lastErr = err.Error()
	b.mu.Unlock()
}

func (b *base) open(remote string) *Session {
	s := newSession(b.cfg.Name, remote)
	b.mu.Lock()
	b.sessions++
	b.mu.Unlock()
	logging.LogLinkEvent(s.Name(), "opened", zap.Uint64("session", s.ID()))
	return s
}

func (b *base) close(s *Session, sink Sink) {
	b.mu.Lock()
	b.sessions--
	b.mu.Unlock()
	sink.LinkClosed(s)
}

func (b *base) deliver(sink Sink, s *Session, data []byte) {
	b.bytesIn.Add(uint64(len(data)))
	sink.OnBytesReceived(s, data)
}

// readStream copies r to sink until r fails. A clean EOF is reported as
// errClosedByPeer.
func (b *base) readStream(r io.Reader, s *Session, sink Sink) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			b.deliver(sink, s, buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errClosedByPeer
			}
			return err
		}
	}
}

func newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = reconnectInitial
	bo.MaxInterval = reconnectMax
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// runSessions calls connect until ctx is cancelled, waiting with exponential
// backoff between attempts. Without Reconnect the first failure is returned.
func (b *base) runSessions(ctx context.Context, connect func(ctx context.Context) error) error {
	bo := newBackOff()
	for {
		start := time.Now()
		err := connect(ctx)
		if ctx.Err() != nil {
			return nil
		}
		b.setError(err)
		if !b.cfg.Reconnect {
			return err
		}
		if time.Since(start) > stableSession {
			bo.Reset()
		}

		wait := bo.NextBackOff()
		logging.LogLinkEvent(b.cfg.Name, "reconnecting",
			zap.Error(err),
			zap.Duration("backoff", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
