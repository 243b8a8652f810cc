package link

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/groundlink/internal/logging"
)

// Manager runs a set of transports, one goroutine each, feeding one sink.
type Manager struct {
	sink Sink

	mu         sync.Mutex
	transports []Transport
	ctx        context.Context
	cancel     context.CancelFunc
	errs       error
	wg         sync.WaitGroup
}

// NewManager creates a manager delivering to sink.
func NewManager(sink Sink) *Manager {
	return &Manager{sink: sink}
}

// Add creates a transport for cfg. Links added after Start are started
// immediately.
func (m *Manager) Add(cfg Config) (Transport, error) {
	t, err := New(cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.transports = append(m.transports, t)
	if m.ctx != nil {
		m.run(m.ctx, t)
	}
	return t, nil
}

// Start runs every added transport until Stop or ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ctx, m.cancel = context.WithCancel(ctx)
	for _, t := range m.transports {
		m.run(m.ctx, t)
	}
}

func (m *Manager) run(ctx context.Context, t Transport) {
	cfg := t.Config()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		logging.LogLinkEvent(cfg.Name, "started",
			zap.String("type", string(cfg.Type)),
			zap.String("address", cfg.Address),
		)
		if err := t.Run(ctx, m.sink); err != nil {
			logging.Error("Link stopped", zap.String("link", cfg.Name), zap.Error(err))
			m.mu.Lock()
			m.errs = multierr.Append(m.errs, fmt.Errorf("link %s: %w", cfg.Name, err))
			m.mu.Unlock()
			return
		}
		logging.LogLinkEvent(cfg.Name, "stopped")
	}()
}

// Stop cancels every transport, waits for them and returns their combined
// failures.
func (m *Manager) Stop() error {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs
}

// Transports returns the managed transports.
func (m *Manager) Transports() []Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transport, len(m.transports))
	copy(out, m.transports)
	return out
}

// Status returns the state of every link.
func (m *Manager) Status() []Status {
	ts := m.Transports()
	out := make([]Status, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Status())
	}
	return out
}
