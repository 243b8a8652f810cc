package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goburrow/serial"
	"go.uber.org/zap"

	"github.com/muurk/groundlink/internal/logging"
)

// serialReadTimeout lets the read loop notice cancellation on a quiet port.
const serialReadTimeout = 500 * time.Millisecond

// serialTransport reads a telemetry radio or autopilot USB port, 8N1.
type serialTransport struct {
	base
	open func(*serial.Config) (serial.Port, error)
}

func newSerial(cfg Config) *serialTransport {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	return &serialTransport{
		base: base{cfg: cfg},
		open: serial.Open,
	}
}

// Run implements Transport
func (t *serialTransport) Run(ctx context.Context, sink Sink) error {
	return t.runSessions(ctx, func(ctx context.Context) error {
		return t.session(ctx, sink)
	})
}

func (t *serialTransport) session(ctx context.Context, sink Sink) error {
	port, err := t.open(&serial.Config{
		Address:  t.cfg.Address,
		BaudRate: t.cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  serialReadTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", t.cfg.Address, err)
	}
	defer port.Close()

	logging.Info("Serial link opened",
		zap.String("link", t.cfg.Name),
		zap.String("port", t.cfg.Address),
		zap.Int("baud", t.cfg.BaudRate),
	)

	s := t.base.open("")
	t.setConnected(true)
	defer func() {
		t.setConnected(false)
		t.close(s, sink)
	}()

	buf := make([]byte, readBufferSize)
	for ctx.Err() == nil {
		n, err := port.Read(buf)
		if n > 0 {
			t.deliver(sink, s, buf[:n])
		}
		if err != nil {
			if errors.Is(err, serial.ErrTimeout) {
				continue
			}
			return fmt.Errorf("serial read: %w", err)
		}
	}
	return nil
}
