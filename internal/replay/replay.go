// Package replay feeds recorded traffic back through a link.Sink.
//
// Two inputs are supported: raw capture files written by the capture logger,
// which are re-chunked and delivered as a single link, and pcap/pcapng files,
// whose UDP payloads are delivered as one link per flow. Replaying a raw
// capture into a fresh dispatcher reproduces the counters of the recorded
// session.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/groundlink/internal/link"
	"github.com/muurk/groundlink/internal/logging"
)

// DefaultChunkSize matches the read buffer of the live transports.
const DefaultChunkSize = 4096

// Options controls a replay.
type Options struct {
	// ChunkSize is the delivery size for raw captures.
	ChunkSize int
	// UDPPort restricts pcap replay to datagrams with this source or
	// destination port. Zero accepts every UDP datagram.
	UDPPort uint16
	// Realtime sleeps between pcap packets according to their timestamps.
	Realtime bool
}

// Stats summarizes a finished replay.
type Stats struct {
	Chunks  int
	Bytes   int
	Flows   int
	Skipped int // pcap packets that carried no matching UDP payload
}

// source is the link handle used for replayed traffic.
type source struct {
	name string
}

func (s *source) Name() string { return s.name }

func (s *source) String() string { return s.name }

// File replays a raw capture into sink as a single link named "replay:<path>".
func File(ctx context.Context, path string, sink link.Sink, opts Options) (Stats, error) {
	var st Stats

	f, err := os.Open(path)
	if err != nil {
		return st, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	src := &source{name: "replay:" + path}
	defer sink.LinkClosed(src)

	logging.Info("Replaying capture", zap.String("path", path), zap.Int("chunk_size", size))

	buf := make([]byte, size)
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		n, err := io.ReadFull(f, buf)
		if n > 0 {
			sink.OnBytesReceived(src, buf[:n])
			st.Chunks++
			st.Bytes += n
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return st, fmt.Errorf("failed to read capture: %w", err)
		}
	}

	logging.Info("Replay finished",
		zap.String("path", path),
		zap.Int("chunks", st.Chunks),
		zap.Int("bytes", st.Bytes),
	)
	return st, nil
}

// sleepUntil waits for d or until ctx is done.
func sleepUntil(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
