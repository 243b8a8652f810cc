// Package capture records the raw inbound byte stream to a file for offline
// replay.
//
// The file holds exactly the bytes received, from every link, in the order
// they were appended, with no header and no framing. At most one session is
// active at a time.
//
// Appends never block on the disk: chunks go onto a bounded queue drained by
// a single writer goroutine. A slow disk drops chunks and a failing disk
// disables the session. Stop waits for the writer at most StopTimeout.
package capture

import (
	"bufio"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/groundlink/internal/logging"
)

const (
	// DefaultQueueLen is the number of chunks buffered ahead of the writer.
	DefaultQueueLen = 1024

	// DefaultStopTimeout bounds how long Stop waits for pending chunks.
	DefaultStopTimeout = 5 * time.Second

	writeBufferSize = 32 * 1024
)

// Stats describes the active (or last) capture session.
type Stats struct {
	Path          string
	Active        bool
	BytesWritten  uint64
	ChunksDropped uint64
	Failed        bool
}

// Logger owns the capture session. The zero value is not usable; use New.
type Logger struct {
	queueLen    int
	stopTimeout time.Duration
	onError     func(error)

	mu      sync.Mutex
	session *session
	last    Stats
}

type session struct {
	path  string
	file  *os.File
	queue chan []byte
	done  chan struct{}

	failed   atomic.Bool
	written  atomic.Uint64
	dropped  atomic.Uint64
	degraded sync.Once

	closeErr error
}

// Option configures a Logger.
type Option func(*Logger)

// WithQueueLen sets the number of chunks buffered ahead of the writer.
func WithQueueLen(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.queueLen = n
		}
	}
}

// WithStopTimeout sets how long Stop waits for the writer to drain.
func WithStopTimeout(d time.Duration) Option {
	return func(l *Logger) {
		if d > 0 {
			l.stopTimeout = d
		}
	}
}

// WithErrorHandler registers a callback for write failures and dropped data.
// It runs on the writer goroutine or on Append's caller, never with the
// logger's lock held, so it may call back into the Logger.
func WithErrorHandler(fn func(error)) Option {
	return func(l *Logger) {
		l.onError = fn
	}
}

// New creates an inactive logger.
func New(opts ...Option) *Logger {
	l := &Logger{queueLen: DefaultQueueLen, stopTimeout: DefaultStopTimeout}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start creates (or truncates) path and begins recording.
func (l *Logger) Start(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session != nil {
		return ErrAlreadyLogging
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return &IOError{Op: "open", Path: path, Err: err}
	}

	s := &session{
		path:  path,
		file:  f,
		queue: make(chan []byte, l.queueLen),
		done:  make(chan struct{}),
	}
	go s.run(l.report)

	l.session = s
	logging.Info("Capture started", zap.String("path", path))
	return nil
}

// Stop drains pending chunks and closes the file. Calling Stop without an
// active session is a no-op.
//
// If the writer is still busy after the stop timeout, Stop closes the file
// under it, marks the session failed and returns ErrStopTimeout. Chunks not
// yet written are lost.
func (l *Logger) Stop() error {
	l.mu.Lock()
	s := l.session
	l.session = nil
	l.mu.Unlock()

	if s == nil {
		return nil
	}

	close(s.queue)

	timer := time.NewTimer(l.stopTimeout)
	defer timer.Stop()

	var err error
	select {
	case <-s.done:
		err = s.closeErr
	case <-timer.C:
		// Wakes a writer parked on a pipe or socket. A write stuck in the
		// kernel returns on its own and the goroutine exits after it.
		s.failed.Store(true)
		_ = s.file.Close()
		err = &IOError{Op: "stop", Path: s.path, Err: ErrStopTimeout}
	}

	st := s.stats(false)
	l.mu.Lock()
	l.last = st
	l.mu.Unlock()

	logging.Info("Capture stopped",
		zap.String("path", s.path),
		zap.Uint64("bytes_written", st.BytesWritten),
		zap.Uint64("chunks_dropped", st.ChunksDropped),
		zap.Bool("failed", st.Failed),
	)
	return err
}

// Append queues a copy of data for writing. It is a no-op when no session is
// active or the session has failed.
func (l *Logger) Append(data []byte) {
	if len(data) == 0 {
		return
	}

	// The send happens under mu so Stop cannot close the queue mid-send.
	l.mu.Lock()
	s := l.session
	if s == nil || s.failed.Load() {
		l.mu.Unlock()
		return
	}

	chunk := make([]byte, len(data))
	copy(chunk, data)

	select {
	case s.queue <- chunk:
		l.mu.Unlock()
		return
	default:
	}
	l.mu.Unlock()

	s.dropped.Add(1)
	s.degraded.Do(func() {
		l.report(&IOError{Op: "write", Path: s.path, Err: ErrQueueFull})
	})
}

// IsActive reports whether a session is recording.
func (l *Logger) IsActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session != nil
}

// Stats returns the active session's counters, or the last session's after Stop.
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session != nil {
		return l.session.stats(true)
	}
	return l.last
}

func (l *Logger) report(err error) {
	logging.Warn("Capture degraded", zap.Error(err))
	if l.onError != nil {
		l.onError(err)
	}
}

func (s *session) stats(active bool) Stats {
	return Stats{
		Path:          s.path,
		Active:        active,
		BytesWritten:  s.written.Load(),
		ChunksDropped: s.dropped.Load(),
		Failed:        s.failed.Load(),
	}
}

// run is the writer goroutine. It owns the file and the buffered writer.
func (s *session) run(report func(error)) {
	defer close(s.done)

	w := bufio.NewWriterSize(s.file, writeBufferSize)
	fail := func(op string, err error) {
		if s.failed.CompareAndSwap(false, true) {
			report(&IOError{Op: op, Path: s.path, Err: err})
		}
	}

	for chunk := range s.queue {
		if s.failed.Load() {
			continue
		}
		n, err := w.Write(chunk)
		s.written.Add(uint64(n))
		if err != nil {
			fail("write", err)
			continue
		}
		// Flush whenever we catch up so the file tracks the live stream.
		if len(s.queue) == 0 {
			if err := w.Flush(); err != nil {
				fail("flush", err)
			}
		}
	}

	var err error
	if !s.failed.Load() {
		if ferr := w.Flush(); ferr != nil {
			err = multierr.Append(err, &IOError{Op: "flush", Path: s.path, Err: ferr})
		}
	}
	if cerr := s.file.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
		err = multierr.Append(err, &IOError{Op: "close", Path: s.path, Err: cerr})
	}
	s.closeErr = err
}
