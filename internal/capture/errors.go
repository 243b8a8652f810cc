package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyLogging is returned by Start while a session is active.
	ErrAlreadyLogging = errors.New("capture: already logging")

	// ErrIO is matched by every IOError.
	ErrIO = errors.New("capture: I/O error")

	// ErrQueueFull is reported when the disk cannot keep up and chunks are dropped.
	ErrQueueFull = errors.New("capture: write queue full, dropping data")

	// ErrStopTimeout is returned by Stop when the writer did not drain in time.
	ErrStopTimeout = errors.New("capture: writer did not finish before stop timeout")
)

// IOError describes a failed open, write or close of the capture file.
type IOError struct {
	Op   string // "open", "write", "flush", "close" or "stop"
	Path string
	Err  error
}

// Error implements the error interface
func (e *IOError) Error() string {
	return fmt.Sprintf("capture %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying os error
func (e *IOError) Unwrap() error {
	return e.Err
}

// Is matches ErrIO
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}
