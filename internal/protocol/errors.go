package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformed is matched by every DecodeError.
var ErrMalformed = errors.New("malformed MAVLink data")

// ErrUnknownMessage wraps frames whose message ID the dialect does not
// define. Their checksum cannot be verified.
var ErrUnknownMessage = errors.New("message ID not in dialect")

// DecodeError describes a candidate frame that failed validation.
type DecodeError struct {
	Link   string // link name, for diagnostics
	Offset int    // byte offset of the rejected frame within the framer buffer
	Length int    // length the header claimed
	Err    error  // underlying decoder error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: frame of %d bytes at offset %d on %s: %v",
		ErrMalformed, e.Length, e.Offset, e.Link, e.Err)
}

// Unwrap returns the underlying decoder error
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports ErrMalformed as a match so callers need not know the concrete type
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformed
}
