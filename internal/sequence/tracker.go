// Package sequence detects lost and duplicated MAVLink messages from the
// wrapping 8-bit sequence number each sender stamps on its frames.
//
// State is kept per (link, source system) pair. A vehicle reachable over two
// redundant links is tracked twice, once per link, so the two streams never
// contaminate each other's gap detection.
//
// The sequence space is 256 wide. A jump of exactly 256 messages is
// indistinguishable from no loss at all; that is a limit of the wire format.
package sequence

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/muurk/groundlink/internal/protocol"
)

const (
	// DefaultDuplicateWindow is how far behind the last seen sequence number a
	// message may arrive and still be treated as a stale redelivery.
	DefaultDuplicateWindow = 16

	// MaxDuplicateWindow keeps the window well inside half the sequence space.
	MaxDuplicateWindow = 128
)

// Kind classifies an arriving message.
type Kind int

const (
	Fresh Kind = iota
	Duplicate
	Gap
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case Fresh:
		return "fresh"
	case Duplicate:
		return "duplicate"
	case Gap:
		return "gap"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Outcome is the result of classifying one message. Lost is non-zero only
// for Gap.
type Outcome struct {
	Kind Kind
	Lost uint8
}

// String returns e.g. "gap(3)"
func (o Outcome) String() string {
	if o.Kind == Gap {
		return fmt.Sprintf("gap(%d)", o.Lost)
	}
	return o.Kind.String()
}

// Key identifies one tracked stream.
type Key struct {
	Link   protocol.LinkHandle
	Source uint8
}

type state struct {
	last uint8
}

// Tracker holds the last seen sequence number of every stream.
type Tracker struct {
	window uint8
	states *xsync.MapOf[Key, state]
}

// NewTracker creates a tracker. A window of 0 selects DefaultDuplicateWindow.
func NewTracker(window int) *Tracker {
	switch {
	case window <= 0:
		window = DefaultDuplicateWindow
	case window > MaxDuplicateWindow:
		window = MaxDuplicateWindow
	}
	return &Tracker{
		window: uint8(window),
		states: xsync.NewMapOf[Key, state](),
	}
}

// Classify records seq for (link, source) and reports how it relates to the
// previous message of that stream. Read, classify and update happen as one
// atomic step per key.
func (t *Tracker) Classify(link protocol.LinkHandle, source, seq uint8) Outcome {
	var out Outcome
	t.states.Compute(Key{Link: link, Source: source}, func(old state, loaded bool) (state, bool) {
		if !loaded {
			out = Outcome{Kind: Fresh}
			return state{last: seq}, false
		}
		out = classify(old.last, seq, t.window)
		if out.Kind == Duplicate {
			return old, false
		}
		return state{last: seq}, false
	})
	return out
}

// classify compares seq against last. uint8 arithmetic wraps mod 256.
func classify(last, seq, window uint8) Outcome {
	expected := last + 1
	if seq == expected {
		return Outcome{Kind: Fresh}
	}
	if behind := last - seq; behind < window {
		return Outcome{Kind: Duplicate}
	}
	return Outcome{Kind: Gap, Lost: seq - expected}
}

// Last returns the last accepted sequence number of a stream.
func (t *Tracker) Last(link protocol.LinkHandle, source uint8) (uint8, bool) {
	s, ok := t.states.Load(Key{Link: link, Source: source})
	return s.last, ok
}

// Len returns the number of tracked streams.
func (t *Tracker) Len() int {
	return t.states.Size()
}

// Window returns the duplicate window in use.
func (t *Tracker) Window() int {
	return int(t.window)
}
