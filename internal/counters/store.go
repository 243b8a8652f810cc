// Package counters accumulates per-source-system message accounting.
//
// Every source system has lifetime totals and an "interval" pair that a
// caller reads and zeroes on its own cadence to compute a loss rate. Counters
// are keyed by source system alone, aggregated across links.
package counters

import (
	"sort"
	"sync"

	"github.com/muurk/groundlink/internal/sequence"
)

// Update is returned by Record with the post-record interval view.
type Update struct {
	IntervalReceived uint64
	IntervalLost     uint64
	// LossChanged is true when IntervalLost differs from the value last
	// reported for this source. Reporting it updates the marker.
	LossChanged bool
}

// Rate returns the interval loss rate carried by the update.
func (u Update) Rate() float64 {
	return Rate(u.IntervalReceived, u.IntervalLost)
}

// Snapshot is a plain-value copy of one source's counters.
type Snapshot struct {
	Source           uint8
	Received         uint64
	Lost             uint64
	IntervalReceived uint64
	IntervalLost     uint64
}

// LossRate returns the lifetime loss rate.
func (s Snapshot) LossRate() float64 {
	return Rate(s.Received, s.Lost)
}

type entry struct {
	received         uint64
	lost             uint64
	intervalReceived uint64
	intervalLost     uint64
	reportedLost     uint64
}

// Store is safe for concurrent use. A single mutex serialises all access.
type Store struct {
	mu      sync.Mutex
	entries map[uint8]*entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[uint8]*entry)}
}

// Record applies a sequence outcome to a source's counters.
func (s *Store) Record(source uint8, out sequence.Outcome) Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[source]
	if !ok {
		if out.Kind == sequence.Duplicate {
			return Update{}
		}
		e = &entry{}
		s.entries[source] = e
	}

	switch out.Kind {
	case sequence.Fresh:
		e.received++
		e.intervalReceived++
	case sequence.Gap:
		e.received++
		e.intervalReceived++
		e.lost += uint64(out.Lost)
		e.intervalLost += uint64(out.Lost)
	}

	u := Update{
		IntervalReceived: e.intervalReceived,
		IntervalLost:     e.intervalLost,
	}
	if e.intervalLost != e.reportedLost {
		u.LossChanged = true
		e.reportedLost = e.intervalLost
	}
	return u
}

// TotalReceived returns the lifetime received count (0 for unknown sources).
func (s *Store) TotalReceived(source uint8) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[source]; ok {
		return e.received
	}
	return 0
}

// TotalLost returns the lifetime lost count (0 for unknown sources).
func (s *Store) TotalLost(source uint8) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[source]; ok {
		return e.lost
	}
	return 0
}

// ResetInterval returns the interval pair accumulated since the previous reset
// and zeroes it. Lifetime totals are untouched.
func (s *Store) ResetInterval(source uint8) (received, lost uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[source]
	if !ok {
		return 0, 0
	}
	received, lost = e.intervalReceived, e.intervalLost
	e.intervalReceived = 0
	e.intervalLost = 0
	e.reportedLost = 0
	return received, lost
}

// Sources returns every source with recorded activity, ascending.
func (s *Store) Sources() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]uint8, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot copies every entry, ordered by source.
func (s *Store) Snapshot() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Snapshot, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, Snapshot{
			Source:           id,
			Received:         e.received,
			Lost:             e.lost,
			IntervalReceived: e.intervalReceived,
			IntervalLost:     e.intervalLost,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Rate returns lost / (received + lost), or 0 when nothing was counted.
func Rate(received, lost uint64) float64 {
	total := received + lost
	if total == 0 {
		return 0
	}
	return float64(lost) / float64(total)
}
