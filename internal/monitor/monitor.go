// Package monitor drives the interval counters of the dispatcher.
//
// The dispatcher never resets its own interval counters. A Monitor does it on
// a fixed cadence: every tick it reads and zeroes each source's interval pair
// and turns it into a loss rate sample for the dashboard and metrics.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/groundlink/internal/counters"
	"github.com/muurk/groundlink/internal/logging"
)

// DefaultInterval is the rate sampling period.
const DefaultInterval = time.Second

// Counters is the part of the dispatcher a Monitor needs.
type Counters interface {
	Sources() []uint8
	ResetInterval(source uint8) (received, lost uint64)
}

// Sample is one source's traffic over one interval.
type Sample struct {
	Source   uint8
	Received uint64
	Lost     uint64
	Rate     float64 // lost / (received + lost)
	At       time.Time
}

// Monitor samples interval counters on a ticker.
type Monitor struct {
	src      Counters
	interval time.Duration

	mu     sync.Mutex
	latest map[uint8]Sample
}

// New creates a monitor. A non-positive interval selects DefaultInterval.
func New(src Counters, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		src:      src,
		interval: interval,
		latest:   make(map[uint8]Sample),
	}
}

// Interval returns the sampling period.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Run samples every interval until ctx is cancelled. Each batch is offered
// to out without blocking; a nil out only updates Latest.
func (m *Monitor) Run(ctx context.Context, out chan<- []Sample) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			samples := m.SampleOnce(now)
			if out == nil {
				continue
			}
			select {
			case out <- samples:
			default:
			}
		}
	}
}

// SampleOnce resets every known source's interval counters and records the
// resulting samples.
func (m *Monitor) SampleOnce(now time.Time) []Sample {
	sources := m.src.Sources()
	samples := make([]Sample, 0, len(sources))
	for _, id := range sources {
		recv, lost := m.src.ResetInterval(id)
		s := Sample{
			Source:   id,
			Received: recv,
			Lost:     lost,
			Rate:     counters.Rate(recv, lost),
			At:       now,
		}
		if lost > 0 {
			logging.Debug("Interval loss",
				zap.Uint8("sysid", id),
				zap.Uint64("received", recv),
				zap.Uint64("lost", lost),
				zap.Float64("rate", s.Rate),
			)
		}
		samples = append(samples, s)
	}

	m.mu.Lock()
	for _, s := range samples {
		m.latest[s.Source] = s
	}
	m.mu.Unlock()
	return samples
}

// Latest returns the most recent sample of every source, ordered by source.
func (m *Monitor) Latest() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Sample, 0, len(m.latest))
	for _, s := range m.latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// LatestRate returns the last sampled rate of source.
func (m *Monitor) LatestRate(source uint8) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.latest[source]
	return s.Rate, ok
}
