package counters

import (
	"sync"
	"testing"

	"github.com/muurk/groundlink/internal/sequence"
)

var (
	fresh     = sequence.Outcome{Kind: sequence.Fresh}
	duplicate = sequence.Outcome{Kind: sequence.Duplicate}
)

func gap(n uint8) sequence.Outcome {
	return sequence.Outcome{Kind: sequence.Gap, Lost: n}
}

func TestStore_Record(t *testing.T) {
	tests := []struct {
		name         string
		outcomes     []sequence.Outcome
		wantReceived uint64
		wantLost     uint64
	}{
		{name: "fresh only", outcomes: []sequence.Outcome{fresh, fresh, fresh}, wantReceived: 3},
		{name: "gap counts the message", outcomes: []sequence.Outcome{fresh, gap(1)}, wantReceived: 2, wantLost: 1},
		{name: "duplicates ignored", outcomes: []sequence.Outcome{fresh, duplicate, duplicate}, wantReceived: 1},
		{name: "gaps accumulate", outcomes: []sequence.Outcome{gap(3), gap(4)}, wantReceived: 2, wantLost: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			for _, o := range tt.outcomes {
				s.Record(1, o)
			}
			if got := s.TotalReceived(1); got != tt.wantReceived {
				t.Errorf("TotalReceived = %d, want %d", got, tt.wantReceived)
			}
			if got := s.TotalLost(1); got != tt.wantLost {
				t.Errorf("TotalLost = %d, want %d", got, tt.wantLost)
			}
		})
	}
}

func TestStore_LossChanged(t *testing.T) {
	s := NewStore()

	if u := s.Record(1, fresh); u.LossChanged {
		t.Error("fresh reported a loss change")
	}
	u := s.Record(1, gap(2))
	if !u.LossChanged {
		t.Fatal("gap did not report a loss change")
	}
	if u.IntervalReceived != 2 || u.IntervalLost != 2 || u.Rate() != 0.5 {
		t.Errorf("Update = %+v, rate %v", u, u.Rate())
	}
	if u := s.Record(1, fresh); u.LossChanged {
		t.Error("fresh after gap reported a loss change")
	}

	s.ResetInterval(1)
	if u := s.Record(1, gap(2)); !u.LossChanged {
		t.Error("loss after reset not reported")
	}
}

func TestStore_DuplicateOnUnknownSource(t *testing.T) {
	s := NewStore()
	if u := s.Record(9, duplicate); u != (Update{}) {
		t.Errorf("Update = %+v, want zero", u)
	}
	if len(s.Sources()) != 0 {
		t.Errorf("Sources() = %v, want none", s.Sources())
	}
}

func TestStore_ResetInterval(t *testing.T) {
	s := NewStore()
	s.Record(1, fresh)
	s.Record(1, gap(2))
	s.Record(1, fresh)

	recv, lost := s.ResetInterval(1)
	if recv != 3 || lost != 2 {
		t.Errorf("ResetInterval = (%d, %d), want (3, 2)", recv, lost)
	}
	recv, lost = s.ResetInterval(1)
	if recv != 0 || lost != 0 {
		t.Errorf("second ResetInterval = (%d, %d), want (0, 0)", recv, lost)
	}
	if s.TotalReceived(1) != 3 || s.TotalLost(1) != 2 {
		t.Errorf("lifetime = %d/%d, want 3/2", s.TotalReceived(1), s.TotalLost(1))
	}
}

func TestStore_UnknownSource(t *testing.T) {
	s := NewStore()
	if s.TotalReceived(7) != 0 || s.TotalLost(7) != 0 {
		t.Error("unknown source has non-zero totals")
	}
	if recv, lost := s.ResetInterval(7); recv != 0 || lost != 0 {
		t.Errorf("ResetInterval(unknown) = (%d, %d)", recv, lost)
	}
}

func TestStore_Snapshot(t *testing.T) {
	s := NewStore()
	s.Record(9, fresh)
	s.Record(2, gap(1))
	s.Record(5, fresh)

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len(Snapshot) = %d, want 3", len(snap))
	}
	for i, want := range []uint8{2, 5, 9} {
		if snap[i].Source != want {
			t.Errorf("snap[%d].Source = %d, want %d", i, snap[i].Source, want)
		}
	}
	if snap[0].Lost != 1 || snap[0].LossRate() != 0.5 {
		t.Errorf("snap[0] = %+v", snap[0])
	}

	// Snapshots are copies.
	snap[0].Received = 1000
	if s.TotalReceived(2) != 1 {
		t.Error("mutating a snapshot changed the store")
	}

	if got := s.Sources(); len(got) != 3 || got[0] != 2 || got[2] != 9 {
		t.Errorf("Sources() = %v", got)
	}
}

func TestRate(t *testing.T) {
	tests := []struct {
		received, lost uint64
		want           float64
	}{
		{0, 0, 0},
		{10, 0, 0},
		{0, 5, 1},
		{3, 1, 0.25},
	}
	for _, tt := range tests {
		if got := Rate(tt.received, tt.lost); got != tt.want {
			t.Errorf("Rate(%d, %d) = %v, want %v", tt.received, tt.lost, got, tt.want)
		}
	}
}

func TestStore_Concurrent(t *testing.T) {
	s := NewStore()
	const workers, per = 8, 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				s.Record(uint8(w%2), fresh)
				if i%100 == 0 {
					_ = s.Snapshot()
				}
			}
		}(w)
	}
	wg.Wait()

	if got := s.TotalReceived(0) + s.TotalReceived(1); got != workers*per {
		t.Errorf("total received = %d, want %d", got, workers*per)
	}
}
