package protocol

import (
	"sync"
	"testing"

	"github.com/muurk/groundlink/internal/protocol/protocoltest"
)

func TestCodec_PerLinkFraming(t *testing.T) {
	c, err := NewCodec(nil)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	a := protocoltest.Link("a")
	b := protocoltest.Link("b")
	hbA := protocoltest.Heartbeat(1, 0)
	hbB := protocoltest.Heartbeat(2, 0)

	// Interleave halves; each link must reassemble only its own bytes.
	if res := c.Decode(a, hbA[:8]); len(res.Messages) != 0 {
		t.Fatalf("a first half: %d messages", len(res.Messages))
	}
	if res := c.Decode(b, hbB[:4]); len(res.Messages) != 0 {
		t.Fatalf("b first half: %d messages", len(res.Messages))
	}

	resA := c.Decode(a, hbA[8:])
	resB := c.Decode(b, hbB[4:])
	if len(resA.Messages) != 1 || resA.Messages[0].SystemID != 1 {
		t.Errorf("link a: %+v", resA)
	}
	if len(resB.Messages) != 1 || resB.Messages[0].SystemID != 2 {
		t.Errorf("link b: %+v", resB)
	}
	if c.Links() != 2 {
		t.Errorf("Links() = %d, want 2", c.Links())
	}
}

func TestCodec_Release(t *testing.T) {
	c, err := NewCodec(nil)
	if err != nil {
		t.Fatal(err)
	}
	link := protocoltest.NewSession("udp")
	hb := protocoltest.Heartbeat(1, 0)

	c.Decode(link, hb[:10])
	if _, ok := c.LinkStats(link); !ok {
		t.Fatal("LinkStats() ok = false for active link")
	}

	c.Release(link)
	if _, ok := c.LinkStats(link); ok {
		t.Error("LinkStats() ok = true after Release")
	}

	// The partial frame is gone; the tail alone is noise.
	res := c.Decode(link, hb[10:])
	if len(res.Messages) != 0 {
		t.Errorf("got %d messages after Release, want 0", len(res.Messages))
	}
}

func TestCodec_DialectVersion(t *testing.T) {
	c, err := NewCodec(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.DialectVersion(); got != protocoltest.DialectVersion {
		t.Errorf("DialectVersion() = %d, want %d", got, protocoltest.DialectVersion)
	}
}

func TestCodec_ConcurrentLinks(t *testing.T) {
	c, err := NewCodec(nil)
	if err != nil {
		t.Fatal(err)
	}

	const links = 8
	var wg sync.WaitGroup
	counts := make([]int, links)
	for i := 0; i < links; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			link := protocoltest.NewSession("link")
			for seq := 0; seq < 100; seq++ {
				res := c.Decode(link, protocoltest.Heartbeat(uint8(i+1), uint8(seq)))
				counts[i] += len(res.Messages)
			}
		}(i)
	}
	wg.Wait()

	for i, n := range counts {
		if n != 100 {
			t.Errorf("link %d decoded %d messages, want 100", i, n)
		}
	}
}
