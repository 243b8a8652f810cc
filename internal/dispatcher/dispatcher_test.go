package dispatcher

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/muurk/groundlink/internal/capture"
	"github.com/muurk/groundlink/internal/protocol"
	"github.com/muurk/groundlink/internal/protocol/protocoltest"
)

// recorder collects notifications.
type recorder struct {
	mu       sync.Mutex
	messages []*protocol.Message
	rates    map[uint8][]float64
	statuses []string
}

func newRecorder() *recorder {
	return &recorder{rates: make(map[uint8][]float64)}
}

func (r *recorder) MessageReceived(_ protocol.LinkHandle, msg *protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) LossRateChanged(source uint8, rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[source] = append(r.rates[source], rate)
}

func (r *recorder) StatusMessage(title, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, title)
}

func (r *recorder) hasStatus(title string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.statuses {
		if s == title {
			return true
		}
	}
	return false
}

func (r *recorder) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func newTestDispatcher(t *testing.T, cfg Config) (*Dispatcher, *recorder) {
	t.Helper()
	codec, err := protocol.NewCodec(nil)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	d := New(cfg, codec)
	t.Cleanup(func() { _ = d.Close() })

	rec := newRecorder()
	d.Subscribe(rec)
	return d, rec
}

func TestDispatcher_IncrementingSequenceHasNoLoss(t *testing.T) {
	d, rec := newTestDispatcher(t, DefaultConfig())
	link := protocoltest.Link("udp")

	const n = 600 // wraps the sequence space twice
	for i := 0; i < n; i++ {
		d.OnBytesReceived(link, protocoltest.Heartbeat(1, uint8(i)))
	}

	if got := d.TotalReceived(1); got != n {
		t.Errorf("TotalReceived = %d, want %d", got, n)
	}
	if got := d.TotalLost(1); got != 0 {
		t.Errorf("TotalLost = %d, want 0", got)
	}
	if rec.messageCount() != n {
		t.Errorf("MessageReceived called %d times, want %d", rec.messageCount(), n)
	}
	if len(rec.rates[1]) != 0 {
		t.Errorf("LossRateChanged called %d times, want 0", len(rec.rates[1]))
	}
}

func TestDispatcher_SingleGap(t *testing.T) {
	d, rec := newTestDispatcher(t, DefaultConfig())
	link := protocoltest.Link("udp")

	for _, seq := range []uint8{3, 4, 5} {
		d.OnBytesReceived(link, protocoltest.Heartbeat(1, seq))
	}
	before := d.TotalReceived(1)

	d.OnBytesReceived(link, protocoltest.Heartbeat(1, 7))

	if got := d.TotalLost(1); got != 1 {
		t.Errorf("TotalLost = %d, want 1", got)
	}
	if got := d.TotalReceived(1) - before; got != 1 {
		t.Errorf("TotalReceived grew by %d, want 1", got)
	}
	rates := rec.rates[1]
	if len(rates) != 1 {
		t.Fatalf("LossRateChanged called %d times, want 1", len(rates))
	}
	// interval: 4 received, 1 lost
	if want := 1.0 / 5.0; rates[0] != want {
		t.Errorf("rate = %v, want %v", rates[0], want)
	}
}

func TestDispatcher_LinksAreIndependent(t *testing.T) {
	d, _ := newTestDispatcher(t, DefaultConfig())
	a := protocoltest.Link("radio")
	b := protocoltest.Link("wifi")

	// Same vehicle on two links with unrelated sequence counters.
	for i := 0; i < 50; i++ {
		d.OnBytesReceived(a, protocoltest.Heartbeat(1, uint8(i)))
		d.OnBytesReceived(b, protocoltest.Heartbeat(1, uint8(200+i)))
	}

	if got := d.TotalLost(1); got != 0 {
		t.Errorf("TotalLost = %d, want 0", got)
	}
	if got := d.TotalReceived(1); got != 100 {
		t.Errorf("TotalReceived = %d, want 100", got)
	}
	if got := d.Streams(); got != 2 {
		t.Errorf("Streams() = %d, want 2", got)
	}
}

func TestDispatcher_DuplicateDoesNotCount(t *testing.T) {
	d, rec := newTestDispatcher(t, DefaultConfig())
	link := protocoltest.Link("udp")

	d.OnBytesReceived(link, protocoltest.Heartbeat(1, 10))
	d.OnBytesReceived(link, protocoltest.Heartbeat(1, 11))
	recv, lost := d.TotalReceived(1), d.TotalLost(1)

	d.OnBytesReceived(link, protocoltest.Heartbeat(1, 11))

	if d.TotalReceived(1) != recv || d.TotalLost(1) != lost {
		t.Errorf("counters changed: received %d->%d lost %d->%d",
			recv, d.TotalReceived(1), lost, d.TotalLost(1))
	}
	// Duplicates are still delivered.
	if rec.messageCount() != 3 {
		t.Errorf("MessageReceived called %d times, want 3", rec.messageCount())
	}
}

func TestDispatcher_ResetInterval(t *testing.T) {
	d, _ := newTestDispatcher(t, DefaultConfig())
	link := protocoltest.Link("udp")

	d.OnBytesReceived(link, protocoltest.Stream(1, 0, 1, 2, 5))

	recv, lost := d.ResetInterval(1)
	if recv != 4 || lost != 2 {
		t.Errorf("ResetInterval = (%d, %d), want (4, 2)", recv, lost)
	}
	recv, lost = d.ResetInterval(1)
	if recv != 0 || lost != 0 {
		t.Errorf("second ResetInterval = (%d, %d), want (0, 0)", recv, lost)
	}
	if d.TotalReceived(1) != 4 || d.TotalLost(1) != 2 {
		t.Errorf("lifetime totals changed: %d/%d", d.TotalReceived(1), d.TotalLost(1))
	}
}

func TestDispatcher_UnknownSource(t *testing.T) {
	d, _ := newTestDispatcher(t, DefaultConfig())
	if d.TotalReceived(42) != 0 || d.TotalLost(42) != 0 {
		t.Error("unknown source has non-zero counts")
	}
	if recv, lost := d.ResetInterval(42); recv != 0 || lost != 0 {
		t.Errorf("ResetInterval(unknown) = (%d, %d)", recv, lost)
	}
}

func TestDispatcher_Capture(t *testing.T) {
	d, _ := newTestDispatcher(t, DefaultConfig())
	link := protocoltest.Link("udp")
	path := filepath.Join(t.TempDir(), "flight.raw")

	if err := d.StartCapture(path); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}
	if !d.IsCapturing() {
		t.Fatal("IsCapturing() = false")
	}

	b1 := protocoltest.Heartbeat(1, 0)
	b2 := []byte("garbage between frames")
	d.OnBytesReceived(link, b1)
	d.OnBytesReceived(link, b2)

	other := filepath.Join(t.TempDir(), "other.raw")
	if err := d.StartCapture(other); !errors.Is(err, capture.ErrAlreadyLogging) {
		t.Errorf("second StartCapture() error = %v, want ErrAlreadyLogging", err)
	}

	if err := d.StopCapture(); err != nil {
		t.Fatalf("StopCapture() error = %v", err)
	}
	if d.IsCapturing() {
		t.Error("IsCapturing() = true after StopCapture")
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := append(append([]byte{}, b1...), b2...)
	if !bytes.Equal(got, want) {
		t.Errorf("capture = %x, want %x", got, want)
	}
	if _, err := os.Stat(other); !os.IsNotExist(err) {
		t.Errorf("second capture file exists: %v", err)
	}
	if st := d.CaptureStats(); st.BytesWritten != uint64(len(want)) {
		t.Errorf("CaptureStats().BytesWritten = %d, want %d", st.BytesWritten, len(want))
	}
}

func TestDispatcher_MalformedInput(t *testing.T) {
	d, rec := newTestDispatcher(t, DefaultConfig())
	link := protocoltest.Link("serial")
	path := filepath.Join(t.TempDir(), "noise.raw")

	if err := d.StartCapture(path); err != nil {
		t.Fatal(err)
	}

	noise := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	d.OnBytesReceived(link, noise)
	d.OnBytesReceived(link, protocoltest.Corrupt(protocoltest.Heartbeat(1, 0)))

	if err := d.StopCapture(); err != nil {
		t.Fatal(err)
	}

	if rec.messageCount() != 0 {
		t.Errorf("MessageReceived called %d times, want 0", rec.messageCount())
	}
	if len(d.Sources()) != 0 {
		t.Errorf("Sources() = %v, want none", d.Sources())
	}
	got, _ := os.ReadFile(path)
	if !bytes.HasPrefix(got, noise) || len(got) != len(noise)+17 {
		t.Errorf("capture = %x", got)
	}
	// Both chunks land inside the same second: one status only.
	if len(rec.statuses) != 1 || rec.statuses[0] != StatusMalformed {
		t.Errorf("statuses = %v, want [%s]", rec.statuses, StatusMalformed)
	}
	if st := d.Stats(); st.DroppedBytes != uint64(len(noise)+17) {
		t.Errorf("Stats().DroppedBytes = %d", st.DroppedBytes)
	}
}

func TestDispatcher_NoiseWithUnknownIDIsRejected(t *testing.T) {
	d, rec := newTestDispatcher(t, DefaultConfig())
	link := protocoltest.Link("serial")

	// Starts with the v1 magic and claims message ID 3, which the common
	// dialect does not define, so its checksum cannot be verified.
	noise := []byte{0xFE, 0x00, 0xC8, 0x01, 0x01, 0x03, 0xAB, 0xCD}

	var input []byte
	input = append(input, protocoltest.Heartbeat(1, 10)...)
	input = append(input, protocoltest.Heartbeat(1, 11)...)
	input = append(input, noise...)
	input = append(input, protocoltest.Heartbeat(1, 12)...)
	input = append(input, protocoltest.Heartbeat(1, 13)...)
	d.OnBytesReceived(link, input)

	if got := rec.messageCount(); got != 4 {
		t.Errorf("MessageReceived called %d times, want 4", got)
	}
	if got := d.TotalReceived(1); got != 4 {
		t.Errorf("TotalReceived = %d, want 4", got)
	}
	if got := d.TotalLost(1); got != 0 {
		t.Errorf("TotalLost = %d, want 0", got)
	}
	if len(d.Sources()) != 1 {
		t.Errorf("Sources() = %v, want [1]", d.Sources())
	}
	if !rec.hasStatus(StatusMalformed) {
		t.Errorf("statuses = %v, want %s", rec.statuses, StatusMalformed)
	}
}

func TestDispatcher_CaptureFailureEmitsStatus(t *testing.T) {
	// Every write to /dev/full fails with ENOSPC.
	const path = "/dev/full"
	if _, err := os.Stat(path); err != nil {
		t.Skipf("%s not available: %v", path, err)
	}

	d, rec := newTestDispatcher(t, DefaultConfig())
	link := protocoltest.Link("udp")

	if err := d.StartCapture(path); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}
	d.OnBytesReceived(link, protocoltest.Heartbeat(1, 0))

	deadline := time.Now().Add(5 * time.Second)
	for !rec.hasStatus(StatusCaptureError) {
		if time.Now().After(deadline) {
			t.Fatal("no capture error status after write failure")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !d.CaptureStats().Failed {
		t.Error("CaptureStats().Failed = false")
	}
	// Decoding carries on regardless of the capture.
	d.OnBytesReceived(link, protocoltest.Heartbeat(1, 1))
	if got := rec.messageCount(); got != 2 {
		t.Errorf("MessageReceived called %d times, want 2", got)
	}
	if err := d.StopCapture(); err != nil {
		t.Errorf("StopCapture() error = %v", err)
	}
}

func TestDispatcher_MalformedStatusRateLimit(t *testing.T) {
	d, rec := newTestDispatcher(t, DefaultConfig())
	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }

	a := protocoltest.Link("a")
	b := protocoltest.Link("b")

	d.OnBytesReceived(a, []byte{0x00})
	d.OnBytesReceived(a, []byte{0x00})
	d.OnBytesReceived(b, []byte{0x00})
	now = now.Add(MalformedStatusInterval)
	d.OnBytesReceived(a, []byte{0x00})

	if len(rec.statuses) != 3 {
		t.Errorf("got %d status messages, want 3: %v", len(rec.statuses), rec.statuses)
	}
}

func TestDispatcher_IgnoreLocalOrigin(t *testing.T) {
	tests := []struct {
		name         string
		ignore       bool
		wantReceived uint64
	}{
		{name: "ignored", ignore: true, wantReceived: 0},
		{name: "counted", ignore: false, wantReceived: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.IgnoreLocalOrigin = tt.ignore
			d, rec := newTestDispatcher(t, cfg)

			d.OnBytesReceived(protocoltest.Link("udp"), protocoltest.Stream(cfg.SelfSystemID, 0, 1, 9))

			if got := d.TotalReceived(cfg.SelfSystemID); got != tt.wantReceived {
				t.Errorf("TotalReceived = %d, want %d", got, tt.wantReceived)
			}
			if rec.messageCount() != 3 {
				t.Errorf("MessageReceived called %d times, want 3", rec.messageCount())
			}
		})
	}
}

func TestDispatcher_VersionCheck(t *testing.T) {
	d, rec := newTestDispatcher(t, DefaultConfig())
	link := protocoltest.Link("udp")

	old := protocoltest.HeartbeatPayload(2)
	for seq := uint8(0); seq < 3; seq++ {
		d.OnBytesReceived(link, protocoltest.FrameV1(4, 1, seq, protocoltest.HeartbeatID, old, protocoltest.HeartbeatCRCExtra))
	}
	d.OnBytesReceived(link, protocoltest.Heartbeat(5, 0))

	if len(rec.statuses) != 1 || rec.statuses[0] != StatusVersionMismatch {
		t.Errorf("statuses = %v, want one %q", rec.statuses, StatusVersionMismatch)
	}
}

func TestDispatcher_VersionCheckDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VersionCheck = false
	d, rec := newTestDispatcher(t, cfg)

	old := protocoltest.HeartbeatPayload(2)
	d.OnBytesReceived(protocoltest.Link("udp"), protocoltest.FrameV1(4, 1, 0, protocoltest.HeartbeatID, old, protocoltest.HeartbeatCRCExtra))

	if len(rec.statuses) != 0 {
		t.Errorf("statuses = %v, want none", rec.statuses)
	}
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d, first := newTestDispatcher(t, DefaultConfig())
	second := newRecorder()
	unsubscribe := d.Subscribe(second)
	link := protocoltest.Link("udp")

	d.OnBytesReceived(link, protocoltest.Heartbeat(1, 0))
	unsubscribe()
	unsubscribe()
	d.OnBytesReceived(link, protocoltest.Heartbeat(1, 1))

	if first.messageCount() != 2 {
		t.Errorf("first listener got %d messages, want 2", first.messageCount())
	}
	if second.messageCount() != 1 {
		t.Errorf("second listener got %d messages, want 1", second.messageCount())
	}
}

func TestDispatcher_ReconnectUsesFreshState(t *testing.T) {
	d, _ := newTestDispatcher(t, DefaultConfig())

	first := protocoltest.NewSession("tcp")
	hb := protocoltest.Heartbeat(1, 40)
	d.OnBytesReceived(first, protocoltest.Stream(1, 38, 39))
	d.OnBytesReceived(first, hb[:6])
	d.LinkClosed(first)

	// The vehicle restarted its counter; the new session must not see a gap.
	second := protocoltest.NewSession("tcp")
	d.OnBytesReceived(second, protocoltest.Stream(1, 0, 1))

	if got := d.TotalLost(1); got != 0 {
		t.Errorf("TotalLost = %d, want 0", got)
	}
	if got := d.TotalReceived(1); got != 4 {
		t.Errorf("TotalReceived = %d, want 4", got)
	}
}

func TestDispatcher_ConcurrentLinks(t *testing.T) {
	d, rec := newTestDispatcher(t, DefaultConfig())

	const links, perLink = 8, 300
	var wg sync.WaitGroup
	for i := 0; i < links; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			link := protocoltest.NewSession("link")
			for seq := 0; seq < perLink; seq++ {
				d.OnBytesReceived(link, protocoltest.Heartbeat(uint8(1+i%2), uint8(seq)))
			}
		}(i)
	}

	// Readers race the writers the way the UI does.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_ = d.Snapshot()
			_ = d.TotalReceived(1)
		}
	}()

	wg.Wait()
	<-done

	total := d.TotalReceived(1) + d.TotalReceived(2)
	if total != links*perLink {
		t.Errorf("total received = %d, want %d", total, links*perLink)
	}
	if d.TotalLost(1)+d.TotalLost(2) != 0 {
		t.Errorf("lost = %d/%d, want 0", d.TotalLost(1), d.TotalLost(2))
	}
	if rec.messageCount() != links*perLink {
		t.Errorf("messages = %d, want %d", rec.messageCount(), links*perLink)
	}
}

func TestListenerFuncs_NilFuncs(t *testing.T) {
	var l Listener = ListenerFuncs{}
	l.MessageReceived(protocoltest.Link("x"), &protocol.Message{})
	l.LossRateChanged(1, 0.5)
	l.StatusMessage("title", "text")
}
