package dispatcher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/muurk/groundlink/internal/capture"
	"github.com/muurk/groundlink/internal/counters"
	"github.com/muurk/groundlink/internal/logging"
	"github.com/muurk/groundlink/internal/protocol"
	"github.com/muurk/groundlink/internal/sequence"
)

const (
	// DefaultSelfSystemID is the system id a ground station conventionally uses.
	DefaultSelfSystemID = 255

	// DefaultComponentID is MAV_COMP_ID_MISSIONPLANNER.
	DefaultComponentID = 190

	// MalformedStatusInterval limits "Malformed data" status messages per link.
	MalformedStatusInterval = time.Second
)

// Status titles emitted through Listener.StatusMessage.
const (
	StatusMalformed       = "Malformed data"
	StatusVersionMismatch = "MAVLink version mismatch"
	StatusCaptureError    = "Capture error"
)

// Config holds dispatcher options.
type Config struct {
	// SelfSystemID is this application's own system id.
	SelfSystemID uint8

	// ComponentID is used for attribution only.
	ComponentID uint8

	// IgnoreLocalOrigin excludes messages from SelfSystemID from sequence
	// and counter accounting. They are still delivered to listeners.
	IgnoreLocalOrigin bool

	// DuplicateWindow is passed to the sequence tracker (0 selects the default).
	DuplicateWindow int

	// VersionCheck warns once per source when a HEARTBEAT announces a
	// MAVLink version other than the dialect's.
	VersionCheck bool

	// CaptureQueueLen bounds the capture write queue (0 selects the default).
	CaptureQueueLen int
}

// DefaultConfig returns the standard ground station configuration.
func DefaultConfig() Config {
	return Config{
		SelfSystemID:      DefaultSelfSystemID,
		ComponentID:       DefaultComponentID,
		IgnoreLocalOrigin: true,
		DuplicateWindow:   sequence.DefaultDuplicateWindow,
		VersionCheck:      true,
	}
}

// Stats are dispatcher-wide totals since creation.
type Stats struct {
	Chunks       uint64
	BytesIn      uint64
	Messages     uint64
	DroppedBytes uint64
	Filtered     uint64 // self-originated messages excluded from accounting
}

// versioned is implemented by decoders that know their dialect version.
type versioned interface {
	DialectVersion() uint8
}

// Dispatcher routes link bytes through decoding and accounting.
type Dispatcher struct {
	cfg      Config
	decoder  protocol.Decoder
	tracker  *sequence.Tracker
	counters *counters.Store
	capture  *capture.Logger

	dialectVersion uint8
	hasVersion     bool

	listenersMu sync.Mutex
	listeners   atomic.Pointer[[]*subscription]

	lastMalformed *xsync.MapOf[protocol.LinkHandle, time.Time]
	versionWarned *xsync.MapOf[uint8, struct{}]
	now           func() time.Time

	chunks       atomic.Uint64
	bytesIn      atomic.Uint64
	messages     atomic.Uint64
	droppedBytes atomic.Uint64
	filtered     atomic.Uint64
}

type subscription struct {
	l Listener
}

// New creates a dispatcher that decodes with decoder.
func New(cfg Config, decoder protocol.Decoder) *Dispatcher {
	d := &Dispatcher{
		cfg:           cfg,
		decoder:       decoder,
		tracker:       sequence.NewTracker(cfg.DuplicateWindow),
		counters:      counters.NewStore(),
		lastMalformed: xsync.NewMapOf[protocol.LinkHandle, time.Time](),
		versionWarned: xsync.NewMapOf[uint8, struct{}](),
		now:           time.Now,
	}
	d.capture = capture.New(
		capture.WithQueueLen(cfg.CaptureQueueLen),
		capture.WithErrorHandler(d.captureFailed),
	)
	if v, ok := decoder.(versioned); ok {
		d.dialectVersion = v.DialectVersion()
		d.hasVersion = true
	}
	d.listeners.Store(&[]*subscription{})
	return d
}

// Config returns the configuration the dispatcher was created with.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// OnBytesReceived processes one chunk read from link. Chunks of one link must
// be delivered in order from a single goroutine.
func (d *Dispatcher) OnBytesReceived(link protocol.LinkHandle, data []byte) {
	if len(data) == 0 {
		return
	}
	d.chunks.Add(1)
	d.bytesIn.Add(uint64(len(data)))

	d.capture.Append(data)

	res := d.decoder.Decode(link, data)
	if res.DroppedBytes > 0 {
		d.droppedBytes.Add(uint64(res.DroppedBytes))
		d.malformed(link, res)
		logging.LogRawBytes("Chunk with dropped bytes from "+link.Name(), data)
	}

	for _, msg := range res.Messages {
		d.handleMessage(link, msg)
	}
}

func (d *Dispatcher) handleMessage(link protocol.LinkHandle, msg *protocol.Message) {
	d.messages.Add(1)

	if d.cfg.IgnoreLocalOrigin && msg.SystemID == d.cfg.SelfSystemID {
		d.filtered.Add(1)
	} else {
		out := d.tracker.Classify(link, msg.SystemID, msg.Sequence)
		upd := d.counters.Record(msg.SystemID, out)
		if out.Kind != sequence.Fresh {
			logging.Debug("Sequence anomaly",
				zap.String("link", link.Name()),
				zap.Uint8("sysid", msg.SystemID),
				zap.Uint8("seq", msg.Sequence),
				zap.Stringer("outcome", out),
			)
		}
		if upd.LossChanged {
			d.emitLossRate(msg.SystemID, upd.Rate())
		}
	}

	if d.cfg.VersionCheck {
		d.checkVersion(msg)
	}

	protocol.LogMessage(link, msg)
	d.emitMessage(link, msg)
}

// malformed logs dropped bytes and emits a status message at most once per
// MalformedStatusInterval per link.
func (d *Dispatcher) malformed(link protocol.LinkHandle, res protocol.Result) {
	fields := []zap.Field{
		zap.String("link", link.Name()),
		zap.Int("dropped_bytes", res.DroppedBytes),
	}
	if len(res.Errors) > 0 {
		fields = append(fields, zap.Errors("errors", res.Errors))
	}
	logging.Debug("Dropped bytes", fields...)

	now := d.now()
	emit := false
	d.lastMalformed.Compute(link, func(last time.Time, loaded bool) (time.Time, bool) {
		if loaded && now.Sub(last) < MalformedStatusInterval {
			return last, false
		}
		emit = true
		return now, false
	})
	if !emit {
		return
	}

	text := fmt.Sprintf("Dropped %d bytes on link %s", res.DroppedBytes, link.Name())
	if len(res.Errors) > 0 {
		text = fmt.Sprintf("%s: %v", text, res.Errors[0])
	}
	d.emitStatus(StatusMalformed, text)
}

func (d *Dispatcher) checkVersion(msg *protocol.Message) {
	if !d.hasVersion {
		return
	}
	hb, ok := msg.Payload.(*common.MessageHeartbeat)
	if !ok || hb.MavlinkVersion == d.dialectVersion {
		return
	}
	if _, warned := d.versionWarned.LoadOrStore(msg.SystemID, struct{}{}); warned {
		return
	}

	logging.Warn("MAVLink version mismatch",
		zap.Uint8("sysid", msg.SystemID),
		zap.Uint8("vehicle_version", hb.MavlinkVersion),
		zap.Uint8("dialect_version", d.dialectVersion),
	)
	d.emitStatus(StatusVersionMismatch, fmt.Sprintf(
		"System %d uses MAVLink dialect version %d, groundlink expects %d. Some messages may not decode.",
		msg.SystemID, hb.MavlinkVersion, d.dialectVersion))
}

func (d *Dispatcher) captureFailed(err error) {
	d.emitStatus(StatusCaptureError, err.Error())
}

// LinkClosed drops the framing buffer of a closed link. Sequence state is
// kept; a reconnect is expected to use a new LinkHandle.
func (d *Dispatcher) LinkClosed(link protocol.LinkHandle) {
	d.decoder.Release(link)
	d.lastMalformed.Delete(link)
	logging.LogLinkEvent(link.Name(), "closed")
}

// Subscribe registers l and returns a function that removes it.
func (d *Dispatcher) Subscribe(l Listener) (unsubscribe func()) {
	sub := &subscription{l: l}

	d.listenersMu.Lock()
	old := *d.listeners.Load()
	next := make([]*subscription, len(old), len(old)+1)
	copy(next, old)
	next = append(next, sub)
	d.listeners.Store(&next)
	d.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.unsubscribe(sub) })
	}
}

func (d *Dispatcher) unsubscribe(sub *subscription) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()

	old := *d.listeners.Load()
	next := make([]*subscription, 0, len(old))
	for _, s := range old {
		if s != sub {
			next = append(next, s)
		}
	}
	d.listeners.Store(&next)
}

func (d *Dispatcher) emitMessage(link protocol.LinkHandle, msg *protocol.Message) {
	for _, s := range *d.listeners.Load() {
		s.l.MessageReceived(link, msg)
	}
}

func (d *Dispatcher) emitLossRate(source uint8, rate float64) {
	for _, s := range *d.listeners.Load() {
		s.l.LossRateChanged(source, rate)
	}
}

func (d *Dispatcher) emitStatus(title, text string) {
	for _, s := range *d.listeners.Load() {
		s.l.StatusMessage(title, text)
	}
}

// TotalReceived returns the lifetime received count for source.
func (d *Dispatcher) TotalReceived(source uint8) uint64 {
	return d.counters.TotalReceived(source)
}

// TotalLost returns the lifetime lost count for source.
func (d *Dispatcher) TotalLost(source uint8) uint64 {
	return d.counters.TotalLost(source)
}

// ResetInterval returns and zeroes the interval counters of source.
func (d *Dispatcher) ResetInterval(source uint8) (received, lost uint64) {
	return d.counters.ResetInterval(source)
}

// Sources returns every source system seen so far, in ascending order.
func (d *Dispatcher) Sources() []uint8 {
	return d.counters.Sources()
}

// Snapshot returns a copy of every source's counters.
func (d *Dispatcher) Snapshot() []counters.Snapshot {
	return d.counters.Snapshot()
}

// Streams returns the number of tracked (link, source) pairs.
func (d *Dispatcher) Streams() int {
	return d.tracker.Len()
}

// Stats returns dispatcher-wide totals.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Chunks:       d.chunks.Load(),
		BytesIn:      d.bytesIn.Load(),
		Messages:     d.messages.Load(),
		DroppedBytes: d.droppedBytes.Load(),
		Filtered:     d.filtered.Load(),
	}
}

// StartCapture begins recording every received byte to path.
func (d *Dispatcher) StartCapture(path string) error {
	return d.capture.Start(path)
}

// StopCapture ends the capture session, if any.
func (d *Dispatcher) StopCapture() error {
	return d.capture.Stop()
}

// IsCapturing reports whether a capture session is active.
func (d *Dispatcher) IsCapturing() bool {
	return d.capture.IsActive()
}

// CaptureStats returns counters of the active or last capture session.
func (d *Dispatcher) CaptureStats() capture.Stats {
	return d.capture.Stats()
}

// Close releases the capture file. The dispatcher must not be fed afterwards.
func (d *Dispatcher) Close() error {
	if err := d.capture.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture: %w", err)
	}
	return nil
}
