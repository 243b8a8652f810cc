package protocol

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/bluenviron/gomavlib/v3/pkg/dialect"
	"github.com/bluenviron/gomavlib/v3/pkg/frame"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// Result is the outcome of feeding one chunk to a framer.
type Result struct {
	Messages     []*Message
	DroppedBytes int     // noise and rejected magic bytes
	Errors       []error // one DecodeError per rejected candidate frame
}

// ParserStats accumulates framer totals over the life of a link.
type ParserStats struct {
	BytesIn      uint64
	Frames       uint64
	DroppedBytes uint64
	Rejected     uint64
}

// Parser reassembles one link's byte stream into MAVLink frames.
type Parser struct {
	name string
	rw   *dialect.ReadWriter

	mu    sync.Mutex
	buf   []byte
	stats ParserStats
}

// NewParser creates a framer for a single link. Frames whose message ID
// is not in rw's dialect are rejected.
func NewParser(name string, rw *dialect.ReadWriter) *Parser {
	return &Parser{
		name: name,
		rw:   rw,
		buf:  make([]byte, 0, MaxFrameLen*2),
	}
}

// Feed appends data to the framer buffer and extracts every complete frame.
// A trailing partial frame stays buffered until the next call.
func (p *Parser) Feed(data []byte) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res Result
	p.stats.BytesIn += uint64(len(data))
	p.buf = append(p.buf, data...)

	buf := p.buf
	off := 0
	for off < len(buf) {
		start := indexMagic(buf[off:])
		if start < 0 {
			res.DroppedBytes += len(buf) - off
			off = len(buf)
			break
		}
		res.DroppedBytes += start
		off += start

		n, ok := frameLength(buf[off:])
		if !ok || len(buf)-off < n {
			break // wait for the rest of the frame
		}

		raw := make([]byte, n)
		copy(raw, buf[off:off+n])

		msg, err := p.decode(raw)
		if err != nil {
			res.Errors = append(res.Errors, &DecodeError{
				Link:   p.name,
				Offset: off,
				Length: n,
				Err:    err,
			})
			res.DroppedBytes++
			p.stats.Rejected++
			off++
			continue
		}

		res.Messages = append(res.Messages, msg)
		off += n
	}

	p.buf = append(p.buf[:0], buf[off:]...)
	p.stats.Frames += uint64(len(res.Messages))
	p.stats.DroppedBytes += uint64(res.DroppedBytes)
	return res
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (p *Parser) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// Stats returns a copy of the framer totals.
func (p *Parser) Stats() ParserStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Reset discards any partially received frame.
func (p *Parser) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = p.buf[:0]
}

// decode validates and decodes exactly one frame with gomavlib.
func (p *Parser) decode(raw []byte) (*Message, error) {
	r, err := frame.NewReader(frame.ReaderConf{
		Reader:    bytes.NewReader(raw),
		DialectRW: p.rw,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create frame reader: %w", err)
	}

	f, err := r.Read()
	if err != nil {
		return nil, err
	}

	// Without the dialect entry there is no crc_extra, so the checksum
	// was never checked and the frame may be noise.
	if unk, ok := f.GetMessage().(*message.MessageRaw); ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownMessage, unk.ID)
	}
	return newMessage(f, raw), nil
}
