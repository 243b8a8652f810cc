package protocol

import (
	"fmt"

	"github.com/bluenviron/gomavlib/v3/pkg/dialect"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// Decoder turns a link's byte chunks into messages. Framing state is kept per
// link by the implementation.
type Decoder interface {
	Decode(link LinkHandle, data []byte) Result
	Release(link LinkHandle)
}

// Codec is the gomavlib-backed Decoder.
type Codec struct {
	dialect *dialect.Dialect
	rw      *dialect.ReadWriter
	parsers *xsync.MapOf[LinkHandle, *Parser]
}

// NewCodec creates a codec for the given dialect (common.Dialect when nil).
func NewCodec(d *dialect.Dialect) (*Codec, error) {
	if d == nil {
		d = common.Dialect
	}

	rw, err := dialect.NewReadWriter(d)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dialect: %w", err)
	}

	return &Codec{
		dialect: d,
		rw:      rw,
		parsers: xsync.NewMapOf[LinkHandle, *Parser](),
	}, nil
}

// Decode feeds data into the link's framer, creating the framer on first use.
func (c *Codec) Decode(link LinkHandle, data []byte) Result {
	p, _ := c.parsers.LoadOrCompute(link, func() *Parser {
		return NewParser(link.Name(), c.rw)
	})
	return p.Feed(data)
}

// Release drops the framer of a closed link along with any partial frame.
func (c *Codec) Release(link LinkHandle) {
	c.parsers.Delete(link)
}

// DialectVersion returns the MAVLink version field heartbeats are expected to carry.
func (c *Codec) DialectVersion() uint8 {
	return uint8(c.dialect.Version)
}

// LinkStats returns framer totals for a link, false if the link is unknown.
func (c *Codec) LinkStats(link LinkHandle) (ParserStats, bool) {
	p, ok := c.parsers.Load(link)
	if !ok {
		return ParserStats{}, false
	}
	return p.Stats(), true
}

// Links returns the number of links with an active framer.
func (c *Codec) Links() int {
	return c.parsers.Size()
}
