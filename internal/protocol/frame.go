package protocol

import (
	"fmt"

	"github.com/bluenviron/gomavlib/v3/pkg/frame"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// MAVLink framing constants
const (
	MagicV1 = 0xFE
	MagicV2 = 0xFD

	HeaderLenV1  = 6  // magic, len, seq, sysid, compid, msgid
	HeaderLenV2  = 10 // magic, len, incompat, compat, seq, sysid, compid, msgid[3]
	ChecksumLen  = 2
	SignatureLen = 13

	// IncompatFlagSigned marks a v2 frame that carries a signature block
	IncompatFlagSigned = 0x01

	MaxPayloadLen = 255
	MaxFrameLen   = HeaderLenV2 + MaxPayloadLen + ChecksumLen + SignatureLen
)

// LinkHandle identifies the transport connection a chunk of bytes arrived on.
// Implementations must be comparable; the link registry hands out one handle
// per connection session.
type LinkHandle interface {
	Name() string
}

// Message is one decoded MAVLink frame.
type Message struct {
	SystemID    uint8
	ComponentID uint8
	Sequence    uint8
	MessageID   uint32
	Version     int             // 1 or 2
	Payload     message.Message // decoded payload, always a dialect type
	Raw         []byte          // complete frame bytes as received
}

// String returns a debug representation of the message
func (m *Message) String() string {
	return fmt.Sprintf("Message{v%d, sys=%d, comp=%d, seq=%d, id=%d (%s), len=%d}",
		m.Version, m.SystemID, m.ComponentID, m.Sequence, m.MessageID, MessageName(m.Payload), len(m.Raw))
}

// frameLength returns the total length of the frame starting at buf[0].
// ok is false when not enough header bytes have arrived yet.
func frameLength(buf []byte) (n int, ok bool) {
	if len(buf) < 3 {
		return 0, false
	}
	payloadLen := int(buf[1])
	switch buf[0] {
	case MagicV1:
		return HeaderLenV1 + payloadLen + ChecksumLen, true
	case MagicV2:
		n = HeaderLenV2 + payloadLen + ChecksumLen
		if buf[2]&IncompatFlagSigned != 0 {
			n += SignatureLen
		}
		return n, true
	default:
		return 0, false
	}
}

// indexMagic returns the index of the first MAVLink magic byte, or -1.
func indexMagic(buf []byte) int {
	for i, b := range buf {
		if b == MagicV1 || b == MagicV2 {
			return i
		}
	}
	return -1
}

func newMessage(f frame.Frame, raw []byte) *Message {
	msg := &Message{
		SystemID:    f.GetSystemID(),
		ComponentID: f.GetComponentID(),
		Sequence:    f.GetSequenceNumber(),
		Payload:     f.GetMessage(),
		Raw:         raw,
		Version:     1,
	}
	if msg.Payload != nil {
		msg.MessageID = msg.Payload.GetID()
	}
	if _, ok := f.(*frame.V2Frame); ok {
		msg.Version = 2
	}
	return msg
}
