// Package protocoltest builds MAVLink wire frames for tests.
//
// Frames are assembled by hand with the X.25 checksum so tests exercise the
// real decoder on exactly the bytes a vehicle would send.
package protocoltest

import (
	"encoding/binary"
	"fmt"
)

// CRC extras of the messages the builders know about.
const (
	HeartbeatID       = 0
	HeartbeatCRCExtra = 50
	HeartbeatLen      = 9

	// DialectVersion is the mavlink_version a well-behaved vehicle puts in
	// its HEARTBEAT.
	DialectVersion = 3
)

// Link is a comparable protocol.LinkHandle for tests.
type Link string

// Name implements protocol.LinkHandle
func (l Link) Name() string {
	return string(l)
}

// Session is a pointer handle; every NewSession call is a distinct link, the
// way the link registry hands out one handle per connection.
type Session struct {
	name string
}

// NewSession creates a distinct link handle.
func NewSession(name string) *Session {
	return &Session{name: name}
}

// Name implements protocol.LinkHandle
func (s *Session) Name() string {
	return s.name
}

// String helps test failure output
func (s *Session) String() string {
	return fmt.Sprintf("session(%s@%p)", s.name, s)
}

// CRC computes the MAVLink X.25 (MCRF4XX) checksum of data followed by extra.
func CRC(data []byte, extra byte) uint16 {
	crc := uint16(0xFFFF)
	accumulate := func(b byte) {
		tmp := b ^ byte(crc&0xFF)
		tmp ^= tmp << 4
		crc = (crc >> 8) ^ (uint16(tmp) << 8) ^ (uint16(tmp) << 3) ^ (uint16(tmp) >> 4)
	}
	for _, b := range data {
		accumulate(b)
	}
	accumulate(extra)
	return crc
}

// FrameV1 builds a MAVLink 1 frame.
func FrameV1(sysID, compID, seq, msgID uint8, payload []byte, crcExtra byte) []byte {
	buf := make([]byte, 0, 6+len(payload)+2)
	buf = append(buf, 0xFE, byte(len(payload)), seq, sysID, compID, msgID)
	buf = append(buf, payload...)
	return binary.LittleEndian.AppendUint16(buf, CRC(buf[1:], crcExtra))
}

// FrameV2 builds an unsigned MAVLink 2 frame.
func FrameV2(sysID, compID, seq uint8, msgID uint32, payload []byte, crcExtra byte) []byte {
	buf := make([]byte, 0, 10+len(payload)+2)
	buf = append(buf, 0xFD, byte(len(payload)), 0, 0, seq, sysID, compID,
		byte(msgID), byte(msgID>>8), byte(msgID>>16))
	buf = append(buf, payload...)
	return binary.LittleEndian.AppendUint16(buf, CRC(buf[1:], crcExtra))
}

// HeartbeatPayload returns a quadrotor/ArduPilot HEARTBEAT payload announcing
// mavVersion.
func HeartbeatPayload(mavVersion uint8) []byte {
	p := make([]byte, HeartbeatLen)
	binary.LittleEndian.PutUint32(p[0:4], 0) // custom_mode
	p[4] = 2                                 // MAV_TYPE_QUADROTOR
	p[5] = 3                                 // MAV_AUTOPILOT_ARDUPILOTMEGA
	p[6] = 0x51                              // base_mode
	p[7] = 4                                 // MAV_STATE_ACTIVE
	p[8] = mavVersion
	return p
}

// Heartbeat builds a MAVLink 1 HEARTBEAT with the standard dialect version.
func Heartbeat(sysID, seq uint8) []byte {
	return FrameV1(sysID, 1, seq, HeartbeatID, HeartbeatPayload(DialectVersion), HeartbeatCRCExtra)
}

// HeartbeatV2 builds a MAVLink 2 HEARTBEAT with the standard dialect version.
func HeartbeatV2(sysID, seq uint8) []byte {
	return FrameV2(sysID, 1, seq, HeartbeatID, HeartbeatPayload(DialectVersion), HeartbeatCRCExtra)
}

// Stream concatenates heartbeats from sysID with the given sequence numbers.
func Stream(sysID uint8, seqs ...uint8) []byte {
	var out []byte
	for _, s := range seqs {
		out = append(out, Heartbeat(sysID, s)...)
	}
	return out
}

// Corrupt returns a copy of frame with its checksum broken.
func Corrupt(frame []byte) []byte {
	out := append([]byte(nil), frame...)
	out[len(out)-1] ^= 0xFF
	return out
}
