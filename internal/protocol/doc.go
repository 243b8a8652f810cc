// Package protocol implements inbound MAVLink stream framing for groundlink.
//
// Links deliver bytes in arbitrary chunks: a chunk may hold half a frame,
// several frames, or line noise from a radio modem. This package reassembles
// those chunks into complete MAVLink frames, one framer per link, and hands
// every candidate frame to gomavlib for checksum validation and payload
// decoding.
//
// # Frame Layout
//
// MAVLink v1 frames:
//   - Magic: 0xFE
//   - Payload length: 1 byte
//   - Sequence, system ID, component ID: 1 byte each
//   - Message ID: 1 byte
//   - Payload: 0-255 bytes
//   - Checksum: 2 bytes (X.25 with CRC_EXTRA)
//
// MAVLink v2 frames:
//   - Magic: 0xFD
//   - Payload length, incompat flags, compat flags: 1 byte each
//   - Sequence, system ID, component ID: 1 byte each
//   - Message ID: 3 bytes (little-endian)
//   - Payload: 0-255 bytes
//   - Checksum: 2 bytes
//   - Signature: 13 bytes when incompat flag 0x01 is set
//
// # Resynchronisation
//
// Bytes before a magic byte are dropped and counted. When a complete candidate
// frame fails validation the framer drops only the magic byte and rescans, so a
// stray 0xFE inside noise never swallows the real frame that follows it.
//
// # Usage Example
//
//	codec, err := protocol.NewCodec(common.Dialect)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res := codec.Decode(link, chunk)
//	for _, msg := range res.Messages {
//	    fmt.Println(msg)
//	}
//	if res.DroppedBytes > 0 {
//	    fmt.Printf("dropped %d bytes\n", res.DroppedBytes)
//	}
//
// # Thread Safety
//
// Codec is safe for concurrent use by many links. Each link gets its own
// Parser, and a Parser serialises Feed calls so bytes from one link are always
// framed in arrival order.
package protocol
