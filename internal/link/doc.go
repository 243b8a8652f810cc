// Package link owns groundlink's transport connections and feeds their bytes
// to a Sink (normally the dispatcher).
//
// # Transports
//
//   - udp: listens on a local address; every remote peer is its own session
//   - tcp: dials a remote address, redialling with exponential backoff
//   - tcp-server: accepts connections, one session per connection, optional TLS
//   - serial: opens a serial port (goburrow/serial), reopening on failure
//   - ws: dials a WebSocket URL and reads binary messages
//   - ws-server: accepts WebSocket connections on an HTTP listener
//
// # Sessions
//
// Each connection session gets a fresh *Session handle. A vehicle that
// reconnects therefore starts with new framing and sequence state, and the
// restart of its sequence counter is never counted as loss. When a session
// ends the transport calls Sink.LinkClosed.
//
// # Ordering
//
// Every session has exactly one reader goroutine, so bytes of one session
// reach the sink in arrival order.
//
// # Link specs
//
// Links are configured from YAML or from --link flags of the form
// type:address, for example:
//
//	udp:0.0.0.0:14550
//	tcp:192.168.1.10:5760
//	tcp-server::5760
//	serial:/dev/ttyUSB0@57600
//	ws:ws://localhost:8080/mavlink
package link
