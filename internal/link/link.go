package link

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/muurk/groundlink/internal/protocol"
)

// Type names a transport.
type Type string

const (
	TypeUDP             Type = "udp"
	TypeTCP             Type = "tcp"
	TypeTCPServer       Type = "tcp-server"
	TypeSerial          Type = "serial"
	TypeWebSocket       Type = "ws"
	TypeWebSocketServer Type = "ws-server"
)

// DefaultBaudRate is used for serial links without an explicit rate.
const DefaultBaudRate = 57600

// readBufferSize covers the largest MAVLink frame several times over.
const readBufferSize = 4096

// Types lists every supported transport.
func Types() []Type {
	return []Type{TypeUDP, TypeTCP, TypeTCPServer, TypeSerial, TypeWebSocket, TypeWebSocketServer}
}

// Config describes one link.
type Config struct {
	Name      string
	Type      Type
	Address   string
	BaudRate  int  // serial only
	Reconnect bool // tcp, serial and ws
	CertPath  string
	KeyPath   string
}

// Validate checks the fields the transport needs.
func (c Config) Validate() error {
	if c.Address == "" && c.Type != TypeTCPServer && c.Type != TypeWebSocketServer {
		return fmt.Errorf("link %q: address is required", c.Name)
	}
	switch c.Type {
	case TypeUDP, TypeTCP, TypeTCPServer, TypeSerial, TypeWebSocket, TypeWebSocketServer:
	default:
		return fmt.Errorf("link %q: unknown type %q", c.Name, c.Type)
	}
	if (c.CertPath == "") != (c.KeyPath == "") {
		return fmt.Errorf("link %q: cert and key must be set together", c.Name)
	}
	return nil
}

// ParseSpec parses a "type:address" link spec. Serial specs may carry a baud
// rate as "serial:/dev/ttyUSB0@115200".
func ParseSpec(spec string) (Config, error) {
	typ, addr, ok := strings.Cut(spec, ":")
	if !ok {
		return Config{}, fmt.Errorf("invalid link spec %q: expected type:address", spec)
	}

	cfg := Config{
		Name:      spec,
		Type:      Type(typ),
		Address:   addr,
		Reconnect: true,
	}
	if cfg.Type == TypeSerial {
		cfg.BaudRate = DefaultBaudRate
		if dev, baud, ok := strings.Cut(addr, "@"); ok {
			rate, err := strconv.Atoi(baud)
			if err != nil || rate <= 0 {
				return Config{}, fmt.Errorf("invalid baud rate in link spec %q", spec)
			}
			cfg.Address = dev
			cfg.BaudRate = rate
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Sink receives link traffic. data is only valid for the duration of the call.
type Sink interface {
	OnBytesReceived(link protocol.LinkHandle, data []byte)
	LinkClosed(link protocol.LinkHandle)
}

var sessionCounter atomic.Uint64

// Session is the protocol.LinkHandle of one connection session.
type Session struct {
	id     uint64
	link   string
	remote string
	opened time.Time
}

func newSession(link, remote string) *Session {
	return &Session{
		id:     sessionCounter.Add(1),
		link:   link,
		remote: remote,
		opened: time.Now(),
	}
}

// Name returns "link" or "link/remote" for multi-peer transports.
func (s *Session) Name() string {
	if s.remote == "" {
		return s.link
	}
	return s.link + "/" + s.remote
}

// ID is unique per process.
func (s *Session) ID() uint64 { return s.id }

// Link returns the configured link name.
func (s *Session) Link() string { return s.link }

// Remote returns the peer address, if the transport has one.
func (s *Session) Remote() string { return s.remote }

// Opened returns when the session started.
func (s *Session) Opened() time.Time { return s.opened }

// Transport runs one configured link.
type Transport interface {
	// Run delivers traffic to sink until ctx is cancelled or the link fails
	// without reconnect.
	Run(ctx context.Context, sink Sink) error
	Config() Config
	Status() Status
}

// Status describes a transport for the UI and metrics.
type Status struct {
	Name      string
	Type      Type
	Address   string
	Sessions  int
	Connected bool
	BytesIn   uint64
	LastError string
}

// New creates the transport for cfg.
func New(cfg Config) (Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = string(cfg.Type) + ":" + cfg.Address
	}

	switch cfg.Type {
	case TypeUDP:
		return newUDP(cfg), nil
	case TypeTCP:
		return newTCPClient(cfg), nil
	case TypeTCPServer:
		return newTCPServer(cfg)
	case TypeSerial:
		return newSerial(cfg), nil
	case TypeWebSocket:
		return newWSClient(cfg), nil
	case TypeWebSocketServer:
		return newWSServer(cfg), nil
	}
	return nil, fmt.Errorf("link %q: unknown type %q", cfg.Name, cfg.Type)
}
