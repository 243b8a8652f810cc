package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// TXT record keys
const (
	TxtSystemID    = "sysid"
	TxtComponentID = "compid"
	TxtVersion     = "version"
)

// Endpoint is a station found on the network.
type Endpoint struct {
	// Instance is the advertised service instance name
	Instance string

	// Hostname is the mDNS hostname (e.g., "ground-1.local.")
	Hostname string

	// IP is the first address reported, IPv4 preferred
	IP string

	// Port is the UDP telemetry port
	Port int

	// Metadata contains the TXT record key/value pairs
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the endpoint
func (e *Endpoint) String() string {
	return fmt.Sprintf("%s (%s) at %s", e.Instance, e.Hostname, e.Address())
}

// Address returns host:port, bracketing IPv6 addresses.
func (e *Endpoint) Address() string {
	return net.JoinHostPort(e.IP, strconv.Itoa(e.Port))
}

// LinkSpec returns the link specification for sending to this endpoint.
func (e *Endpoint) LinkSpec() string {
	return "udp:" + e.Address()
}

// SystemID returns the advertised MAVLink system ID, false if absent or invalid.
func (e *Endpoint) SystemID() (uint8, bool) {
	v, err := strconv.ParseUint(e.Metadata[TxtSystemID], 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}
