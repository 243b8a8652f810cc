// Package discovery advertises and finds groundlink stations over mDNS.
//
// A running station registers a "_mavlink._udp" service whose port is the
// UDP port vehicles should send telemetry to. The TXT record carries the
// station's MAVLink system and component IDs and its version. Scanners on
// the same network segment browse for that service type and turn each
// answer into an Endpoint that can be handed straight to link.ParseSpec.
//
// # Usage Example
//
//	adv, err := discovery.Advertise(discovery.Registration{
//	    Instance: "groundlink",
//	    Port:     14550,
//	    SystemID: 255,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer adv.Stop()
//
//	endpoints, err := discovery.NewScanner().Scan(ctx)
//	for _, ep := range endpoints {
//	    fmt.Println(ep.LinkSpec())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Stations must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
