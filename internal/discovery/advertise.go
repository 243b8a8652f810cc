package discovery

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/groundlink/internal/logging"
)

// Registration describes the service a station advertises.
type Registration struct {
	Instance    string
	Port        int
	SystemID    uint8
	ComponentID uint8
	Version     string
}

// Text returns the TXT record entries.
func (r Registration) Text() []string {
	txt := []string{
		TxtSystemID + "=" + strconv.Itoa(int(r.SystemID)),
		TxtComponentID + "=" + strconv.Itoa(int(r.ComponentID)),
	}
	if r.Version != "" {
		txt = append(txt, TxtVersion+"="+r.Version)
	}
	return txt
}

// Advertiser keeps a service registered until Stop.
type Advertiser struct {
	server *zeroconf.Server
	reg    Registration
}

// Advertise registers the station on all multicast interfaces.
func Advertise(reg Registration) (*Advertiser, error) {
	if reg.Instance == "" {
		return nil, errors.New("advertise: instance name is required")
	}
	if reg.Port <= 0 || reg.Port > 65535 {
		return nil, fmt.Errorf("advertise: invalid port %d", reg.Port)
	}

	server, err := zeroconf.Register(reg.Instance, ServiceType, ServiceDomain, reg.Port, reg.Text(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising station",
		zap.String("instance", reg.Instance),
		zap.String("service", ServiceType),
		zap.Int("port", reg.Port),
	)
	return &Advertiser{server: server, reg: reg}, nil
}

// Registration returns what is being advertised.
func (a *Advertiser) Registration() Registration {
	return a.reg
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() {
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	logging.Info("Stopped advertising", zap.String("instance", a.reg.Instance))
}
