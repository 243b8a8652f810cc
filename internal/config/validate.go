package config

import (
	"fmt"
	"net"
	"strings"

	"go.uber.org/multierr"

	"github.com/muurk/groundlink/internal/link"
	"github.com/muurk/groundlink/internal/sequence"
)

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration without modifying it. All problems are
// returned together.
func (c *Config) Validate() error {
	var errs error
	add := func(field, format string, args ...any) {
		errs = multierr.Append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Version != CurrentVersion {
		add("version", "unsupported config version %d (expected %d)", c.Version, CurrentVersion)
	}
	if c.DuplicateWindow < 0 || c.DuplicateWindow > sequence.MaxDuplicateWindow {
		add("duplicate_window", "must be between 0 and %d", sequence.MaxDuplicateWindow)
	}
	if c.RateInterval < 0 {
		add("rate_interval", "must not be negative")
	}

	names := make(map[string]int)
	for i, l := range c.Links {
		field := fmt.Sprintf("links[%d]", i)
		if l.Name == "" {
			add(field+".name", "is required")
		} else if prev, dup := names[l.Name]; dup {
			add(field+".name", "%q already used by links[%d]", l.Name, prev)
		} else {
			names[l.Name] = i
		}
		if err := l.Link().Validate(); err != nil {
			add(field, "%v", err)
		}
		if l.BaudRate < 0 {
			add(field+".baud_rate", "must not be negative")
		}
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			add("metrics.listen", "invalid address %q: %v", c.Metrics.Listen, err)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			add("metrics.path", "must start with /")
		}
	}

	if c.Advertise.Enabled {
		if c.Advertise.Instance == "" {
			add("advertise.instance", "is required when advertising")
		}
		if c.Advertise.Port < 0 || c.Advertise.Port > 65535 {
			add("advertise.port", "must be a valid port")
		}
		if c.Advertise.Port == 0 && c.firstUDPPort() == 0 {
			add("advertise.port", "no UDP link to advertise")
		}
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		add("log.level", "unknown level %q", c.Log.Level)
	}
	if f := c.Log.File; f != nil && f.Path != "" && f.MaxSizeMB < 0 {
		add("log.file.max_size_mb", "must not be negative")
	}

	return errs
}

// AdvertisePort returns the port to advertise over mDNS.
func (c *Config) AdvertisePort() int {
	if c.Advertise.Port != 0 {
		return c.Advertise.Port
	}
	return c.firstUDPPort()
}

func (c *Config) firstUDPPort() int {
	for _, l := range c.Links {
		if link.Type(l.Type) != link.TypeUDP {
			continue
		}
		_, port, err := net.SplitHostPort(l.Address)
		if err != nil {
			continue
		}
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil && p > 0 {
			return p
		}
	}
	return 0
}
