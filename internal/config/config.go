package config

import (
	"time"

	"github.com/muurk/groundlink/internal/dispatcher"
	"github.com/muurk/groundlink/internal/link"
	"github.com/muurk/groundlink/internal/logging"
	"github.com/muurk/groundlink/internal/monitor"
	"github.com/muurk/groundlink/internal/sequence"
)

// CurrentVersion is the configuration schema version.
const CurrentVersion = 1

// Config is the whole configuration file.
type Config struct {
	Version           int             `yaml:"version"`
	SystemID          uint8           `yaml:"system_id"`
	ComponentID       uint8           `yaml:"component_id"`
	IgnoreLocalOrigin bool            `yaml:"ignore_local_origin"`
	DuplicateWindow   int             `yaml:"duplicate_window"`
	VersionCheck      bool            `yaml:"version_check"`
	RateInterval      time.Duration   `yaml:"rate_interval"`
	Capture           CaptureConfig   `yaml:"capture"`
	Links             []LinkConfig    `yaml:"links"`
	Metrics           MetricsConfig   `yaml:"metrics"`
	Advertise         AdvertiseConfig `yaml:"advertise"`
	Log               LogConfig       `yaml:"log"`
}

// CaptureConfig starts a raw capture at startup when Path is set.
type CaptureConfig struct {
	Path string `yaml:"path,omitempty"`
}

// LinkConfig is one transport.
type LinkConfig struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Address   string `yaml:"address"`
	BaudRate  int    `yaml:"baud_rate,omitempty"`
	Reconnect bool   `yaml:"reconnect"`
	CertPath  string `yaml:"cert_path,omitempty"`
	KeyPath   string `yaml:"key_path,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// AdvertiseConfig controls mDNS advertisement of the UDP links.
type AdvertiseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
	Port     int    `yaml:"port,omitempty"` // 0 uses the first UDP link's port
}

// LogConfig configures internal/logging.
type LogConfig struct {
	Level string         `yaml:"level"`
	File  *LogFileConfig `yaml:"file,omitempty"`
}

// LogFileConfig enables a lumberjack-rotated JSON log file.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used when no file exists: a ground
// station listening for vehicles on the standard MAVLink UDP port.
func Default() *Config {
	return &Config{
		Version:           CurrentVersion,
		SystemID:          dispatcher.DefaultSelfSystemID,
		ComponentID:       dispatcher.DefaultComponentID,
		IgnoreLocalOrigin: true,
		DuplicateWindow:   sequence.DefaultDuplicateWindow,
		VersionCheck:      true,
		RateInterval:      monitor.DefaultInterval,
		Links: []LinkConfig{
			{Name: "udp", Type: string(link.TypeUDP), Address: "0.0.0.0:14550"},
		},
		Metrics: MetricsConfig{
			Listen: ":9464",
			Path:   "/metrics",
		},
		Advertise: AdvertiseConfig{
			Instance: "groundlink",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Dispatcher returns the dispatcher options.
func (c *Config) Dispatcher() dispatcher.Config {
	return dispatcher.Config{
		SelfSystemID:      c.SystemID,
		ComponentID:       c.ComponentID,
		IgnoreLocalOrigin: c.IgnoreLocalOrigin,
		DuplicateWindow:   c.DuplicateWindow,
		VersionCheck:      c.VersionCheck,
	}
}

// LinkConfigs converts the configured links.
func (c *Config) LinkConfigs() []link.Config {
	out := make([]link.Config, 0, len(c.Links))
	for _, l := range c.Links {
		out = append(out, l.Link())
	}
	return out
}

// Link converts to the transport configuration.
func (l LinkConfig) Link() link.Config {
	return link.Config{
		Name:      l.Name,
		Type:      link.Type(l.Type),
		Address:   l.Address,
		BaudRate:  l.BaudRate,
		Reconnect: l.Reconnect,
		CertPath:  l.CertPath,
		KeyPath:   l.KeyPath,
	}
}

// FileOptions returns the log file options, nil when file logging is off.
func (l LogConfig) FileOptions() *logging.FileOptions {
	if l.File == nil || l.File.Path == "" {
		return nil
	}
	return &logging.FileOptions{
		Path:       l.File.Path,
		MaxSizeMB:  l.File.MaxSizeMB,
		MaxBackups: l.File.MaxBackups,
		MaxAgeDays: l.File.MaxAgeDays,
		Compress:   l.File.Compress,
	}
}
