package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/muurk/groundlink/internal/link"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout is Linux only")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	dir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if dir != "/tmp/xdg/groundlink" {
		t.Errorf("GetConfigDir() = %q, want /tmp/xdg/groundlink", dir)
	}

	path, err := GetConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("GetConfigPath() = %q", path)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}

	d := cfg.Dispatcher()
	if d.SelfSystemID != 255 || d.ComponentID != 190 || !d.IgnoreLocalOrigin {
		t.Errorf("Dispatcher() = %+v", d)
	}
	if cfg.RateInterval != time.Second {
		t.Errorf("RateInterval = %v, want 1s", cfg.RateInterval)
	}
	if got := cfg.AdvertisePort(); got != 14550 {
		t.Errorf("AdvertisePort() = %d, want 14550", got)
	}
	if cfg.Log.FileOptions() != nil {
		t.Error("FileOptions() != nil without a file")
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
version: 1
system_id: 250
ignore_local_origin: false
rate_interval: 500ms
capture:
  path: /tmp/flight.raw
links:
  - name: radio
    type: serial
    address: /dev/ttyUSB0
    baud_rate: 115200
    reconnect: true
  - name: sitl
    type: tcp
    address: 127.0.0.1:5760
metrics:
  enabled: true
  listen: 127.0.0.1:9464
  path: /metrics
log:
  level: debug
  file:
    path: /var/log/groundlink.log
    max_size_mb: 10
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.SystemID != 250 {
		t.Errorf("SystemID = %d, want 250", cfg.SystemID)
	}
	if cfg.ComponentID != 190 {
		t.Errorf("ComponentID = %d, want default 190", cfg.ComponentID)
	}
	if cfg.IgnoreLocalOrigin {
		t.Error("IgnoreLocalOrigin = true, want false")
	}
	if !cfg.VersionCheck {
		t.Error("VersionCheck lost its default")
	}
	if cfg.RateInterval != 500*time.Millisecond {
		t.Errorf("RateInterval = %v", cfg.RateInterval)
	}
	if cfg.Capture.Path != "/tmp/flight.raw" {
		t.Errorf("Capture.Path = %q", cfg.Capture.Path)
	}

	links := cfg.LinkConfigs()
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2", len(links))
	}
	want := link.Config{Name: "radio", Type: link.TypeSerial, Address: "/dev/ttyUSB0", BaudRate: 115200, Reconnect: true}
	if links[0] != want {
		t.Errorf("links[0] = %+v, want %+v", links[0], want)
	}

	fo := cfg.Log.FileOptions()
	if fo == nil || fo.Path != "/var/log/groundlink.log" || fo.MaxSizeMB != 10 {
		t.Errorf("FileOptions() = %+v", fo)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "bad yaml", data: "links: [unclosed"},
		{name: "system id out of range", data: "system_id: 300"},
		{name: "wrong version", data: "version: 7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("Parse() error = nil, want error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		wantFields []string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:       "window too large",
			mutate:     func(c *Config) { c.DuplicateWindow = 200 },
			wantFields: []string{"duplicate_window"},
		},
		{
			name: "duplicate link names",
			mutate: func(c *Config) {
				c.Links = append(c.Links, LinkConfig{Name: "udp", Type: "udp", Address: ":14551"})
			},
			wantFields: []string{"links[1].name"},
		},
		{
			name: "unknown link type and missing name",
			mutate: func(c *Config) {
				c.Links = []LinkConfig{{Type: "pigeon", Address: "coop"}}
			},
			wantFields: []string{"links[0].name", "links[0]"},
		},
		{
			name: "metrics and log",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Listen = "nonsense"
				c.Metrics.Path = "metrics"
				c.Log.Level = "verbose"
			},
			wantFields: []string{"metrics.listen", "metrics.path", "log.level"},
		},
		{
			name: "advertise without udp link",
			mutate: func(c *Config) {
				c.Advertise.Enabled = true
				c.Links = []LinkConfig{{Name: "sitl", Type: "tcp", Address: "127.0.0.1:5760"}}
			},
			wantFields: []string{"advertise.port"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := multierr.Errors(cfg.Validate())
			var fields []string
			for _, err := range errs {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("error %v is %T, want *ValidationError", err, err)
				}
				fields = append(fields, ve.Field)
			}
			if strings.Join(fields, ",") != strings.Join(tt.wantFields, ",") {
				t.Errorf("invalid fields = %v, want %v", fields, tt.wantFields)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.SystemID = 254
	cfg.RateInterval = 2 * time.Second
	cfg.Links = append(cfg.Links, LinkConfig{Name: "radio", Type: "serial", Address: "/dev/ttyUSB0", BaudRate: 57600, Reconnect: true})

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.SystemID != 254 || loaded.RateInterval != 2*time.Second || len(loaded.Links) != 2 {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want ErrNotExist", err)
	}
}

func TestLoadDefault_NoFile(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout is Linux only")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if cfg.SystemID != Default().SystemID {
		t.Errorf("SystemID = %d", cfg.SystemID)
	}
}
