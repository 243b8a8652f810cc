// Package config loads and saves the groundlink configuration file.
//
// The configuration is a single YAML document. Missing keys keep their
// defaults, so a file only needs the settings that differ from Default.
//
// # Configuration File Location
//
// The default file lives in the platform configuration directory:
//   - Linux: $XDG_CONFIG_HOME/groundlink/config.yaml or $HOME/.config/groundlink/config.yaml
//   - macOS: $HOME/.config/groundlink/config.yaml
//   - Windows: %LOCALAPPDATA%\groundlink\config.yaml
//
// # Example
//
//	version: 1
//	system_id: 255
//	component_id: 190
//	ignore_local_origin: true
//	duplicate_window: 16
//	rate_interval: 1s
//	links:
//	  - name: telemetry-radio
//	    type: serial
//	    address: /dev/ttyUSB0
//	    baud_rate: 57600
//	    reconnect: true
//	  - name: sitl
//	    type: udp
//	    address: 0.0.0.0:14550
//	metrics:
//	  enabled: true
//	  listen: :9464
//	log:
//	  level: info
//	  file:
//	    path: /var/log/groundlink/groundlink.log
//	    max_size_mb: 50
//
// # Validation
//
// Validate reports every problem at once; the returned error combines one
// *ValidationError per field with go.uber.org/multierr.
//
// # Thread Safety
//
// Save serialises writes with a package mutex and replaces the file
// atomically.
package config
