// Package logging provides structured logging for groundlink.
//
// This package wraps a global zap logger with convenience functions used by
// the dispatcher, link transports and CLI commands.
//
// # Log Levels
//
//   - Debug: Decoded messages, hex dumps of rejected frames
//   - Info: Link lifecycle, capture start/stop, server startup
//   - Warn: Malformed data, capture degradation, reconnects
//   - Error: Link failures, capture write failures
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// An empty level falls back to GROUNDLINK_LOG_LEVEL; when that is unset too the
// logger is a no-op. InitializeWithFile additionally writes JSON entries to a
// lumberjack-rotated file:
//
//	err := logging.InitializeWithFile("info", &logging.FileOptions{
//	    Path:      "/var/log/groundlink/groundlink.log",
//	    MaxSizeMB: 50,
//	})
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
