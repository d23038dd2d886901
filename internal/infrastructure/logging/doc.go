// Package logging provides structured logging for propctl.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text when run by hand, with service, version and site
// attributes on every entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// The level can be changed at runtime with SetLevel; --log-level on the
// command line is applied that way after the config is loaded.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	zoneLog := logger.Component("zone")
//	zoneLog.Info("zone sequence started", "zone", 2)
//
// Never log broker passwords or InfluxDB tokens.
package logging
