// Package config handles loading and validating propctl configuration.
//
// This package manages:
//   - Loading configuration from a YAML file (optional)
//   - Overriding with PROPCTL_* environment variables
//   - Applying command-line overrides (serial device, listen port)
//   - Validation of required fields and zone scripts
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("propctl.yaml", config.WithSerialDevice("/dev/ttyACM0"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Listener.Port)
package config
