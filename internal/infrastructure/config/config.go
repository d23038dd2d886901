package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for propctl.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Serial     SerialConfig     `yaml:"serial"`
	Listener   ListenerConfig   `yaml:"listener"`
	Devices    DevicesConfig    `yaml:"devices"`
	Controller ControllerConfig `yaml:"controller"`
	Zones      []ZoneConfig     `yaml:"zones"`
	Effects    []EffectConfig   `yaml:"effects"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	API        APIConfig        `yaml:"api"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SiteConfig identifies the installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// SerialConfig describes the link to the actuator microcontroller.
type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// ListenerConfig contains the raw TCP display client listener settings.
type ListenerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Backlog      int           `yaml:"backlog"`
}

// DevicesConfig sizes the device state array.
type DevicesConfig struct {
	Count int `yaml:"count"`
}

// ControllerConfig tunes the dispatch loop.
type ControllerConfig struct {
	// Heartbeat is the longest clients go without a state frame.
	Heartbeat time.Duration `yaml:"heartbeat"`

	// PollInterval is the pause between dispatch cycles.
	PollInterval time.Duration `yaml:"poll_interval"`

	// DrainTimeout bounds how long shutdown waits for running zone sequences.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// ZoneConfig scripts one zone's effect sequence.
type ZoneConfig struct {
	ID    int          `yaml:"id"`
	Name  string       `yaml:"name"`
	Steps []StepConfig `yaml:"steps"`
}

// StepConfig is one step of a zone script. Exactly one of Device, Delay
// or Effect is set.
type StepConfig struct {
	// Device is 1-based, as on the wire.
	Device int           `yaml:"device,omitempty"`
	State  int           `yaml:"state,omitempty"`
	Delay  time.Duration `yaml:"delay,omitempty"`
	Effect string        `yaml:"effect,omitempty"`
}

// EffectConfig defines a named media or display effect. Exactly one of
// Command or URL is set.
type EffectConfig struct {
	Name    string        `yaml:"name"`
	Command []string      `yaml:"command,omitempty"`
	URL     string        `yaml:"url,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// WebSocketConfig contains browser display client settings.
type WebSocketConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`

	// PanelDir serves the display page from disk instead of the
	// embedded copy.
	PanelDir string `yaml:"panel_dir"`
}

// APIConfig contains HTTP status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// DatabaseConfig contains SQLite journal settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetentionDays prunes state history older than this at startup.
	// Zero keeps everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Override adjusts a loaded configuration before validation. Command-line
// arguments are applied this way.
type Override func(*Config)

// WithSerialDevice sets the serial device path when dev is non-empty.
func WithSerialDevice(dev string) Override {
	return func(c *Config) {
		if dev != "" {
			c.Serial.Device = dev
		}
	}
}

// WithListenPort sets the client listener port when port is non-zero.
func WithListenPort(port int) Override {
	return func(c *Config) {
		if port != 0 {
			c.Listener.Port = port
		}
	}
}

// WithLogLevel sets the log level when level is non-empty.
func WithLogLevel(level string) Override {
	return func(c *Config) {
		if level != "" {
			c.Logging.Level = level
		}
	}
}

// Load builds the configuration and validates it.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, if path is non-empty
//  3. Environment variables
//  4. overrides, in order
//
// Environment variables follow the pattern: PROPCTL_SECTION_KEY
// For example: PROPCTL_SERIAL_DEVICE, PROPCTL_LISTENER_PORT
func Load(path string, overrides ...Override) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	for _, o := range overrides {
		o(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "propctl",
			Name: "propctl",
		},
		Serial: SerialConfig{
			Baud: 9600,
		},
		Listener: ListenerConfig{
			Host:         "0.0.0.0",
			Port:         80,
			WriteTimeout: 2 * time.Second,
			Backlog:      64,
		},
		Devices: DevicesConfig{
			Count: 10,
		},
		Zones: defaultZones(DefaultZoneCount),
		Controller: ControllerConfig{
			Heartbeat:    4 * time.Second,
			PollInterval: 10 * time.Millisecond,
			DrainTimeout: 30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			Enabled:        true,
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Enabled:              true,
			Path:                 "./data/propctl.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "propctl",
			},
			QoS:         1,
			TopicPrefix: "propctl",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// DefaultZoneCount is the number of zones a rig has when the file names
// none.
const DefaultZoneCount = 3

// defaultZones returns placeholder zones whose script only waits a second,
// so "@ZSA<n>?" is accepted out of the box. A zones list in the file
// replaces them entirely.
func defaultZones(n int) []ZoneConfig {
	zones := make([]ZoneConfig, n)
	for i := range zones {
		zones[i] = ZoneConfig{
			ID:    i + 1,
			Name:  fmt.Sprintf("zone %d", i+1),
			Steps: []StepConfig{{Delay: time.Second}},
		}
	}
	return zones
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PROPCTL_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Serial
	if v := os.Getenv("PROPCTL_SERIAL_DEVICE"); v != "" {
		cfg.Serial.Device = v
	}
	if v := os.Getenv("PROPCTL_SERIAL_BAUD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PROPCTL_SERIAL_BAUD: %w", err)
		}
		cfg.Serial.Baud = n
	}

	// Listener
	if v := os.Getenv("PROPCTL_LISTENER_HOST"); v != "" {
		cfg.Listener.Host = v
	}
	if v := os.Getenv("PROPCTL_LISTENER_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PROPCTL_LISTENER_PORT: %w", err)
		}
		cfg.Listener.Port = n
	}

	// Database
	if v := os.Getenv("PROPCTL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("PROPCTL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PROPCTL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PROPCTL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("PROPCTL_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("PROPCTL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("PROPCTL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// maxDevices keeps device IDs to two digits on the wire.
const maxDevices = 99

// maxState is the largest single-digit device state.
const maxState = 9

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Serial
	if c.Serial.Device == "" {
		errs = append(errs, "serial.device is required (pass it as the first argument)")
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, "serial.baud must be positive")
	}

	// Listener
	if c.Listener.Port < 1 || c.Listener.Port > 65535 {
		errs = append(errs, "listener.port must be between 1 and 65535")
	}
	if c.Listener.WriteTimeout <= 0 {
		errs = append(errs, "listener.write_timeout must be positive")
	}

	// Devices and controller
	if c.Devices.Count < 1 || c.Devices.Count > maxDevices {
		errs = append(errs, fmt.Sprintf("devices.count must be between 1 and %d", maxDevices))
	}
	if c.Controller.Heartbeat <= 0 {
		errs = append(errs, "controller.heartbeat must be positive")
	}
	if c.Controller.PollInterval <= 0 {
		errs = append(errs, "controller.poll_interval must be positive")
	}

	errs = append(errs, c.validateEffects()...)
	errs = append(errs, c.validateZones()...)

	// Optional surfaces
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Enabled && c.API.Port == c.Listener.Port && c.API.Host == c.Listener.Host {
		errs = append(errs, "api.port must differ from listener.port")
	}
	if c.WebSocket.Enabled && !c.API.Enabled {
		errs = append(errs, "websocket requires api.enabled")
	}
	if c.WebSocket.Enabled && !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, "websocket.path must start with /")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateEffects() []string {
	var errs []string
	seen := make(map[string]bool, len(c.Effects))
	for i, e := range c.Effects {
		prefix := fmt.Sprintf("effects[%d]", i)
		if e.Name == "" {
			errs = append(errs, prefix+".name is required")
			continue
		}
		if seen[e.Name] {
			errs = append(errs, fmt.Sprintf("%s: duplicate effect name %q", prefix, e.Name))
		}
		seen[e.Name] = true
		if (len(e.Command) == 0) == (e.URL == "") {
			errs = append(errs, fmt.Sprintf("%s (%s): exactly one of command or url is required", prefix, e.Name))
		}
	}
	return errs
}

func (c *Config) validateZones() []string {
	var errs []string
	effects := make(map[string]bool, len(c.Effects))
	for _, e := range c.Effects {
		effects[e.Name] = true
	}

	seen := make(map[int]bool, len(c.Zones))
	for i, z := range c.Zones {
		prefix := fmt.Sprintf("zones[%d]", i)
		if z.ID < 1 {
			errs = append(errs, prefix+".id must be 1 or greater")
		}
		if seen[z.ID] {
			errs = append(errs, fmt.Sprintf("%s: duplicate zone id %d", prefix, z.ID))
		}
		seen[z.ID] = true
		if len(z.Steps) == 0 {
			errs = append(errs, prefix+".steps must not be empty")
		}

		for j, s := range z.Steps {
			sp := fmt.Sprintf("%s.steps[%d]", prefix, j)
			set := 0
			if s.Device != 0 {
				set++
			}
			if s.Delay != 0 {
				set++
			}
			if s.Effect != "" {
				set++
			}
			switch {
			case set != 1:
				errs = append(errs, sp+": exactly one of device, delay or effect is required")
			case s.Device != 0 && (s.Device < 1 || s.Device > c.Devices.Count):
				errs = append(errs, fmt.Sprintf("%s: device must be between 1 and %d", sp, c.Devices.Count))
			case s.Device != 0 && (s.State < 0 || s.State > maxState):
				errs = append(errs, fmt.Sprintf("%s: state must be between 0 and %d", sp, maxState))
			case s.Delay < 0:
				errs = append(errs, sp+": delay must not be negative")
			case s.Effect != "" && !effects[s.Effect]:
				errs = append(errs, fmt.Sprintf("%s: unknown effect %q", sp, s.Effect))
			}
		}
	}
	return errs
}

// ListenAddress returns the client listener's host:port.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Listener.Host, c.Listener.Port)
}

// APIAddress returns the HTTP API's host:port.
func (c *Config) APIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
