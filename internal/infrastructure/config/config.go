package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Twinsync.
// All configuration is loaded from YAML and secrets can be overridden
// by environment variables.
type Config struct {
	Application string           `yaml:"application"`
	Registry    RegistryConfig   `yaml:"registry"`
	Twin        TwinConfig       `yaml:"twin"`
	Reconciler  ReconcilerConfig `yaml:"reconciler"`
	MQTT        MQTTConfig       `yaml:"mqtt"`
	Database    DatabaseConfig   `yaml:"database"`
	API         APIConfig        `yaml:"api"`
	InfluxDB    InfluxDBConfig   `yaml:"influxdb"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// RegistryConfig contains device registry API connection settings.
type RegistryConfig struct {
	URL            string     `yaml:"url"`
	Auth           AuthConfig `yaml:"auth"`
	TimeoutSeconds int        `yaml:"timeout_seconds"`
}

// TwinConfig contains twin service API connection settings.
type TwinConfig struct {
	URL            string     `yaml:"url"`
	Auth           AuthConfig `yaml:"auth"`
	TimeoutSeconds int        `yaml:"timeout_seconds"`
}

// AuthConfig contains access token credentials for an outbound API client.
type AuthConfig struct {
	User  string `yaml:"user"`
	Token string `yaml:"token"`
}

// ReconcilerConfig controls the reconciliation behaviour.
type ReconcilerConfig struct {
	// TemplatePath is the path to the thing template document.
	// Loading it is fatal at startup if it fails.
	TemplatePath string `yaml:"template_path"`

	// IntervalSeconds is the periodic full-scan interval.
	IntervalSeconds int `yaml:"interval_seconds"`

	// LabelSelector restricts reconciliation to devices carrying all of
	// these labels. Devices that stop matching are torn down.
	LabelSelector map[string]string `yaml:"label_selector"`

	// Group is the value stamped into the device facet's group annotation.
	Group string `yaml:"group"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// GroupID enables a shared subscription for horizontal scaling.
	// Empty means a plain per-instance subscription.
	GroupID string `yaml:"group_id"`
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

// MQTTReconnectConfig contains MQTT reconnection policy settings.
// Reconnection uses exponential backoff between InitialDelay and MaxDelay,
// giving up after MaxElapsed and surfacing a fatal error to the operator.
type MQTTReconnectConfig struct {
	InitialDelaySeconds int `yaml:"initial_delay_seconds"`
	MaxDelaySeconds     int `yaml:"max_delay_seconds"`
	MaxElapsedSeconds   int `yaml:"max_elapsed_seconds"`
}

// DatabaseConfig contains SQLite journal database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains the ops HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains the optional metrics sink settings.
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

// Load reads, parses and validates the configuration file at path.
//
// Defaults are applied first, then the YAML file, then environment
// variable overrides for secrets (TWINSYNC_REGISTRY_TOKEN,
// TWINSYNC_TWIN_TOKEN, TWINSYNC_MQTT_PASSWORD, TWINSYNC_INFLUXDB_TOKEN).
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			TimeoutSeconds: 30,
		},
		Twin: TwinConfig{
			TimeoutSeconds: 30,
		},
		Reconciler: ReconcilerConfig{
			TemplatePath:    "configs/template.yaml",
			IntervalSeconds: 60,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "twinsync-operator",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelaySeconds: 1,
				MaxDelaySeconds:     30,
				MaxElapsedSeconds:   300,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/twinsync.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8088,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides for secrets.
// Environment variables follow the pattern: TWINSYNC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TWINSYNC_REGISTRY_TOKEN"); v != "" {
		cfg.Registry.Auth.Token = v
	}
	if v := os.Getenv("TWINSYNC_TWIN_TOKEN"); v != "" {
		cfg.Twin.Auth.Token = v
	}
	if v := os.Getenv("TWINSYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("TWINSYNC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Application == "" {
		errs = append(errs, "application is required")
	}
	if c.Registry.URL == "" {
		errs = append(errs, "registry.url is required")
	}
	if c.Twin.URL == "" {
		errs = append(errs, "twin.url is required")
	}
	if c.Reconciler.TemplatePath == "" {
		errs = append(errs, "reconciler.template_path is required")
	}
	if c.Reconciler.IntervalSeconds <= 0 {
		errs = append(errs, "reconciler.interval_seconds must be positive")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ScanInterval returns the periodic reconciliation interval as a Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Reconciler.IntervalSeconds) * time.Second
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
