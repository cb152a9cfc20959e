package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/printrelay/internal/infrastructure/secrets"
)

// Config is the root configuration structure for printrelay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	OctoPrint OctoPrintConfig `yaml:"octoprint"`
	Devices   DevicesConfig   `yaml:"devices"`
}

// SiteConfig contains installation-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
// Password may be stored encrypted; see SecurityConfig.CredentialsKey.
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// PanelDir serves dashboard assets from disk instead of the embedded
	// copy. Empty uses the embedded copy.
	PanelDir string `yaml:"panel_dir"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
// Token may be stored encrypted; see SecurityConfig.CredentialsKey.
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`

	// CredentialsKey decrypts encrypted credential fields (mqtt.auth.password,
	// influxdb.token). It is only ever read from PRINTRELAY_CREDENTIALS_KEY and
	// must be 64 hex characters.
	CredentialsKey string `yaml:"-"`
}

// JWTConfig contains bearer token settings for the HTTP API.
// An empty secret disables API authentication (local installs).
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// SchedulerConfig tunes the delayed-action scheduler.
type SchedulerConfig struct {
	// PollIntervalMS is how often a pending action wakes to count down.
	// It bounds cancellation latency. Default: 500.
	PollIntervalMS int `yaml:"poll_interval_ms"`

	// InvokeTimeout bounds a single device command. Default: 10s.
	InvokeTimeout time.Duration `yaml:"invoke_timeout"`

	// MaxDelayMinutes caps the delay accepted at registration. Default: 1440.
	MaxDelayMinutes float64 `yaml:"max_delay_minutes"`
}

// OctoPrintConfig configures the printer host event source.
type OctoPrintConfig struct {
	Enabled bool `yaml:"enabled"`

	// BaseTopic is the OctoPrint MQTT plugin base topic. Events arrive on
	// {base_topic}/event/{EventName}. Default: "octoPrint".
	BaseTopic string `yaml:"base_topic"`
}

// DevicesConfig points at the device inventory.
type DevicesConfig struct {
	// File is a YAML inventory of smart devices reachable through the bridge.
	File string `yaml:"file"`

	// TopicPrefix is the root for bridge command and state topics.
	// Default: "printrelay".
	TopicPrefix string `yaml:"topic_prefix"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//  4. Decryption of encrypted credentials (when a credentials key is set)
//
// Environment variables follow the pattern: PRINTRELAY_SECTION_KEY
// For example: PRINTRELAY_DATABASE_PATH, PRINTRELAY_API_PORT
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

	if err := cfg.decryptCredentials(); err != nil {
		return nil, fmt.Errorf("decrypting credentials: %w", err)
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
			ID:   "printer-01",
			Name: "Print Farm",
		},
		Database: DatabaseConfig{
			Path:        "./data/printrelay.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "printrelay",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8095,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Scheduler: SchedulerConfig{
			PollIntervalMS:  500,
			InvokeTimeout:   10 * time.Second,
			MaxDelayMinutes: 1440,
		},
		OctoPrint: OctoPrintConfig{
			Enabled:   true,
			BaseTopic: "octoPrint",
		},
		Devices: DevicesConfig{
			File:        "configs/devices.yaml",
			TopicPrefix: "printrelay",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PRINTRELAY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PRINTRELAY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("PRINTRELAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PRINTRELAY_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("PRINTRELAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PRINTRELAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("PRINTRELAY_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("PRINTRELAY_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("PRINTRELAY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("PRINTRELAY_DEVICES_FILE"); v != "" {
		cfg.Devices.File = v
	}

	if v := os.Getenv("PRINTRELAY_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("PRINTRELAY_CREDENTIALS_KEY"); v != "" {
		cfg.Security.CredentialsKey = v
	}
}

// decryptCredentials replaces encrypted credential fields with plaintext.
// Without a credentials key the values are used as written.
func (c *Config) decryptCredentials() error {
	if c.Security.CredentialsKey == "" {
		return nil
	}

	cipher, err := secrets.NewCipher(c.Security.CredentialsKey)
	if err != nil {
		return err
	}

	if c.MQTT.Auth.Password, err = cipher.Decrypt(c.MQTT.Auth.Password); err != nil {
		return fmt.Errorf("mqtt.auth.password: %w", err)
	}
	if c.InfluxDB.Token, err = cipher.Decrypt(c.InfluxDB.Token); err != nil {
		return fmt.Errorf("influxdb.token: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// An empty secret disables auth; a short one is a misconfiguration.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if c.Scheduler.PollIntervalMS <= 0 {
		errs = append(errs, "scheduler.poll_interval_ms must be positive")
	}
	if c.Scheduler.InvokeTimeout <= 0 {
		errs = append(errs, "scheduler.invoke_timeout must be positive")
	}
	if c.Scheduler.MaxDelayMinutes <= 0 || math.IsInf(c.Scheduler.MaxDelayMinutes, 0) || math.IsNaN(c.Scheduler.MaxDelayMinutes) {
		errs = append(errs, "scheduler.max_delay_minutes must be a positive number")
	}

	if c.OctoPrint.Enabled && strings.TrimSpace(c.OctoPrint.BaseTopic) == "" {
		errs = append(errs, "octoprint.base_topic is required when octoprint is enabled")
	}

	if c.Devices.File == "" {
		errs = append(errs, "devices.file is required")
	}
	if c.Devices.TopicPrefix == "" {
		errs = append(errs, "devices.topic_prefix is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// PollInterval returns the scheduler poll interval as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Scheduler.PollIntervalMS) * time.Millisecond
}
