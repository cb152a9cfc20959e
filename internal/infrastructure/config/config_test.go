package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/printrelay/internal/infrastructure/secrets"
)

// testCredentialsKey is a hex-encoded 32-byte AES key used only in tests.
const testCredentialsKey = "4a6f1c2e8b9d0357a1c4e6f80b2d4f6813579bdf02468ace13579bdf02468ace"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
scheduler:
  poll_interval_ms: 250
  invoke_timeout: 3s
octoprint:
  base_topic: "octoPrint/printer-2"
devices:
  file: "/etc/printrelay/devices.yaml"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
	if got := cfg.PollInterval(); got != 250*time.Millisecond {
		t.Errorf("PollInterval() = %v, want 250ms", got)
	}
	if cfg.Scheduler.InvokeTimeout != 3*time.Second {
		t.Errorf("Scheduler.InvokeTimeout = %v, want 3s", cfg.Scheduler.InvokeTimeout)
	}
	if cfg.OctoPrint.BaseTopic != "octoPrint/printer-2" {
		t.Errorf("OctoPrint.BaseTopic = %q", cfg.OctoPrint.BaseTopic)
	}
	// Untouched sections keep their defaults.
	if cfg.Devices.TopicPrefix != "printrelay" {
		t.Errorf("Devices.TopicPrefix = %q, want default %q", cfg.Devices.TopicPrefix, "printrelay")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: ""
scheduler:
  poll_interval_ms: 0
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"site.id", "scheduler.poll_interval_ms"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
}

func TestLoad_EncryptedCredentials(t *testing.T) {
	cipher, err := secrets.NewCipher(testCredentialsKey)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	encrypted, err := cipher.Encrypt("broker-pass")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	configPath := writeConfig(t, `
mqtt:
  auth:
    username: "relay"
    password: "`+encrypted+`"
`)
	t.Setenv("PRINTRELAY_CREDENTIALS_KEY", testCredentialsKey)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MQTT.Auth.Password != "broker-pass" {
		t.Errorf("MQTT.Auth.Password = %q, want decrypted value", cfg.MQTT.Auth.Password)
	}
	if cfg.InfluxDB.Token != "" {
		t.Errorf("InfluxDB.Token = %q, want empty", cfg.InfluxDB.Token)
	}
}

func TestLoad_BadCredentialsKey(t *testing.T) {
	configPath := writeConfig(t, `
mqtt:
  auth:
    password: "not-really-encrypted"
`)

	for _, key := range []string{"too-short", "0123456789abcdef0123456789abcdef"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv("PRINTRELAY_CREDENTIALS_KEY", key)
			if _, err := Load(configPath); !errors.Is(err, secrets.ErrInvalidKey) {
				t.Errorf("Load() error = %v, want ErrInvalidKey", err)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	validJWTSecret := "test-secret-key-at-least-32-chars!"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "valid JWT secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = validJWTSecret },
			wantErr: false,
		},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Scheduler.PollIntervalMS = 0 },
			wantErr: true,
		},
		{
			name:    "zero invoke timeout",
			mutate:  func(c *Config) { c.Scheduler.InvokeTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "negative max delay",
			mutate:  func(c *Config) { c.Scheduler.MaxDelayMinutes = -1 },
			wantErr: true,
		},
		{
			name:    "octoprint enabled without base topic",
			mutate:  func(c *Config) { c.OctoPrint.BaseTopic = " " },
			wantErr: true,
		},
		{
			name: "octoprint disabled without base topic",
			mutate: func(c *Config) {
				c.OctoPrint.Enabled = false
				c.OctoPrint.BaseTopic = ""
			},
			wantErr: false,
		},
		{
			name:    "missing devices file",
			mutate:  func(c *Config) { c.Devices.File = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("PRINTRELAY_DATABASE_PATH", "/custom/path.db")
	t.Setenv("PRINTRELAY_MQTT_HOST", "mqtt.example.com")
	t.Setenv("PRINTRELAY_MQTT_PORT", "8883")
	t.Setenv("PRINTRELAY_MQTT_USERNAME", "testuser")
	t.Setenv("PRINTRELAY_MQTT_PASSWORD", "testpass")
	t.Setenv("PRINTRELAY_API_HOST", "192.168.1.1")
	t.Setenv("PRINTRELAY_API_PORT", "not-a-number")
	t.Setenv("PRINTRELAY_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("PRINTRELAY_DEVICES_FILE", "/srv/devices.yaml")
	t.Setenv("PRINTRELAY_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 8095 {
		t.Errorf("API.Port = %d, want default 8095 for unparsable override", cfg.API.Port)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Devices.File != "/srv/devices.yaml" {
		t.Errorf("Devices.File = %q, want %q", cfg.Devices.File, "/srv/devices.yaml")
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8095 {
		t.Errorf("defaultConfig API.Port = %d, want 8095", cfg.API.Port)
	}
	if got := cfg.PollInterval(); got != 500*time.Millisecond {
		t.Errorf("defaultConfig PollInterval() = %v, want 500ms", got)
	}
	if cfg.Security.JWT.Secret != "" {
		t.Error("defaultConfig should leave API auth disabled")
	}
}
