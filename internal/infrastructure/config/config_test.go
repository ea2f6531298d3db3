package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-studio"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "0.0.0.0"
  port: 8080
devices:
  - id: "caspar-main"
    name: "CasparCG Main"
    family: "caspar"
    host: "127.0.0.1"
    port: 5250
    enabled: true
    command_timeout: 5
    reconnect:
      interval: 5
      max_attempts: 3
    options:
      channels: [1, 2]
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-studio" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-studio")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if len(cfg.Devices) != 1 {
		t.Fatalf("len(Devices) = %d, want 1", len(cfg.Devices))
	}

	dev := cfg.Devices[0]
	if dev.Family != "caspar" {
		t.Errorf("Devices[0].Family = %q, want %q", dev.Family, "caspar")
	}
	if dev.Port != 5250 {
		t.Errorf("Devices[0].Port = %d, want 5250", dev.Port)
	}
	if dev.Reconnect.MaxAttempts != 3 {
		t.Errorf("Devices[0].Reconnect.MaxAttempts = %d, want 3", dev.Reconnect.MaxAttempts)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "site: [unclosed"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "site:\n  id: minimal\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want default 8080", cfg.API.Port)
	}
	if cfg.WebSocket.Path != "/ws" {
		t.Errorf("WebSocket.Path = %q, want default /ws", cfg.WebSocket.Path)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default info", cfg.Logging.Level)
	}
	if cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = true, want default false")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MIRAS_DATABASE_PATH", "/override/miras.db")
	t.Setenv("MIRAS_API_PORT", "9090")

	cfg, err := Load(writeConfig(t, "site:\n  id: env-test\ndatabase:\n  path: /file/miras.db\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/override/miras.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want env override 9090", cfg.API.Port)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "missing site id",
			mutate: func(c *Config) { c.Site.ID = "" },
		},
		{
			name:   "missing database path",
			mutate: func(c *Config) { c.Database.Path = "" },
		},
		{
			name:   "invalid api port",
			mutate: func(c *Config) { c.API.Port = 0 },
		},
		{
			name:   "invalid qos",
			mutate: func(c *Config) { c.MQTT.QoS = 3 },
		},
		{
			name: "device missing id",
			mutate: func(c *Config) {
				c.Devices = []DeviceConfig{{Family: "caspar", Host: "h", Port: 1}}
			},
		},
		{
			name: "device missing family",
			mutate: func(c *Config) {
				c.Devices = []DeviceConfig{{ID: "d1", Host: "h", Port: 1}}
			},
		},
		{
			name: "duplicate device id",
			mutate: func(c *Config) {
				c.Devices = []DeviceConfig{
					{ID: "d1", Family: "caspar", Host: "h", Port: 1},
					{ID: "d1", Family: "caspar", Host: "h", Port: 2},
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() expected error, got nil")
			}
		})
	}
}

func TestDeviceConfig_Durations(t *testing.T) {
	d := DeviceConfig{}
	if got := d.GetCommandTimeout(); got != 5*time.Second {
		t.Errorf("GetCommandTimeout() default = %v, want 5s", got)
	}
	if got := d.GetReconnectInterval(); got != 5*time.Second {
		t.Errorf("GetReconnectInterval() default = %v, want 5s", got)
	}

	d.CommandTimeout = 10
	d.Reconnect.Interval = 2
	if got := d.GetCommandTimeout(); got != 10*time.Second {
		t.Errorf("GetCommandTimeout() = %v, want 10s", got)
	}
	if got := d.GetReconnectInterval(); got != 2*time.Second {
		t.Errorf("GetReconnectInterval() = %v, want 2s", got)
	}
}
