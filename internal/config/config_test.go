package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/services"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2*time.Second, cfg.Scanning.Timeout)
	assert.Equal(t, "127.0.0.1:8080", cfg.GetAPIAddress())
	assert.True(t, cfg.IsAPIEnabled())
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) string
		check   func(t *testing.T, c *Config)
		wantErr bool
	}{
		{
			name: "valid yaml",
			setup: func(t *testing.T) string {
				return writeFile(t, "config.yaml", `
scanning:
  timeout: 500ms
  workers: 32
  services:
    tcp: "22,80"
    icmp: ""
api:
  port: 9090
schedules:
  - name: nightly
    cron: "0 3 * * *"
    targets: 10.0.0.0/30
    enabled: true
`)
			},
			check: func(t *testing.T, c *Config) {
				if c.Scanning.Timeout != 500*time.Millisecond {
					t.Errorf("Timeout = %v, want 500ms", c.Scanning.Timeout)
				}
				if c.Scanning.Workers != 32 {
					t.Errorf("Workers = %d, want 32", c.Scanning.Workers)
				}
				if c.API.Port != 9090 {
					t.Errorf("Port = %d, want 9090", c.API.Port)
				}
				// Unset fields keep their defaults.
				if c.API.ListenAddr != "127.0.0.1" {
					t.Errorf("ListenAddr = %q, want default", c.API.ListenAddr)
				}
				if len(c.Schedules) != 1 || c.Schedules[0].Name != "nightly" {
					t.Errorf("Schedules = %+v", c.Schedules)
				}
			},
		},
		{
			name: "valid json",
			setup: func(t *testing.T) string {
				return writeFile(t, "config.json", `{"scanning": {"workers": 8}, "logging": {"level": "debug"}}`)
			},
			check: func(t *testing.T, c *Config) {
				if c.Scanning.Workers != 8 {
					t.Errorf("Workers = %d, want 8", c.Scanning.Workers)
				}
				if c.Logging.Level != "debug" {
					t.Errorf("Level = %q, want debug", c.Logging.Level)
				}
			},
		},
		{
			name: "missing file uses defaults",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "absent.yaml")
			},
			check: func(t *testing.T, c *Config) {
				if c.Scanning.Workers != Default().Scanning.Workers {
					t.Errorf("Workers = %d, want default", c.Scanning.Workers)
				}
			},
		},
		{
			name: "invalid yaml syntax",
			setup: func(t *testing.T) string {
				return writeFile(t, "config.yaml", "scanning:\n  workers: [1\n")
			},
			wantErr: true,
		},
		{
			name: "invalid json syntax",
			setup: func(t *testing.T) string {
				return writeFile(t, "config.json", `{"scanning": {"workers": "many"},}`)
			},
			wantErr: true,
		},
		{
			name: "fails validation",
			setup: func(t *testing.T) string {
				return writeFile(t, "config.yaml", "scanning:\n  workers: 0\n")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.setup(t))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"zero timeout", func(c *Config) { c.Scanning.Timeout = 0 }, "scanning.timeout"},
		{"zero workers", func(c *Config) { c.Scanning.Workers = 0 }, "scanning.workers"},
		{"negative max addresses", func(c *Config) { c.Scanning.MaxAddresses = -1 }, "scanning.max_addresses"},
		{"bad port spec", func(c *Config) { c.Scanning.Services = map[string]string{"tcp": "99999"} }, "scanning.services.tcp"},
		{"bad api port", func(c *Config) { c.API.Port = 70000 }, "api.port"},
		{"empty listen addr", func(c *Config) { c.API.ListenAddr = "" }, "api.listen_addr"},
		{"zero stream interval", func(c *Config) { c.API.StreamInterval = 0 }, "api.stream_interval"},
		{"zero concurrent scans", func(c *Config) { c.API.MaxConcurrentScans = 0 }, "api.max_concurrent_scans"},
		{"zero queue", func(c *Config) { c.API.QueueSize = 0 }, "api.queue_size"},
		{"auth without keys", func(c *Config) { c.API.Auth.Enabled = true }, "api.auth.keys"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"negative health interval", func(c *Config) { c.Daemon.HealthCheckInterval = -time.Second }, "daemon.health_check_interval"},
		{"unnamed profile", func(c *Config) {
			c.Profiles = []ProfileConfig{{Services: map[string]string{"tcp": "22"}}}
		}, "profiles[0].name"},
		{"duplicate profile", func(c *Config) {
			c.Profiles = []ProfileConfig{{Name: "lab"}, {Name: "lab"}}
		}, "profiles[1].name"},
		{"bad profile ports", func(c *Config) {
			c.Profiles = []ProfileConfig{{Name: "lab", Services: map[string]string{"tcp": "99999"}}}
		}, "profiles[0].services.tcp"},
		{"schedule with profile and services", func(c *Config) {
			c.Schedules = []ScheduleConfig{{Name: "a", Cron: "@hourly", Targets: "10.0.0.1",
				Profile: "web", Services: map[string]string{"tcp": "80"}}}
		}, "schedules[0].profile"},
		{"unnamed schedule", func(c *Config) {
			c.Schedules = []ScheduleConfig{{Cron: "@hourly", Targets: "10.0.0.1"}}
		}, "schedules[0].name"},
		{"duplicate schedule", func(c *Config) {
			c.Schedules = []ScheduleConfig{
				{Name: "a", Cron: "@hourly", Targets: "10.0.0.1"},
				{Name: "a", Cron: "@daily", Targets: "10.0.0.2"},
			}
		}, "schedules[1].name"},
		{"bad cron", func(c *Config) {
			c.Schedules = []ScheduleConfig{{Name: "a", Cron: "every tuesday", Targets: "10.0.0.1"}}
		}, "schedules[0].cron"},
		{"no targets", func(c *Config) {
			c.Schedules = []ScheduleConfig{{Name: "a", Cron: "@hourly", Targets: " "}}
		}, "schedules[0].targets"},
		{"bad schedule services", func(c *Config) {
			c.Schedules = []ScheduleConfig{{Name: "a", Cron: "@hourly", Targets: "10.0.0.1",
				Services: map[string]string{"udp": "x"}}}
		}, "schedules[0].services.udp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cerr *errors.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestValidateIgnoresDisabledAPI(t *testing.T) {
	cfg := Default()
	cfg.API.Enabled = false
	cfg.API.Port = 0
	assert.NoError(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Scanning.Services = map[string]string{"tcp": "443"}
	cfg.Schedules = []ScheduleConfig{{Name: "hourly", Cron: "@hourly", Targets: "192.168.1.0/29", Enabled: true}}

	path := filepath.Join(t.TempDir(), "nested", "pingscan.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestServiceRequest(t *testing.T) {
	cfg := Default()
	req, err := cfg.ServiceRequest()
	require.NoError(t, err)
	assert.Nil(t, req)

	cfg.Scanning.Services = map[string]string{"TCP": "22", "icmp": ""}
	req, err = cfg.ServiceRequest()
	require.NoError(t, err)
	assert.Equal(t, []int{22}, req[services.TCP])
	assert.Contains(t, req, services.ICMP)
}

func TestLoggingConfig(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"

	lc := cfg.LoggingConfig()
	assert.Equal(t, logging.LevelWarn, lc.Level)
	assert.Equal(t, logging.FormatJSON, lc.Format)
	assert.Equal(t, "stderr", lc.Output)
}
