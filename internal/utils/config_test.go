package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benmeehan/sos-agent/internal/tracker"
	"github.com/benmeehan/sos-agent/pkg/file"
	"github.com/benmeehan/sos-agent/pkg/location"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
version: "1.2.0"
mqtt:
  broker: tcp://localhost:1883
  client_id: sos-agent
identity:
  device_file: device.json
services:
  emergency:
    enabled: true
    view_topic: sos/view
    activation_topic: sos/activations
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig), file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, "feed", cfg.Motion.Source)
	assert.Equal(t, 15.0, cfg.Shake.Threshold)
	assert.Equal(t, time.Second, cfg.Shake.Debounce)
	assert.Equal(t, 3, cfg.Shake.CountThreshold)
	assert.Equal(t, "none", cfg.Location.Provider)
	assert.Equal(t, "memory", cfg.Location.Cache.Backend)
	assert.Equal(t, "standard", cfg.Services.Emergency.BaseMode)
	assert.Equal(t, "devices", cfg.Middlewares.Namespace.Prefix)

	tc := cfg.TrackerConfig()
	assert.Equal(t, tracker.DefaultConfig(), tc)
	assert.Equal(t, location.Coordinate{Lat: 22.8046, Lng: 86.2029}, tc.Fallback)
}

func TestLoadConfig_ParsesDurationsAndProfiles(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig+`
shake:
  threshold: 20
  debounce: 750ms
  count_threshold: 4
location:
  provider: gps
  gps_device_port: /dev/ttyUSB0
  gps_baud_rate: 9600
  poll_interval: 2s
  quick_fix:
    enable_high_accuracy: false
    timeout: 3s
    maximum_age: 30s
  watch:
    enable_high_accuracy: true
    timeout: 8s
    maximum_age: 5s
  fallback:
    lat: 12.9716
    lng: 77.5946
`), file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, 20.0, cfg.Shake.Threshold)
	assert.Equal(t, 750*time.Millisecond, cfg.Shake.Debounce)
	assert.Equal(t, 4, cfg.Shake.CountThreshold)
	assert.Equal(t, 2*time.Second, cfg.Location.PollInterval)

	tc := cfg.TrackerConfig()
	assert.Equal(t, location.Options{Timeout: 3 * time.Second, MaximumAge: 30 * time.Second}, tc.QuickFix)
	assert.Equal(t, location.Options{EnableHighAccuracy: true, Timeout: 8 * time.Second, MaximumAge: 5 * time.Second}, tc.Watch)
	assert.Equal(t, location.Coordinate{Lat: 12.9716, Lng: 77.5946}, tc.Fallback)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("MQTT_BROKER", "ssl://broker.example:8883")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig), file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, "ssl://broker.example:8883", cfg.MQTT.Broker)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "redis:6379", cfg.Location.Cache.RedisAddr)
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{"unsupported version", strings.Replace(minimalConfig, `"1.2.0"`, `"2.0.0"`, 1), "not supported"},
		{"malformed version", strings.Replace(minimalConfig, `"1.2.0"`, `"latest"`, 1), "invalid config version"},
		{"unknown field", minimalConfig + "bogus: true\n", "bogus"},
		{"gps without port", minimalConfig + "location:\n  provider: gps\n", "GPSDevice"},
		{"unknown provider", minimalConfig + "location:\n  provider: galileo\n", "Provider"},
		{"redis without address", minimalConfig + "location:\n  cache:\n    backend: redis\n", "RedisAddr"},
		{"emergency base mode", minimalConfig + "    base_mode: self-emergency\n", "BaseMode"},
		{"unknown metric", minimalConfig + "  status:\n    metrics: [battery]\n", "Metrics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content), file.NewFileService())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), file.NewFileService())
	assert.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SOS_AGENT_TEST_VALUE=from-dotenv\n"), 0o600))
	t.Setenv("SOS_AGENT_TEST_VALUE", "")
	os.Unsetenv("SOS_AGENT_TEST_VALUE")

	require.NoError(t, LoadEnv(filepath.Join(dir, "absent.env"), envFile))
	assert.Equal(t, "from-dotenv", os.Getenv("SOS_AGENT_TEST_VALUE"))
}

func TestSampleConfigIsValid(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "config.yaml"), file.NewFileService())
	require.NoError(t, err)
	assert.True(t, cfg.Services.Emergency.Enabled)
	assert.Equal(t, "gps", cfg.Location.Provider)
}
