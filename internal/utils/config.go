package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/benmeehan/sos-agent/internal/shake"
	"github.com/benmeehan/sos-agent/internal/tracker"
	"github.com/benmeehan/sos-agent/pkg/file"
	"github.com/benmeehan/sos-agent/pkg/location"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// SupportedConfigVersions is the range of config schema versions this build understands.
const SupportedConfigVersions = "^1.0.0"

// Config represents the structure of the configuration file.
type Config struct {
	Version  string `yaml:"version" validate:"required"` // Config schema version (semver)
	LogLevel string `yaml:"log_level"`                   // zerolog level name
	Pretty   bool   `yaml:"pretty_logs"`                 // Human readable console logs

	MQTT struct {
		Broker         string        `yaml:"broker" validate:"required"`    // MQTT broker address
		ClientID       string        `yaml:"client_id" validate:"required"` // MQTT client ID prefix
		Username       string        `yaml:"username"`
		Password       string        `yaml:"password"`
		CACertificate  string        `yaml:"ca_certificate"` // Path to the CA certificate, plain TCP when empty
		ConnectTimeout time.Duration `yaml:"connect_timeout" validate:"gte=0"`
	} `yaml:"mqtt"`

	Identity struct {
		DeviceFile string `yaml:"device_file" validate:"required"` // Path to the device identity file
	} `yaml:"identity"`

	Motion struct {
		Source     string `yaml:"source" validate:"oneof=serial feed"` // serial accelerometer or in-process feed
		DevicePort string `yaml:"device_port" validate:"required_if=Source serial"`
		BaudRate   int    `yaml:"baud_rate" validate:"required_if=Source serial,gte=0"`
	} `yaml:"motion"`

	Shake shake.Config `yaml:"shake"`

	Location struct {
		Provider     string           `yaml:"provider" validate:"oneof=gps google none"` // Where fixes come from
		GPSDevice    string           `yaml:"gps_device_port" validate:"required_if=Provider gps"`
		GPSBaudRate  int              `yaml:"gps_baud_rate" validate:"required_if=Provider gps,gte=0"`
		MapsAPIKey   string           `yaml:"maps_api_key" validate:"required_if=Provider google"`
		ModemIndex   int              `yaml:"modem_index" validate:"gte=0"`
		PollInterval time.Duration    `yaml:"poll_interval" validate:"gt=0"` // Watch polling period
		QuickFix     location.Options `yaml:"quick_fix"`
		Watch        location.Options `yaml:"watch"`
		Fallback     struct {
			Lat float64 `yaml:"lat" validate:"gte=-90,lte=90"`
			Lng float64 `yaml:"lng" validate:"gte=-180,lte=180"`
		} `yaml:"fallback"`

		Cache struct {
			Backend       string        `yaml:"backend" validate:"oneof=memory redis"`
			RedisAddr     string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
			RedisPassword string        `yaml:"redis_password"`
			RedisDB       int           `yaml:"redis_db" validate:"gte=0"`
			Key           string        `yaml:"key"`
			TTL           time.Duration `yaml:"ttl" validate:"gte=0"`
		} `yaml:"cache"`
	} `yaml:"location"`

	Services struct {
		Emergency struct {
			Enabled         bool   `yaml:"enabled"`                                              // Enable/disable the activation coordinator
			ViewTopic       string `yaml:"view_topic" validate:"required_if=Enabled true"`       // Topic the presentation layer renders from
			ActivationTopic string `yaml:"activation_topic" validate:"required_if=Enabled true"` // Topic for activation records
			QOS             int    `yaml:"qos" validate:"gte=0,lte=2"`
			BaseMode        string `yaml:"base_mode" validate:"omitempty,oneof=standard peer-alerts"` // View mode outside an emergency
		} `yaml:"emergency"`

		LocationReport struct {
			Enabled  bool          `yaml:"enabled"`
			Topic    string        `yaml:"topic" validate:"required_if=Enabled true"`
			Interval time.Duration `yaml:"interval" validate:"gte=0"` // Interval between location reports
			QOS      int           `yaml:"qos" validate:"gte=0,lte=2"`
		} `yaml:"location_report"`

		Status struct {
			Enabled  bool          `yaml:"enabled"`
			Topic    string        `yaml:"topic" validate:"required_if=Enabled true"`
			Interval time.Duration `yaml:"interval" validate:"gte=0"` // Interval between status heartbeats
			QOS      int           `yaml:"qos" validate:"gte=0,lte=2"`
			Metrics  []string      `yaml:"metrics" validate:"dive,oneof=uptime cpu memory disk"` // Host metrics to attach, all when empty
		} `yaml:"status"`

		Control struct {
			Enabled bool   `yaml:"enabled"`
			Topic   string `yaml:"topic" validate:"required_if=Enabled true"` // Requests from the presentation layer
			QOS     int    `yaml:"qos" validate:"gte=0,lte=2"`
		} `yaml:"control"`
	} `yaml:"services"`

	Middlewares struct {
		Namespace struct {
			Enabled bool   `yaml:"enabled"` // Prefix every topic with the device namespace
			Prefix  string `yaml:"prefix"`
		} `yaml:"namespace"`
	} `yaml:"middlewares"`
}

// LoadEnv loads .env style files into the process environment. Missing files are ignored.
func LoadEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}

// LoadConfig loads the YAML configuration from the specified file, applies environment
// overrides and defaults, then validates it.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the schema version and every field constraint.
func (c *Config) Validate() error {
	version, err := semver.NewVersion(c.Version)
	if err != nil {
		return fmt.Errorf("invalid config version %q: %w", c.Version, err)
	}
	constraint, err := semver.NewConstraint(SupportedConfigVersions)
	if err != nil {
		return err
	}
	if !constraint.Check(version) {
		return fmt.Errorf("config version %s is not supported (want %s)", version, SupportedConfigVersions)
	}

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnv lets deployment secrets and endpoints come from the environment.
func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&c.LogLevel, "LOG_LEVEL")
	override(&c.MQTT.Broker, "MQTT_BROKER")
	override(&c.MQTT.Username, "MQTT_USERNAME")
	override(&c.MQTT.Password, "MQTT_PASSWORD")
	override(&c.Location.MapsAPIKey, "MAPS_API_KEY")
	override(&c.Location.Cache.RedisAddr, "REDIS_ADDR")
	override(&c.Location.Cache.RedisPassword, "REDIS_PASSWORD")
}

func (c *Config) applyDefaults() {
	if c.Motion.Source == "" {
		c.Motion.Source = "feed"
	}

	defaultShake := shake.DefaultConfig()
	if c.Shake.Threshold == 0 {
		c.Shake.Threshold = defaultShake.Threshold
	}
	if c.Shake.Debounce == 0 {
		c.Shake.Debounce = defaultShake.Debounce
	}
	if c.Shake.CountThreshold == 0 {
		c.Shake.CountThreshold = defaultShake.CountThreshold
	}

	defaultTracker := tracker.DefaultConfig()
	if c.Location.Provider == "" {
		c.Location.Provider = "none"
	}
	if c.Location.PollInterval == 0 {
		c.Location.PollInterval = 5 * time.Second
	}
	if c.Location.QuickFix == (location.Options{}) {
		c.Location.QuickFix = defaultTracker.QuickFix
	}
	if c.Location.Watch == (location.Options{}) {
		c.Location.Watch = defaultTracker.Watch
	}
	if c.Location.Fallback.Lat == 0 && c.Location.Fallback.Lng == 0 {
		c.Location.Fallback.Lat = defaultTracker.Fallback.Lat
		c.Location.Fallback.Lng = defaultTracker.Fallback.Lng
	}
	if c.Location.Cache.Backend == "" {
		c.Location.Cache.Backend = "memory"
	}
	if c.Location.Cache.Key == "" {
		c.Location.Cache.Key = "sos-agent:last-fix"
	}

	if c.Services.Emergency.BaseMode == "" {
		c.Services.Emergency.BaseMode = "standard"
	}
	if c.Services.LocationReport.Interval == 0 {
		c.Services.LocationReport.Interval = 30 * time.Second
	}
	if c.Services.Status.Interval == 0 {
		c.Services.Status.Interval = time.Minute
	}
	if c.Middlewares.Namespace.Prefix == "" {
		c.Middlewares.Namespace.Prefix = "devices"
	}
}

// TrackerConfig converts the location section into tracker settings.
func (c *Config) TrackerConfig() tracker.Config {
	return tracker.Config{
		QuickFix: c.Location.QuickFix,
		Watch:    c.Location.Watch,
		Fallback: location.Coordinate{Lat: c.Location.Fallback.Lat, Lng: c.Location.Fallback.Lng},
	}
}
