package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lednetwf-controller/internal/protocol"
)

// ServerConfig holds the HTTP/websocket settings.
type ServerConfig struct {
	Port           string   `yaml:"port"`
	WebFilesDir    string   `yaml:"web_files_dir"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// BLEConfig holds the Bluetooth Low Energy settings.
type BLEConfig struct {
	NamePrefixes   []string `yaml:"name_prefixes"`
	Address        string   `yaml:"address"`
	ScanTimeout    string   `yaml:"scan_timeout"`
	ConnectTimeout string   `yaml:"connect_timeout"`
	StatusInterval string   `yaml:"status_interval"`
	RetryDelay     string   `yaml:"retry_delay"`
	RateLimit      float64  `yaml:"command_rate_limit"`
	RateBurst      int      `yaml:"command_rate_burst"`
}

// MQTTConfig holds the MQTT and Home Assistant discovery settings.
type MQTTConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Broker             string `yaml:"broker"` // tcp://IP:PORT
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	ClientID           string `yaml:"client_id"`
	TopicPrefix        string `yaml:"topic_prefix"`
	HADiscoveryEnabled bool   `yaml:"ha_discovery_enabled"`
	HADiscoveryPrefix  string `yaml:"ha_discovery_prefix"`
}

// LEDConfig describes the attached strip. When ApplyOnConnect is set the
// settings are pushed to the controller after every connection.
type LEDConfig struct {
	ApplyOnConnect bool   `yaml:"apply_on_connect"`
	Count          int    `yaml:"count"`
	ChipType       string `yaml:"chip_type"`
	ColorOrder     string `yaml:"color_order"`
	Segments       int    `yaml:"segments"`
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Config is the root of the configuration file.
type Config struct {
	Server ServerConfig `yaml:"server"`
	BLE    BLEConfig    `yaml:"ble"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	LED    LEDConfig    `yaml:"led"`
	Log    LogConfig    `yaml:"log"`

	PatternsDir   string `yaml:"patterns_dir"`
	SchedulesFile string `yaml:"schedules_file"`
}

// Durations are the parsed BLE timing settings.
type Durations struct {
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
	StatusInterval time.Duration
	RetryDelay     time.Duration
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads the YAML file at path, applies defaults and validates it. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode yaml: %w", err)
	}

	cfg.sanitize()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) sanitize() {
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.Server.WebFilesDir = strings.TrimSpace(c.Server.WebFilesDir)
	c.BLE.Address = strings.ToUpper(strings.TrimSpace(c.BLE.Address))
	c.LED.ChipType = strings.TrimSpace(c.LED.ChipType)
	c.LED.ColorOrder = strings.TrimSpace(c.LED.ColorOrder)
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.PatternsDir = strings.TrimSpace(c.PatternsDir)
	c.SchedulesFile = strings.TrimSpace(c.SchedulesFile)
	// Name prefixes are matched verbatim; advertised names can carry padding.
}

func (c *Config) setDefaults() {
	// Server Defaults
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.WebFilesDir == "" {
		c.Server.WebFilesDir = "./web"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:8080"}
	}

	// BLE Defaults
	if len(c.BLE.NamePrefixes) == 0 {
		c.BLE.NamePrefixes = []string{"LEDnetWF"}
	}
	if c.BLE.ScanTimeout == "" {
		c.BLE.ScanTimeout = "30s"
	}
	if c.BLE.ConnectTimeout == "" {
		c.BLE.ConnectTimeout = "10s"
	}
	if c.BLE.StatusInterval == "" {
		c.BLE.StatusInterval = "60s"
	}
	if c.BLE.RetryDelay == "" {
		c.BLE.RetryDelay = "5s"
	}
	if c.BLE.RateLimit == 0 {
		c.BLE.RateLimit = 20.0
	}
	if c.BLE.RateBurst == 0 {
		c.BLE.RateBurst = 10
	}

	// LED Defaults
	if c.LED.Segments == 0 {
		c.LED.Segments = 1
	}

	// File Defaults
	if c.PatternsDir == "" {
		c.PatternsDir = "patterns"
	}
	if c.SchedulesFile == "" {
		c.SchedulesFile = "schedules.json"
	}

	// MQTT Defaults
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "lednetwf-controller"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "lednetwf"
	}
	if c.MQTT.HADiscoveryPrefix == "" {
		c.MQTT.HADiscoveryPrefix = "homeassistant"
	}
}

func (c *Config) validate() error {
	if c.BLE.RateLimit < 0 {
		return fmt.Errorf("config error: 'command_rate_limit' must be positive")
	}
	if c.BLE.RateBurst < 0 {
		return fmt.Errorf("config error: 'command_rate_burst' must be positive")
	}
	if _, err := c.Durations(); err != nil {
		return err
	}
	if c.LED.ApplyOnConnect {
		if _, err := c.LEDSettings(); err != nil {
			return err
		}
	}
	return nil
}

// Durations parses the BLE timing settings.
func (c *Config) Durations() (Durations, error) {
	var d Durations
	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"scan_timeout", c.BLE.ScanTimeout, &d.ScanTimeout},
		{"connect_timeout", c.BLE.ConnectTimeout, &d.ConnectTimeout},
		{"status_interval", c.BLE.StatusInterval, &d.StatusInterval},
		{"retry_delay", c.BLE.RetryDelay, &d.RetryDelay},
	}
	for _, f := range fields {
		v, err := time.ParseDuration(f.value)
		if err != nil {
			return Durations{}, fmt.Errorf("config error: '%s': %w", f.name, err)
		}
		if v <= 0 {
			return Durations{}, fmt.Errorf("config error: '%s' must be positive", f.name)
		}
		*f.dst = v
	}
	return d, nil
}

// LEDSettings converts the strip section into codec settings.
func (c *Config) LEDSettings() (protocol.LEDSettings, error) {
	if c.LED.Count <= 0 {
		return protocol.LEDSettings{}, fmt.Errorf("config error: 'led.count' must be positive")
	}
	chip, err := protocol.ParseChipType(c.LED.ChipType)
	if err != nil {
		return protocol.LEDSettings{}, fmt.Errorf("config error: 'led.chip_type': %w", err)
	}
	order, err := protocol.ParseColorOrder(c.LED.ColorOrder)
	if err != nil {
		return protocol.LEDSettings{}, fmt.Errorf("config error: 'led.color_order': %w", err)
	}
	count := c.LED.Count
	return protocol.LEDSettings{
		LEDCount:   &count,
		ChipType:   &chip,
		ColorOrder: &order,
		Segments:   c.LED.Segments,
	}, nil
}
