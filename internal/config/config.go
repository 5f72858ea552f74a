// Package config loads relay agent configuration from YAML with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/relay-agent/internal/command"
	"github.com/sweeney/relay-agent/internal/logic"
	"github.com/sweeney/relay-agent/internal/mqtt"
	"github.com/sweeney/relay-agent/internal/relay"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RELAY_AGENT_"

// Config is the root configuration.
type Config struct {
	GPIO       GPIOConfig    `yaml:"gpio"`
	Interlocks []logic.Rule  `yaml:"interlocks"`
	MQTT       MQTTConfig    `yaml:"mqtt"`
	Heartbeat  time.Duration `yaml:"heartbeat"`
	HTTP       string        `yaml:"http"`
	Logging    LoggingConfig `yaml:"logging"`
	Influx     InfluxConfig  `yaml:"influx"`
}

// GPIOConfig selects the chip and output lines.
type GPIOConfig struct {
	Chip      string `yaml:"chip"`
	Lines     []int  `yaml:"lines"`
	ActiveLow bool   `yaml:"active_low"`
}

// MQTTConfig contains broker connection and topic settings.
type MQTTConfig struct {
	Broker        string `yaml:"broker"`
	ClientID      string `yaml:"client_id"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	TopicPrefix   string `yaml:"topic_prefix"`
	QoS           int    `yaml:"qos"`
	PayloadFormat string `yaml:"payload_format"`
	BufferSize    int    `yaml:"buffer_size"`

	// GroupedLegacyOff makes the grouped route resolve setTurnOff through
	// setTurnOn, matching installed controllers.
	GroupedLegacyOff bool `yaml:"grouped_legacy_off"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// Output is stdout, stderr or file.
	Output string     `yaml:"output"`
	File   FileConfig `yaml:"file"`
}

// FileConfig controls the rotating log file.
type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// InfluxConfig contains optional InfluxDB telemetry settings.
type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultClientID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with the stock wiring. The client id is left
// empty and filled in by Load.
func Default() *Config {
	return &Config{
		GPIO: GPIOConfig{
			Chip:  "gpiochip0",
			Lines: append([]int(nil), relay.DefaultLines...),
		},
		Interlocks: logic.DefaultRules(),
		MQTT: MQTTConfig{
			Broker:        "tcp://192.168.1.200:1883",
			TopicPrefix:   mqtt.DefaultPrefix,
			QoS:           1,
			PayloadFormat: "json",
			BufferSize:    100,
		},
		Heartbeat: 15 * time.Minute,
		HTTP:      ":80",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
			File: FileConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		Influx: InfluxConfig{
			Org:    "home",
			Bucket: "relay-agent",
		},
	}
}

// DefaultClientID returns relay-agent- followed by 8 random hex digits.
func DefaultClientID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "relay-agent-" + id[:8]
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv(EnvPrefix + "MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv(EnvPrefix + "MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv(EnvPrefix + "GPIO_CHIP"); v != "" {
		cfg.GPIO.Chip = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "INFLUX_TOKEN"); v != "" {
		cfg.Influx.Token = v
	}
}

// Validate checks the configuration. Every problem is reported at once.
func (c *Config) Validate() error {
	var errs []string

	if c.GPIO.Chip == "" {
		errs = append(errs, "gpio.chip is required")
	}
	if len(c.GPIO.Lines) == 0 {
		errs = append(errs, "gpio.lines must not be empty")
	}
	seen := make(map[int]bool, len(c.GPIO.Lines))
	for _, l := range c.GPIO.Lines {
		if l < 0 {
			errs = append(errs, fmt.Sprintf("gpio.lines: negative offset %d", l))
		}
		if seen[l] {
			errs = append(errs, fmt.Sprintf("gpio.lines: offset %d listed twice", l))
		}
		seen[l] = true
	}
	if _, err := logic.NewTable(len(c.GPIO.Lines), c.Interlocks...); err != nil {
		errs = append(errs, fmt.Sprintf("interlocks: %v", err))
	}

	if c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if _, err := command.NewCodec(c.MQTT.PayloadFormat); err != nil {
		errs = append(errs, fmt.Sprintf("mqtt.payload_format: %v", err))
	}
	if c.MQTT.BufferSize < 1 {
		errs = append(errs, "mqtt.buffer_size must be at least 1")
	}

	if c.Heartbeat < 0 {
		errs = append(errs, "heartbeat must not be negative")
	}

	switch strings.ToLower(c.Logging.Output) {
	case "", "stdout", "stderr":
	case "file":
		if c.Logging.File.Path == "" {
			errs = append(errs, "logging.file.path is required when logging.output is file")
		}
	default:
		errs = append(errs, fmt.Sprintf("logging.output %q must be stdout, stderr or file", c.Logging.Output))
	}

	if c.Influx.Enabled {
		if c.Influx.URL == "" {
			errs = append(errs, "influx.url is required when influx is enabled")
		}
		if c.Influx.Bucket == "" {
			errs = append(errs, "influx.bucket is required when influx is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}
