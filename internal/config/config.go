package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/chaz8081/govee-light/internal/ble"
)

// Environment variables that override the config file.
const (
	EnvAddress  = "GOVEE_LIGHT_ADDRESS"
	EnvHTTPAddr = "GOVEE_LIGHT_HTTP_ADDR"
)

// Config holds all application configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	KeepAlive KeepAliveConfig `yaml:"keepalive"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	HTTP      HTTPConfig      `yaml:"http"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig identifies the light and bounds startup.
type DeviceConfig struct {
	Address            string        `yaml:"address"` // 12 hex digits, delimiters optional
	CharacteristicUUID string        `yaml:"characteristic_uuid"`
	ScanTimeout        time.Duration `yaml:"scan_timeout"`    // 0 scans until interrupted
	ConnectTimeout     time.Duration `yaml:"connect_timeout"` // 0 waits until interrupted
}

// KeepAliveConfig holds keep-alive settings.
type KeepAliveConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// GatewayConfig holds write path settings.
type GatewayConfig struct {
	WriteTimeout time.Duration `yaml:"write_timeout"`
	QueueSize    int           `yaml:"queue_size"`
	RateLimit    float64       `yaml:"rate_limit"` // writes per second, 0 for unlimited
	Burst        int           `yaml:"burst"`
}

// HTTPConfig holds HTTP listener settings.
type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

// LoggingConfig holds log level and output settings.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format"` // "console" or "json"
	File   FileConfig `yaml:"file"`
}

// FileConfig enables rolling file output when Filename is set.
type FileConfig struct {
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "govee-light")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with the stock light identity and listener.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Address:            ble.DefaultAddress,
			CharacteristicUUID: ble.DefaultCharacteristicUUID,
			ScanTimeout:        30 * time.Second,
			ConnectTimeout:     10 * time.Second,
		},
		KeepAlive: KeepAliveConfig{
			Interval: ble.DefaultKeepAliveInterval,
		},
		Gateway: GatewayConfig{
			WriteTimeout: 2 * time.Second,
			QueueSize:    16,
			Burst:        1,
		},
		HTTP: HTTPConfig{
			Addr:         "127.0.0.1:3030",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enable: true,
			Path:   "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File: FileConfig{
				MaxSizeMB:  100,
				MaxBackups: 7,
				MaxAgeDays: 30,
			},
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in logging.file.filename is expanded to the
// user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Logging.File.Filename = expandTilde(cfg.Logging.File.Filename)

	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAddress); v != "" {
		c.Device.Address = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.HTTP.Addr = v
	}
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if !ble.ValidAddress(c.Device.Address) {
		return fmt.Errorf("device.address must be 12 hex digits, got %q", c.Device.Address)
	}

	if !validUUID(c.Device.CharacteristicUUID) {
		return fmt.Errorf("device.characteristic_uuid must be a hyphenated 128-bit UUID, got %q", c.Device.CharacteristicUUID)
	}

	if c.Device.ScanTimeout < 0 || c.Device.ConnectTimeout < 0 {
		return fmt.Errorf("device timeouts must be >= 0")
	}

	if c.KeepAlive.Interval <= 0 {
		return fmt.Errorf("keepalive.interval must be > 0")
	}

	if c.Gateway.WriteTimeout <= 0 {
		return fmt.Errorf("gateway.write_timeout must be > 0")
	}

	if c.Gateway.QueueSize <= 0 {
		return fmt.Errorf("gateway.queue_size must be > 0")
	}

	if c.Gateway.RateLimit < 0 {
		return fmt.Errorf("gateway.rate_limit must be >= 0")
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr must not be empty")
	}

	if c.Metrics.Enable && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with \"/\", got %q", c.Metrics.Path)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}

	return nil
}

// ParseLogLevel maps a level name to a zap level, defaulting to info.
func ParseLogLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WriteDefault writes the default config to DefaultConfigPath. It returns
// ("", nil) without touching anything if the file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	header := "# govee-light configuration\n# Durations use Go syntax, e.g. 2s, 500ms.\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

func validUUID(s string) bool {
	parts := strings.Split(s, "-")
	if len(parts) != 5 {
		return false
	}
	for i, n := range []int{8, 4, 4, 4, 12} {
		if len(parts[i]) != n || !isHex(parts[i]) {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
