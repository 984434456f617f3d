package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Test    TestConfig    `mapstructure:"test"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Browser BrowserConfig `mapstructure:"browser"`
	Display DisplayConfig `mapstructure:"display"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// TestConfig describes the test being proctored
type TestConfig struct {
	StartTime   string `mapstructure:"start_time"` // "19:00", local time
	Duration    int    `mapstructure:"duration"`   // Entry window length in minutes
	URL         string `mapstructure:"url"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// LedgerConfig defines where attempt counters are kept
type LedgerConfig struct {
	Dir  string `mapstructure:"dir"`
	Lock bool   `mapstructure:"lock"` // Serialize read-modify-write with a lock file
}

// BrowserConfig defines the kiosk browser session
type BrowserConfig struct {
	Driver        string `mapstructure:"driver"`     // "playwright" or "rod"
	Executable    string `mapstructure:"executable"` // Optional browser binary
	PollInterval  string `mapstructure:"poll_interval"`
	LaunchTimeout string `mapstructure:"launch_timeout"`
	Install       bool   `mapstructure:"install"` // Playwright only
}

// DisplayConfig defines console behaviour
type DisplayConfig struct {
	GracePeriod string `mapstructure:"grace_period"`
	Color       bool   `mapstructure:"color"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig defines the optional Prometheus endpoint
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("PROCTORGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// SetConfigFile bypasses the search path, so a missing file surfaces as
		// a PathError rather than ConfigFileNotFoundError.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Test defaults
	v.SetDefault("test.start_time", "19:00")
	v.SetDefault("test.duration", 20)
	v.SetDefault("test.url", "")
	v.SetDefault("test.max_attempts", 1)

	// Ledger defaults
	v.SetDefault("ledger.dir", os.TempDir())
	v.SetDefault("ledger.lock", false)

	// Browser defaults
	v.SetDefault("browser.driver", "playwright")
	v.SetDefault("browser.executable", "")
	v.SetDefault("browser.poll_interval", "1s")
	v.SetDefault("browser.launch_timeout", "60s")
	v.SetDefault("browser.install", true)

	// Display defaults
	v.SetDefault("display.grace_period", "5s")
	v.SetDefault("display.color", true)

	// Logging defaults
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.bind_address", "127.0.0.1")
	v.SetDefault("metrics.port", 9464)
}

// Defaults returns a configuration populated only with default values.
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// ValidKeys returns the set of all recognised configuration keys
func ValidKeys() map[string]bool {
	v := viper.New()
	SetDefaults(v)

	keys := make(map[string]bool)
	for _, key := range v.AllKeys() {
		keys[key] = true
	}
	return keys
}

// validate validates the configuration
func validate(cfg *Config) error {
	if _, err := time.Parse("15:04", cfg.Test.StartTime); err != nil {
		return fmt.Errorf("invalid test start_time %q (want HH:MM)", cfg.Test.StartTime)
	}

	// The window would collapse or invert; reject rather than guess.
	if cfg.Test.Duration <= 0 {
		return fmt.Errorf("test duration must be positive, got %d minutes", cfg.Test.Duration)
	}

	if cfg.Test.URL == "" {
		return fmt.Errorf("test url is required")
	}
	u, err := url.Parse(cfg.Test.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid test url %q (want absolute http or https URL)", cfg.Test.URL)
	}

	if cfg.Test.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", cfg.Test.MaxAttempts)
	}

	if cfg.Ledger.Dir == "" {
		cfg.Ledger.Dir = os.TempDir()
	}

	switch cfg.Browser.Driver {
	case "":
		cfg.Browser.Driver = "playwright"
	case "playwright", "rod":
	default:
		return fmt.Errorf("unsupported browser driver: %s (must be playwright or rod)", cfg.Browser.Driver)
	}

	if d, err := time.ParseDuration(cfg.Browser.PollInterval); err != nil || d <= 0 {
		return fmt.Errorf("invalid browser poll_interval: %q", cfg.Browser.PollInterval)
	}

	if d, err := time.ParseDuration(cfg.Browser.LaunchTimeout); err != nil || d < 0 {
		return fmt.Errorf("invalid browser launch_timeout: %q", cfg.Browser.LaunchTimeout)
	}

	if d, err := time.ParseDuration(cfg.Display.GracePeriod); err != nil || d < 0 {
		return fmt.Errorf("invalid display grace_period: %q", cfg.Display.GracePeriod)
	}

	switch cfg.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid logging format: %s (must be text or json)", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", cfg.Metrics.Port)
	}

	return nil
}
