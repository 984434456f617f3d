package main

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/proctorgate/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the proctorgate configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return &exitError{code: 1, err: err}
	}

	color.NoColor = color.NoColor || !cfg.Display.Color

	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))

		dumpConfig(cfg, config.Defaults(), unknownKeys)
	}

	return nil
}

// findUnknownKeys loads the config file and reports keys the config package
// does not recognise
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unknownKeys(v.AllKeys(), config.ValidKeys()), nil
}

func unknownKeys(keys []string, valid map[string]bool) []string {
	unknown := []string{}
	for _, key := range keys {
		if !valid[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(cfg, defaultCfg *config.Config, unknownKeys []string) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	// Test
	_, _ = cyan.Println("\n[test]")
	dumpField("  start_time", cfg.Test.StartTime, defaultCfg.Test.StartTime, yellow, green)
	dumpField("  duration", cfg.Test.Duration, defaultCfg.Test.Duration, yellow, green)
	dumpField("  url", cfg.Test.URL, defaultCfg.Test.URL, yellow, green)
	dumpField("  max_attempts", cfg.Test.MaxAttempts, defaultCfg.Test.MaxAttempts, yellow, green)

	// Ledger
	_, _ = cyan.Println("\n[ledger]")
	dumpField("  dir", cfg.Ledger.Dir, defaultCfg.Ledger.Dir, yellow, green)
	dumpField("  lock", cfg.Ledger.Lock, defaultCfg.Ledger.Lock, yellow, green)

	// Browser
	_, _ = cyan.Println("\n[browser]")
	dumpField("  driver", cfg.Browser.Driver, defaultCfg.Browser.Driver, yellow, green)
	dumpField("  executable", cfg.Browser.Executable, defaultCfg.Browser.Executable, yellow, green)
	dumpField("  poll_interval", cfg.Browser.PollInterval, defaultCfg.Browser.PollInterval, yellow, green)
	dumpField("  launch_timeout", cfg.Browser.LaunchTimeout, defaultCfg.Browser.LaunchTimeout, yellow, green)
	dumpField("  install", cfg.Browser.Install, defaultCfg.Browser.Install, yellow, green)

	// Display
	_, _ = cyan.Println("\n[display]")
	dumpField("  grace_period", cfg.Display.GracePeriod, defaultCfg.Display.GracePeriod, yellow, green)
	dumpField("  color", cfg.Display.Color, defaultCfg.Display.Color, yellow, green)

	// Logging
	_, _ = cyan.Println("\n[logging]")
	dumpField("  level", cfg.Logging.Level, defaultCfg.Logging.Level, yellow, green)
	dumpField("  format", cfg.Logging.Format, defaultCfg.Logging.Format, yellow, green)

	// Metrics
	_, _ = cyan.Println("\n[metrics]")
	dumpField("  enabled", cfg.Metrics.Enabled, defaultCfg.Metrics.Enabled, yellow, green)
	dumpField("  bind_address", cfg.Metrics.BindAddress, defaultCfg.Metrics.BindAddress, yellow, green)
	dumpField("  port", cfg.Metrics.Port, defaultCfg.Metrics.Port, yellow, green)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)

		_, _ = cyan.Println("\n[UNKNOWN KEYS - These will be ignored!]")
		for _, key := range unknownKeys {
			_, _ = red.Printf("  %s = (unknown key - check for typos)\n", key)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		_, _ = defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}
