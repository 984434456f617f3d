package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/proctorgate/internal/browser"
	"github.com/goodtune/proctorgate/internal/browser/playwright"
	"github.com/goodtune/proctorgate/internal/browser/rod"
	"github.com/goodtune/proctorgate/internal/config"
	"github.com/goodtune/proctorgate/internal/console"
	"github.com/goodtune/proctorgate/internal/entry"
	"github.com/goodtune/proctorgate/internal/gate"
	"github.com/goodtune/proctorgate/internal/ledger"
	"github.com/goodtune/proctorgate/internal/metrics"
	"github.com/goodtune/proctorgate/internal/storage/file"
	"github.com/goodtune/proctorgate/internal/supervisor"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Check entry and start the supervised test session",
	Long: `Check the entry window and attempt quota, then open the test URL in a
kiosk browser and close it as soon as the window loses focus or visibility.`,
	RunE: runEntry,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runEntry(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting proctorgate")

	// Clock gate
	window, err := gate.NewTimeWindow(cfg.Test.StartTime, time.Duration(cfg.Test.Duration)*time.Minute)
	if err != nil {
		return fmt.Errorf("invalid entry window: %w", err)
	}

	// Attempt ledger
	store, err := file.Open(cfg.Ledger.Dir)
	if err != nil {
		return fmt.Errorf("failed to initialize attempt storage: %w", err)
	}
	attempts := ledger.New(store, ledger.Options{Lock: cfg.Ledger.Lock}, logger)

	logger.Debug().
		Str("counter", attempts.Location(cfg.Test.URL)).
		Bool("lock", cfg.Ledger.Lock).
		Msg("Attempt ledger initialized")

	// Browser session
	driver := newDriver(cfg.Browser, logger)
	printer := console.New(os.Stdout, cfg.Display.Color)

	sup := supervisor.New(supervisor.Config{
		URL:          cfg.Test.URL,
		PollInterval: parseDuration(cfg.Browser.PollInterval, supervisor.DefaultPollInterval),
		Launch: browser.LaunchOptions{
			Kiosk:      true,
			Executable: cfg.Browser.Executable,
			Timeout:    parseDuration(cfg.Browser.LaunchTimeout, 60*time.Second),
		},
	}, driver, logger)
	sup.OnTransition(func(from, to supervisor.State, reason supervisor.Reason) {
		if to == supervisor.StateActive {
			printer.SessionActive()
		}
	})

	// Optional metrics endpoint for the lifetime of the run
	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		metricsServer := metrics.NewServer(metricsAddr, logger)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				logger.Error().Err(err).Msg("Error stopping metrics server")
			}
		}()
		logger.Info().Str("addr", metricsServer.Addr()).Msg("Metrics server started")
	}

	// Interrupt cancels the run
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller := entry.New(entry.Config{
		TestURL:     cfg.Test.URL,
		MaxAttempts: cfg.Test.MaxAttempts,
		GracePeriod: parseDuration(cfg.Display.GracePeriod, 5*time.Second),
	}, gate.New(window), attempts, sup, printer, logger)

	outcome := controller.Run(ctx)

	logger.Info().
		Str("stage", string(outcome.Stage)).
		Int("exit_code", outcome.ExitCode).
		Str("session_reason", string(outcome.Session.Reason)).
		Msg("proctorgate finished")

	if outcome.ExitCode != entry.ExitOK {
		return &exitError{code: outcome.ExitCode, err: outcome.Err}
	}
	return nil
}

// newDriver selects the page-automation driver
func newDriver(cfg config.BrowserConfig, logger zerolog.Logger) browser.Driver {
	switch cfg.Driver {
	case "rod":
		return rod.New(logger)
	default:
		return playwright.New(playwright.Options{Install: cfg.Install}, logger)
	}
}

// setupLogger configures the logger based on configuration. Logs go to stderr
// so they never interleave with operator output on stdout.
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.WarnLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	// Default to console text
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
