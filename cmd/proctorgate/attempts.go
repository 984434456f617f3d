package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goodtune/proctorgate/internal/config"
	"github.com/goodtune/proctorgate/internal/ledger"
	"github.com/goodtune/proctorgate/internal/storage/file"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "Show the attempt counter for the configured test",
	Long: `Print the path of the attempt counter file for the configured test URL
and the number of attempts recorded in it.`,
	Args: cobra.NoArgs,
	RunE: runAttempts,
}

func init() {
	rootCmd.AddCommand(attemptsCmd)
}

func runAttempts(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	store, err := file.Open(cfg.Ledger.Dir)
	if err != nil {
		return fmt.Errorf("failed to initialize attempt storage: %w", err)
	}
	attempts := ledger.New(store, ledger.Options{}, logger)

	used, err := attempts.Peek(context.Background(), cfg.Test.URL)
	if err != nil {
		return fmt.Errorf("failed to read attempt counter: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Test:     %s\n", cfg.Test.URL)
	fmt.Fprintf(out, "Key:      %s\n", ledger.Key(cfg.Test.URL))
	fmt.Fprintf(out, "Counter:  %s\n", attempts.Location(cfg.Test.URL))
	fmt.Fprintf(out, "Attempts: %d of %d\n", used, cfg.Test.MaxAttempts)

	return nil
}
