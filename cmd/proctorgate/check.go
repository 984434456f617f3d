package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/proctorgate/internal/config"
	"github.com/goodtune/proctorgate/internal/gate"
	"github.com/goodtune/proctorgate/internal/ledger"
	"github.com/goodtune/proctorgate/internal/storage/file"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var checkTime string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the entry decision without starting a session",
	Long: `Show whether entry would be allowed now (or at --time) and how many
attempts have been used. Nothing is consumed and no browser is started.`,
	Example: `  proctorgate check
  proctorgate -c exam.yaml check --time 19:25`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkTime, "time", "", "Time of day (HH:MM) - defaults to current time")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	checkAt := time.Now()
	if checkTime != "" {
		t, err := parseCheckTime(checkTime, checkAt)
		if err != nil {
			return fmt.Errorf("invalid time specification: %w", err)
		}
		checkAt = t
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	window, err := gate.NewTimeWindow(cfg.Test.StartTime, time.Duration(cfg.Test.Duration)*time.Minute)
	if err != nil {
		return fmt.Errorf("invalid entry window: %w", err)
	}

	store, err := file.Open(cfg.Ledger.Dir)
	if err != nil {
		return fmt.Errorf("failed to initialize attempt storage: %w", err)
	}
	attempts := ledger.New(store, ledger.Options{}, logger)

	used, err := attempts.Peek(context.Background(), cfg.Test.URL)
	if err != nil {
		return fmt.Errorf("failed to read attempt counter: %w", err)
	}

	color.NoColor = color.NoColor || !cfg.Display.Color
	printCheckResult(cfg, gate.Evaluate(checkAt, window), used, attempts.Location(cfg.Test.URL))

	return nil
}

// printCheckResult prints the entry decision with colors
func printCheckResult(cfg *config.Config, d gate.Decision, used int, location string) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("TEST ENTRY CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("URL:        %s\n", cfg.Test.URL)
	fmt.Printf("Window:     %s - %s (%d minutes)\n", d.Start.Format("15:04"), d.End.Format("15:04"), cfg.Test.Duration)
	fmt.Printf("Check Time: %s\n", d.Now.Format("2006-01-02 15:04"))
	fmt.Println()

	cyan.Print("Window:     ")
	switch d.Reason {
	case gate.ReasonOpen:
		green.Println("OPEN")
		fmt.Printf("            → Entry closes in %s\n", d.Remaining().Round(time.Second))
	case gate.ReasonTooEarly:
		red.Println("TOO EARLY")
		fmt.Printf("            → Test opens at %s\n", d.Start.Format("15:04"))
	case gate.ReasonTooLate:
		red.Println("TOO LATE")
		fmt.Printf("            → Entry closed at %s\n", d.End.Format("15:04"))
	default:
		fmt.Printf("%s\n", d.Reason)
	}

	cyan.Print("Attempts:   ")
	remaining := cfg.Test.MaxAttempts - used
	switch {
	case remaining <= 0:
		red.Printf("%d of %d used\n", used, cfg.Test.MaxAttempts)
		fmt.Println("            → No attempts remaining")
	case remaining == 1:
		yellow.Printf("%d of %d used\n", used, cfg.Test.MaxAttempts)
		fmt.Println("            → Next attempt is the final one")
	default:
		green.Printf("%d of %d used\n", used, cfg.Test.MaxAttempts)
		fmt.Printf("            → %d attempts remaining\n", remaining)
	}
	fmt.Printf("Counter:    %s\n", location)

	cyan.Print("Decision:   ")
	if d.Allowed && remaining > 0 {
		green.Println("ALLOW")
	} else {
		red.Println("DENY")
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

// parseCheckTime parses an HH:MM flag onto the calendar day of now
func parseCheckTime(timeStr string, now time.Time) (time.Time, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute); err != nil {
		return time.Time{}, fmt.Errorf("time must be in HH:MM format: %s", timeStr)
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid time: hour must be 0-23, minute must be 0-59")
	}

	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location()), nil
}
