// Package playwright drives a kiosk Chromium session through Playwright.
package playwright

import (
	"context"
	"fmt"
	"io"

	"github.com/goodtune/proctorgate/internal/browser"
	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

// Options configures the Playwright driver
type Options struct {
	// Install downloads the Playwright driver and Chromium before launching.
	Install bool
}

// Driver implements browser.Driver with playwright-go.
type Driver struct {
	opts   Options
	logger zerolog.Logger
}

// New creates a Playwright driver
func New(opts Options, logger zerolog.Logger) *Driver {
	return &Driver{
		opts:   opts,
		logger: logger.With().Str("component", "browser").Str("driver", "playwright").Logger(),
	}
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "playwright"
}

// Launch starts Playwright, opens Chromium and navigates to url.
func (d *Driver) Launch(ctx context.Context, url string, opts browser.LaunchOptions) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Discard driver output so it does not interleave with console status lines
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if d.opts.Install {
		d.logger.Debug().Msg("Installing Playwright driver and browsers")
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("launch interrupted: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	s := &session{logger: d.logger}
	s.release.Add(pw.Stop)
	if err := s.abortIfDone(ctx); err != nil {
		return nil, err
	}

	headless := false
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &headless,
	}
	if opts.Kiosk {
		launchOpts.Args = browser.KioskArgs()
	}
	if opts.Executable != "" {
		launchOpts.ExecutablePath = &opts.Executable
	}
	if opts.Timeout > 0 {
		ms := float64(opts.Timeout.Milliseconds())
		launchOpts.Timeout = &ms
	}

	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = s.release.Release()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	s.release.Add(func() error { return b.Close() })
	if err := s.abortIfDone(ctx); err != nil {
		return nil, err
	}

	// Let the kiosk window define the viewport instead of Playwright's 1280x720
	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		NoViewport: playwright.Bool(true),
	})
	if err != nil {
		_ = s.release.Release()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	s.release.Add(func() error { return bctx.Close() })
	if err := s.abortIfDone(ctx); err != nil {
		return nil, err
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = s.release.Release()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	s.release.Add(func() error { return page.Close() })
	if err := s.abortIfDone(ctx); err != nil {
		return nil, err
	}

	gotoOpts := playwright.PageGotoOptions{}
	waitUntil := playwright.WaitUntilState("domcontentloaded")
	gotoOpts.WaitUntil = &waitUntil
	if opts.Timeout > 0 {
		ms := float64(opts.Timeout.Milliseconds())
		gotoOpts.Timeout = &ms
	}

	if _, err := page.Goto(url, gotoOpts); err != nil {
		_ = s.release.Release()
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	if err := s.abortIfDone(ctx); err != nil {
		return nil, err
	}

	s.evaluate = func(expr string) (interface{}, error) {
		return page.Evaluate(expr)
	}

	d.logger.Info().Str("url", page.URL()).Bool("kiosk", opts.Kiosk).Msg("Browser session launched")
	return s, nil
}

// session adapts a Playwright page to browser.Session.
type session struct {
	evaluate func(expr string) (interface{}, error)
	release  browser.Releaser
	logger   zerolog.Logger
}

// abortIfDone releases everything acquired so far once ctx is done, so an
// interrupt between launch steps does not wait for the remaining ones.
func (s *session) abortIfDone(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	_ = s.release.Release()
	return fmt.Errorf("launch interrupted: %w", err)
}

// FocusState evaluates browser.FocusScript in the page.
func (s *session) FocusState(ctx context.Context) (browser.FocusState, error) {
	if err := ctx.Err(); err != nil {
		return browser.FocusState{}, err
	}

	raw, err := s.evaluate(browser.FocusScript)
	if err != nil {
		return browser.FocusState{}, fmt.Errorf("focus query failed: %w", err)
	}
	return browser.DecodeFocusState(raw)
}

// HasFocus evaluates only document.hasFocus().
func (s *session) HasFocus(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	raw, err := s.evaluate(browser.HasFocusScript)
	if err != nil {
		return false, fmt.Errorf("focus query failed: %w", err)
	}
	focused, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("focus query returned %T, not bool", raw)
	}
	return focused, nil
}

// Close releases page, context, browser and the Playwright driver.
func (s *session) Close() error {
	err := s.release.Release()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Errors while closing browser session")
	}
	return err
}
