// Package rod drives a kiosk Chromium session through go-rod and the
// DevTools protocol.
package rod

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/goodtune/proctorgate/internal/browser"
	"github.com/rs/zerolog"
)

// Driver implements browser.Driver with go-rod.
type Driver struct {
	logger zerolog.Logger
}

// New creates a rod driver
func New(logger zerolog.Logger) *Driver {
	return &Driver{
		logger: logger.With().Str("component", "browser").Str("driver", "rod").Logger(),
	}
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "rod"
}

// Launch starts Chromium through the rod launcher and opens url in a new
// target.
func (d *Driver) Launch(ctx context.Context, url string, opts browser.LaunchOptions) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := launcher.New().Headless(false).Leakless(true)
	if opts.Kiosk {
		for _, arg := range browser.KioskArgs() {
			l = l.Set(flags.Flag(strings.TrimPrefix(arg, "--")))
		}
	}
	if opts.Executable != "" {
		l = l.Bin(opts.Executable)
	}

	s := &session{logger: d.logger}

	l = l.Context(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	s.release.Add(func() error {
		l.Kill()
		l.Cleanup()
		return nil
	})

	// The browser is not bound to ctx so it can still be closed after an
	// interrupt has cancelled ctx.
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		_ = s.release.Release()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	s.release.Add(b.Close)

	page, err := withLaunchTimeout(b, opts.Timeout).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		_ = s.release.Release()
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		_ = s.release.Release()
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	// Queries must not inherit the launch timeout.
	page = withoutLaunchTimeout(page, opts.Timeout)
	s.release.Add(page.Close)

	s.evaluate = func(ctx context.Context, js string) (interface{}, error) {
		res, err := page.Context(ctx).Eval(js)
		if err != nil {
			return nil, err
		}
		return res.Value.Val(), nil
	}

	d.logger.Info().Str("url", url).Bool("kiosk", opts.Kiosk).Msg("Browser session launched")
	return s, nil
}

// timeoutScoped is satisfied by *rod.Browser and *rod.Page.
type timeoutScoped[T any] interface {
	Timeout(time.Duration) T
	CancelTimeout() T
}

// withLaunchTimeout bounds v by d; d <= 0 leaves rod's default.
func withLaunchTimeout[T timeoutScoped[T]](v T, d time.Duration) T {
	if d <= 0 {
		return v
	}
	return v.Timeout(d)
}

// withoutLaunchTimeout undoes withLaunchTimeout. rod panics when
// CancelTimeout is called on a value that never had a timeout.
func withoutLaunchTimeout[T timeoutScoped[T]](v T, d time.Duration) T {
	if d <= 0 {
		return v
	}
	return v.CancelTimeout()
}

// session adapts a rod page to browser.Session.
type session struct {
	evaluate func(ctx context.Context, js string) (interface{}, error)
	release  browser.Releaser
	logger   zerolog.Logger
}

// FocusState evaluates browser.FocusScript in the page.
func (s *session) FocusState(ctx context.Context) (browser.FocusState, error) {
	raw, err := s.evaluate(ctx, browser.FocusScript)
	if err != nil {
		return browser.FocusState{}, fmt.Errorf("focus query failed: %w", err)
	}
	return browser.DecodeFocusState(raw)
}

// HasFocus evaluates only document.hasFocus().
func (s *session) HasFocus(ctx context.Context) (bool, error) {
	raw, err := s.evaluate(ctx, browser.HasFocusScript)
	if err != nil {
		return false, fmt.Errorf("focus query failed: %w", err)
	}
	focused, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("focus query returned %T, not bool", raw)
	}
	return focused, nil
}

// Close closes the page and browser and kills the launched process.
func (s *session) Close() error {
	err := s.release.Release()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Errors while closing browser session")
	}
	return err
}
