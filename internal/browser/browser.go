// Package browser defines the session handle the supervisor drives. Concrete
// drivers live in the playwright and rod subpackages.
package browser

import (
	"context"
	"time"
)

// FocusScript reports the three focus signals as one object.
const FocusScript = `() => ({
	visible: document.visibilityState === 'visible',
	hidden: document.hidden,
	hasFocus: document.hasFocus()
})`

// HasFocusScript is the degraded query used when FocusScript fails.
const HasFocusScript = `() => document.hasFocus()`

// FocusState is one observation of the monitored page.
type FocusState struct {
	Visible  bool `json:"visible"`
	Hidden   bool `json:"hidden"`
	HasFocus bool `json:"hasFocus"`
}

// Focused reports whether the page is visible, not hidden and holds input
// focus. All three must hold.
func (f FocusState) Focused() bool {
	return f.Visible && !f.Hidden && f.HasFocus
}

// LaunchOptions configures a browser launch
type LaunchOptions struct {
	// Kiosk requests an exclusive full-screen window without navigation
	// controls.
	Kiosk bool

	// Executable optionally overrides the browser binary.
	Executable string

	// Timeout bounds launch and initial navigation (0 means driver default).
	Timeout time.Duration
}

// Driver starts browser sessions bound to a target address.
type Driver interface {
	Name() string
	Launch(ctx context.Context, url string, opts LaunchOptions) (Session, error)
}

// Session is a running browser instance. Close releases every resource the
// session holds.
type Session interface {
	FocusState(ctx context.Context) (FocusState, error)
	HasFocus(ctx context.Context) (bool, error)
	Close() error
}

// KioskArgs are the Chromium switches for a locked-down window.
func KioskArgs() []string {
	return []string{
		"--kiosk",
		"--start-fullscreen",
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-infobars",
	}
}
