// Package gate decides whether entry to a test is permitted at a given
// wall-clock time.
package gate

import (
	"errors"
	"fmt"
	"time"
)

// ErrGateDenied is matched by every DeniedError.
var ErrGateDenied = errors.New("gate: entry denied")

// ErrInvalidDuration is returned for windows that would collapse or invert.
var ErrInvalidDuration = errors.New("gate: window duration must be positive")

// Reason explains a gate decision
type Reason string

const (
	ReasonOpen     Reason = "OPEN"
	ReasonTooEarly Reason = "TOO_EARLY"
	ReasonTooLate  Reason = "TOO_LATE"
)

// TimeWindow is a daily entry window: a time of day plus a duration.
type TimeWindow struct {
	hour     int
	minute   int
	duration time.Duration
}

// NewTimeWindow parses start ("HH:MM") and builds a window of the given length.
func NewTimeWindow(start string, duration time.Duration) (TimeWindow, error) {
	parsed, err := time.Parse("15:04", start)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("invalid start time %q: %w", start, err)
	}
	if duration <= 0 {
		return TimeWindow{}, fmt.Errorf("%w: %s", ErrInvalidDuration, duration)
	}

	return TimeWindow{
		hour:     parsed.Hour(),
		minute:   parsed.Minute(),
		duration: duration,
	}, nil
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return w.duration
}

// StartString returns the configured start as "HH:MM".
func (w TimeWindow) StartString() string {
	return fmt.Sprintf("%02d:%02d", w.hour, w.minute)
}

// Bounds returns the window anchored to the calendar day of now.
// End is always recomputed from start + duration.
func (w TimeWindow) Bounds(now time.Time) (start, end time.Time) {
	start = time.Date(
		now.Year(), now.Month(), now.Day(),
		w.hour, w.minute, 0, 0,
		now.Location(),
	)
	return start, start.Add(w.duration)
}

// Decision is the outcome of a gate evaluation
type Decision struct {
	Allowed bool
	Reason  Reason
	Now     time.Time
	Start   time.Time
	End     time.Time
}

// Evaluate decides whether entry is allowed at now. The window is the closed
// interval [start, end].
func Evaluate(now time.Time, w TimeWindow) Decision {
	start, end := w.Bounds(now)

	d := Decision{
		Now:   now,
		Start: start,
		End:   end,
	}

	switch {
	case now.Before(start):
		d.Reason = ReasonTooEarly
	case now.After(end):
		d.Reason = ReasonTooLate
	default:
		d.Allowed = true
		d.Reason = ReasonOpen
	}

	return d
}

// Remaining returns the time left before the window closes, or zero.
func (d Decision) Remaining() time.Duration {
	if !d.Allowed {
		return 0
	}
	return d.End.Sub(d.Now)
}

// Err returns a DeniedError for a denied decision and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason, Start: d.Start, End: d.End}
}

// DeniedError reports why the gate refused entry.
type DeniedError struct {
	Reason Reason
	Start  time.Time
	End    time.Time
}

func (e *DeniedError) Error() string {
	switch e.Reason {
	case ReasonTooEarly:
		return fmt.Sprintf("test not yet available: opens at %s", e.Start.Format("15:04"))
	case ReasonTooLate:
		return fmt.Sprintf("test entry closed at %s", e.End.Format("15:04"))
	default:
		return fmt.Sprintf("entry denied: %s", e.Reason)
	}
}

// Is reports ErrGateDenied as a match so callers can use errors.Is.
func (e *DeniedError) Is(target error) bool {
	return target == ErrGateDenied
}

// Gate evaluates a fixed window against a clock.
type Gate struct {
	window TimeWindow
	clock  Clock
}

// New creates a gate for window using the real clock.
func New(window TimeWindow) *Gate {
	return &Gate{window: window, clock: RealClock{}}
}

// SetClock sets the clock for evaluation (for testing)
func (g *Gate) SetClock(clock Clock) {
	g.clock = clock
}

// Window returns the configured window.
func (g *Gate) Window() TimeWindow {
	return g.window
}

// Check evaluates the window against the current time. It is never cached.
func (g *Gate) Check() Decision {
	return Evaluate(g.clock.Now(), g.window)
}
