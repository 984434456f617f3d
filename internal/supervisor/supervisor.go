// Package supervisor owns one kiosk browser session: it launches it, polls
// focus at a fixed interval and terminates it on focus loss or interrupt.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/proctorgate/internal/browser"
	"github.com/goodtune/proctorgate/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is the focus sampling period.
const DefaultPollInterval = time.Second

// ErrAlreadyRun is returned when Run is called on a used supervisor.
var ErrAlreadyRun = errors.New("supervisor: session already run")

// Config holds supervisor settings
type Config struct {
	URL          string
	PollInterval time.Duration
	Launch       browser.LaunchOptions
}

// Result describes a finished session
type Result struct {
	Reason       Reason
	Ticks        int // Focus samples taken
	LaunchedAt   time.Time
	TerminatedAt time.Time
	CloseErr     error
}

// Duration returns how long the session was active.
func (r Result) Duration() time.Duration {
	if r.LaunchedAt.IsZero() {
		return 0
	}
	return r.TerminatedAt.Sub(r.LaunchedAt)
}

// TransitionFunc observes state changes.
type TransitionFunc func(from, to State, reason Reason)

// Supervisor runs the Idle -> Launching -> Active -> Terminated state machine
// for a single session. It is not safe for concurrent use.
type Supervisor struct {
	cfg     Config
	driver  browser.Driver
	waiter  Waiter
	now     func() time.Time
	logger  zerolog.Logger
	onState TransitionFunc

	state   State
	session browser.Session
}

// New creates a supervisor for one session
func New(cfg Config, driver browser.Driver, logger zerolog.Logger) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return &Supervisor{
		cfg:    cfg,
		driver: driver,
		waiter: TimerWaiter{},
		now:    time.Now,
		logger: logger.With().Str("component", "supervisor").Logger(),
		state:  StateIdle,
	}
}

// SetWaiter replaces the inter-tick wait (for testing with a virtual clock)
func (s *Supervisor) SetWaiter(w Waiter) {
	s.waiter = w
}

// SetNow replaces the time source used for result timestamps
func (s *Supervisor) SetNow(now func() time.Time) {
	s.now = now
}

// OnTransition registers fn to be called after every state change
func (s *Supervisor) OnTransition(fn TransitionFunc) {
	s.onState = fn
}

// State returns the current state
func (s *Supervisor) State() State {
	return s.state
}

// Run launches the session and supervises it until it terminates. Cancelling
// ctx is the interrupt signal. The session is always released before Run
// returns. A launch failure is returned as an error; every other termination
// returns a nil error with the reason in Result.
func (s *Supervisor) Run(ctx context.Context) (Result, error) {
	if s.state != StateIdle {
		return Result{}, ErrAlreadyRun
	}

	s.transition(StateLaunching, ReasonNone)

	session, err := s.driver.Launch(ctx, s.cfg.URL, s.cfg.Launch)
	if err != nil {
		reason := ReasonLaunchFailed
		if ctx.Err() != nil {
			reason = ReasonInterrupted
		}
		s.transition(StateTerminated, reason)
		metrics.SessionsTerminatedTotal.WithLabelValues(string(reason)).Inc()
		return Result{Reason: reason, TerminatedAt: s.now()}, fmt.Errorf("failed to launch session: %w", err)
	}
	s.session = session

	res := Result{LaunchedAt: s.now()}
	s.transition(StateActive, ReasonNone)
	metrics.SessionActive.Set(1)

	res.Reason = s.poll(ctx, &res.Ticks)
	res.CloseErr = s.release()
	res.TerminatedAt = s.now()

	s.transition(StateTerminated, res.Reason)
	metrics.SessionActive.Set(0)
	metrics.SessionsTerminatedTotal.WithLabelValues(string(res.Reason)).Inc()
	metrics.SessionDuration.Observe(res.Duration().Seconds())

	s.logger.Info().
		Str("reason", string(res.Reason)).
		Int("ticks", res.Ticks).
		Dur("duration", res.Duration()).
		Msg("Session terminated")

	return res, nil
}

// poll samples focus every interval until the page loses focus or ctx is
// done, and reports which happened.
func (s *Supervisor) poll(ctx context.Context, ticks *int) Reason {
	for {
		if ctx.Err() != nil {
			return ReasonInterrupted
		}

		focused := s.sample(ctx)
		*ticks++

		if !focused {
			// A cancelled query looks like focus loss; report the interrupt.
			if ctx.Err() != nil {
				return ReasonInterrupted
			}
			return ReasonFocusLost
		}

		if err := s.waiter.Wait(ctx, s.cfg.PollInterval); err != nil {
			return ReasonInterrupted
		}
	}
}

// sample takes one focus reading. If the full query fails it falls back to
// document.hasFocus(); if that fails too the tick counts as not focused.
func (s *Supervisor) sample(ctx context.Context) bool {
	state, err := s.session.FocusState(ctx)
	if err == nil {
		focused := state.Focused()
		s.logger.Debug().
			Bool("visible", state.Visible).
			Bool("hidden", state.Hidden).
			Bool("has_focus", state.HasFocus).
			Bool("focused", focused).
			Msg("Focus sample")
		metrics.FocusSamplesTotal.WithLabelValues(focusLabel(focused)).Inc()
		return focused
	}

	s.logger.Warn().Err(err).Msg("Focus query failed, falling back to document.hasFocus()")
	metrics.FocusSamplesTotal.WithLabelValues("error").Inc()

	focused, err := s.session.HasFocus(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Fallback focus query failed, treating page as unfocused")
		return false
	}

	s.logger.Debug().Bool("focused", focused).Msg("Fallback focus sample")
	return focused
}

// release closes the session handle. It runs at most once per supervisor.
func (s *Supervisor) release() error {
	if s.session == nil {
		return nil
	}
	session := s.session
	s.session = nil

	if err := session.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to close browser session cleanly")
		return err
	}
	return nil
}

func (s *Supervisor) transition(to State, reason Reason) {
	from := s.state
	s.state = to

	s.logger.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("reason", string(reason)).
		Msg("State transition")

	if s.onState != nil {
		s.onState(from, to, reason)
	}
}

func focusLabel(focused bool) string {
	if focused {
		return "focused"
	}
	return "unfocused"
}
