// Package entry sequences a test start: the clock gate, then the attempt
// ledger, then the supervised browser session, stopping at the first denial.
package entry

import (
	"context"
	"errors"
	"time"

	"github.com/goodtune/proctorgate/internal/console"
	"github.com/goodtune/proctorgate/internal/gate"
	"github.com/goodtune/proctorgate/internal/ledger"
	"github.com/goodtune/proctorgate/internal/metrics"
	"github.com/goodtune/proctorgate/internal/supervisor"
	"github.com/rs/zerolog"
)

// Exit codes
const (
	ExitOK     = 0
	ExitDenied = 1
)

// Stage is the last step an entry run reached
type Stage string

const (
	StageGate    Stage = "gate"
	StageLedger  Stage = "ledger"
	StageSession Stage = "session"
)

// SessionRunner runs one supervised session to completion.
type SessionRunner interface {
	Run(ctx context.Context) (supervisor.Result, error)
}

// Config holds entry settings
type Config struct {
	TestURL     string
	MaxAttempts int
	GracePeriod time.Duration // Countdown shown before exiting on denial
}

// Outcome describes a finished entry run
type Outcome struct {
	ExitCode int
	Stage    Stage
	Gate     gate.Decision
	Attempt  ledger.Result
	Session  supervisor.Result
	Err      error
}

// Controller runs the entry sequence
type Controller struct {
	cfg     Config
	gate    *gate.Gate
	ledger  *ledger.Ledger
	session SessionRunner
	printer *console.Printer
	logger  zerolog.Logger
}

// New creates an entry controller
func New(cfg Config, g *gate.Gate, l *ledger.Ledger, session SessionRunner, printer *console.Printer, logger zerolog.Logger) *Controller {
	return &Controller{
		cfg:     cfg,
		gate:    g,
		ledger:  l,
		session: session,
		printer: printer,
		logger:  logger.With().Str("component", "entry").Logger(),
	}
}

// Run performs the entry sequence. Any session that launches exits with
// ExitOK whatever ended it; denials and launch failures exit with ExitDenied.
func (c *Controller) Run(ctx context.Context) Outcome {
	out := Outcome{Stage: StageGate}

	c.printer.Banner("TEST ENTRY CHECK")

	// Clock gate
	out.Gate = c.gate.Check()
	metrics.GateDecisionsTotal.WithLabelValues(string(out.Gate.Reason)).Inc()
	c.printer.GateDecision(out.Gate)

	if err := out.Gate.Err(); err != nil {
		c.logger.Info().
			Str("reason", string(out.Gate.Reason)).
			Time("start", out.Gate.Start).
			Time("end", out.Gate.End).
			Msg("Entry denied by clock window")
		return c.deny(ctx, out, err)
	}

	// Attempt ledger
	out.Stage = StageLedger
	res, err := c.ledger.CheckAndConsume(ctx, c.cfg.TestURL, c.cfg.MaxAttempts)
	out.Attempt = res
	c.printer.Attempt(res)
	if err != nil {
		return c.deny(ctx, out, err)
	}

	// Supervised session
	out.Stage = StageSession
	c.printer.SessionStarting(c.cfg.TestURL)

	session, err := c.session.Run(ctx)
	out.Session = session
	if err != nil {
		out.ExitCode = ExitDenied
		out.Err = err
		c.printer.LaunchFailed(err)
		c.logger.Error().Err(err).Msg("Browser session failed to start")
		return out
	}

	c.printer.SessionEnded(session)
	out.ExitCode = ExitOK
	return out
}

func (c *Controller) deny(ctx context.Context, out Outcome, err error) Outcome {
	out.ExitCode = ExitDenied
	out.Err = err

	c.printer.Denied()
	if c.cfg.GracePeriod > 0 {
		if cerr := c.printer.Countdown(ctx, c.cfg.GracePeriod); cerr != nil && !errors.Is(cerr, context.Canceled) {
			c.logger.Warn().Err(cerr).Msg("Countdown ended early")
		}
	}
	return out
}
