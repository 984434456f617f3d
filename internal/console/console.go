// Package console renders human-readable status lines for the operator.
// Output is coloured when enabled and is not meant to be parsed.
package console

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/proctorgate/internal/gate"
	"github.com/goodtune/proctorgate/internal/ledger"
	"github.com/goodtune/proctorgate/internal/supervisor"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// Printer writes status lines to an output stream.
type Printer struct {
	out    io.Writer
	waiter supervisor.Waiter

	heading *color.Color
	ok      *color.Color
	warn    *color.Color
	fail    *color.Color
}

// New creates a printer writing to out. When colors is false no escape
// sequences are emitted regardless of the terminal.
func New(out io.Writer, colors bool) *Printer {
	p := &Printer{
		out:     out,
		waiter:  supervisor.TimerWaiter{},
		heading: color.New(color.FgCyan, color.Bold),
		ok:      color.New(color.FgGreen, color.Bold),
		warn:    color.New(color.FgYellow, color.Bold),
		fail:    color.New(color.FgRed, color.Bold),
	}

	for _, c := range []*color.Color{p.heading, p.ok, p.warn, p.fail} {
		if colors {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// SetWaiter replaces the countdown's per-second wait (for testing)
func (p *Printer) SetWaiter(w supervisor.Waiter) {
	p.waiter = w
}

// Banner prints a section heading.
func (p *Printer) Banner(title string) {
	fmt.Fprintln(p.out)
	p.heading.Fprintln(p.out, rule)
	p.heading.Fprintln(p.out, title)
	p.heading.Fprintln(p.out, rule)
	fmt.Fprintln(p.out)
}

// GateDecision prints the current time, the entry window and the verdict.
func (p *Printer) GateDecision(d gate.Decision) {
	fmt.Fprintf(p.out, "Current time: %s\n", d.Now.Format("15:04:05"))
	fmt.Fprintf(p.out, "Test entry window: %s - %s\n", d.Start.Format("15:04"), d.End.Format("15:04"))

	switch d.Reason {
	case gate.ReasonTooEarly:
		p.fail.Fprintln(p.out, "❌ TEST NOT YET AVAILABLE!")
		fmt.Fprintf(p.out, "⏰ Test opens at %s\n", d.Start.Format("15:04"))
	case gate.ReasonTooLate:
		p.fail.Fprintln(p.out, "❌ TEST ENTRY CLOSED!")
		fmt.Fprintf(p.out, "🔒 Entry closed at %s\n", d.End.Format("15:04"))
	default:
		p.ok.Fprintln(p.out, "✅ TEST ENTRY ALLOWED")
		fmt.Fprintf(p.out, "   Entry closes in %s\n", formatRemaining(d.Remaining()))
	}
}

// Attempt prints the outcome of a quota check.
func (p *Printer) Attempt(res ledger.Result) {
	if !res.Allowed {
		p.fail.Fprintln(p.out, "❌ NO ATTEMPTS REMAINING!")
		fmt.Fprintf(p.out, "   All %d attempt(s) for this test have been used\n", res.Max)
		return
	}

	fmt.Fprintf(p.out, "Attempt %d of %d\n", res.Attempt, res.Max)
	if res.Final {
		p.warn.Fprintln(p.out, "⚠️  This is your final attempt")
	}
	if res.WriteErr != nil {
		p.warn.Fprintf(p.out, "⚠️  Could not record this attempt in %s: %v\n", res.Location, res.WriteErr)
	}
}

// SessionStarting announces the browser launch.
func (p *Printer) SessionStarting(url string) {
	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "🚀 Starting browser at %s\n", url)
}

// SessionActive describes what the monitor watches for.
func (p *Printer) SessionActive() {
	fmt.Fprintln(p.out, "🔍 Monitoring browser focus...")
	fmt.Fprintln(p.out, "📱 Detects: tab switching, desktop switching, minimizing, hiding")
	fmt.Fprintln(p.out, "⏰ The test site handles duration and submission")
}

// SessionEnded prints why the session terminated.
func (p *Printer) SessionEnded(res supervisor.Result) {
	switch res.Reason {
	case supervisor.ReasonFocusLost:
		p.fail.Fprintln(p.out, "❌ Browser lost focus or visibility! Browser closed.")
	case supervisor.ReasonInterrupted:
		p.warn.Fprintln(p.out, "⛔ Interrupted. Browser closed.")
	default:
		fmt.Fprintf(p.out, "Session ended: %s\n", res.Reason)
	}
	if res.Duration() > 0 {
		fmt.Fprintf(p.out, "   Session lasted %s\n", res.Duration().Round(time.Second))
	}
}

// LaunchFailed reports a browser that could not be started.
func (p *Printer) LaunchFailed(err error) {
	p.fail.Fprintf(p.out, "❌ Could not start browser: %v\n", err)
}

// Denied prints the closing line for a refused entry.
func (p *Printer) Denied() {
	fmt.Fprintln(p.out)
	p.fail.Fprintln(p.out, "🛑 Exiting program - Test access denied")
}

// Countdown prints one line per second for d, rounded up to whole seconds.
// It returns ctx.Err() if interrupted.
func (p *Printer) Countdown(ctx context.Context, d time.Duration) error {
	secs := int((d + time.Second - 1) / time.Second)
	for i := secs; i > 0; i-- {
		fmt.Fprintf(p.out, "   Closing in %d...\n", i)
		if err := p.waiter.Wait(ctx, time.Second); err != nil {
			return err
		}
	}
	return nil
}

func formatRemaining(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Minute).String()
}
