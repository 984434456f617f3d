package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/proctorgate/internal/browser"
	"github.com/goodtune/proctorgate/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

const testURL = "https://www.hackerrank.com/contests/weekly-42"

// sample is one scripted focus query outcome.
type sample struct {
	state       browser.FocusState
	err         error
	fallback    bool
	fallbackErr error
}

var (
	focused   = sample{state: browser.FocusState{Visible: true, HasFocus: true}}
	unfocused = sample{state: browser.FocusState{Visible: true, HasFocus: false}}
)

type fakeSession struct {
	samples []sample
	queries int
	closes  int
	onQuery func(n int)
}

func (f *fakeSession) next() sample {
	if f.queries >= len(f.samples) {
		return focused
	}
	return f.samples[f.queries]
}

func (f *fakeSession) FocusState(ctx context.Context) (browser.FocusState, error) {
	s := f.next()
	f.queries++
	if f.onQuery != nil {
		f.onQuery(f.queries)
	}
	if s.err != nil {
		return browser.FocusState{}, s.err
	}
	return s.state, nil
}

func (f *fakeSession) HasFocus(ctx context.Context) (bool, error) {
	s := f.samples[f.queries-1]
	if s.fallbackErr != nil {
		return false, s.fallbackErr
	}
	return s.fallback, nil
}

func (f *fakeSession) Close() error {
	f.closes++
	return nil
}

type fakeDriver struct {
	session   *fakeSession
	err       error
	launches  int
	gotURL    string
	gotLaunch browser.LaunchOptions
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) Launch(ctx context.Context, url string, opts browser.LaunchOptions) (browser.Session, error) {
	d.launches++
	d.gotURL = url
	d.gotLaunch = opts
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

// virtualWaiter advances a virtual clock instead of sleeping.
type virtualWaiter struct {
	now         time.Time
	waits       []time.Duration
	cancel      context.CancelFunc
	cancelAfter int
}

func (w *virtualWaiter) Wait(ctx context.Context, d time.Duration) error {
	w.waits = append(w.waits, d)
	w.now = w.now.Add(d)
	if w.cancel != nil && len(w.waits) == w.cancelAfter {
		w.cancel()
	}
	return ctx.Err()
}

func newTestSupervisor(t *testing.T, driver *fakeDriver) (*Supervisor, *virtualWaiter) {
	t.Helper()

	s := New(Config{
		URL:    testURL,
		Launch: browser.LaunchOptions{Kiosk: true},
	}, driver, zerolog.Nop())

	w := &virtualWaiter{now: time.Date(2026, time.March, 9, 19, 5, 0, 0, time.UTC)}
	s.SetWaiter(w)
	s.SetNow(func() time.Time { return w.now })
	return s, w
}

func TestRun_FocusedTicksStayActiveUntilFocusLost(t *testing.T) {
	session := &fakeSession{samples: []sample{focused, focused, focused, focused, unfocused, focused}}
	driver := &fakeDriver{session: session}
	s, w := newTestSupervisor(t, driver)

	var states []State
	session.onQuery = func(int) { states = append(states, s.State()) }

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Reason != ReasonFocusLost {
		t.Errorf("Reason = %v, want %v", res.Reason, ReasonFocusLost)
	}
	if res.Ticks != 5 {
		t.Errorf("Ticks = %d, want 5", res.Ticks)
	}
	for i, st := range states {
		if st != StateActive {
			t.Errorf("state during tick %d = %v, want active", i+1, st)
		}
	}
	if s.State() != StateTerminated {
		t.Errorf("final state = %v, want terminated", s.State())
	}
	if session.closes != 1 {
		t.Errorf("session closed %d times, want 1", session.closes)
	}
	if len(w.waits) != 4 {
		t.Errorf("waits = %d, want 4 (none after the terminating tick)", len(w.waits))
	}
	for _, d := range w.waits {
		if d != DefaultPollInterval {
			t.Errorf("wait = %v, want %v", d, DefaultPollInterval)
		}
	}
	if res.Duration() != 4*time.Second {
		t.Errorf("Duration() = %v, want 4s", res.Duration())
	}
}

func TestRun_LaunchesKioskSessionForURL(t *testing.T) {
	driver := &fakeDriver{session: &fakeSession{samples: []sample{unfocused}}}
	s, _ := newTestSupervisor(t, driver)

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if driver.launches != 1 {
		t.Errorf("launches = %d, want 1", driver.launches)
	}
	if driver.gotURL != testURL {
		t.Errorf("launched %q, want %q", driver.gotURL, testURL)
	}
	if !driver.gotLaunch.Kiosk {
		t.Error("expected kiosk launch")
	}
}

func TestRun_UnfocusedFirstSampleTerminatesImmediately(t *testing.T) {
	session := &fakeSession{samples: []sample{
		{state: browser.FocusState{Visible: true, Hidden: false, HasFocus: false}},
	}}
	s, w := newTestSupervisor(t, &fakeDriver{session: session})

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Reason != ReasonFocusLost || res.Ticks != 1 {
		t.Errorf("Run() = %v after %d ticks, want focus_lost after 1", res.Reason, res.Ticks)
	}
	if len(w.waits) != 0 {
		t.Errorf("waits = %d, want 0", len(w.waits))
	}
	if session.closes != 1 {
		t.Errorf("session closed %d times, want 1", session.closes)
	}
}

func TestRun_EachSignalAloneEndsSession(t *testing.T) {
	tests := []struct {
		name  string
		state browser.FocusState
	}{
		{"hidden", browser.FocusState{Visible: true, Hidden: true, HasFocus: true}},
		{"not visible", browser.FocusState{Visible: false, Hidden: false, HasFocus: true}},
		{"no input focus", browser.FocusState{Visible: true, Hidden: false, HasFocus: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &fakeSession{samples: []sample{focused, {state: tt.state}}}
			s, _ := newTestSupervisor(t, &fakeDriver{session: session})

			res, _ := s.Run(context.Background())
			if res.Reason != ReasonFocusLost || res.Ticks != 2 {
				t.Errorf("Run() = %v after %d ticks, want focus_lost after 2", res.Reason, res.Ticks)
			}
		})
	}
}

func TestRun_FallbackQuery(t *testing.T) {
	queryErr := errors.New("execution context was destroyed")

	t.Run("fallback focused continues", func(t *testing.T) {
		session := &fakeSession{samples: []sample{
			{err: queryErr, fallback: true},
			unfocused,
		}}
		s, _ := newTestSupervisor(t, &fakeDriver{session: session})

		res, _ := s.Run(context.Background())
		if res.Ticks != 2 || res.Reason != ReasonFocusLost {
			t.Errorf("Run() = %v after %d ticks, want focus_lost after 2", res.Reason, res.Ticks)
		}
	})

	t.Run("fallback unfocused terminates", func(t *testing.T) {
		session := &fakeSession{samples: []sample{
			{err: queryErr, fallback: false},
		}}
		s, _ := newTestSupervisor(t, &fakeDriver{session: session})

		res, _ := s.Run(context.Background())
		if res.Ticks != 1 || res.Reason != ReasonFocusLost {
			t.Errorf("Run() = %v after %d ticks, want focus_lost after 1", res.Reason, res.Ticks)
		}
	})

	t.Run("both queries fail closed", func(t *testing.T) {
		session := &fakeSession{samples: []sample{
			focused,
			{err: queryErr, fallbackErr: errors.New("target closed")},
			focused,
		}}
		s, _ := newTestSupervisor(t, &fakeDriver{session: session})

		res, _ := s.Run(context.Background())
		if res.Ticks != 2 || res.Reason != ReasonFocusLost {
			t.Errorf("Run() = %v after %d ticks, want focus_lost after 2", res.Reason, res.Ticks)
		}
		if session.closes != 1 {
			t.Errorf("session closed %d times, want 1", session.closes)
		}
	})
}

func TestRun_InterruptDuringWait(t *testing.T) {
	session := &fakeSession{}
	s, w := newTestSupervisor(t, &fakeDriver{session: session})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.cancel = cancel
	w.cancelAfter = 3

	res, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Reason != ReasonInterrupted {
		t.Errorf("Reason = %v, want %v", res.Reason, ReasonInterrupted)
	}
	if res.Ticks != 3 {
		t.Errorf("Ticks = %d, want 3", res.Ticks)
	}
	if session.closes != 1 {
		t.Errorf("session closed %d times, want 1", session.closes)
	}
	if s.State() != StateTerminated {
		t.Errorf("final state = %v, want terminated", s.State())
	}
}

func TestRun_InterruptDuringQuery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := &fakeSession{samples: []sample{
		focused,
		{err: context.Canceled, fallbackErr: context.Canceled},
	}}
	session.onQuery = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	s, _ := newTestSupervisor(t, &fakeDriver{session: session})

	res, _ := s.Run(ctx)
	if res.Reason != ReasonInterrupted {
		t.Errorf("Reason = %v, want %v", res.Reason, ReasonInterrupted)
	}
	if session.closes != 1 {
		t.Errorf("session closed %d times, want 1", session.closes)
	}
}

func TestRun_LaunchFailure(t *testing.T) {
	driver := &fakeDriver{err: errors.New("chromium not found")}
	s, _ := newTestSupervisor(t, driver)

	var transitions []State
	s.OnTransition(func(from, to State, reason Reason) {
		transitions = append(transitions, to)
	})

	res, err := s.Run(context.Background())
	if err == nil {
		t.Fatal("Run() succeeded, want launch error")
	}
	if res.Reason != ReasonLaunchFailed {
		t.Errorf("Reason = %v, want %v", res.Reason, ReasonLaunchFailed)
	}

	want := []State{StateLaunching, StateTerminated}
	if len(transitions) != len(want) || transitions[0] != want[0] || transitions[1] != want[1] {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
}

func TestRun_TransitionsInOrder(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeDriver{session: &fakeSession{samples: []sample{focused, unfocused}}})

	type step struct {
		from, to State
		reason   Reason
	}
	var steps []step
	s.OnTransition(func(from, to State, reason Reason) {
		steps = append(steps, step{from, to, reason})
	})

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []step{
		{StateIdle, StateLaunching, ReasonNone},
		{StateLaunching, StateActive, ReasonNone},
		{StateActive, StateTerminated, ReasonFocusLost},
	}
	if len(steps) != len(want) {
		t.Fatalf("transitions = %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, steps[i], want[i])
		}
	}
}

func TestRun_TerminatedIsFinal(t *testing.T) {
	driver := &fakeDriver{session: &fakeSession{samples: []sample{unfocused}}}
	s, _ := newTestSupervisor(t, driver)

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Fatalf("second Run() error = %v, want ErrAlreadyRun", err)
	}
	if driver.launches != 1 {
		t.Errorf("launches = %d, want 1 (no restart)", driver.launches)
	}
	if driver.session.closes != 1 {
		t.Errorf("session closed %d times, want 1", driver.session.closes)
	}
}

func TestRun_RecordsTerminationMetric(t *testing.T) {
	counter := metrics.SessionsTerminatedTotal.WithLabelValues(string(ReasonFocusLost))
	before := testutil.ToFloat64(counter)

	s, _ := newTestSupervisor(t, &fakeDriver{session: &fakeSession{samples: []sample{unfocused}}})
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("focus_lost terminations increased by %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.SessionActive); got != 0 {
		t.Errorf("session_active = %v after termination, want 0", got)
	}
}

func TestTimerWaiter(t *testing.T) {
	var w TimerWaiter

	if err := w.Wait(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() on cancelled context = %v, want context.Canceled", err)
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateIdle:       "idle",
		StateLaunching:  "launching",
		StateActive:     "active",
		StateTerminated: "terminated",
		State(42):       "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
