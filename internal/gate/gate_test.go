package gate

import (
	"errors"
	"testing"
	"time"
)

func at(hour, minute, second int) time.Time {
	return time.Date(2026, time.March, 9, hour, minute, second, 0, time.UTC)
}

func mustWindow(t *testing.T, start string, minutes int) TimeWindow {
	t.Helper()

	w, err := NewTimeWindow(start, time.Duration(minutes)*time.Minute)
	if err != nil {
		t.Fatalf("NewTimeWindow(%q, %d) error = %v", start, minutes, err)
	}
	return w
}

func TestEvaluate_MorningWindow(t *testing.T) {
	w := mustWindow(t, "09:00", 30)

	tests := []struct {
		name        string
		now         time.Time
		wantAllowed bool
		wantReason  Reason
	}{
		{"one minute early", at(8, 59, 0), false, ReasonTooEarly},
		{"one second early", at(8, 59, 59), false, ReasonTooEarly},
		{"exactly at start", at(9, 0, 0), true, ReasonOpen},
		{"mid window", at(9, 15, 0), true, ReasonOpen},
		{"exactly at end", at(9, 30, 0), true, ReasonOpen},
		{"one second late", at(9, 30, 1), false, ReasonTooLate},
		{"one minute late", at(9, 31, 0), false, ReasonTooLate},
		{"previous midnight", at(0, 0, 0), false, ReasonTooEarly},
		{"late evening", at(23, 59, 0), false, ReasonTooLate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.now, w)
			if d.Allowed != tt.wantAllowed {
				t.Errorf("Evaluate() allowed = %v, want %v", d.Allowed, tt.wantAllowed)
			}
			if d.Reason != tt.wantReason {
				t.Errorf("Evaluate() reason = %v, want %v", d.Reason, tt.wantReason)
			}
		})
	}
}

func TestEvaluate_EveryMinuteOfTheDay(t *testing.T) {
	w := mustWindow(t, "19:00", 20)
	start := at(19, 0, 0)
	end := at(19, 20, 0)

	for m := 0; m < 24*60; m++ {
		now := at(0, 0, 0).Add(time.Duration(m) * time.Minute)
		d := Evaluate(now, w)

		switch {
		case now.Before(start):
			if d.Allowed || d.Reason != ReasonTooEarly {
				t.Fatalf("%s: got %v/%v, want denied/TOO_EARLY", now.Format("15:04"), d.Allowed, d.Reason)
			}
		case now.After(end):
			if d.Allowed || d.Reason != ReasonTooLate {
				t.Fatalf("%s: got %v/%v, want denied/TOO_LATE", now.Format("15:04"), d.Allowed, d.Reason)
			}
		default:
			if !d.Allowed {
				t.Fatalf("%s: got denied (%v), want allowed", now.Format("15:04"), d.Reason)
			}
		}
	}
}

func TestEvaluate_AnchorsToCurrentDay(t *testing.T) {
	w := mustWindow(t, "09:00", 30)

	nextDay := time.Date(2026, time.March, 10, 9, 10, 0, 0, time.UTC)
	d := Evaluate(nextDay, w)

	if !d.Allowed {
		t.Fatalf("expected entry on the following day to be allowed, got %v", d.Reason)
	}
	if d.Start.Day() != 10 {
		t.Errorf("Start day = %d, want 10", d.Start.Day())
	}
	if got := d.End.Sub(d.Start); got != 30*time.Minute {
		t.Errorf("End - Start = %v, want 30m", got)
	}
}

func TestEvaluate_UsesLocationOfNow(t *testing.T) {
	w := mustWindow(t, "09:00", 30)
	loc := time.FixedZone("IST", 5*3600+1800)

	now := time.Date(2026, time.March, 9, 9, 5, 0, 0, loc)
	d := Evaluate(now, w)

	if !d.Allowed {
		t.Fatalf("expected allowed in local zone, got %v", d.Reason)
	}
	if d.Start.Location() != loc {
		t.Errorf("Start location = %v, want %v", d.Start.Location(), loc)
	}
}

func TestNewTimeWindow_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		start    string
		duration time.Duration
		wantDur  bool
	}{
		{"zero duration", "09:00", 0, true},
		{"negative duration", "09:00", -time.Minute, true},
		{"malformed start", "9am", time.Minute, false},
		{"out of range hour", "25:00", time.Minute, false},
		{"empty start", "", time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTimeWindow(tt.start, tt.duration)
			if err == nil {
				t.Fatal("NewTimeWindow() succeeded, want error")
			}
			if got := errors.Is(err, ErrInvalidDuration); got != tt.wantDur {
				t.Errorf("errors.Is(err, ErrInvalidDuration) = %v, want %v", got, tt.wantDur)
			}
		})
	}
}

func TestDecision_Err(t *testing.T) {
	w := mustWindow(t, "09:00", 30)

	if err := Evaluate(at(9, 10, 0), w).Err(); err != nil {
		t.Errorf("Err() for open window = %v, want nil", err)
	}

	err := Evaluate(at(8, 0, 0), w).Err()
	if !errors.Is(err, ErrGateDenied) {
		t.Fatalf("Err() = %v, want ErrGateDenied", err)
	}

	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("Err() = %T, want *DeniedError", err)
	}
	if denied.Reason != ReasonTooEarly {
		t.Errorf("Reason = %v, want %v", denied.Reason, ReasonTooEarly)
	}
	if denied.Error() != "test not yet available: opens at 09:00" {
		t.Errorf("Error() = %q", denied.Error())
	}

	late := Evaluate(at(10, 0, 0), w).Err()
	if late.Error() != "test entry closed at 09:30" {
		t.Errorf("Error() = %q", late.Error())
	}
}

func TestDecision_Remaining(t *testing.T) {
	w := mustWindow(t, "09:00", 30)

	if got := Evaluate(at(9, 10, 0), w).Remaining(); got != 20*time.Minute {
		t.Errorf("Remaining() = %v, want 20m", got)
	}
	if got := Evaluate(at(10, 0, 0), w).Remaining(); got != 0 {
		t.Errorf("Remaining() after close = %v, want 0", got)
	}
}

func TestGate_CheckIsNeverCached(t *testing.T) {
	g := New(mustWindow(t, "09:00", 30))
	clock := &TestClock{CurrentTime: at(8, 59, 0)}
	g.SetClock(clock)

	if d := g.Check(); d.Allowed {
		t.Fatal("expected gate closed at 08:59")
	}

	clock.Advance(2 * time.Minute)
	if d := g.Check(); !d.Allowed {
		t.Fatalf("expected gate open at 09:01, got %v", d.Reason)
	}

	clock.Advance(30 * time.Minute)
	if d := g.Check(); d.Reason != ReasonTooLate {
		t.Fatalf("expected TOO_LATE at 09:31, got %v", d.Reason)
	}
}

func TestTimeWindow_StartString(t *testing.T) {
	w := mustWindow(t, "7:05", 10)
	if got := w.StartString(); got != "07:05" {
		t.Errorf("StartString() = %q, want 07:05", got)
	}
}
