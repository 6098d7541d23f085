// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package alert

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/relabs-tech/posture_monitor/internal/clock"
	"github.com/relabs-tech/posture_monitor/internal/posture"
)

type recorder struct {
	sent []Notification
	err  error
}

func (r *recorder) Notify(_ context.Context, n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

var epoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

// tick runs one check per second, advancing the clock after each check.
// It returns the 1-based tick numbers at which an alert fired.
func tick(t *testing.T, timer *Timer, clk *clock.Manual, status posture.Status, n int, counter *int) []int {
	t.Helper()
	var fired []int
	for i := 0; i < n; i++ {
		*counter++
		if d := timer.Check(context.Background(), status); d.Fired {
			fired = append(fired, *counter)
		}
		clk.Advance(time.Second)
	}
	return fired
}

func newTestTimer(n Notifier) (*Timer, *clock.Manual) {
	clk := clock.NewManual(epoch)
	return NewTimer(DefaultConfig(), n, clk, zerolog.Nop()), clk
}

func TestTimerFirstAlertAndCooldown(t *testing.T) {
	rec := &recorder{}
	timer, clk := newTestTimer(rec)
	count := 0

	fired := tick(t, timer, clk, posture.Bad, 181, &count)
	if len(fired) != 1 || fired[0] != 181 {
		t.Fatalf("expected one alert at tick 181, got %v", fired)
	}

	fired = tick(t, timer, clk, posture.Bad, 299, &count)
	if len(fired) != 0 {
		t.Fatalf("expected no alert during cooldown, got %v", fired)
	}

	fired = tick(t, timer, clk, posture.Bad, 1, &count)
	if len(fired) != 1 || fired[0] != 481 {
		t.Fatalf("expected second alert at tick 481, got %v", fired)
	}

	if len(rec.sent) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(rec.sent))
	}
	first := rec.sent[0]
	if first.Kind != KindPosture || first.Title != DefaultAlertTitle || first.Timeout != DefaultAlertTimeout {
		t.Fatalf("unexpected notification: %+v", first)
	}
	if first.Message != "Bad posture for 3.0 minutes. Sit up straight!" {
		t.Fatalf("unexpected message: %q", first.Message)
	}
	if rec.sent[1].Message != "Bad posture for 8.0 minutes. Sit up straight!" {
		t.Fatalf("expected accumulation to continue past the first alert, got %q", rec.sent[1].Message)
	}
	if rec.sent[1].Count != 2 {
		t.Fatalf("expected count 2, got %d", rec.sent[1].Count)
	}
}

func TestTimerResetRestartsAccumulation(t *testing.T) {
	timer, clk := newTestTimer(&recorder{})
	count := 0

	if fired := tick(t, timer, clk, posture.Bad, 179, &count); len(fired) != 0 {
		t.Fatalf("expected no alert in first run, got %v", fired)
	}
	if fired := tick(t, timer, clk, posture.Good, 1, &count); len(fired) != 0 {
		t.Fatalf("expected no alert on good tick, got %v", fired)
	}
	if timer.State() != Idle {
		t.Fatalf("expected idle after good tick, got %v", timer.State())
	}

	// A fresh run needs a full BadDuration again: 180 ticks span 179s.
	if fired := tick(t, timer, clk, posture.Bad, 180, &count); len(fired) != 0 {
		t.Fatalf("expected no alert after reset, got %v", fired)
	}
	if timer.State() != Accumulating {
		t.Fatalf("expected accumulating, got %v", timer.State())
	}
	if fired := tick(t, timer, clk, posture.Bad, 1, &count); len(fired) != 1 {
		t.Fatalf("expected alert once the new run reaches 180s, got %v", fired)
	}
}

func TestTimerUnknownResets(t *testing.T) {
	timer, clk := newTestTimer(&recorder{})
	count := 0

	tick(t, timer, clk, posture.Bad, 100, &count)
	d := timer.Check(context.Background(), posture.Unknown)
	if d.State != Idle || d.BadFor != 0 || d.Fired {
		t.Fatalf("expected hard reset on unknown, got %+v", d)
	}
	if s := timer.Stats(); s.CurrentlyBad || s.BadFor != 0 {
		t.Fatalf("expected stats to show no bad posture, got %+v", s)
	}
}

func TestTimerTransitions(t *testing.T) {
	timer, clk := newTestTimer(&recorder{})

	tests := []struct {
		advance time.Duration
		status  posture.Status
		state   State
		fired   bool
	}{
		{0, posture.Fair, Idle, false},
		{time.Second, posture.Bad, Accumulating, false},
		{179 * time.Second, posture.Bad, Accumulating, false},
		{time.Second, posture.Bad, Eligible, true},
		{time.Second, posture.Bad, Eligible, false},
		{time.Second, posture.Good, Idle, false},
		{time.Second, posture.Bad, Accumulating, false},
		{180 * time.Second, posture.Bad, Eligible, false},
		{120 * time.Second, posture.Bad, Eligible, true},
	}

	for i, tt := range tests {
		clk.Advance(tt.advance)
		d := timer.Check(context.Background(), tt.status)
		if d.State != tt.state || d.Fired != tt.fired {
			t.Fatalf("step %d: got state=%v fired=%v, want state=%v fired=%v", i, d.State, d.Fired, tt.state, tt.fired)
		}
	}
	if s := timer.Stats(); s.Alerts != 2 || s.State != Eligible || s.BadFor != 300*time.Second {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestTimerNotifierFailureStillCounts(t *testing.T) {
	rec := &recorder{err: errors.New("no notification daemon")}
	timer, clk := newTestTimer(rec)
	count := 0

	clk.Advance(0)
	timer.Check(context.Background(), posture.Bad)
	clk.Advance(DefaultBadDuration)
	d := timer.Check(context.Background(), posture.Bad)
	if !d.Fired || d.Err == nil {
		t.Fatalf("expected fired alert with error, got %+v", d)
	}

	// Cooldown applies even though delivery failed.
	if fired := tick(t, timer, clk, posture.Bad, 10, &count); len(fired) != 0 {
		t.Fatalf("expected cooldown after failed dispatch, got %v", fired)
	}

	s := timer.Stats()
	if s.Alerts != 1 || s.Failures != 1 {
		t.Fatalf("expected 1 alert and 1 failure, got %+v", s)
	}
}

func TestTimerNilNotifier(t *testing.T) {
	clk := clock.NewManual(epoch)
	timer := NewTimer(Config{BadDuration: 0, Cooldown: time.Minute}, nil, clk, zerolog.Nop())

	if d := timer.Check(context.Background(), posture.Bad); !d.Fired || d.Err != nil {
		t.Fatalf("expected immediate alert with zero duration, got %+v", d)
	}
}

func TestBreakTimer(t *testing.T) {
	rec := &recorder{}
	clk := clock.NewManual(epoch)
	b := NewBreakTimer(DefaultBreakConfig(), rec, clk, zerolog.Nop())

	if b.Check(context.Background()) {
		t.Fatal("expected no reminder at start")
	}
	if s := b.Stats(); s.UntilNext != DefaultBreakInterval {
		t.Fatalf("expected full interval until next break, got %v", s.UntilNext)
	}

	clk.Advance(DefaultBreakInterval - time.Second)
	if b.Check(context.Background()) {
		t.Fatal("expected no reminder before the interval")
	}

	clk.Advance(time.Second)
	if !b.Check(context.Background()) {
		t.Fatal("expected reminder at the interval")
	}
	if b.Check(context.Background()) {
		t.Fatal("expected interval to restart after a reminder")
	}

	clk.Advance(DefaultBreakInterval + 10*time.Minute)
	if !b.Check(context.Background()) {
		t.Fatal("expected second reminder")
	}

	s := b.Stats()
	if s.Breaks != 2 || s.UntilNext != DefaultBreakInterval {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if len(rec.sent) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(rec.sent))
	}
	n := rec.sent[0]
	if n.Kind != KindBreak || n.Title != DefaultBreakTitle || n.Timeout != DefaultBreakTimeout {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if !strings.Contains(n.Message, "30 minutes") {
		t.Fatalf("unexpected message: %q", n.Message)
	}
}

func TestBreakTimerFailureStillCounts(t *testing.T) {
	rec := &recorder{err: errors.New("dbus unavailable")}
	clk := clock.NewManual(epoch)
	b := NewBreakTimer(BreakConfig{Interval: time.Minute}, rec, clk, zerolog.Nop())

	clk.Advance(time.Minute)
	if !b.Check(context.Background()) {
		t.Fatal("expected reminder despite notifier failure")
	}
	s := b.Stats()
	if s.Breaks != 1 || s.Failures != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if s.UntilNext != time.Minute {
		t.Fatalf("expected interval restart, got %v", s.UntilNext)
	}
}

func TestStateString(t *testing.T) {
	if Idle.String() != "idle" || Accumulating.String() != "accumulating" || Eligible.String() != "eligible" {
		t.Fatal("unexpected state names")
	}
}
