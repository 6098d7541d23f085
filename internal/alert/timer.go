// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/relabs-tech/posture_monitor/internal/clock"
	"github.com/relabs-tech/posture_monitor/internal/posture"
)

const (
	DefaultBadDuration  = 180 * time.Second
	DefaultCooldown     = 300 * time.Second
	DefaultAlertTitle   = "Posture Alert"
	DefaultAlertTimeout = 5 * time.Second
)

// State is the alert timer's position in its state machine.
type State int

const (
	// Idle: no bad posture is being tracked.
	Idle State = iota
	// Accumulating: bad posture started, BadDuration not reached yet.
	Accumulating
	// Eligible: bad posture lasted BadDuration; alerts fire subject to cooldown.
	Eligible
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	case Eligible:
		return "eligible"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the alert timer settings.
type Config struct {
	BadDuration time.Duration
	Cooldown    time.Duration
	Title       string
	Timeout     time.Duration
}

// DefaultConfig returns 180s sustained bad posture and a 300s cooldown.
func DefaultConfig() Config {
	return Config{
		BadDuration: DefaultBadDuration,
		Cooldown:    DefaultCooldown,
		Title:       DefaultAlertTitle,
		Timeout:     DefaultAlertTimeout,
	}
}

// Decision is the outcome of one Check.
type Decision struct {
	State State
	// BadFor is how long bad posture has lasted; zero when Idle.
	BadFor time.Duration
	// Fired is true when this tick dispatched an alert.
	Fired bool
	// Err is the dispatch error, if the notifier failed. The alert still
	// counts as sent.
	Err error
}

// Stats is a snapshot of the alert bookkeeping.
type Stats struct {
	Alerts       int
	Failures     int
	State        State
	CurrentlyBad bool
	BadFor       time.Duration
}

// Timer tracks sustained bad posture and emits at most one alert per
// cooldown window. It is owned by a single loop and is not safe for
// concurrent use.
type Timer struct {
	cfg      Config
	notifier Notifier
	clk      clock.Clock
	logger   zerolog.Logger

	state     State
	badSince  time.Time
	lastAlert time.Time
	alerted   bool
	count     int
	failures  int
}

// NewTimer creates an idle alert timer. A nil notifier discards alerts.
func NewTimer(cfg Config, notifier Notifier, clk clock.Clock, logger zerolog.Logger) *Timer {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if cfg.Title == "" {
		cfg.Title = DefaultAlertTitle
	}
	return &Timer{
		cfg:      cfg,
		notifier: notifier,
		clk:      clk,
		logger:   logger.With().Str("component", "alert").Logger(),
	}
}

// Check advances the state machine with the status of the current tick.
//
//	status != BAD                        -> Idle (hard reset)
//	BAD, Idle                            -> Accumulating, timer starts
//	BAD, elapsed <  BadDuration          -> Accumulating
//	BAD, elapsed >= BadDuration          -> Eligible, fire if cooldown allows
//
// Firing does not restart the bad-posture timer.
func (t *Timer) Check(ctx context.Context, status posture.Status) Decision {
	now := t.clk.Now()

	if status != posture.Bad {
		if t.state != Idle {
			t.logger.Debug().Str("status", status.String()).Msg("posture improved, alert timer reset")
		}
		t.state = Idle
		t.badSince = time.Time{}
		return Decision{State: Idle}
	}

	if t.state == Idle {
		t.state = Accumulating
		t.badSince = now
	}

	badFor := now.Sub(t.badSince)
	if badFor < t.cfg.BadDuration {
		return Decision{State: t.state, BadFor: badFor}
	}

	t.state = Eligible
	d := Decision{State: Eligible, BadFor: badFor}
	if t.alerted && now.Sub(t.lastAlert) < t.cfg.Cooldown {
		return d
	}

	t.lastAlert = now
	t.alerted = true
	t.count++
	d.Fired = true

	n := Notification{
		Kind:    KindPosture,
		Title:   t.cfg.Title,
		Message: fmt.Sprintf("Bad posture for %.1f minutes. Sit up straight!", badFor.Minutes()),
		Timeout: t.cfg.Timeout,
		Time:    now,
		Count:   t.count,
	}
	if err := t.notifier.Notify(ctx, n); err != nil {
		t.failures++
		d.Err = err
		t.logger.Warn().Err(err).Int("alert", t.count).Msg("alert notification failed")
		return d
	}

	t.logger.Info().
		Int("alert", t.count).
		Dur("bad_for", badFor).
		Msg("alert sent")
	return d
}

// State returns the current state.
func (t *Timer) State() State {
	return t.state
}

// Stats returns the alert counters and the current bad-posture duration.
func (t *Timer) Stats() Stats {
	s := Stats{
		Alerts:       t.count,
		Failures:     t.failures,
		State:        t.state,
		CurrentlyBad: t.state != Idle,
	}
	if s.CurrentlyBad {
		s.BadFor = t.clk.Now().Sub(t.badSince)
	}
	return s
}
