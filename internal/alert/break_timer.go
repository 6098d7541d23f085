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
)

const (
	DefaultBreakInterval = 1800 * time.Second
	DefaultBreakTitle    = "Break Time!"
	DefaultBreakTimeout  = 10 * time.Second
)

// BreakConfig holds the break reminder settings.
type BreakConfig struct {
	Interval time.Duration
	Title    string
	Timeout  time.Duration
}

// DefaultBreakConfig returns a reminder every 30 minutes.
func DefaultBreakConfig() BreakConfig {
	return BreakConfig{
		Interval: DefaultBreakInterval,
		Title:    DefaultBreakTitle,
		Timeout:  DefaultBreakTimeout,
	}
}

// BreakStats is a snapshot of the break reminder bookkeeping.
type BreakStats struct {
	Breaks    int
	Failures  int
	UntilNext time.Duration
}

// BreakTimer emits a reminder every Interval. The interval is its own
// cooldown. Not safe for concurrent use.
type BreakTimer struct {
	cfg      BreakConfig
	notifier Notifier
	clk      clock.Clock
	logger   zerolog.Logger

	lastBreak time.Time
	count     int
	failures  int
}

// NewBreakTimer starts the interval at the current clock time.
func NewBreakTimer(cfg BreakConfig, notifier Notifier, clk clock.Clock, logger zerolog.Logger) *BreakTimer {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if cfg.Title == "" {
		cfg.Title = DefaultBreakTitle
	}
	return &BreakTimer{
		cfg:       cfg,
		notifier:  notifier,
		clk:       clk,
		logger:    logger.With().Str("component", "break").Logger(),
		lastBreak: clk.Now(),
	}
}

// Check sends a reminder when Interval has passed since the last one and
// reports whether it did. A failed dispatch still counts as a reminder.
func (b *BreakTimer) Check(ctx context.Context) bool {
	now := b.clk.Now()
	if now.Sub(b.lastBreak) < b.cfg.Interval {
		return false
	}

	b.lastBreak = now
	b.count++

	n := Notification{
		Kind:    KindBreak,
		Title:   b.cfg.Title,
		Message: fmt.Sprintf("You've been sitting for %.0f minutes. Stand and stretch!", b.cfg.Interval.Minutes()),
		Timeout: b.cfg.Timeout,
		Time:    now,
		Count:   b.count,
	}
	if err := b.notifier.Notify(ctx, n); err != nil {
		b.failures++
		b.logger.Warn().Err(err).Int("break", b.count).Msg("break reminder failed")
		return true
	}
	b.logger.Info().Int("break", b.count).Msg("break reminder sent")
	return true
}

// Stats returns the reminder count and the time left until the next one.
func (b *BreakTimer) Stats() BreakStats {
	until := b.cfg.Interval - b.clk.Now().Sub(b.lastBreak)
	if until < 0 {
		until = 0
	}
	return BreakStats{
		Breaks:    b.count,
		Failures:  b.failures,
		UntilNext: until,
	}
}
