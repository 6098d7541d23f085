// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package monitor runs the per-frame posture loop of one session:
// capture, classify, alert, remind, record, render, publish.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/relabs-tech/posture_monitor/internal/alert"
	"github.com/relabs-tech/posture_monitor/internal/clock"
	"github.com/relabs-tech/posture_monitor/internal/display"
	"github.com/relabs-tech/posture_monitor/internal/metrics"
	"github.com/relabs-tech/posture_monitor/internal/pose"
	"github.com/relabs-tech/posture_monitor/internal/posture"
	"github.com/relabs-tech/posture_monitor/internal/session"
	"github.com/relabs-tech/posture_monitor/internal/storage"
)

// DefaultMinFPS is the average frame rate below which a session is
// reported as too slow for reliable monitoring.
const DefaultMinFPS = 8.0

const archiveTimeout = 5 * time.Second

// StatusPublisher receives the status snapshot of every tick.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, s Status) error
}

// Archive keeps finished sessions.
type Archive interface {
	SaveSession(ctx context.Context, rec storage.SessionRecord) error
}

// Status is the live snapshot published after each tick.
type Status struct {
	Timestamp        time.Time      `json:"timestamp"`
	Seq              uint64         `json:"seq"`
	Status           posture.Status `json:"status"`
	Angle            float64        `json:"angle"`
	Score            float64        `json:"score"`
	Alerts           int            `json:"alerts"`
	Breaks           int            `json:"breaks"`
	BadForSeconds    float64        `json:"bad_for_s"`
	NextBreakSeconds float64        `json:"next_break_in_s"`
	FPS              float64        `json:"fps"`
	Calibrated       bool           `json:"calibrated"`
}

// Report describes a finished session.
type Report struct {
	Summary   session.Summary
	Alerts    int
	Breaks    int
	Frames    int
	AvgFPS    float64
	SavedPath string
	// SaveErr is set when the session log could not be written. The
	// summary is still valid.
	SaveErr    error
	ArchiveErr error
}

// Options wires a Monitor. Source, Classifier, Alerts, Breaks, Recorder
// and Clock are required.
type Options struct {
	Source     pose.Source
	Classifier *posture.Classifier
	Alerts     *alert.Timer
	Breaks     *alert.BreakTimer
	Recorder   *session.Recorder
	Clock      clock.Clock
	Logger     zerolog.Logger

	Renderer  display.Renderer
	Publisher StatusPublisher
	Archive   Archive
	MinFPS    float64
}

// Monitor owns the state of one monitoring session. Every component is
// ticked sequentially from Run; nothing here is shared across goroutines.
type Monitor struct {
	opts   Options
	logger zerolog.Logger

	frames    int
	start     time.Time
	renderErr bool
	pubErr    bool
}

// New creates a monitor.
func New(opts Options) *Monitor {
	if opts.Renderer == nil {
		opts.Renderer = display.Nop{}
	}
	if opts.MinFPS <= 0 {
		opts.MinFPS = DefaultMinFPS
	}
	return &Monitor{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "monitor").Logger(),
	}
}

// Run processes frames until ctx is cancelled, the source ends (io.EOF)
// or capture fails. Whatever ends the loop, the source is closed and the
// session log is saved and archived before Run returns. The returned error
// is the capture failure, if any.
func (m *Monitor) Run(ctx context.Context) (Report, error) {
	m.start = m.opts.Clock.Now()
	m.logger.Info().
		Bool("calibrated", m.opts.Classifier.Baseline() != nil).
		Msg("monitoring started")

	loopErr := m.loop(ctx)
	if loopErr != nil {
		m.logger.Error().Err(loopErr).Msg("monitoring stopped")
	}

	return m.cleanup(), loopErr
}

func (m *Monitor) loop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in monitor loop: %v", r)
		}
	}()

	for {
		if ctx.Err() != nil {
			m.logger.Info().Msg("stop requested")
			return nil
		}

		frame, err := m.opts.Source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				m.logger.Info().Msg("pose source ended")
				return nil
			}
			if ctx.Err() != nil {
				m.logger.Info().Msg("stop requested")
				return nil
			}
			return fmt.Errorf("capture: %w", err)
		}

		m.tick(ctx, frame)
	}
}

func (m *Monitor) tick(ctx context.Context, frame pose.Frame) {
	began := m.opts.Clock.Now()
	m.frames++

	status, angle := posture.Unknown, 0.0
	if frame.Detected() {
		status, angle = m.opts.Classifier.Classify(frame.Landmarks)
	}

	decision := m.opts.Alerts.Check(ctx, status)
	if decision.Fired {
		metrics.AlertsSent.Inc()
	}
	if m.opts.Breaks.Check(ctx) {
		metrics.BreaksSent.Inc()
	}
	if m.opts.Recorder.Record(status, angle) {
		metrics.LogEntries.Inc()
	}
	score := m.opts.Recorder.Score()

	metrics.FramesProcessed.Inc()
	metrics.StatusTicks.WithLabelValues(status.String()).Inc()
	if status != posture.Unknown {
		metrics.CurrentAngle.Set(angle)
	}
	metrics.SessionScore.Set(score)

	as := m.opts.Alerts.Stats()
	bs := m.opts.Breaks.Stats()
	fps := m.fps(began)
	metrics.FPS.Set(fps)

	view := display.View{
		Status:     status,
		Angle:      angle,
		Score:      score,
		BadFor:     decision.BadFor,
		Alerts:     as.Alerts,
		Breaks:     bs.Breaks,
		NextBreak:  bs.UntilNext,
		FPS:        fps,
		Calibrated: m.opts.Classifier.Baseline() != nil,
	}
	if err := m.opts.Renderer.Render(view); err != nil {
		// Log the first failure only; a missing panel would flood the log.
		if !m.renderErr {
			m.logger.Warn().Err(err).Msg("render failed")
			m.renderErr = true
		}
	}

	if m.opts.Publisher != nil {
		st := Status{
			Timestamp:        began,
			Seq:              frame.Seq,
			Status:           status,
			Angle:            angle,
			Score:            score,
			Alerts:           as.Alerts,
			Breaks:           bs.Breaks,
			BadForSeconds:    decision.BadFor.Seconds(),
			NextBreakSeconds: bs.UntilNext.Seconds(),
			FPS:              fps,
			Calibrated:       view.Calibrated,
		}
		if err := m.opts.Publisher.PublishStatus(ctx, st); err != nil {
			if !m.pubErr {
				m.logger.Warn().Err(err).Msg("status publish failed")
				m.pubErr = true
			}
		} else {
			m.pubErr = false
		}
	}

	metrics.FrameDuration.Observe(m.opts.Clock.Now().Sub(began).Seconds())
}

func (m *Monitor) fps(now time.Time) float64 {
	elapsed := now.Sub(m.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.frames) / elapsed
}

// cleanup runs on every exit path of Run.
func (m *Monitor) cleanup() Report {
	end := m.opts.Clock.Now()

	if err := m.opts.Source.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("error releasing pose source")
	}

	as := m.opts.Alerts.Stats()
	bs := m.opts.Breaks.Stats()
	rep := Report{
		Summary: m.opts.Recorder.Summary(),
		Alerts:  as.Alerts,
		Breaks:  bs.Breaks,
		Frames:  m.frames,
		AvgFPS:  m.fps(end),
	}

	if rep.Frames > 0 && rep.AvgFPS < m.opts.MinFPS {
		m.logger.Warn().
			Float64("avg_fps", rep.AvgFPS).
			Float64("min_fps", m.opts.MinFPS).
			Msg("low FPS, posture tracking may be unreliable")
	}

	rep.SavedPath, rep.SaveErr = m.opts.Recorder.Save()
	switch {
	case rep.SaveErr != nil:
		metrics.SessionsSaved.WithLabelValues("error").Inc()
		m.logger.Error().Err(rep.SaveErr).Msg("failed to save session")
	case rep.SavedPath != "":
		metrics.SessionsSaved.WithLabelValues("ok").Inc()
	default:
		metrics.SessionsSaved.WithLabelValues("empty").Inc()
	}

	if m.opts.Archive != nil && m.opts.Recorder.Len() > 0 {
		rec := storage.NewSessionRecord(m.opts.Recorder.StartedAt(), end, m.opts.Recorder.Entries())
		rec.Alerts = rep.Alerts
		rec.Breaks = rep.Breaks
		rec.SavedPath = rep.SavedPath

		// The run context is usually cancelled by now.
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		rep.ArchiveErr = m.opts.Archive.SaveSession(ctx, rec)
		cancel()
		if rep.ArchiveErr != nil {
			m.logger.Error().Err(rep.ArchiveErr).Msg("failed to archive session")
		} else {
			m.logger.Info().Str("id", rec.ID.String()).Msg("session archived")
		}
	}

	m.logger.Info().
		Int("frames", rep.Frames).
		Float64("avg_fps", rep.AvgFPS).
		Int("alerts", rep.Alerts).
		Int("breaks", rep.Breaks).
		Float64("score", rep.Summary.Score).
		Msg("monitoring finished")
	return rep
}
