// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration derives a personal posture baseline by observing the
// user sitting upright for a fixed window.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/posture_monitor/internal/clock"
	"github.com/relabs-tech/posture_monitor/internal/pose"
	"github.com/relabs-tech/posture_monitor/internal/posture"
)

const (
	DefaultDuration   = 120 * time.Second
	DefaultMinSamples = 50
	DefaultTolerance  = 10.0
	DefaultPath       = "user_baseline.json"
)

// ErrInsufficientSamples is returned when the window produced fewer than
// MinSamples detected poses. Nothing is written in that case.
var ErrInsufficientSamples = errors.New("insufficient calibration samples")

// Config holds the calibration settings.
type Config struct {
	Duration   time.Duration
	MinSamples int
	Tolerance  float64
	// FairMargin is checked against Tolerance before a baseline is accepted.
	FairMargin    float64
	MinVisibility float64
	// Path is where the baseline is written. Empty means don't persist.
	Path string
}

// DefaultConfig returns a 120s window, 50 samples minimum and a fixed
// 10 degree tolerance.
func DefaultConfig() Config {
	return Config{
		Duration:   DefaultDuration,
		MinSamples: DefaultMinSamples,
		Tolerance:  DefaultTolerance,
		FairMargin: posture.DefaultBaselineFairMargin,
		Path:       DefaultPath,
	}
}

// Progress is reported after every processed frame.
type Progress struct {
	Elapsed   time.Duration `json:"elapsed"`
	Remaining time.Duration `json:"remaining"`
	Samples   int           `json:"samples"`
	Detected  bool          `json:"detected"`
	Angle     float64       `json:"angle"`
}

// SampleStats summarizes the collected angles.
type SampleStats struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Stats computes count, mean, standard deviation and range of samples.
// An empty slice yields zero stats.
func Stats(samples []float64) SampleStats {
	if len(samples) == 0 {
		return SampleStats{}
	}
	s := SampleStats{
		Count: len(samples),
		Min:   floats.Min(samples),
		Max:   floats.Max(samples),
	}
	if len(samples) == 1 {
		s.Mean = samples[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(samples, nil)
	// The summed mean of equal samples may drift past them by one ulp.
	s.Mean = math.Min(math.Max(s.Mean, s.Min), s.Max)
	return s
}

// Estimator runs a calibration window over a pose source.
type Estimator struct {
	cfg        Config
	src        pose.Source
	classifier *posture.Classifier
	clk        clock.Clock
	logger     zerolog.Logger
	progress   func(Progress)
}

// New creates an estimator reading from src.
func New(cfg Config, src pose.Source, clk clock.Clock, logger zerolog.Logger) *Estimator {
	return &Estimator{
		cfg:        cfg,
		src:        src,
		classifier: posture.NewClassifier(posture.DefaultThresholds(), nil, cfg.MinVisibility),
		clk:        clk,
		logger:     logger.With().Str("component", "calibration").Logger(),
	}
}

// OnProgress registers a callback invoked after every frame.
func (e *Estimator) OnProgress(fn func(Progress)) {
	e.progress = fn
}

// Calibrate collects one angle per frame with a detected person until
// duration elapses, the source ends or ctx is cancelled. Cancellation ends
// the window early; the samples gathered so far are still evaluated.
//
// With at least MinSamples the baseline is persisted to Path and returned.
// Otherwise ErrInsufficientSamples is returned and no file is touched.
// A capture failure aborts without writing.
func (e *Estimator) Calibrate(ctx context.Context, duration time.Duration) (*posture.Baseline, error) {
	if duration <= 0 {
		duration = e.cfg.Duration
	}

	e.logger.Info().
		Dur("duration", duration).
		Int("min_samples", e.cfg.MinSamples).
		Msg("calibration started, sit up straight")

	start := e.clk.Now()
	var samples []float64

collect:
	for {
		if ctx.Err() != nil {
			e.logger.Warn().Msg("calibration interrupted")
			break
		}
		elapsed := e.clk.Now().Sub(start)
		if elapsed >= duration {
			break
		}

		frame, err := e.src.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			e.logger.Info().Msg("pose source ended before the calibration window")
			break collect
		case ctx.Err() != nil:
			e.logger.Warn().Msg("calibration interrupted")
			break collect
		default:
			return nil, fmt.Errorf("calibration capture: %w", err)
		}

		p := Progress{Samples: len(samples)}
		if frame.Detected() {
			status, angle := e.classifier.Classify(frame.Landmarks)
			if status != posture.Unknown {
				samples = append(samples, angle)
				p.Samples = len(samples)
				p.Detected = true
				p.Angle = angle
			}
		}

		if e.progress != nil {
			p.Elapsed = e.clk.Now().Sub(start)
			p.Remaining = duration - p.Elapsed
			if p.Remaining < 0 {
				p.Remaining = 0
			}
			e.progress(p)
		}
	}

	if len(samples) < e.cfg.MinSamples {
		e.logger.Warn().
			Int("samples", len(samples)).
			Int("min_samples", e.cfg.MinSamples).
			Msg("not enough data, calibration failed")
		return nil, fmt.Errorf("%w: got %d, need %d", ErrInsufficientSamples, len(samples), e.cfg.MinSamples)
	}

	st := Stats(samples)
	b := &posture.Baseline{
		GoodAngle:    st.Mean,
		Tolerance:    e.cfg.Tolerance,
		SampleCount:  st.Count,
		MinAngle:     st.Min,
		MaxAngle:     st.Max,
		StdDev:       st.StdDev,
		CalibratedAt: e.clk.Now(),
	}
	if err := Validate(b, e.cfg.FairMargin); err != nil {
		return nil, fmt.Errorf("computed baseline: %w", err)
	}

	if e.cfg.Path != "" {
		if err := SaveBaseline(e.cfg.Path, b); err != nil {
			return nil, err
		}
	}

	e.logger.Info().
		Float64("good_angle", b.GoodAngle).
		Float64("min_angle", b.MinAngle).
		Float64("max_angle", b.MaxAngle).
		Float64("stddev", b.StdDev).
		Int("samples", b.SampleCount).
		Str("path", e.cfg.Path).
		Msg("calibration complete")
	return b, nil
}
