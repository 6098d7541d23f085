// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/relabs-tech/posture_monitor/internal/clock"
	"github.com/relabs-tech/posture_monitor/internal/pose"
	"github.com/relabs-tech/posture_monitor/internal/posture"
)

var epoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

// scriptedSource returns one frame per call from angles, advancing the clock
// by step before each frame. NaN means no person. After the script it
// returns err (io.EOF by default).
type scriptedSource struct {
	clk    *clock.Manual
	step   time.Duration
	angles []float64
	err    error
	onNext func(i int)
	i      int
}

func (s *scriptedSource) Next(ctx context.Context) (pose.Frame, error) {
	if err := ctx.Err(); err != nil {
		return pose.Frame{}, err
	}
	if s.i >= len(s.angles) {
		if s.err != nil {
			return pose.Frame{}, s.err
		}
		return pose.Frame{}, io.EOF
	}
	s.clk.Advance(s.step)
	a := s.angles[s.i]
	s.i++
	if s.onNext != nil {
		s.onNext(s.i)
	}
	f := pose.Frame{Seq: uint64(s.i), Timestamp: s.clk.Now()}
	if !math.IsNaN(a) {
		f.Landmarks = pose.MockLandmarks(a)
	}
	return f, nil
}

func (s *scriptedSource) Close() error { return nil }

func angles(n int, f func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "user_baseline.json")
	return cfg
}

func TestCalibrateComputesBaseline(t *testing.T) {
	cfg := testConfig(t)
	clk := clock.NewManual(epoch)
	samples := angles(60, func(i int) float64 { return 170 + float64(i%7) })
	src := &scriptedSource{clk: clk, step: time.Second, angles: samples}

	var updates int
	e := New(cfg, src, clk, zerolog.Nop())
	e.OnProgress(func(Progress) { updates++ })

	b, err := e.Calibrate(context.Background(), 2*time.Minute)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))
	if math.Abs(b.GoodAngle-mean) > 1e-6 {
		t.Fatalf("expected mean %v, got %v", mean, b.GoodAngle)
	}
	if b.SampleCount != 60 || b.Tolerance != DefaultTolerance {
		t.Fatalf("unexpected baseline: %+v", b)
	}
	for _, s := range samples {
		if s < b.MinAngle-1e-6 || s > b.MaxAngle+1e-6 {
			t.Fatalf("sample %v outside [%v, %v]", s, b.MinAngle, b.MaxAngle)
		}
	}
	if updates != 60 {
		t.Fatalf("expected 60 progress updates, got %d", updates)
	}

	loaded, err := LoadBaseline(cfg.Path, cfg.FairMargin)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil || math.Abs(loaded.GoodAngle-b.GoodAngle) > 1e-9 {
		t.Fatalf("expected persisted baseline, got %+v", loaded)
	}
}

func TestCalibrateConstantAngle(t *testing.T) {
	for _, a := range []float64{165.1, 168.45, 170.3, 171.3, 172.7, 175} {
		cfg := testConfig(t)
		clk := clock.NewManual(epoch)
		src := &scriptedSource{clk: clk, step: time.Second, angles: angles(60, func(int) float64 { return a })}

		b, err := New(cfg, src, clk, zerolog.Nop()).Calibrate(context.Background(), 2*time.Minute)
		if err != nil {
			t.Fatalf("calibrate at %v: %v", a, err)
		}
		if b.SampleCount != 60 || math.Abs(b.GoodAngle-a) > 1e-6 {
			t.Fatalf("angle %v: unexpected baseline %+v", a, b)
		}
		if b.GoodAngle < b.MinAngle || b.GoodAngle > b.MaxAngle {
			t.Fatalf("angle %v: mean %v outside [%v, %v]", a, b.GoodAngle, b.MinAngle, b.MaxAngle)
		}
		if _, err := LoadBaseline(cfg.Path, cfg.FairMargin); err != nil {
			t.Fatalf("load baseline calibrated at %v: %v", a, err)
		}
	}
}

func TestStatsMeanWithinRange(t *testing.T) {
	samples := angles(60, func(int) float64 { return 170.3 })
	s := Stats(samples)
	if s.Mean < s.Min || s.Mean > s.Max {
		t.Fatalf("mean %v outside [%v, %v]", s.Mean, s.Min, s.Max)
	}
}

func TestLoadBaselineMeanRoundedPastRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_baseline.json")
	b := &posture.Baseline{
		GoodAngle:   math.Nextafter(170.3, 180),
		Tolerance:   DefaultTolerance,
		SampleCount: 60,
		MinAngle:    170.3,
		MaxAngle:    170.3,
	}
	if err := SaveBaseline(path, b); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadBaseline(path, posture.DefaultBaselineFairMargin)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil || loaded.SampleCount != 60 {
		t.Fatalf("unexpected baseline: %+v", loaded)
	}
}

func TestCalibrateStopsAtDuration(t *testing.T) {
	cfg := testConfig(t)
	cfg.MinSamples = 10
	clk := clock.NewManual(epoch)
	src := &scriptedSource{clk: clk, step: time.Second, angles: angles(500, func(int) float64 { return 175 })}

	b, err := New(cfg, src, clk, zerolog.Nop()).Calibrate(context.Background(), 30*time.Second)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if b.SampleCount != 30 {
		t.Fatalf("expected 30 samples in a 30s window, got %d", b.SampleCount)
	}
}

func TestCalibrateSkipsUndetectedFrames(t *testing.T) {
	cfg := testConfig(t)
	clk := clock.NewManual(epoch)
	script := angles(100, func(i int) float64 {
		if i%2 == 0 {
			return math.NaN()
		}
		return 172
	})
	src := &scriptedSource{clk: clk, step: time.Second, angles: script}

	b, err := New(cfg, src, clk, zerolog.Nop()).Calibrate(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if b.SampleCount != 50 {
		t.Fatalf("expected 50 detected samples, got %d", b.SampleCount)
	}
}

func TestCalibrateInsufficientSamples(t *testing.T) {
	cfg := testConfig(t)
	clk := clock.NewManual(epoch)
	src := &scriptedSource{clk: clk, step: time.Second, angles: angles(49, func(int) float64 { return 171 })}

	b, err := New(cfg, src, clk, zerolog.Nop()).Calibrate(context.Background(), time.Hour)
	if !errors.Is(err, ErrInsufficientSamples) {
		t.Fatalf("expected ErrInsufficientSamples, got %v", err)
	}
	if b != nil {
		t.Fatalf("expected no baseline, got %+v", b)
	}
	if _, err := os.Stat(cfg.Path); !os.IsNotExist(err) {
		t.Fatalf("expected no baseline file, got %v", err)
	}
}

func TestCalibrateFailureKeepsPriorBaseline(t *testing.T) {
	cfg := testConfig(t)
	prior := &posture.Baseline{GoodAngle: 168, Tolerance: 10, SampleCount: 80, MinAngle: 160, MaxAngle: 175}
	if err := SaveBaseline(cfg.Path, prior); err != nil {
		t.Fatalf("save prior: %v", err)
	}
	before, err := os.ReadFile(cfg.Path)
	if err != nil {
		t.Fatalf("read prior: %v", err)
	}

	clk := clock.NewManual(epoch)
	src := &scriptedSource{clk: clk, step: time.Second, angles: angles(10, func(int) float64 { return 150 })}
	if _, err := New(cfg, src, clk, zerolog.Nop()).Calibrate(context.Background(), time.Hour); !errors.Is(err, ErrInsufficientSamples) {
		t.Fatalf("expected ErrInsufficientSamples, got %v", err)
	}

	after, err := os.ReadFile(cfg.Path)
	if err != nil {
		t.Fatalf("read after: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("prior baseline was modified")
	}
}

func TestCalibrateCaptureFailure(t *testing.T) {
	cfg := testConfig(t)
	clk := clock.NewManual(epoch)
	camErr := errors.New("camera unplugged")
	src := &scriptedSource{clk: clk, step: time.Second, angles: angles(80, func(int) float64 { return 172 }), err: camErr}

	_, err := New(cfg, src, clk, zerolog.Nop()).Calibrate(context.Background(), time.Hour)
	if !errors.Is(err, camErr) {
		t.Fatalf("expected capture error, got %v", err)
	}
	if _, err := os.Stat(cfg.Path); !os.IsNotExist(err) {
		t.Fatalf("expected no baseline file after capture failure, got %v", err)
	}
}

func TestCalibrateInterrupted(t *testing.T) {
	cfg := testConfig(t)
	clk := clock.NewManual(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptedSource{clk: clk, step: time.Second, angles: angles(200, func(int) float64 { return 174 })}
	src.onNext = func(i int) {
		if i == 60 {
			cancel()
		}
	}

	b, err := New(cfg, src, clk, zerolog.Nop()).Calibrate(ctx, time.Hour)
	if err != nil {
		t.Fatalf("expected interrupted calibration with enough samples to succeed, got %v", err)
	}
	if b.SampleCount != 60 {
		t.Fatalf("expected 60 samples before interrupt, got %d", b.SampleCount)
	}
}

func TestStats(t *testing.T) {
	if s := Stats(nil); s != (SampleStats{}) {
		t.Fatalf("expected zero stats, got %+v", s)
	}

	s := Stats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if s.Count != 8 || s.Mean != 5 || s.Min != 2 || s.Max != 9 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	// Sample standard deviation of the set above.
	if math.Abs(s.StdDev-math.Sqrt(32.0/7.0)) > 1e-9 {
		t.Fatalf("unexpected stddev: %v", s.StdDev)
	}

	one := Stats([]float64{171})
	if one.Mean != 171 || one.StdDev != 0 || one.Min != 171 || one.Max != 171 {
		t.Fatalf("unexpected single-sample stats: %+v", one)
	}
}

func TestBaselineRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "user_baseline.json")
	want := &posture.Baseline{
		GoodAngle:    172.123456,
		Tolerance:    10,
		SampleCount:  1234,
		MinAngle:     165.5,
		MaxAngle:     178.25,
		StdDev:       2.5,
		CalibratedAt: epoch,
	}
	if err := SaveBaseline(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := LoadBaseline(path, posture.DefaultBaselineFairMargin)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.GoodAngle != want.GoodAngle || got.Tolerance != want.Tolerance || got.SampleCount != want.SampleCount ||
		got.MinAngle != want.MinAngle || got.MaxAngle != want.MaxAngle || got.StdDev != want.StdDev ||
		!got.CalibratedAt.Equal(want.CalibratedAt) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestLoadBaselineMissing(t *testing.T) {
	b, err := LoadBaseline(filepath.Join(t.TempDir(), "none.json"), posture.DefaultBaselineFairMargin)
	if err != nil || b != nil {
		t.Fatalf("expected (nil, nil) for missing file, got %+v %v", b, err)
	}
}

func TestLoadBaselineSampleCountAlias(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_baseline.json")
	data := `{"good_angle": 171.5, "tolerance": 10.0, "sample_count": 64, "min_angle": 166.0, "max_angle": 176.0}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	b, err := LoadBaseline(path, posture.DefaultBaselineFairMargin)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if b.SampleCount != 64 {
		t.Fatalf("expected sample_count to be read, got %+v", b)
	}
}

func TestLoadBaselineCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{good_angle: 171`},
		{"missing good angle", `{"tolerance": 10, "samples": 60, "min_angle": 160, "max_angle": 175}`},
		{"missing samples", `{"good_angle": 170, "tolerance": 10, "min_angle": 160, "max_angle": 175}`},
		{"wrong type", `{"good_angle": "upright", "tolerance": 10, "samples": 60, "min_angle": 160, "max_angle": 175}`},
		{"tolerance too large", `{"good_angle": 170, "tolerance": 25, "samples": 60, "min_angle": 160, "max_angle": 175}`},
		{"negative tolerance", `{"good_angle": 170, "tolerance": -1, "samples": 60, "min_angle": 160, "max_angle": 175}`},
		{"mean outside range", `{"good_angle": 179, "tolerance": 10, "samples": 60, "min_angle": 160, "max_angle": 175}`},
		{"angle too large", `{"good_angle": 270, "tolerance": 10, "samples": 60, "min_angle": 260, "max_angle": 280}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "user_baseline.json")
			if err := os.WriteFile(path, []byte(tt.data), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			b, err := LoadBaseline(path, posture.DefaultBaselineFairMargin)
			if !errors.Is(err, ErrCorruptBaseline) {
				t.Fatalf("expected ErrCorruptBaseline, got %v", err)
			}
			if b != nil {
				t.Fatalf("expected no baseline, got %+v", b)
			}
		})
	}
}
