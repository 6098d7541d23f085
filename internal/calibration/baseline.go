// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/relabs-tech/posture_monitor/internal/posture"
)

// ErrCorruptBaseline is returned by LoadBaseline for a file that exists but
// cannot be used. Callers treat it like an absent baseline.
var ErrCorruptBaseline = errors.New("corrupt baseline file")

// baselineFile is the on-disk form. Older files name the count sample_count.
type baselineFile struct {
	GoodAngle    *float64  `json:"good_angle"`
	Tolerance    *float64  `json:"tolerance"`
	Samples      *int      `json:"samples,omitempty"`
	SampleCount  *int      `json:"sample_count,omitempty"`
	MinAngle     *float64  `json:"min_angle"`
	MaxAngle     *float64  `json:"max_angle"`
	StdDev       float64   `json:"stddev,omitempty"`
	CalibratedAt time.Time `json:"calibrated_at,omitempty"`
}

// rangeSlack absorbs the rounding of a mean computed over identical
// samples, which can land one ulp outside [min, max].
const rangeSlack = 1e-6

// Validate checks that b can drive the classifier: finite values, a
// non-negative sample count, min <= good <= max (within rangeSlack) and a
// tolerance in [0, fairMargin).
func Validate(b *posture.Baseline, fairMargin float64) error {
	for name, v := range map[string]float64{
		"good_angle": b.GoodAngle,
		"tolerance":  b.Tolerance,
		"min_angle":  b.MinAngle,
		"max_angle":  b.MaxAngle,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite", name)
		}
	}
	if b.GoodAngle < 0 || b.GoodAngle > 180 {
		return fmt.Errorf("good_angle %.2f outside [0, 180]", b.GoodAngle)
	}
	if b.SampleCount < 0 {
		return fmt.Errorf("negative sample count %d", b.SampleCount)
	}
	if b.MinAngle-rangeSlack > b.GoodAngle || b.GoodAngle > b.MaxAngle+rangeSlack {
		return fmt.Errorf("good_angle %.2f outside [min_angle %.2f, max_angle %.2f]", b.GoodAngle, b.MinAngle, b.MaxAngle)
	}
	if b.Tolerance < 0 || b.Tolerance >= fairMargin {
		return fmt.Errorf("tolerance %.2f outside [0, %.2f)", b.Tolerance, fairMargin)
	}
	return nil
}

// SaveBaseline writes b to path as JSON, replacing any previous file
// atomically.
func SaveBaseline(path string, b *posture.Baseline) error {
	count := b.SampleCount
	f := baselineFile{
		GoodAngle:    &b.GoodAngle,
		Tolerance:    &b.Tolerance,
		Samples:      &count,
		MinAngle:     &b.MinAngle,
		MaxAngle:     &b.MaxAngle,
		StdDev:       b.StdDev,
		CalibratedAt: b.CalibratedAt,
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create baseline dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".baseline-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp baseline: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write baseline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close baseline: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename baseline: %w", err)
	}
	return nil
}

// LoadBaseline reads the baseline at path. A missing file returns
// (nil, nil). A malformed or invalid file returns an error wrapping
// ErrCorruptBaseline.
func LoadBaseline(path string, fairMargin float64) (*posture.Baseline, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read baseline: %w", err)
	}

	var f baselineFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptBaseline, path, err)
	}
	if f.GoodAngle == nil || f.Tolerance == nil || f.MinAngle == nil || f.MaxAngle == nil {
		return nil, fmt.Errorf("%w: %s: missing required field", ErrCorruptBaseline, path)
	}

	b := &posture.Baseline{
		GoodAngle:    *f.GoodAngle,
		Tolerance:    *f.Tolerance,
		MinAngle:     *f.MinAngle,
		MaxAngle:     *f.MaxAngle,
		StdDev:       f.StdDev,
		CalibratedAt: f.CalibratedAt,
	}
	switch {
	case f.Samples != nil:
		b.SampleCount = *f.Samples
	case f.SampleCount != nil:
		b.SampleCount = *f.SampleCount
	default:
		return nil, fmt.Errorf("%w: %s: missing samples", ErrCorruptBaseline, path)
	}

	if err := Validate(b, fairMargin); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptBaseline, path, err)
	}
	return b, nil
}
