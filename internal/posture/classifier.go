// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package posture

import (
	"time"

	"github.com/relabs-tech/posture_monitor/internal/pose"
)

const (
	// DefaultGoodAngle is the ear-shoulder-hip angle at or above which
	// posture is upright.
	DefaultGoodAngle = 170.0
	// DefaultFairAngle is the lower bound of a slight slouch.
	DefaultFairAngle = 160.0
	// DefaultBaselineFairMargin is how far below the calibrated angle the
	// fair tier ends.
	DefaultBaselineFairMargin = 20.0
)

// Baseline is a user's calibrated "good posture" reference.
type Baseline struct {
	GoodAngle    float64   `json:"good_angle"`
	Tolerance    float64   `json:"tolerance"`
	SampleCount  int       `json:"samples"`
	MinAngle     float64   `json:"min_angle"`
	MaxAngle     float64   `json:"max_angle"`
	StdDev       float64   `json:"stddev,omitempty"`
	CalibratedAt time.Time `json:"calibrated_at,omitempty"`
}

// Thresholds are the fixed classification limits used without a baseline,
// plus the fair margin applied to a baseline.
type Thresholds struct {
	Good               float64
	Fair               float64
	BaselineFairMargin float64
}

// DefaultThresholds returns 170/160 with a 20 degree baseline margin.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Good:               DefaultGoodAngle,
		Fair:               DefaultFairAngle,
		BaselineFairMargin: DefaultBaselineFairMargin,
	}
}

// Classifier maps the left ear-shoulder-hip angle to a Status.
// It is immutable and safe for concurrent use.
type Classifier struct {
	good          float64
	fair          float64
	baseline      *Baseline
	minVisibility float64
}

// NewClassifier builds a classifier. With a baseline the limits are
// GoodAngle-Tolerance and GoodAngle-BaselineFairMargin; otherwise the fixed
// thresholds apply. Landmarks below minVisibility count as missing.
func NewClassifier(th Thresholds, baseline *Baseline, minVisibility float64) *Classifier {
	c := &Classifier{
		good:          th.Good,
		fair:          th.Fair,
		minVisibility: minVisibility,
	}
	if baseline != nil {
		b := *baseline
		c.baseline = &b
		c.good = b.GoodAngle - b.Tolerance
		c.fair = b.GoodAngle - th.BaselineFairMargin
	}
	return c
}

// Limits returns the active good and fair thresholds.
func (c *Classifier) Limits() (good, fair float64) {
	return c.good, c.fair
}

// Baseline returns a copy of the baseline in use, or nil.
func (c *Classifier) Baseline() *Baseline {
	if c.baseline == nil {
		return nil
	}
	b := *c.baseline
	return &b
}

// Classify extracts the left ear, shoulder and hip and classifies their
// angle. A missing, invisible or non-finite landmark yields (Unknown, 0).
func (c *Classifier) Classify(ls pose.Landmarks) (Status, float64) {
	ear, ok := c.landmark(ls, pose.LeftEar)
	if !ok {
		return Unknown, 0
	}
	shoulder, ok := c.landmark(ls, pose.LeftShoulder)
	if !ok {
		return Unknown, 0
	}
	hip, ok := c.landmark(ls, pose.LeftHip)
	if !ok {
		return Unknown, 0
	}

	angle := AngleAtVertex(PointOf(ear), PointOf(shoulder), PointOf(hip))
	return c.ClassifyAngle(angle), angle
}

// ClassifyAngle applies the inclusive rule:
//
//	angle >= good         -> Good
//	fair <= angle < good  -> Fair
//	angle < fair          -> Bad
func (c *Classifier) ClassifyAngle(angle float64) Status {
	switch {
	case angle >= c.good:
		return Good
	case angle >= c.fair:
		return Fair
	default:
		return Bad
	}
}

func (c *Classifier) landmark(ls pose.Landmarks, idx int) (pose.Landmark, bool) {
	l, ok := ls.At(idx)
	if !ok || !l.Valid() {
		return pose.Landmark{}, false
	}
	if c.minVisibility > 0 && l.Visibility < c.minVisibility {
		return pose.Landmark{}, false
	}
	return l, true
}
