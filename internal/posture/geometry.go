// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package posture

import (
	"math"

	"github.com/relabs-tech/posture_monitor/internal/pose"
)

// Point is a 2D position in normalized image coordinates.
type Point struct {
	X float64
	Y float64
}

// PointOf drops z and visibility from a landmark.
func PointOf(l pose.Landmark) Point {
	return Point{X: l.X, Y: l.Y}
}

// AngleAtVertex returns the angle at b formed by the rays b->a and b->c,
// in degrees within [0, 180].
//
//	angle = |atan2(c-b) - atan2(a-b)|, reflex angles folded back (360 - angle)
//
// A zero-length ray has no direction, so a == b or c == b yields 0.
// Non-finite input also yields 0.
func AngleAtVertex(a, b, c Point) float64 {
	ax, ay := a.X-b.X, a.Y-b.Y
	cx, cy := c.X-b.X, c.Y-b.Y

	if (ax == 0 && ay == 0) || (cx == 0 && cy == 0) {
		return 0
	}

	rad := math.Atan2(cy, cx) - math.Atan2(ay, ax)
	deg := math.Abs(rad * 180.0 / math.Pi)
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	if deg > 180.0 {
		deg = 360.0 - deg
	}
	return deg
}
