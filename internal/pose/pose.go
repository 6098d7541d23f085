// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pose

import (
	"context"
	"errors"
	"math"
	"time"
)

// Body landmark indices following the MediaPipe Pose convention (33 points).
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

// ErrSourceClosed is returned by Next after Close.
var ErrSourceClosed = errors.New("pose: source closed")

// Landmark is one detected body keypoint in normalized image coordinates.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Valid reports whether the landmark has finite coordinates.
func (l Landmark) Valid() bool {
	return finite(l.X) && finite(l.Y) && finite(l.Z)
}

// Landmarks is the indexed landmark set for a single person.
type Landmarks []Landmark

// At returns the landmark at index i and whether it is present.
func (ls Landmarks) At(i int) (Landmark, bool) {
	if i < 0 || i >= len(ls) {
		return Landmark{}, false
	}
	return ls[i], true
}

// Frame is one processed camera frame as delivered by the pose estimator.
// A nil Landmarks means no person was detected.
type Frame struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Landmarks Landmarks `json:"landmarks"`
}

// Detected reports whether a person was found in the frame.
func (f Frame) Detected() bool {
	return f.Landmarks != nil
}

// Source is anything that can provide pose frames over time:
// the mock source, the MQTT feed of an external estimator, a replay file.
//
// Next blocks until the next frame is available. io.EOF means the stream
// ended normally; any other error is a capture failure.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
