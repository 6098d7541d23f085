// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pose

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/posture_monitor/internal/clock"
)

// Mock neck geometry: shoulder fixed, hip straight below it, ear swinging
// forward around the shoulder to simulate slouching.
const (
	mockShoulderX = 0.50
	mockShoulderY = 0.45
	mockNeckLen   = 0.12
	mockTorsoLen  = 0.30

	// Lean oscillates between upright and a deep slouch.
	mockLeanMaxDeg = 28.0
	mockLeanPeriod = 90 * time.Second

	// One no-person gap of mockGapLen every mockGapEvery.
	mockGapEvery = 45 * time.Second
	mockGapLen   = 3 * time.Second
)

// MockSource creates synthetic frames of a seated person whose
// ear-shoulder-hip angle drifts smoothly between good and bad posture.
type MockSource struct {
	clk      clock.Clock
	interval time.Duration
	start    time.Time
	pace     bool

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// NewMockSource creates a mock source producing frames at fps.
// When pace is false Next returns immediately, which is what tests want.
func NewMockSource(clk clock.Clock, fps int, pace bool) *MockSource {
	if fps <= 0 {
		fps = 15
	}
	return &MockSource{
		clk:      clk,
		interval: time.Second / time.Duration(fps),
		start:    clk.Now(),
		pace:     pace,
	}
}

// Next returns the next synthetic frame.
func (m *MockSource) Next(ctx context.Context) (Frame, error) {
	if m.pace {
		t := time.NewTimer(m.interval)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-t.C:
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Frame{}, ErrSourceClosed
	}
	m.seq++

	now := m.clk.Now()
	elapsed := now.Sub(m.start)
	frame := Frame{Seq: m.seq, Timestamp: now}

	if elapsed%mockGapEvery > mockGapEvery-mockGapLen {
		return frame, nil
	}

	phase := 2 * math.Pi * elapsed.Seconds() / mockLeanPeriod.Seconds()
	lean := mockLeanMaxDeg * (1 - math.Cos(phase)) / 2
	frame.Landmarks = MockLandmarks(180 - lean)
	return frame, nil
}

// Close stops the source.
func (m *MockSource) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// MockLandmarks builds a landmark set whose left ear-shoulder-hip angle is
// angleDeg (0-180). Only the left ear, shoulder and hip are meaningful.
func MockLandmarks(angleDeg float64) Landmarks {
	ls := make(Landmarks, NumLandmarks)
	for i := range ls {
		ls[i] = Landmark{X: mockShoulderX, Y: mockShoulderY, Visibility: 0.9}
	}

	// Image y grows downward: hip sits below the shoulder, the ear above it
	// and tilted forward (toward +x) by 180-angle degrees.
	lean := (180 - angleDeg) * math.Pi / 180
	ls[LeftShoulder] = Landmark{X: mockShoulderX, Y: mockShoulderY, Visibility: 0.99}
	ls[LeftHip] = Landmark{X: mockShoulderX, Y: mockShoulderY + mockTorsoLen, Visibility: 0.95}
	ls[LeftEar] = Landmark{
		X:          mockShoulderX + mockNeckLen*math.Sin(lean),
		Y:          mockShoulderY - mockNeckLen*math.Cos(lean),
		Visibility: 0.97,
	}
	return ls
}
