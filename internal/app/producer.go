// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/relabs-tech/posture_monitor/internal/clock"
	"github.com/relabs-tech/posture_monitor/internal/config"
	"github.com/relabs-tech/posture_monitor/internal/pose"
	"github.com/relabs-tech/posture_monitor/internal/posture"
)

// RunProducer publishes synthetic landmark frames to the landmark topic at
// MOCK_FPS, standing in for the camera-side pose estimator.
func RunProducer(ctx context.Context, cfg *config.Config) error {
	logger := NewLogger(cfg).With().Str("component", "producer").Logger()

	// --- connect to MQTT ---
	client, err := connectMQTT(cfg, cfg.MQTTClientIDProducer, logger, nil)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	src := pose.NewMockSource(clock.Real{}, cfg.MockFPS, false)
	defer src.Close()
	pub := pose.NewPublisher(client, cfg.TopicLandmarks)
	classifier := posture.NewClassifier(thresholds(cfg), nil, 0)

	logger.Info().
		Str("topic", cfg.TopicLandmarks).
		Int("fps", cfg.MockFPS).
		Msg("starting publish loop")

	// main tick
	ticker := time.NewTicker(time.Second / time.Duration(cfg.MockFPS))
	defer ticker.Stop()

	var lastLog time.Time
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("producer stopped")
			return nil
		case t := <-ticker.C:
			frame, err := src.Next(ctx)
			if err != nil {
				return fmt.Errorf("mock source: %w", err)
			}
			if err := pub.Publish(frame); err != nil {
				logger.Warn().Err(err).Msg("publish failed")
				continue
			}

			if t.Sub(lastLog) >= 5*time.Second {
				lastLog = t
				status, angle := classifier.Classify(frame.Landmarks)
				logger.Info().
					Uint64("seq", frame.Seq).
					Str("status", status.String()).
					Float64("angle", angle).
					Msg("tick")
			}
		}
	}
}
