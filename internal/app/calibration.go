// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/fatih/color"

	"github.com/relabs-tech/posture_monitor/internal/calibration"
	"github.com/relabs-tech/posture_monitor/internal/clock"
	"github.com/relabs-tech/posture_monitor/internal/config"
)

// RunCalibration observes the user sitting upright and saves a personal
// baseline. A zero duration uses CALIBRATION_DURATION.
func RunCalibration(ctx context.Context, cfg *config.Config, duration time.Duration) error {
	logger := NewLogger(cfg)
	clk := clock.Real{}

	if duration <= 0 {
		duration = cfg.CalibrationDuration
	}

	var (
		client mqtt.Client
		link   sourceLink
	)
	if cfg.Source == "mqtt" {
		c, err := connectMQTT(cfg, cfg.MQTTClientIDMonitor, logger, link.handler(logger))
		if err != nil {
			return err
		}
		client = c
		defer client.Disconnect(250)
	}

	src, err := openSource(cfg, client, &link, clk, logger)
	if err != nil {
		return fmt.Errorf("failed to open pose source: %w", err)
	}
	defer src.Close()

	title := color.New(color.FgCyan, color.Bold)
	title.Println("=== Posture Calibration ===")
	fmt.Println("Sit up straight in your best posture and stay in view of the camera.")
	fmt.Printf("Calibration runs for %.0f seconds. Press Ctrl+C to finish early.\n\n", duration.Seconds())

	est := calibration.New(calibrationConfig(cfg), src, clk, logger)

	var lastPrint time.Time
	est.OnProgress(func(p calibration.Progress) {
		now := clk.Now()
		if now.Sub(lastPrint) < time.Second {
			return
		}
		lastPrint = now
		if p.Detected {
			fmt.Printf("  %3.0fs remaining | samples: %4d | angle: %6.1f deg\n", p.Remaining.Seconds(), p.Samples, p.Angle)
		} else {
			color.New(color.FgYellow).Printf("  %3.0fs remaining | samples: %4d | no person detected\n", p.Remaining.Seconds(), p.Samples)
		}
	})

	baseline, err := est.Calibrate(ctx, duration)
	if err != nil {
		if errors.Is(err, calibration.ErrInsufficientSamples) {
			color.New(color.FgRed).Printf("\nCalibration failed: %v\n", err)
			fmt.Println("Make sure you are visible to the camera and try again.")
		}
		return err
	}

	fmt.Println()
	title.Println("Calibration complete.")
	fmt.Printf("Good posture angle: %.1f deg (std dev %.1f)\n", baseline.GoodAngle, baseline.StdDev)
	fmt.Printf("Observed range:     %.1f - %.1f deg over %d samples\n", baseline.MinAngle, baseline.MaxAngle, baseline.SampleCount)
	fmt.Printf("GOOD at or above:   %.1f deg\n", baseline.GoodAngle-baseline.Tolerance)
	fmt.Printf("FAIR at or above:   %.1f deg\n", baseline.GoodAngle-cfg.BaselineFairMargin)
	fmt.Printf("Saved to %s\n", cfg.BaselinePath)
	return nil
}
