// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/posture_monitor/internal/alert"
	"github.com/relabs-tech/posture_monitor/internal/clock"
	"github.com/relabs-tech/posture_monitor/internal/config"
	"github.com/relabs-tech/posture_monitor/internal/metrics"
	"github.com/relabs-tech/posture_monitor/internal/monitor"
	"github.com/relabs-tech/posture_monitor/internal/session"
)

// RunMonitor runs one monitoring session until ctx is cancelled or the
// pose source ends, then prints the session summary.
func RunMonitor(ctx context.Context, cfg *config.Config) error {
	logger := NewLogger(cfg)
	clk := clock.Real{}

	logger.Info().
		Str("source", cfg.Source).
		Dur("bad_duration", cfg.BadDuration).
		Dur("break_interval", cfg.BreakInterval).
		Msg("starting posture monitor")

	// --- optional metrics endpoint ---
	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, logger)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Stop(stopCtx)
		}()
	}

	// --- connect to MQTT ---
	var (
		client mqtt.Client
		link   sourceLink
	)
	if needsMQTT(cfg) || cfg.PublishStatus {
		c, err := connectMQTT(cfg, cfg.MQTTClientIDMonitor, logger, link.handler(logger))
		switch {
		case err == nil:
			client = c
			defer client.Disconnect(250)
		case needsMQTT(cfg):
			return err
		default:
			logger.Warn().Err(err).Msg("status telemetry disabled")
		}
	}

	// --- session history ---
	history, err := openHistory(cfg, logger)
	if err != nil {
		// History is optional; the CSV log is still written.
		logger.Error().Err(err).Msg("session history unavailable")
	}
	if history != nil {
		defer history.Close()
	}

	// --- pose source ---
	src, err := openSource(cfg, client, &link, clk, logger)
	if err != nil {
		return fmt.Errorf("failed to open pose source: %w", err)
	}

	renderer := openRenderer(cfg, clk, logger)
	defer renderer.Close()

	notifier := buildNotifier(cfg, client, logger)

	opts := monitor.Options{
		Source:     src,
		Classifier: loadClassifier(cfg, logger),
		Alerts:     alert.NewTimer(alertConfig(cfg), notifier, clk, logger),
		Breaks:     alert.NewBreakTimer(breakConfig(cfg), notifier, clk, logger),
		Recorder:   session.NewRecorder(sessionConfig(cfg), clk, logger),
		Clock:      clk,
		Logger:     logger,
		Renderer:   renderer,
		MinFPS:     cfg.MinFPS,
	}
	if client != nil && cfg.PublishStatus {
		opts.Publisher = monitor.NewMQTTPublisher(client, cfg.TopicStatus)
	}
	if history != nil {
		opts.Archive = history
	}

	sdNotify(daemon.SdNotifyReady, logger)
	logger.Info().Msg("monitoring... press Ctrl+C to stop")

	rep, runErr := monitor.New(opts).Run(ctx)
	sdNotify(daemon.SdNotifyStopping, logger)

	session.PrintSummary(os.Stdout, rep.Summary, rep.SavedPath)
	fmt.Printf("Alerts sent:   %d\nBreaks:        %d\nAverage FPS:   %.1f\n", rep.Alerts, rep.Breaks, rep.AvgFPS)

	if runErr != nil {
		return fmt.Errorf("monitoring failed: %w", runErr)
	}
	return nil
}
