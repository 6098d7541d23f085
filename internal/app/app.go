// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package app wires the posture monitor components into the runnable
// commands.
package app

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/relabs-tech/posture_monitor/internal/alert"
	"github.com/relabs-tech/posture_monitor/internal/calibration"
	"github.com/relabs-tech/posture_monitor/internal/clock"
	"github.com/relabs-tech/posture_monitor/internal/config"
	"github.com/relabs-tech/posture_monitor/internal/display"
	"github.com/relabs-tech/posture_monitor/internal/metrics"
	"github.com/relabs-tech/posture_monitor/internal/notify"
	"github.com/relabs-tech/posture_monitor/internal/pose"
	"github.com/relabs-tech/posture_monitor/internal/posture"
	"github.com/relabs-tech/posture_monitor/internal/session"
	"github.com/relabs-tech/posture_monitor/internal/storage"
	boltstore "github.com/relabs-tech/posture_monitor/internal/storage/bolt"
	redisstore "github.com/relabs-tech/posture_monitor/internal/storage/redis"
)

const appName = "Posture Monitor"

// NewLogger builds the root logger from the logging settings.
func NewLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "json" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}

// connectMQTT connects a client to the configured broker. lost may be nil.
func connectMQTT(cfg *config.Config, clientID string, logger zerolog.Logger, lost mqtt.ConnectionLostHandler) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	if lost != nil {
		opts.SetConnectionLostHandler(lost)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect error (%s): %w", cfg.MQTTBroker, token.Error())
	}
	logger.Info().Str("broker", cfg.MQTTBroker).Str("client_id", clientID).Msg("connected to MQTT broker")
	return client, nil
}

// thresholds converts the classification settings.
func thresholds(cfg *config.Config) posture.Thresholds {
	return posture.Thresholds{
		Good:               cfg.GoodAngle,
		Fair:               cfg.FairAngle,
		BaselineFairMargin: cfg.BaselineFairMargin,
	}
}

func alertConfig(cfg *config.Config) alert.Config {
	return alert.Config{
		BadDuration: cfg.BadDuration,
		Cooldown:    cfg.AlertCooldown,
		Title:       cfg.AlertTitle,
		Timeout:     cfg.AlertTimeout,
	}
}

func breakConfig(cfg *config.Config) alert.BreakConfig {
	return alert.BreakConfig{
		Interval: cfg.BreakInterval,
		Title:    cfg.BreakTitle,
		Timeout:  cfg.BreakTimeout,
	}
}

func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		RecordEvery: cfg.RecordEvery,
		Dir:         cfg.SessionsDir,
	}
}

func calibrationConfig(cfg *config.Config) calibration.Config {
	return calibration.Config{
		Duration:      cfg.CalibrationDuration,
		MinSamples:    cfg.CalibrationMinSamples,
		Tolerance:     cfg.CalibrationTolerance,
		FairMargin:    cfg.BaselineFairMargin,
		MinVisibility: cfg.LandmarkMinVisibility,
		Path:          cfg.BaselinePath,
	}
}

func mqttSourceConfig(cfg *config.Config) pose.MQTTConfig {
	return pose.MQTTConfig{
		LandmarkTopic: cfg.TopicLandmarks,
		CaptureTopic:  cfg.TopicCapture,
		FrameTimeout:  cfg.FrameTimeout,
		Capture: pose.CaptureRequest{
			Width:               cfg.CameraWidth,
			Height:              cfg.CameraHeight,
			MinFPS:              int(cfg.MinFPS),
			ModelComplexity:     cfg.ModelComplexity,
			DetectionConfidence: cfg.DetectionConfidence,
		},
	}
}

// needsMQTT reports whether the pose source or a notifier requires a
// broker connection.
func needsMQTT(cfg *config.Config) bool {
	return cfg.Source == "mqtt" || slices.Contains(cfg.Notifiers, "mqtt")
}

// sourceLink lets the connection-lost handler, installed before the
// client connects, reach the MQTT source created afterwards.
type sourceLink struct {
	src atomic.Pointer[pose.MQTTSource]
}

func (l *sourceLink) handler(logger zerolog.Logger) mqtt.ConnectionLostHandler {
	return func(c mqtt.Client, err error) {
		logger.Error().Err(err).Msg("MQTT connection lost")
		if s := l.src.Load(); s != nil {
			s.ConnectionLostHandler()(c, err)
		}
	}
}

// openSource creates the configured pose source. client is only used by
// the mqtt source.
func openSource(cfg *config.Config, client mqtt.Client, link *sourceLink, clk clock.Clock, logger zerolog.Logger) (pose.Source, error) {
	switch cfg.Source {
	case "mqtt":
		if client == nil {
			return nil, fmt.Errorf("SOURCE=mqtt requires a broker connection")
		}
		src, err := pose.NewMQTTSource(client, mqttSourceConfig(cfg), logger)
		if err != nil {
			return nil, err
		}
		if link != nil {
			link.src.Store(src)
		}
		return src, nil
	case "replay":
		src, err := pose.OpenReplay(cfg.ReplayPath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.ReplayPath).Msg("replaying recorded frames")
		return src, nil
	default:
		logger.Info().Int("fps", cfg.MockFPS).Msg("using mock pose source")
		return pose.NewMockSource(clk, cfg.MockFPS, true), nil
	}
}

// buildNotifier fans out to every configured notifier. Dispatch failures
// are counted per notification kind.
func buildNotifier(cfg *config.Config, client mqtt.Client, logger zerolog.Logger) alert.Notifier {
	var all notify.Multi
	for _, name := range cfg.Notifiers {
		switch name {
		case "log":
			all = append(all, notify.NewLog(logger))
		case "desktop":
			all = append(all, notify.NewDesktop(appName, cfg.DesktopBeep))
		case "mqtt":
			if client != nil {
				all = append(all, notify.NewMQTT(client, cfg.TopicAlerts))
			}
		}
	}

	return alert.NotifierFunc(func(ctx context.Context, n alert.Notification) error {
		err := all.Notify(ctx, n)
		if err != nil {
			metrics.NotifyFailures.WithLabelValues(string(n.Kind)).Inc()
		}
		return err
	})
}

// openHistory opens the session history store, or returns nil when
// STORAGE_TYPE is none.
func openHistory(cfg *config.Config, logger zerolog.Logger) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)
	switch cfg.StorageType {
	case "bolt":
		store, err = boltstore.Open(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt history: %w", err)
		}
		logger.Info().Str("path", cfg.StoragePath).Msg("bolt session history opened")
	case "redis":
		store, err = redisstore.Open(redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open redis history: %w", err)
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("redis session history opened")
	default:
		return nil, nil
	}

	cached, err := storage.NewCached(store, cfg.HistoryCacheSize)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return cached, nil
}

// openRenderer creates the configured display. An OLED that cannot be
// opened falls back to the console.
func openRenderer(cfg *config.Config, clk clock.Clock, logger zerolog.Logger) display.Renderer {
	switch cfg.Display {
	case "oled":
		oled, err := display.NewOLED(cfg.DisplayI2CAddr, cfg.DisplayUpdateInterval, clk, logger)
		if err == nil {
			return oled
		}
		logger.Warn().Err(err).Msg("OLED display unavailable, using console")
		return display.NewConsole(os.Stdout, cfg.DisplayUpdateInterval, clk)
	case "console":
		return display.NewConsole(os.Stdout, cfg.DisplayUpdateInterval, clk)
	default:
		return display.Nop{}
	}
}

// loadClassifier builds the classifier, using the personal baseline when
// one was saved. A corrupt baseline file is reported and ignored.
func loadClassifier(cfg *config.Config, logger zerolog.Logger) *posture.Classifier {
	baseline, err := calibration.LoadBaseline(cfg.BaselinePath, cfg.BaselineFairMargin)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.BaselinePath).Msg("ignoring baseline, using default thresholds")
		baseline = nil
	}

	c := posture.NewClassifier(thresholds(cfg), baseline, cfg.LandmarkMinVisibility)
	good, fair := c.Limits()
	if baseline != nil {
		logger.Info().
			Float64("good_angle", baseline.GoodAngle).
			Float64("tolerance", baseline.Tolerance).
			Float64("good_limit", good).
			Float64("fair_limit", fair).
			Msg("using personal baseline")
	} else {
		logger.Info().
			Float64("good_limit", good).
			Float64("fair_limit", fair).
			Msg("no baseline found, using default thresholds (run 'posture calibrate' to personalize)")
	}
	return c
}
