// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package notify delivers alert notifications: to the log, to the desktop,
// to an MQTT topic, or to several of those at once.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"

	"github.com/relabs-tech/posture_monitor/internal/alert"
)

// Log writes notifications to the logger.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a log notifier.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "notify").Logger()}
}

// Notify logs n at warn level for posture alerts and info for breaks.
func (l *Log) Notify(_ context.Context, n alert.Notification) error {
	ev := l.logger.Info()
	if n.Kind == alert.KindPosture {
		ev = l.logger.Warn()
	}
	ev.Str("kind", string(n.Kind)).
		Int("count", n.Count).
		Str("title", n.Title).
		Msg(n.Message)
	return nil
}

// Desktop shows notifications through the operating system's notification
// service.
type Desktop struct {
	beep bool
	send func(title, message string) error
	ring func() error
}

// NewDesktop creates a desktop notifier. With beep set, posture alerts
// also sound the system bell.
func NewDesktop(appName string, beep bool) *Desktop {
	if appName != "" {
		beeep.AppName = appName
	}
	return &Desktop{
		beep: beep,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		ring: func() error {
			return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
		},
	}
}

// Notify shows n. The notification timeout is left to the desktop.
func (d *Desktop) Notify(_ context.Context, n alert.Notification) error {
	if err := d.send(n.Title, n.Message); err != nil {
		return fmt.Errorf("desktop notification: %w", err)
	}
	if d.beep && n.Kind == alert.KindPosture {
		if err := d.ring(); err != nil {
			return fmt.Errorf("desktop beep: %w", err)
		}
	}
	return nil
}

// MQTT publishes notifications as JSON to a topic.
type MQTT struct {
	client mqtt.Client
	topic  string
	qos    byte
}

// NewMQTT creates an MQTT notifier.
func NewMQTT(client mqtt.Client, topic string) *MQTT {
	return &MQTT{client: client, topic: topic, qos: 1}
}

// Message is the JSON payload published for each notification.
type Message struct {
	alert.Notification
	TimeoutSeconds float64 `json:"timeout_s"`
}

// Notify publishes n and waits for the broker or ctx.
func (m *MQTT) Notify(ctx context.Context, n alert.Notification) error {
	payload, err := json.Marshal(Message{Notification: n, TimeoutSeconds: n.Timeout.Seconds()})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	token := m.client.Publish(m.topic, m.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish notification to %s: %w", m.topic, err)
	}
	return nil
}

// Multi fans a notification out to several notifiers. Every notifier is
// tried; the errors are joined.
type Multi []alert.Notifier

// Notify delivers n to every notifier.
func (m Multi) Notify(ctx context.Context, n alert.Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
