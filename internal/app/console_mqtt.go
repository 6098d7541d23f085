// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/relabs-tech/posture_monitor/internal/alert"
	"github.com/relabs-tech/posture_monitor/internal/config"
	"github.com/relabs-tech/posture_monitor/internal/monitor"
	"github.com/relabs-tech/posture_monitor/internal/notify"
	"github.com/relabs-tech/posture_monitor/internal/session"
)

// consoleStatusEvery throttles status lines; alerts are always printed.
const consoleStatusEvery = time.Second

// RunConsoleMQTT prints the live status and every notification published
// by a running monitor.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config) error {
	logger := NewLogger(cfg).With().Str("component", "console").Logger()

	client, err := connectMQTT(cfg, cfg.MQTTClientIDConsole, logger, nil)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	printer := &consolePrinter{w: os.Stdout, logger: logger}

	// Subscribe to status
	statusToken := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		printer.status(msg.Payload())
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	logger.Info().Str("topic", cfg.TopicStatus).Msg("subscribed")

	// Subscribe to alerts and break reminders
	alertToken := client.Subscribe(cfg.TopicAlerts, 1, func(_ mqtt.Client, msg mqtt.Message) {
		printer.notification(msg.Payload())
	})
	alertToken.Wait()
	if alertToken.Error() != nil {
		return alertToken.Error()
	}
	logger.Info().Str("topic", cfg.TopicAlerts).Msg("subscribed")

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	return nil
}

// consolePrinter formats MQTT payloads. paho delivers messages from a
// single goroutine, so no locking is needed.
type consolePrinter struct {
	w      io.Writer
	logger zerolog.Logger
	last   time.Time
}

func (p *consolePrinter) status(payload []byte) {
	var st monitor.Status
	if err := json.Unmarshal(payload, &st); err != nil {
		p.logger.Warn().Err(err).Msg("status unmarshal error")
		return
	}
	if !p.last.IsZero() && st.Timestamp.Sub(p.last) < consoleStatusEvery {
		return
	}
	p.last = st.Timestamp

	fmt.Fprintf(p.w, "[STAT] %s ", st.Timestamp.Local().Format(time.TimeOnly))
	session.StatusColor(st.Status).Fprintf(p.w, "%-7s", st.Status)
	fmt.Fprintf(p.w, " angle=%6.1f  score=%5.1f  alerts=%d  breaks=%d  bad_for=%3.0fs  next_break=%4.0fs  fps=%4.1f\n",
		st.Angle, st.Score, st.Alerts, st.Breaks, st.BadForSeconds, st.NextBreakSeconds, st.FPS)
}

func (p *consolePrinter) notification(payload []byte) {
	var m notify.Message
	if err := json.Unmarshal(payload, &m); err != nil {
		p.logger.Warn().Err(err).Msg("notification unmarshal error")
		return
	}

	c := color.New(color.FgCyan, color.Bold)
	tag := "[BRK ]"
	if m.Kind == alert.KindPosture {
		c = color.New(color.FgRed, color.Bold)
		tag = "[ALRT]"
	}
	c.Fprintf(p.w, "%s %s #%d: %s\n", tag, m.Title, m.Count, m.Message)
}
