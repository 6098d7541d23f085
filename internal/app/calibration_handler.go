// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/posture_monitor/internal/calibration"
	"github.com/relabs-tech/posture_monitor/internal/posture"
)

// WSMessage is sent by the browser.
type WSMessage struct {
	Action    string  `json:"action"` // start, cancel
	DurationS float64 `json:"duration_s,omitempty"`
}

// WSResponse is sent to the browser.
type WSResponse struct {
	Type     string                 `json:"type"` // phase, progress, complete, error
	Phase    string                 `json:"phase,omitempty"`
	Progress float64                `json:"progress,omitempty"`
	Stats    map[string]interface{} `json:"stats,omitempty"`
	Results  interface{}            `json:"results,omitempty"`
	Message  string                 `json:"message,omitempty"`
}

// calibrationSession drives one browser calibration over a websocket.
// Only the calibration goroutine writes to the connection.
type calibrationSession struct {
	conn      *websocket.Conn
	server    *webServer
	lastSent  time.Time
	sendEvery time.Duration
}

// handleCalibrationWS runs a calibration on request from the browser. Only
// one calibration can run at a time.
func (s *webServer) handleCalibrationWS(w http.ResponseWriter, r *http.Request) {
	if !s.calibrating.CompareAndSwap(false, true) {
		http.Error(w, "calibration already running", http.StatusConflict)
		return
	}
	defer s.calibrating.Store(false)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("calibration: websocket upgrade error")
		return
	}
	defer conn.Close()

	cs := &calibrationSession{conn: conn, server: s, sendEvery: 500 * time.Millisecond}

	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		s.logger.Debug().Err(err).Msg("calibration: websocket read error")
		return
	}
	if msg.Action != "start" {
		cs.sendError("expected a start action")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel on request or when the browser goes away. The samples
	// collected so far are still evaluated.
	go func() {
		for {
			var m WSMessage
			if err := conn.ReadJSON(&m); err != nil {
				cancel()
				return
			}
			if m.Action == "cancel" {
				s.logger.Info().Msg("calibration: cancelled by user")
				cancel()
			}
		}
	}()

	duration := s.calCfg.Duration
	if msg.DurationS > 0 {
		duration = time.Duration(msg.DurationS * float64(time.Second))
	}
	cs.run(ctx, duration)
}

func (cs *calibrationSession) run(ctx context.Context, duration time.Duration) {
	s := cs.server

	src, err := s.openSource()
	if err != nil {
		cs.sendError(err.Error())
		return
	}
	defer src.Close()

	est := calibration.New(s.calCfg, src, s.clk, s.logger)
	est.OnProgress(cs.sendProgress)

	cs.sendPhase("collecting")
	baseline, err := est.Calibrate(ctx, duration)
	if err != nil {
		cs.sendError(err.Error())
		return
	}
	cs.complete(baseline)
}

func (cs *calibrationSession) complete(b *posture.Baseline) {
	cs.write(WSResponse{
		Type:     "complete",
		Progress: 100,
		Results:  b,
		Message:  "baseline saved to " + cs.server.calCfg.Path + ", restart the monitor to apply it",
	})
}

func (cs *calibrationSession) sendPhase(phase string) {
	cs.write(WSResponse{
		Type:  "phase",
		Phase: phase,
	})
}

func (cs *calibrationSession) sendProgress(p calibration.Progress) {
	now := cs.server.clk.Now()
	if !cs.lastSent.IsZero() && now.Sub(cs.lastSent) < cs.sendEvery {
		return
	}
	cs.lastSent = now

	total := p.Elapsed + p.Remaining
	pct := 0.0
	if total > 0 {
		pct = 100 * p.Elapsed.Seconds() / total.Seconds()
	}
	stats := map[string]interface{}{
		"samples":     p.Samples,
		"detected":    p.Detected,
		"remaining_s": p.Remaining.Seconds(),
	}
	if p.Detected {
		stats["angle"] = p.Angle
	}
	cs.write(WSResponse{
		Type:     "progress",
		Progress: pct,
		Stats:    stats,
	})
}

func (cs *calibrationSession) sendError(message string) {
	cs.write(WSResponse{
		Type:    "error",
		Message: message,
	})
}

func (cs *calibrationSession) write(resp WSResponse) {
	_ = cs.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := cs.conn.WriteJSON(resp); err != nil {
		cs.server.logger.Debug().Err(err).Str("type", resp.Type).Msg("calibration: websocket write error")
	}
}
