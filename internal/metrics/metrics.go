// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Processing loop
	FramesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "posture_frames_processed_total",
			Help: "Total frames processed by the monitor loop",
		},
	)

	StatusTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posture_status_ticks_total",
			Help: "Processed frames by posture status",
		},
		[]string{"status"},
	)

	CurrentAngle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "posture_angle_degrees",
			Help: "Most recent ear-shoulder-hip angle",
		},
	)

	SessionScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "posture_session_score",
			Help: "Weighted posture score of the current session (0-100)",
		},
	)

	FPS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "posture_fps",
			Help: "Average frames per second of the current session",
		},
	)

	FrameDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "posture_frame_duration_seconds",
			Help:    "Time spent processing one frame, excluding capture",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		},
	)

	// Notifications
	AlertsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "posture_alerts_sent_total",
			Help: "Bad posture alerts dispatched",
		},
	)

	BreaksSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "posture_break_reminders_total",
			Help: "Break reminders dispatched",
		},
	)

	NotifyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posture_notification_failures_total",
			Help: "Notification dispatch failures",
		},
		[]string{"kind"},
	)

	// Persistence
	LogEntries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "posture_log_entries_total",
			Help: "Session log entries recorded",
		},
	)

	SessionsSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posture_sessions_saved_total",
			Help: "Session saves by outcome",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		FramesProcessed,
		StatusTicks,
		CurrentAngle,
		SessionScore,
		FPS,
		FrameDuration,
		AlertsSent,
		BreaksSent,
		NotifyFailures,
		LogEntries,
		SessionsSaved,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Start serves in the background.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting metrics server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("stopping metrics server")
	return s.server.Shutdown(ctx)
}
