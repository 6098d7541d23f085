// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/relabs-tech/posture_monitor/internal/calibration"
	"github.com/relabs-tech/posture_monitor/internal/clock"
	"github.com/relabs-tech/posture_monitor/internal/config"
	"github.com/relabs-tech/posture_monitor/internal/pose"
	"github.com/relabs-tech/posture_monitor/internal/session"
	"github.com/relabs-tech/posture_monitor/internal/storage"
)

const (
	defaultSessionsLimit = 20
	wsWriteTimeout       = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// webServer serves the live status, the session history and the browser
// calibration flow.
type webServer struct {
	logger     zerolog.Logger
	hub        *statusHub
	history    storage.Store // nil when STORAGE_TYPE=none
	clk        clock.Clock
	calCfg     calibration.Config
	openSource func() (pose.Source, error)
	staticDir  string

	calibrating atomic.Bool
}

// RunWeb subscribes to the monitor's status topic and serves the web UI
// and JSON API until ctx is cancelled.
func RunWeb(ctx context.Context, cfg *config.Config) error {
	logger := NewLogger(cfg).With().Str("component", "web").Logger()
	clk := clock.Real{}

	// 1) Connect to MQTT broker
	var link sourceLink
	client, err := connectMQTT(cfg, cfg.MQTTClientIDWeb, logger, link.handler(logger))
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	history, err := openHistory(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("session history unavailable")
	}
	if history != nil {
		defer history.Close()
	}

	s := &webServer{
		logger:  logger,
		hub:     newStatusHub(),
		history: history,
		clk:     clk,
		calCfg:  calibrationConfig(cfg),
		openSource: func() (pose.Source, error) {
			return openSource(cfg, client, &link, clk, logger)
		},
		staticDir: "web",
	}

	// 2) Subscribe to the status topic and keep the latest snapshot
	token := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := s.hub.update(msg.Payload()); err != nil {
			logger.Warn().Err(err).Msg("dropping status message")
		}
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	logger.Info().Str("topic", cfg.TopicStatus).Msg("subscribed to status topic")

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("web server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info().Msg("shutting down web server")
	return srv.Shutdown(shutdownCtx)
}

func (s *webServer) routes() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)

	r.HandleFunc("/ws/status", s.handleStatusWS)
	r.HandleFunc("/ws/calibration", s.handleCalibrationWS)

	if s.staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.staticDir)))
	}
	return r
}

func (s *webServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("json encode error")
	}
}

func (s *webServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload, _, ok := s.hub.latest()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

// handleStatusWS streams every status update to the client.
func (s *webServer) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade error")
		return
	}
	defer conn.Close()

	updates, leave := s.hub.subscribe()
	defer leave()

	// The client only ever closes; reading detects that.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if payload, _, ok := s.hub.latest(); ok {
		if err := s.writeWS(conn, payload); err != nil {
			return
		}
	}

	for {
		select {
		case <-closed:
			return
		case payload := <-updates:
			if err := s.writeWS(conn, payload); err != nil {
				s.logger.Debug().Err(err).Msg("status stream closed")
				return
			}
		}
	}
}

func (s *webServer) writeWS(conn *websocket.Conn, payload []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// sessionView is the API representation of an archived session.
type sessionView struct {
	ID        uuid.UUID          `json:"id"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at"`
	Alerts    int                `json:"alerts"`
	Breaks    int                `json:"breaks"`
	SavedPath string             `json:"saved_path,omitempty"`
	Summary   session.Summary    `json:"summary"`
	Entries   []session.LogEntry `json:"entries,omitempty"`
}

func newSessionView(rec storage.SessionRecord, withEntries bool) sessionView {
	v := sessionView{
		ID:        rec.ID,
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
		Alerts:    rec.Alerts,
		Breaks:    rec.Breaks,
		SavedPath: rec.SavedPath,
		Summary:   rec.Summary(),
	}
	if withEntries {
		v.Entries = rec.Entries
	}
	return v
}

func (s *webServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "session history disabled", http.StatusNotFound)
		return
	}

	limit := defaultSessionsLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recs, err := s.history.ListSessions(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list sessions")
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}

	views := make([]sessionView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, newSessionView(rec, false))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *webServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "session history disabled", http.StatusNotFound)
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	rec, err := s.history.GetSession(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("id", id.String()).Msg("failed to get session")
		http.Error(w, "failed to get session", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, newSessionView(*rec, true))
}
