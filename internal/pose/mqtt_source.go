// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// CaptureRequest tells the external pose estimator how to run the camera
// and model. It is published retained so a late-starting estimator picks it up.
type CaptureRequest struct {
	Width               int     `json:"width"`
	Height              int     `json:"height"`
	MinFPS              int     `json:"min_fps"`
	ModelComplexity     int     `json:"model_complexity"`
	DetectionConfidence float64 `json:"min_detection_confidence"`
}

// MQTTConfig configures an MQTTSource.
type MQTTConfig struct {
	LandmarkTopic string
	CaptureTopic  string
	FrameTimeout  time.Duration
	Capture       CaptureRequest
}

// MQTTSource receives frames from an external pose estimator over MQTT.
// Only the most recent frame is kept; stale frames are dropped.
type MQTTSource struct {
	client mqtt.Client
	cfg    MQTTConfig
	logger zerolog.Logger

	frames chan Frame
	errs   chan error

	mu     sync.Mutex
	closed bool
}

// NewMQTTSource subscribes to the landmark topic on an already connected
// client and publishes the capture request.
func NewMQTTSource(client mqtt.Client, cfg MQTTConfig, logger zerolog.Logger) (*MQTTSource, error) {
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = 5 * time.Second
	}
	s := newMQTTSource(client, cfg, logger)

	if cfg.CaptureTopic != "" {
		payload, err := json.Marshal(cfg.Capture)
		if err != nil {
			return nil, fmt.Errorf("capture request marshal: %w", err)
		}
		if token := client.Publish(cfg.CaptureTopic, 1, true, payload); token.Wait() && token.Error() != nil {
			return nil, fmt.Errorf("capture request publish: %w", token.Error())
		}
		s.logger.Info().Str("topic", cfg.CaptureTopic).Msg("published capture request")
	}

	token := client.Subscribe(cfg.LandmarkTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		s.handle(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return nil, fmt.Errorf("subscribe %s: %w", cfg.LandmarkTopic, token.Error())
	}
	s.logger.Info().Str("topic", cfg.LandmarkTopic).Msg("subscribed to landmark feed")

	return s, nil
}

func newMQTTSource(client mqtt.Client, cfg MQTTConfig, logger zerolog.Logger) *MQTTSource {
	return &MQTTSource{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "pose-mqtt").Logger(),
		frames: make(chan Frame, 1),
		errs:   make(chan error, 1),
	}
}

// handle decodes one landmark message and replaces any undelivered frame.
func (s *MQTTSource) handle(payload []byte) {
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		s.logger.Warn().Err(err).Msg("landmark payload unmarshal error")
		return
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.frames:
	default:
	}
	s.frames <- f
}

// connectionLost reports a broken broker connection to the reader.
func (s *MQTTSource) connectionLost(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// ConnectionLostHandler returns a handler to install on the client options,
// so a broker disconnect surfaces as a capture failure.
func (s *MQTTSource) ConnectionLostHandler() mqtt.ConnectionLostHandler {
	return func(_ mqtt.Client, err error) {
		s.connectionLost(err)
	}
}

// Next waits for the next frame. No frame within the frame timeout is a
// capture failure.
func (s *MQTTSource) Next(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Frame{}, ErrSourceClosed
	}

	timer := time.NewTimer(s.cfg.FrameTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case err := <-s.errs:
		return Frame{}, fmt.Errorf("mqtt connection lost: %w", err)
	case f := <-s.frames:
		return f, nil
	case <-timer.C:
		return Frame{}, fmt.Errorf("no frame received within %s: %w", s.cfg.FrameTimeout, errFrameTimeout)
	}
}

var errFrameTimeout = errors.New("frame timeout")

// Close unsubscribes from the landmark feed. The client itself belongs to
// the caller.
func (s *MQTTSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.client == nil || !s.client.IsConnectionOpen() {
		return nil
	}
	token := s.client.Unsubscribe(s.cfg.LandmarkTopic)
	token.WaitTimeout(time.Second)
	return token.Error()
}
