// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package monitor

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTPublisher publishes status snapshots as retained JSON messages, so a
// client connecting later sees the latest state straight away.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
}

// NewMQTTPublisher creates a status publisher for topic.
func NewMQTTPublisher(client mqtt.Client, topic string) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic}
}

// PublishStatus sends s without waiting for the broker acknowledgement;
// the loop must not stall on a slow broker.
func (p *MQTTPublisher) PublishStatus(_ context.Context, s Status) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("json marshal error (status): %w", err)
	}
	token := p.client.Publish(p.topic, 0, true, payload)
	select {
	case <-token.Done():
		return token.Error()
	default:
		return nil
	}
}
