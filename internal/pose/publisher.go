// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pose

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes frames to the landmark topic, the same wire format
// MQTTSource consumes. Used by the mock producer.
type Publisher struct {
	client mqtt.Client
	topic  string
}

// NewPublisher returns a Publisher on a connected client.
func NewPublisher(client mqtt.Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

// Publish sends one frame.
func (p *Publisher) Publish(f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("json marshal error (frame): %w", err)
	}
	if token := p.client.Publish(p.topic, 0, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT publish error (%s): %w", p.topic, token.Error())
	}
	return nil
}
