// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/relabs-tech/posture_monitor/internal/monitor"
)

// statusHub keeps the latest status snapshot received over MQTT and fans
// it out to websocket subscribers. Slow subscribers miss updates rather
// than block the MQTT callback.
type statusHub struct {
	mu     sync.RWMutex
	last   []byte
	status monitor.Status
	subs   map[chan []byte]struct{}
}

func newStatusHub() *statusHub {
	return &statusHub{subs: make(map[chan []byte]struct{})}
}

// update validates and stores a status payload, then broadcasts it.
func (h *statusHub) update(payload []byte) error {
	var st monitor.Status
	if err := json.Unmarshal(payload, &st); err != nil {
		return fmt.Errorf("status unmarshal error: %w", err)
	}
	p := make([]byte, len(payload))
	copy(p, payload)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = p
	h.status = st
	for ch := range h.subs {
		select {
		case ch <- p:
		default:
		}
	}
	return nil
}

// latest returns the most recent raw payload and snapshot.
func (h *statusHub) latest() ([]byte, monitor.Status, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.status, h.last != nil
}

// subscribe registers a subscriber; call the returned func to leave.
func (h *statusHub) subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}
