// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
)

// sdNotify sends a state notification to systemd. Outside systemd it does
// nothing.
func sdNotify(state string, logger zerolog.Logger) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logger.Warn().Err(err).Str("state", state).Msg("failed to send sd_notify")
		return
	}
	if sent {
		logger.Debug().Str("state", state).Msg("notified systemd")
	}
}
