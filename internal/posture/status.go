// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package posture

import (
	"fmt"
	"strings"
)

// Status is the posture quality tier of one observation.
type Status int

const (
	// Unknown means no person was detected or the required landmarks were
	// missing. It is never treated as Bad.
	Unknown Status = iota
	Good
	Fair
	Bad
)

// Statuses lists the classified tiers in report order.
var Statuses = []Status{Good, Fair, Bad}

func (s Status) String() string {
	switch s {
	case Good:
		return "GOOD"
	case Fair:
		return "FAIR"
	case Bad:
		return "BAD"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus parses a tier name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GOOD":
		return Good, nil
	case "FAIR":
		return Fair, nil
	case "BAD":
		return Bad, nil
	case "UNKNOWN":
		return Unknown, nil
	default:
		return Unknown, fmt.Errorf("invalid posture status: %q (must be GOOD, FAIR, BAD or UNKNOWN)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(data []byte) error {
	parsed, err := ParseStatus(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
