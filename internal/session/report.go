// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package session

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/relabs-tech/posture_monitor/internal/posture"
)

// StatusColor returns the terminal colour of a tier: GOOD green, FAIR
// yellow (the closest ANSI colour to orange), BAD red.
func StatusColor(s posture.Status) *color.Color {
	switch s {
	case posture.Good:
		return color.New(color.FgGreen, color.Bold)
	case posture.Fair:
		return color.New(color.FgYellow, color.Bold)
	case posture.Bad:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgHiBlack)
	}
}

// PrintSummary writes the session report. savedPath is shown when non-empty.
func PrintSummary(w io.Writer, s Summary, savedPath string) {
	cyan := color.New(color.FgCyan, color.Bold)
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(w)
	cyan.Fprintln(w, rule)
	cyan.Fprintln(w, "SESSION SUMMARY")
	cyan.Fprintln(w, rule)

	fmt.Fprintf(w, "Duration:      %.1f minutes\n", s.Duration.Minutes())
	fmt.Fprintf(w, "Data points:   %d\n", s.DataPoints)
	fmt.Fprint(w, "Posture Score: ")
	ScoreColor(s.Score).Fprintf(w, "%.1f/100\n", s.Score)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Posture Distribution:")
	rows := []struct {
		status  posture.Status
		count   int
		percent float64
	}{
		{posture.Good, s.GoodCount, s.GoodPercent},
		{posture.Fair, s.FairCount, s.FairPercent},
		{posture.Bad, s.BadCount, s.BadPercent},
	}
	for _, r := range rows {
		fmt.Fprint(w, "  ")
		StatusColor(r.status).Fprintf(w, "%-5s", r.status.String()+":")
		fmt.Fprintf(w, " %d (%.1f%%)\n", r.count, r.percent)
	}

	if savedPath != "" {
		fmt.Fprintln(w)
		color.New(color.FgGreen).Fprintf(w, "Session saved: %s\n", savedPath)
	}
	cyan.Fprintln(w, rule)
}

// ScoreColor returns the colour of a session score: the GOOD colour from 80,
// FAIR from 50, BAD below.
func ScoreColor(score float64) *color.Color {
	switch {
	case score >= 80:
		return StatusColor(posture.Good)
	case score >= 50:
		return StatusColor(posture.Fair)
	default:
		return StatusColor(posture.Bad)
	}
}
