// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package session records a sparse posture log for one monitoring session
// and derives its score and summary.
package session

import (
	"math"
	"time"

	"github.com/relabs-tech/posture_monitor/internal/posture"
)

// Score weights per tier.
const (
	goodPoints = 100.0
	fairPoints = 60.0
	badPoints  = 20.0
)

// LogEntry is one decimated observation.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Status    posture.Status `json:"status"`
	Angle     float64        `json:"angle"`
}

// Summary is derived from a session's entries; it is never stored.
type Summary struct {
	Duration    time.Duration `json:"duration"`
	DataPoints  int           `json:"data_points"`
	Score       float64       `json:"score"`
	GoodCount   int           `json:"good_count"`
	FairCount   int           `json:"fair_count"`
	BadCount    int           `json:"bad_count"`
	GoodPercent float64       `json:"good_percent"`
	FairPercent float64       `json:"fair_percent"`
	BadPercent  float64       `json:"bad_percent"`
}

// Score computes the weighted session score:
//
//	(good*100 + fair*60 + bad*20) / total
//
// rounded to one decimal. An empty log scores 0.
func Score(entries []LogEntry) float64 {
	good, fair, bad := count(entries)
	total := good + fair + bad
	if total == 0 {
		return 0
	}
	return round1((float64(good)*goodPoints + float64(fair)*fairPoints + float64(bad)*badPoints) / float64(total))
}

// Summarize builds the summary of entries over the given elapsed duration.
func Summarize(entries []LogEntry, duration time.Duration) Summary {
	good, fair, bad := count(entries)
	total := good + fair + bad

	s := Summary{
		Duration:   duration,
		DataPoints: total,
		GoodCount:  good,
		FairCount:  fair,
		BadCount:   bad,
	}
	if total == 0 {
		return s
	}

	s.Score = Score(entries)
	s.GoodPercent = percent(good, total)
	s.FairPercent = percent(fair, total)
	s.BadPercent = percent(bad, total)
	return s
}

func count(entries []LogEntry) (good, fair, bad int) {
	for _, e := range entries {
		switch e.Status {
		case posture.Good:
			good++
		case posture.Fair:
			fair++
		case posture.Bad:
			bad++
		}
	}
	return good, fair, bad
}

func percent(n, total int) float64 {
	return round1(float64(n) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
