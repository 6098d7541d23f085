// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/relabs-tech/posture_monitor/internal/clock"
	"github.com/relabs-tech/posture_monitor/internal/posture"
)

const (
	DefaultRecordEvery = 5 * time.Second
	DefaultDir         = "data/sessions"

	fileTimeLayout = "20060102_150405"
)

// Config holds the recorder settings.
type Config struct {
	// RecordEvery is the minimum spacing between two log entries.
	RecordEvery time.Duration
	// Dir is where Save writes session files.
	Dir string
}

// Recorder accumulates the decimated log of one session. It is owned by
// the monitor loop and is not safe for concurrent use.
type Recorder struct {
	cfg    Config
	clk    clock.Clock
	logger zerolog.Logger

	start      time.Time
	lastRecord time.Time
	entries    []LogEntry
}

// NewRecorder starts a session at the current clock time. The first entry
// can be recorded no earlier than RecordEvery after that.
func NewRecorder(cfg Config, clk clock.Clock, logger zerolog.Logger) *Recorder {
	if cfg.Dir == "" {
		cfg.Dir = DefaultDir
	}
	now := clk.Now()
	return &Recorder{
		cfg:        cfg,
		clk:        clk,
		logger:     logger.With().Str("component", "session").Logger(),
		start:      now,
		lastRecord: now,
	}
}

// Record appends an entry if RecordEvery has passed since the last one and
// reports whether it did. Frames in between are dropped, not averaged.
// Unknown status is never recorded.
func (r *Recorder) Record(status posture.Status, angle float64) bool {
	if status == posture.Unknown {
		return false
	}
	now := r.clk.Now()
	if now.Sub(r.lastRecord) < r.cfg.RecordEvery {
		return false
	}
	r.entries = append(r.entries, LogEntry{
		Timestamp: now,
		Status:    status,
		Angle:     round2(angle),
	})
	r.lastRecord = now
	return true
}

// Score returns the weighted score of the entries so far.
func (r *Recorder) Score() float64 {
	return Score(r.entries)
}

// Summary returns the summary of the session so far.
func (r *Recorder) Summary() Summary {
	return Summarize(r.entries, r.clk.Now().Sub(r.start))
}

// Entries returns a copy of the log.
func (r *Recorder) Entries() []LogEntry {
	out := make([]LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of entries.
func (r *Recorder) Len() int {
	return len(r.entries)
}

// StartedAt returns the session start time.
func (r *Recorder) StartedAt() time.Time {
	return r.start
}

// Save writes the log to Dir as session_YYYYMMDD_HHMMSS.csv and returns the
// path. An empty log writes nothing and returns "". The file is written to
// a temporary name and renamed into place, and an existing session file is
// never overwritten.
func (r *Recorder) Save() (string, error) {
	if len(r.entries) == 0 {
		r.logger.Warn().Msg("no data to save (session too short)")
		return "", nil
	}

	if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create sessions dir: %w", err)
	}

	path, err := freePath(r.cfg.Dir, r.start)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(r.cfg.Dir, ".session-*.csv.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := WriteCSV(tmp, r.entries); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close session: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("rename session file: %w", err)
	}

	r.logger.Info().
		Str("path", path).
		Int("entries", len(r.entries)).
		Msg("session saved")
	return path, nil
}

// FileName returns the session file name for a start time.
func FileName(start time.Time) string {
	return "session_" + start.Format(fileTimeLayout) + ".csv"
}

// StartFromFileName parses the start time out of a session file name.
func StartFromFileName(path string) (time.Time, bool) {
	base := filepath.Base(path)
	var stamp string
	if _, err := fmt.Sscanf(base, "session_%15s", &stamp); err != nil {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(fileTimeLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func freePath(dir string, start time.Time) (string, error) {
	base := FileName(start)
	path := filepath.Join(dir, base)
	for i := 1; ; i++ {
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		if i > 99 {
			return "", fmt.Errorf("no free session file name for %s", base)
		}
		path = filepath.Join(dir, fmt.Sprintf("session_%s_%d.csv", start.Format(fileTimeLayout), i))
	}
}
