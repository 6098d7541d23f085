// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package session

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/relabs-tech/posture_monitor/internal/clock"
	"github.com/relabs-tech/posture_monitor/internal/posture"
)

var epoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.Local)

func newTestRecorder(t *testing.T) (*Recorder, *clock.Manual, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "sessions")
	clk := clock.NewManual(epoch)
	r := NewRecorder(Config{RecordEvery: DefaultRecordEvery, Dir: dir}, clk, zerolog.Nop())
	return r, clk, dir
}

// fill records one entry per status, RecordEvery apart.
func fill(t *testing.T, r *Recorder, clk *clock.Manual, statuses ...posture.Status) {
	t.Helper()
	for _, s := range statuses {
		clk.Advance(DefaultRecordEvery)
		if !r.Record(s, 165.5) {
			t.Fatalf("expected %v to be recorded", s)
		}
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		statuses []posture.Status
		want     float64
	}{
		{"empty", nil, 0},
		{"one good", []posture.Status{posture.Good}, 100},
		{"one bad", []posture.Status{posture.Bad}, 20},
		{"equal counts", []posture.Status{posture.Good, posture.Fair, posture.Bad}, 60},
		{"rounded", []posture.Status{posture.Good, posture.Bad, posture.Bad}, 46.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, clk, _ := newTestRecorder(t)
			fill(t, r, clk, tt.statuses...)
			if got := r.Score(); got != tt.want {
				t.Fatalf("expected score %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRecordDecimation(t *testing.T) {
	r, clk, _ := newTestRecorder(t)

	if r.Record(posture.Good, 172) {
		t.Fatal("expected no entry at session start")
	}

	clk.Advance(DefaultRecordEvery)
	if !r.Record(posture.Good, 172) {
		t.Fatal("expected entry after RecordEvery")
	}

	clk.Advance(DefaultRecordEvery - time.Millisecond)
	if r.Record(posture.Bad, 150) {
		t.Fatal("expected second call within RecordEvery to be dropped")
	}

	clk.Advance(time.Millisecond)
	if !r.Record(posture.Fair, 163) {
		t.Fatal("expected entry once RecordEvery elapsed")
	}

	entries := r.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Status != posture.Fair {
		t.Fatalf("dropped frame leaked into the log: %+v", entries[1])
	}
	if !entries[0].Timestamp.Before(entries[1].Timestamp) {
		t.Fatal("expected increasing timestamps")
	}
}

func TestRecordSkipsUnknown(t *testing.T) {
	r, clk, _ := newTestRecorder(t)

	clk.Advance(time.Minute)
	if r.Record(posture.Unknown, 0) {
		t.Fatal("unknown status must not be recorded")
	}
	if !r.Record(posture.Good, 175) {
		t.Fatal("expected entry after unknown tick")
	}
}

func TestRecordRoundsAngle(t *testing.T) {
	r, clk, _ := newTestRecorder(t)
	clk.Advance(DefaultRecordEvery)
	r.Record(posture.Fair, 163.45678)

	if got := r.Entries()[0].Angle; got != 163.46 {
		t.Fatalf("expected angle rounded to 163.46, got %v", got)
	}
}

func TestEntriesIsCopy(t *testing.T) {
	r, clk, _ := newTestRecorder(t)
	fill(t, r, clk, posture.Good)

	e := r.Entries()
	e[0].Status = posture.Bad
	if r.Entries()[0].Status != posture.Good {
		t.Fatal("mutating Entries result changed the log")
	}
}

func TestSummary(t *testing.T) {
	r, clk, _ := newTestRecorder(t)

	empty := r.Summary()
	if empty.DataPoints != 0 || empty.Score != 0 || empty.GoodPercent != 0 {
		t.Fatalf("expected zero summary, got %+v", empty)
	}

	fill(t, r, clk, posture.Good, posture.Bad, posture.Bad)

	s := r.Summary()
	if s.DataPoints != 3 || s.GoodCount != 1 || s.BadCount != 2 || s.FairCount != 0 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.GoodPercent != 33.3 || s.BadPercent != 66.7 || s.FairPercent != 0 {
		t.Fatalf("unexpected percentages: %+v", s)
	}
	if s.Score != 46.7 {
		t.Fatalf("expected score 46.7, got %v", s.Score)
	}
	if s.Duration != 3*DefaultRecordEvery {
		t.Fatalf("expected duration %v, got %v", 3*DefaultRecordEvery, s.Duration)
	}
}

func TestSummaryIdempotent(t *testing.T) {
	r, clk, _ := newTestRecorder(t)
	fill(t, r, clk, posture.Good, posture.Fair)

	first := r.Summary()
	clk.Advance(time.Second)
	second := r.Summary()

	if second.Duration <= first.Duration {
		t.Fatalf("expected duration to grow, got %v then %v", first.Duration, second.Duration)
	}
	first.Duration, second.Duration = 0, 0
	if first != second {
		t.Fatalf("expected identical summaries, got %+v and %+v", first, second)
	}
}

func TestSaveEmptyWritesNothing(t *testing.T) {
	r, clk, dir := newTestRecorder(t)
	clk.Advance(time.Hour)

	path, err := r.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if path != "" {
		t.Fatalf("expected no path, got %q", path)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected no sessions dir to be created, got %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	r, clk, dir := newTestRecorder(t)
	fill(t, r, clk, posture.Good, posture.Fair, posture.Bad)

	path, err := r.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if want := filepath.Join(dir, "session_20260105_090000.csv"); path != want {
		t.Fatalf("expected %s, got %s", want, path)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected only the session file, got %d entries", len(files))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !strings.HasPrefix(string(data), "timestamp,status,angle\n") {
		t.Fatalf("missing header: %q", data)
	}
	if !strings.Contains(string(data), ",GOOD,165.50\n") {
		t.Fatalf("expected two-decimal angle rows, got %q", data)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := r.Entries()
	if len(loaded) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(loaded))
	}
	for i := range want {
		if !loaded[i].Timestamp.Equal(want[i].Timestamp) || loaded[i].Status != want[i].Status || loaded[i].Angle != want[i].Angle {
			t.Fatalf("entry %d: got %+v want %+v", i, loaded[i], want[i])
		}
	}

	start, ok := StartFromFileName(path)
	if !ok || !start.Equal(epoch) {
		t.Fatalf("expected start %v from file name, got %v %v", epoch, start, ok)
	}
}

func TestSaveKeepsPriorSession(t *testing.T) {
	r, clk, dir := newTestRecorder(t)
	fill(t, r, clk, posture.Good)

	first, err := r.Save()
	if err != nil {
		t.Fatalf("save first: %v", err)
	}
	before, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read first: %v", err)
	}

	// A second recorder starting in the same second.
	clk2 := clock.NewManual(epoch)
	other := NewRecorder(Config{RecordEvery: DefaultRecordEvery, Dir: dir}, clk2, zerolog.Nop())
	fill(t, other, clk2, posture.Bad, posture.Bad)

	second, err := other.Save()
	if err != nil {
		t.Fatalf("save second: %v", err)
	}
	if second == first {
		t.Fatalf("expected a distinct file name, got %s twice", first)
	}

	after, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read first again: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("prior session file was modified")
	}
}

func TestSaveFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	clk := clock.NewManual(epoch)
	r := NewRecorder(Config{RecordEvery: time.Second, Dir: filepath.Join(blocker, "sessions")}, clk, zerolog.Nop())
	clk.Advance(time.Second)
	r.Record(posture.Good, 171)

	if _, err := r.Save(); err == nil {
		t.Fatal("expected save error when the directory cannot be created")
	}
	if s := r.Summary(); s.DataPoints != 1 {
		t.Fatalf("expected summary to survive a failed save, got %+v", s)
	}
}

func TestReadCSVLegacyTimestamps(t *testing.T) {
	input := "timestamp,status,angle\n2026-01-05T09:00:05.123456,GOOD,171.25\n2026-01-05T09:00:10.200000,BAD,151.5\n"

	entries, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Timestamp.Second() != 5 || entries[1].Status != posture.Bad || entries[1].Angle != 151.5 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"wrong header", "time,status,angle\n"},
		{"bad status", "timestamp,status,angle\n2026-01-05T09:00:05Z,SLOUCH,150\n"},
		{"bad angle", "timestamp,status,angle\n2026-01-05T09:00:05Z,GOOD,abc\n"},
		{"bad timestamp", "timestamp,status,angle\nyesterday,GOOD,170\n"},
		{"short row", "timestamp,status,angle\n2026-01-05T09:00:05Z,GOOD\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.input)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPrintSummary(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	s := Summarize([]LogEntry{
		{Status: posture.Good},
		{Status: posture.Fair},
		{Status: posture.Bad},
	}, 90*time.Second)
	PrintSummary(&buf, s, "data/sessions/session_20260105_090000.csv")

	out := buf.String()
	for _, want := range []string{
		"SESSION SUMMARY",
		"Duration:      1.5 minutes",
		"Posture Score: 60.0/100",
		"GOOD: 1 (33.3%)",
		"BAD:  1 (33.3%)",
		"Session saved: data/sessions/session_20260105_090000.csv",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
