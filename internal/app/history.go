// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/relabs-tech/posture_monitor/internal/config"
	"github.com/relabs-tech/posture_monitor/internal/session"
	"github.com/relabs-tech/posture_monitor/internal/storage"
)

// RunSummary prints the summary of a saved session log. The duration is
// taken from the file name when it carries the session start.
func RunSummary(path string) error {
	entries, err := session.LoadFile(path)
	if err != nil {
		return err
	}

	var duration time.Duration
	if len(entries) > 0 {
		last := entries[len(entries)-1].Timestamp
		if start, ok := session.StartFromFileName(path); ok && !last.Before(start) {
			duration = last.Sub(start)
		} else {
			duration = last.Sub(entries[0].Timestamp)
		}
	}

	session.PrintSummary(os.Stdout, session.Summarize(entries, duration), "")
	return nil
}

// RunHistory lists archived sessions, newest first, or shows one session
// when id is set.
func RunHistory(ctx context.Context, cfg *config.Config, limit int, id string) error {
	logger := NewLogger(cfg)

	store, err := openHistory(cfg, logger)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("session history is disabled (STORAGE_TYPE=none)")
	}
	defer store.Close()

	if id != "" {
		sid, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", id, err)
		}
		rec, err := store.GetSession(ctx, sid)
		if err != nil {
			return err
		}
		fmt.Printf("Session %s started %s\n", rec.ID, rec.StartedAt.Local().Format(time.DateTime))
		session.PrintSummary(os.Stdout, rec.Summary(), rec.SavedPath)
		fmt.Printf("Alerts sent:   %d\nBreaks:        %d\n", rec.Alerts, rec.Breaks)
		return nil
	}

	recs, err := store.ListSessions(ctx, limit)
	if err != nil {
		return err
	}
	printHistory(os.Stdout, recs)
	return nil
}

func printHistory(w io.Writer, recs []storage.SessionRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No sessions recorded yet.")
		return
	}

	header := color.New(color.FgCyan, color.Bold)
	header.Fprintf(w, "%-36s  %-19s  %8s  %6s  %6s  %6s\n", "ID", "STARTED", "MINUTES", "SCORE", "ALERTS", "BREAKS")
	for _, rec := range recs {
		s := rec.Summary()
		fmt.Fprintf(w, "%-36s  %-19s  %8.1f  ", rec.ID, rec.StartedAt.Local().Format(time.DateTime), s.Duration.Minutes())
		session.ScoreColor(s.Score).Fprintf(w, "%6.1f", s.Score)
		fmt.Fprintf(w, "  %6d  %6d\n", rec.Alerts, rec.Breaks)
	}
}
