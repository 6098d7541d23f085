// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package storage

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/posture_monitor/internal/session"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store keeps the history of finished monitoring sessions.
type Store interface {
	SaveSession(ctx context.Context, rec SessionRecord) error
	GetSession(ctx context.Context, id uuid.UUID) (*SessionRecord, error)
	// ListSessions returns up to limit sessions, newest first. A limit of
	// zero or less returns all of them.
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	Close() error
}

// SessionRecord is one archived session. Only the raw log is stored; the
// summary is always recomputed from Entries.
type SessionRecord struct {
	ID        uuid.UUID          `json:"id"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at"`
	Entries   []session.LogEntry `json:"entries"`
	Alerts    int                `json:"alerts"`
	Breaks    int                `json:"breaks"`
	SavedPath string             `json:"saved_path,omitempty"`
}

// NewSessionRecord creates a record with a fresh ID.
func NewSessionRecord(startedAt, endedAt time.Time, entries []session.LogEntry) SessionRecord {
	return SessionRecord{
		ID:        uuid.New(),
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Entries:   entries,
	}
}

// Summary recomputes the session summary from the stored log.
func (r SessionRecord) Summary() session.Summary {
	return session.Summarize(r.Entries, r.EndedAt.Sub(r.StartedAt))
}

// EnsureDir ensures a directory exists with default permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
