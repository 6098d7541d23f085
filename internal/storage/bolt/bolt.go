// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/relabs-tech/posture_monitor/internal/storage"
)

const (
	bucketSessions = "sessions"
	bucketIndexIDs = "session_ids"
)

// Store implements storage.Store using bbolt. Sessions are keyed by start
// time so a cursor walks them in chronological order.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store.
func Open(path string) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return storage.EnsureDir(dir)
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketSessions, bucketIndexIDs} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the underlying store database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession stores rec, replacing a record with the same ID.
func (s *Store) SaveSession(ctx context.Context, rec storage.SessionRecord) error {
	data, err := marshal(rec)
	if err != nil {
		return err
	}
	key := sessionKey(rec.StartedAt, rec.ID)

	return s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket([]byte(bucketSessions))
		ids := tx.Bucket([]byte(bucketIndexIDs))
		if sessions == nil || ids == nil {
			return fmt.Errorf("sessions bucket not found")
		}

		if old := ids.Get(rec.ID[:]); old != nil {
			if err := sessions.Delete(old); err != nil {
				return err
			}
		}
		if err := sessions.Put(key, data); err != nil {
			return err
		}
		return ids.Put(rec.ID[:], key)
	})
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*storage.SessionRecord, error) {
	var rec storage.SessionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket([]byte(bucketSessions))
		ids := tx.Bucket([]byte(bucketIndexIDs))
		if sessions == nil || ids == nil {
			return storage.ErrNotFound
		}

		key := ids.Get(id[:])
		if key == nil {
			return storage.ErrNotFound
		}
		data := sessions.Get(key)
		if data == nil {
			return storage.ErrNotFound
		}
		return unmarshal(data, &rec)
	})

	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// ListSessions returns sessions newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]storage.SessionRecord, error) {
	var out []storage.SessionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket([]byte(bucketSessions))
		if sessions == nil {
			return nil
		}

		c := sessions.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var rec storage.SessionRecord
			if err := unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}

// sessionKey is the big-endian start time followed by the ID, so keys sort
// chronologically and never collide.
func sessionKey(start time.Time, id uuid.UUID) []byte {
	key := make([]byte, 8+len(id))
	binary.BigEndian.PutUint64(key, uint64(start.UnixNano()))
	copy(key[8:], id[:])
	return key
}

func marshal(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}

func unmarshal(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return nil
}
