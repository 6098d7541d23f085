// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pose

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReplaySource plays back frames recorded as JSON lines, one Frame per line.
type ReplaySource struct {
	file    io.Closer
	scanner *bufio.Scanner
	line    int
	closed  bool
}

// OpenReplay opens a JSON-lines frame recording.
func OpenReplay(path string) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay file: %w", err)
	}
	return newReplay(f, f), nil
}

// NewReplayReader replays frames from r.
func NewReplayReader(r io.Reader) *ReplaySource {
	return newReplay(r, io.NopCloser(r))
}

func newReplay(r io.Reader, c io.Closer) *ReplaySource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ReplaySource{file: c, scanner: sc}
}

// Next returns the next recorded frame, or io.EOF at the end of the file.
func (s *ReplaySource) Next(ctx context.Context) (Frame, error) {
	if s.closed {
		return Frame{}, ErrSourceClosed
	}
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return Frame{}, fmt.Errorf("error reading replay file: %w", err)
			}
			return Frame{}, io.EOF
		}
		s.line++

		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var f Frame
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			return Frame{}, fmt.Errorf("replay line %d: %w", s.line, err)
		}
		return f, nil
	}
}

// Close releases the underlying file.
func (s *ReplaySource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
