// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/relabs-tech/posture_monitor/internal/alert"
)

func testNotification() alert.Notification {
	return alert.Notification{
		Kind:    alert.KindPosture,
		Title:   "Posture Alert",
		Message: "Bad posture for 3.0 minutes. Sit up straight!",
		Timeout: 5 * time.Second,
		Time:    time.Date(2026, 1, 5, 9, 3, 0, 0, time.UTC),
		Count:   1,
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLog(zerolog.New(&buf))

	if err := n.Notify(context.Background(), testNotification()); err != nil {
		t.Fatalf("notify: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"kind":"posture"`, `"component":"notify"`, "Sit up straight!"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in log output, got %s", want, out)
		}
	}
}

func TestDesktopNotifier(t *testing.T) {
	var titles []string
	rings := 0
	d := &Desktop{
		beep: true,
		send: func(title, message string) error {
			titles = append(titles, title)
			return nil
		},
		ring: func() error {
			rings++
			return nil
		},
	}

	if err := d.Notify(context.Background(), testNotification()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	brk := alert.Notification{Kind: alert.KindBreak, Title: "Break Time!"}
	if err := d.Notify(context.Background(), brk); err != nil {
		t.Fatalf("notify break: %v", err)
	}

	if len(titles) != 2 || titles[1] != "Break Time!" {
		t.Fatalf("unexpected titles: %v", titles)
	}
	if rings != 1 {
		t.Fatalf("expected a beep only for the posture alert, got %d", rings)
	}
}

func TestDesktopNotifierError(t *testing.T) {
	d := &Desktop{send: func(string, string) error { return errors.New("no dbus session") }}

	err := d.Notify(context.Background(), testNotification())
	if err == nil || !strings.Contains(err.Error(), "no dbus session") {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}

func TestMultiNotifier(t *testing.T) {
	errA := errors.New("a failed")
	errC := errors.New("c failed")
	calls := 0
	count := func(err error) alert.Notifier {
		return alert.NotifierFunc(func(context.Context, alert.Notification) error {
			calls++
			return err
		})
	}

	m := Multi{count(errA), count(nil), count(errC)}
	err := m.Notify(context.Background(), testNotification())

	if calls != 3 {
		t.Fatalf("expected every notifier to be tried, got %d calls", calls)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errC) {
		t.Fatalf("expected both errors joined, got %v", err)
	}

	if err := (Multi{count(nil)}).Notify(context.Background(), testNotification()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestMQTTMessagePayload(t *testing.T) {
	n := testNotification()
	data, err := json.Marshal(Message{Notification: n, TimeoutSeconds: n.Timeout.Seconds()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["kind"] != "posture" || got["title"] != "Posture Alert" || got["timeout_s"] != 5.0 {
		t.Fatalf("unexpected payload: %s", data)
	}
	if _, ok := got["Timeout"]; ok {
		t.Fatalf("raw duration leaked into payload: %s", data)
	}
}
