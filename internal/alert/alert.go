// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package alert turns the per-tick posture status into user notifications:
// throttled bad-posture alerts and periodic break reminders.
//
// Both timers are polled once per processing tick and read the time from the
// injected clock; there are no background goroutines or scheduled callbacks.
package alert

import (
	"context"
	"time"
)

// Kind tells posture alerts and break reminders apart downstream.
type Kind string

const (
	KindPosture Kind = "posture"
	KindBreak   Kind = "break"
)

// Notification is a request to show a message to the user.
type Notification struct {
	Kind    Kind          `json:"kind"`
	Title   string        `json:"title"`
	Message string        `json:"message"`
	Timeout time.Duration `json:"-"`
	Time    time.Time     `json:"time"`
	// Count is the sequence number of this notification within its kind.
	Count int `json:"count"`
}

// Notifier delivers notifications. Implementations live in internal/notify.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) error { return nil }
