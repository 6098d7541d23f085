// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"bytes"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/posture_monitor/internal/clock"
	"github.com/relabs-tech/posture_monitor/internal/posture"
)

func litPixels(img *image1bit.VerticalLSB) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.BitAt(x, y) == image1bit.On {
				n++
			}
		}
	}
	return n
}

func TestDrawStatus(t *testing.T) {
	good := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	DrawStatus(good, image1bit.On, View{Status: posture.Good, Angle: 172.4, Score: 91.5, NextBreak: 25 * time.Minute})

	if litPixels(good) == 0 {
		t.Fatal("expected text to light some pixels")
	}

	bad := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	DrawStatus(bad, image1bit.On, View{Status: posture.Bad, Angle: 148.0, Score: 40, BadFor: 2 * time.Minute})

	if bytes.Equal(good.Pix, bad.Pix) {
		t.Fatal("expected different views to render differently")
	}
}

func TestStatusLines(t *testing.T) {
	lines := StatusLines(View{
		Status:     posture.Bad,
		Angle:      151.26,
		Score:      62.5,
		BadFor:     95 * time.Second,
		Alerts:     1,
		Breaks:     2,
		NextBreak:  61*time.Minute + 5*time.Second,
		Calibrated: true,
	})

	want := [4]string{
		"BAD   151.3 deg",
		"Score  62.5 cal",
		"Bad 1:35 A:1",
		"Brk 1:01:05 B:2",
	}
	if lines != want {
		t.Fatalf("got %q, want %q", lines, want)
	}

	unknown := StatusLines(View{Status: posture.Unknown})
	if unknown[0] != "No person" || unknown[2] != "Alerts 0" {
		t.Fatalf("unexpected lines for unknown status: %q", unknown)
	}
}

func TestStatusLinesFitPanel(t *testing.T) {
	// 128 px / 7 px per glyph.
	const maxChars = 18
	lines := StatusLines(View{
		Status:    posture.Good,
		Angle:     180,
		Score:     100,
		BadFor:    10 * time.Hour,
		Alerts:    99,
		Breaks:    99,
		NextBreak: 10 * time.Hour,
	})
	for _, l := range lines {
		if len(l) > maxChars {
			t.Fatalf("line %q is wider than the panel", l)
		}
	}
}

func TestConsoleThrottle(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	clk := clock.NewManual(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	c := NewConsole(&buf, 500*time.Millisecond, clk)

	v := View{Status: posture.Fair, Angle: 165, Score: 80, FPS: 14.8}
	for i := 0; i < 5; i++ {
		if err := c.Render(v); err != nil {
			t.Fatalf("render: %v", err)
		}
		clk.Advance(100 * time.Millisecond)
	}
	clk.Advance(time.Second)
	if err := c.Render(v); err != nil {
		t.Fatalf("render: %v", err)
	}

	out := buf.String()
	if n := strings.Count(out, "\n"); n != 2 {
		t.Fatalf("expected 2 throttled lines, got %d:\n%s", n, out)
	}
	if !strings.Contains(out, "FAIR  165.0 deg") || !strings.Contains(out, "14.8 fps") {
		t.Fatalf("unexpected console output: %s", out)
	}
}
